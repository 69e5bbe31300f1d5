package onewire

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Config is the parsed form of the `<name> <backend-address> [options]`
// configuration string of spec.md §6.
type Config struct {
	// Name identifies this bus instance, used as the tag on every log line
	// and diagnostic message.
	Name string
	// Address selects the backend: a serial device path or COM literal
	// (autodetected active/passive), an identifier containing CUNO or COC
	// (network-attached active master), or a small integer 0-127 (firmware
	// coprocessor pin).
	Address string
	// Interval is the periodic kick cadence; zero disables it.
	Interval time.Duration
	// FollowAlarms, when true, schedules an alarm-scan whenever a Reset
	// reports the alarm flag set.
	FollowAlarms bool
	// KickEnabled gates the periodic kick independently of Interval, set
	// via the kick=on|off option (default on).
	KickEnabled bool
	// FirmwareLinkFactory opens a FirmwareLink for a coprocessor pin
	// number. Required only when Address resolves to the firmware
	// backend; the core has no way to know how a given host talks to its
	// coprocessor, so this is supplied by the embedding application.
	FirmwareLinkFactory func(pin int) (FirmwareLink, error)
}

// ParseConfig parses the `<name> <backend-address> [key=value ...]` string
// of spec.md §6. Recognized options: interval=<seconds> (>= 15),
// followAlarms=on|off, kick=on|off.
func ParseConfig(s string) (Config, error) {
	fields := strings.Fields(s)
	if len(fields) < 2 {
		return Config{}, fmt.Errorf("onewire: config %q: expected \"<name> <address> [options]\"", s)
	}

	cfg := Config{Name: fields[0], Address: fields[1], KickEnabled: true}
	for _, opt := range fields[2:] {
		key, value, ok := strings.Cut(opt, "=")
		if !ok {
			return Config{}, fmt.Errorf("onewire: config %q: bad option %q", s, opt)
		}
		switch key {
		case "interval":
			secs, err := strconv.Atoi(value)
			if err != nil {
				return Config{}, fmt.Errorf("onewire: config %q: bad interval: %w", s, err)
			}
			if secs < 15 {
				return Config{}, fmt.Errorf("onewire: config %q: interval must be >= 15", s)
			}
			cfg.Interval = time.Duration(secs) * time.Second
		case "followAlarms":
			cfg.FollowAlarms = value == "on" || value == "true"
		case "kick":
			cfg.KickEnabled = value == "on" || value == "true"
		default:
			return Config{}, fmt.Errorf("onewire: config %q: unknown option %q", s, key)
		}
	}
	return cfg, nil
}

// openBackend resolves cfg.Address to a concrete Backend per spec.md §6's
// dispatch rules: a small integer selects the firmware backend, an
// identifier containing CUNO/COC selects a network-attached active master,
// anything else is a serial device auto-detected between active and
// passive.
func openBackend(cfg Config, logger Logger) (Backend, error) {
	if pin, err := strconv.Atoi(cfg.Address); err == nil && pin >= 0 && pin <= 127 {
		if cfg.FirmwareLinkFactory == nil {
			return nil, fmt.Errorf("onewire: %s: firmware backend (pin %d) requires a FirmwareLinkFactory", cfg.Name, pin)
		}
		link, err := cfg.FirmwareLinkFactory(pin)
		if err != nil {
			return nil, fmt.Errorf("onewire: %s: opening firmware link on pin %d: %w", cfg.Name, pin, err)
		}
		return NewFirmwareMaster(link), nil
	}

	if strings.Contains(cfg.Address, "CUNO") || strings.Contains(cfg.Address, "COC") {
		nt, err := OpenNetTransport(cfg.Address)
		if err != nil {
			return nil, err
		}
		return NewActiveMaster(nt), nil
	}

	st, err := OpenSerialTransport(cfg.Address, 9600)
	if err != nil {
		return nil, err
	}
	kind, err := AutodetectBackend(st, logger)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	switch kind {
	case Active:
		return NewActiveMaster(st), nil
	case Passive:
		return NewPassiveMaster(st), nil
	default:
		_ = st.Close()
		return nil, fmt.Errorf("onewire: %s: autodetect returned unknown backend kind", cfg.Name)
	}
}
