package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"time"
	"unicode"

	"github.com/naoina/toml"
)

// tomlSettings mirrors the teacher's convention: TOML keys use the same
// names as the Go struct fields, and a missing field is an error rather
// than silently ignored.
var tomlSettings = toml.Config{
	NormFieldName: func(rt reflect.Type, key string) string { return key },
	FieldToKey:    func(rt reflect.Type, field string) string { return field },
	MissingField: func(rt reflect.Type, field string) error {
		link := ""
		if unicode.IsUpper(rune(rt.Name()[0])) {
			link = fmt.Sprintf(", see the %s type for available fields", rt.String())
		}
		return fmt.Errorf("field '%s' is not defined in %s%s", field, rt.String(), link)
	},
}

// SessionConfig configures the C6 atomic session store. Durations are
// expressed in whole seconds: naoina/toml has no special-cased handling
// for time.Duration, so the TOML-facing fields are plain integers and the
// typed-duration accessors below do the conversion.
type SessionConfig struct {
	Path                  string
	StaleThresholdSeconds int64
}

func (c SessionConfig) staleThreshold() time.Duration {
	return time.Duration(c.StaleThresholdSeconds) * time.Second
}

// LockConfig configures C1's default acquisition deadline and the
// deadlock-storm circuit breaker (SPEC_FULL.md supplemented feature).
type LockConfig struct {
	DefaultDeadlineSeconds int64
	DeadlockStormThreshold int64
}

func (c LockConfig) defaultDeadline() time.Duration {
	return time.Duration(c.DefaultDeadlineSeconds) * time.Second
}

// MiningConfig holds the mining worker settings and the UTXO snapshot cache
// size. NewNode passes only SnapshotCacheSize on (to the UTXO set);
// Workers, RangeSize and LeaseSeconds are not read by NewNode.
type MiningConfig struct {
	Workers           int
	RangeSize         uint64
	LeaseSeconds      int64
	SnapshotCacheSize int
}

func (c MiningConfig) leaseDuration() time.Duration {
	return time.Duration(c.LeaseSeconds) * time.Second
}

// Config is the top-level TOML configuration shape.
type Config struct {
	Session SessionConfig
	Locks   LockConfig
	Mining  MiningConfig
}

func defaultConfig() Config {
	return Config{
		Session: SessionConfig{
			Path:                  "chaincore-session.json",
			StaleThresholdSeconds: 120,
		},
		Locks: LockConfig{
			DefaultDeadlineSeconds: 5,
			DeadlockStormThreshold: 50,
		},
		Mining: MiningConfig{
			Workers:           1,
			RangeSize:         1 << 20,
			LeaseSeconds:      60,
			SnapshotCacheSize: 5,
		},
	}
}

// configError wraps a configuration load failure so main can map it to
// exit code 2 (spec section 6, "Exit codes for the embedding process").
type configError struct{ cause error }

func (e *configError) Error() string { return fmt.Sprintf("configuration error: %v", e.cause) }
func (e *configError) Unwrap() error { return e.cause }

func loadConfig(file string, cfg *Config) error {
	f, err := os.Open(file)
	if err != nil {
		return &configError{cause: err}
	}
	defer f.Close()

	err = tomlSettings.NewDecoder(bufio.NewReader(f)).Decode(cfg)
	if _, ok := err.(*toml.LineError); ok {
		err = errors.New(file + ", " + err.Error())
	}
	if err != nil {
		return &configError{cause: err}
	}
	return nil
}

func dumpConfig(cfg Config, w io.Writer) error {
	out, err := tomlSettings.Marshal(&cfg)
	if err != nil {
		return &configError{cause: err}
	}
	_, err = w.Write(out)
	return err
}
