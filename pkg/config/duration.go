package config

import (
	"fmt"
	"strconv"
	"time"
)

// Duration wraps time.Duration so YAML can parse humantime-style strings
// ("60s", "1h") the way original_source's humantime_serde did, instead of
// yaml.v3's default expectation of a bare integer nanosecond count.
type Duration time.Duration

// UnmarshalYAML accepts either a duration string or a bare integer of
// nanoseconds.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err == nil {
		// An integer scalar also decodes into s, so try it as nanoseconds first.
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			*d = Duration(n)
			return nil
		}
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("parse duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}

	var n int64
	if err := unmarshal(&n); err != nil {
		return fmt.Errorf("duration must be a string or integer nanosecond count: %w", err)
	}
	*d = Duration(n)
	return nil
}

// Std returns the value as a standard time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}
