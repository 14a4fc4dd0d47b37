package wkt

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const (
	minTimestampSeconds = -62135596800 // 0001-01-01T00:00:00Z
	maxTimestampSeconds = 253402300799 // 9999-12-31T23:59:59Z
	maxDurationSeconds  = 315576000000
)

// FormatTimestamp renders RFC 3339 in UTC with a "Z" suffix. The fraction
// uses 0, 3, 6 or 9 digits.
func FormatTimestamp(secs int64, nanos int32) (string, error) {
	if secs < minTimestampSeconds || secs > maxTimestampSeconds {
		return "", errors.Errorf("timestamp seconds %d out of range", secs)
	}
	if nanos < 0 || nanos >= 1e9 {
		return "", errors.Errorf("timestamp nanos %d out of range", nanos)
	}

	x := time.Unix(secs, int64(nanos)).UTC().Format("2006-01-02T15:04:05.000000000")
	x = strings.TrimSuffix(x, "000")
	x = strings.TrimSuffix(x, "000")
	x = strings.TrimSuffix(x, ".000")
	return x + "Z", nil
}

func ParseTimestamp(s string) (int64, int32, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return 0, 0, errors.Errorf("invalid timestamp %q", s)
	}
	secs := t.Unix()
	if secs < minTimestampSeconds || secs > maxTimestampSeconds {
		return 0, 0, errors.Errorf("timestamp %q out of range", s)
	}
	return secs, int32(t.Nanosecond()), nil
}

// FormatDuration renders decimal seconds with an "s" suffix.
func FormatDuration(secs int64, nanos int32) (string, error) {
	if secs < -maxDurationSeconds || secs > maxDurationSeconds {
		return "", errors.Errorf("duration seconds %d out of range", secs)
	}
	if nanos <= -1e9 || nanos >= 1e9 || (secs > 0 && nanos < 0) || (secs < 0 && nanos > 0) {
		return "", errors.Errorf("duration nanos %d invalid for seconds %d", nanos, secs)
	}

	sign := ""
	if secs < 0 || nanos < 0 {
		sign, secs, nanos = "-", -secs, -nanos
	}
	x := fmt.Sprintf("%s%d.%09d", sign, secs, nanos)
	x = strings.TrimSuffix(x, "000")
	x = strings.TrimSuffix(x, "000")
	x = strings.TrimSuffix(x, ".000")
	return x + "s", nil
}

func ParseDuration(s string) (int64, int32, error) {
	invalid := errors.Errorf("invalid duration %q", s)

	body, ok := strings.CutSuffix(s, "s")
	if !ok {
		return 0, 0, invalid
	}
	neg := strings.HasPrefix(body, "-")
	if neg {
		body = body[1:]
	}
	intPart, frac, hasDot := strings.Cut(body, ".")
	if !digits(intPart) || (hasDot && !digits(frac)) || len(frac) > 9 {
		return 0, 0, invalid
	}
	if intPart == "" && frac == "" {
		return 0, 0, invalid
	}

	var secs int64
	if intPart != "" {
		var err error
		if secs, err = strconv.ParseInt(intPart, 10, 64); err != nil {
			return 0, 0, invalid
		}
	}
	var nanos int64
	if frac != "" {
		nanos, _ = strconv.ParseInt(frac+strings.Repeat("0", 9-len(frac)), 10, 32)
	}
	if secs > maxDurationSeconds {
		return 0, 0, errors.Errorf("duration %q out of range", s)
	}
	if neg {
		secs, nanos = -secs, -nanos
	}
	return secs, int32(nanos), nil
}

func digits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
