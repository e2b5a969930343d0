package core

// convert.go provides conversion functions from raw source values to the
// normalized text written to table files.
//
// Source files mark missing values with the null sentinel `\N`. Every
// converter treats the sentinel and the empty string alike and returns ""
// for them, which the bulk copy reads back as NULL.

import (
	"errors"
	"math"
	"strconv"
	"strings"
)

// NullSentinel marks a missing value in source files.
const NullSentinel = `\N`

// idPrefixLen is the length of the alphabetic prefix on raw identifiers
// ("tt" for films, "nm" for persons).
const idPrefixLen = 2

// IsNull reports whether a raw value is the null sentinel or empty.
func IsNull(s string) bool {
	s = strings.TrimSpace(s)
	return s == "" || s == NullSentinel
}

// ParseID converts a raw identifier like "tt0000001" to its numeric suffix.
// Returns false for null, malformed, or out-of-range identifiers.
func ParseID(raw string) (int32, bool) {
	raw = strings.TrimSpace(raw)
	if len(raw) <= idPrefixLen || IsNull(raw) {
		return 0, false
	}

	for i := 0; i < idPrefixLen; i++ {
		c := raw[i]
		if (c < 'a' || c > 'z') && (c < 'A' || c > 'Z') {
			return 0, false
		}
	}

	digits := raw[idPrefixLen:]
	for i := 0; i < len(digits); i++ {
		if digits[i] < '0' || digits[i] > '9' {
			return 0, false
		}
	}

	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil || n > math.MaxInt32 {
		return 0, false
	}
	return int32(n), true
}

// FormatID renders a surrogate key for output.
func FormatID(id int32) string {
	return strconv.FormatInt(int64(id), 10)
}

// NullInt normalizes a nullable integer. Null values become "".
func NullInt(raw string) (string, error) {
	if IsNull(raw) {
		return "", nil
	}
	n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 32)
	if err != nil {
		return "", errors.New("invalid integer")
	}
	return strconv.FormatInt(n, 10), nil
}

// NullFloat normalizes a nullable decimal. Null values become "".
func NullFloat(raw string) (string, error) {
	if IsNull(raw) {
		return "", nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return "", errors.New("invalid number")
	}
	return strconv.FormatFloat(f, 'f', -1, 64), nil
}

// Flag converts a boolean flag to "true" or "false".
// Accepts 1/0, true/false, t/f, yes/no, y/n. Null is false.
func Flag(raw string) (string, error) {
	if IsNull(raw) {
		return "false", nil
	}

	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "true", "t", "yes", "y", "1":
		return "true", nil
	case "false", "f", "no", "n", "0":
		return "false", nil
	default:
		return "", errors.New("invalid flag")
	}
}

// NullText trims a text value. Null values become "".
func NullText(raw string) string {
	if IsNull(raw) {
		return ""
	}
	return strings.TrimSpace(raw)
}

// SplitMulti splits a comma-separated multi-value field.
// Blank and null entries are skipped and repeats collapse, keeping the
// first-seen order.
func SplitMulti(raw string) []string {
	if IsNull(raw) {
		return nil
	}

	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if IsNull(p) {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}
