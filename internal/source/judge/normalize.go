package judge

import (
	"regexp"
	"strconv"
	"strings"
)

// Judges state resource limits in their own words ("2 seconds",
// "256 megabytes", "0.100s"). The adapters normalize them to milliseconds
// and kilobytes here, in one place.

var (
	reTimeLimit = regexp.MustCompile(`([\d.]+)\s*(milliseconds?|ms|seconds?|secs?|s)\b`)
	reMemLimit  = regexp.MustCompile(`([\d.]+)\s*(kilobytes?|kb|megabytes?|mb|gigabytes?|gb)\b`)
)

func parseTimeLimitMs(text string) (int, bool) {
	m := reTimeLimit.FindStringSubmatch(strings.ToLower(text))
	if m == nil {
		return 0, false
	}
	value, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}

	switch {
	case strings.HasPrefix(m[2], "ms"), strings.HasPrefix(m[2], "millisecond"):
		return int(value), true
	default:
		return int(value * 1000), true
	}
}

func parseMemLimitKb(text string) (int, bool) {
	m := reMemLimit.FindStringSubmatch(strings.ToLower(text))
	if m == nil {
		return 0, false
	}
	value, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}

	switch m[2][0] {
	case 'k':
		return int(value), true
	case 'm':
		return int(value * 1024), true
	default:
		return int(value * 1024 * 1024), true
	}
}
