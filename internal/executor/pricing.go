// Package executor maps tool invocations onto catalog mutations through a
// typed operation registry.
package executor

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"time"
)

// Round2 rounds to two decimals, the precision of all stored prices.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// ApplyDiscount returns the discounted price for a base price and percentage.
func ApplyDiscount(base, percentage float64) float64 {
	return Round2(base * (1 - percentage/100))
}

// BulkMultiplier computes the price multiplier for a bulk update.
func BulkMultiplier(percentage float64, increase bool) float64 {
	if increase {
		return 1 + percentage/100
	}
	return 1 - percentage/100
}

type durationUnit struct {
	pattern *regexp.Regexp
	unit    time.Duration
}

// Ordered so that the most specific unit wins: weeks before days before
// hours ("неделя" contains no day token, but "2 дня 3 часа" picks days).
var durationUnits = []durationUnit{
	{regexp.MustCompile(`(?i)(\d+)\s*(недел\w*|week\w*|w\b)`), 7 * 24 * time.Hour},
	{regexp.MustCompile(`(?i)(\d+)\s*(день|дня|дней|сут\w*|day\w*|d\b)`), 24 * time.Hour},
	{regexp.MustCompile(`(?i)(\d+)\s*(час\w*|ч\b|hour\w*|h\b)`), time.Hour},
}

// ParseDuration parses a localized human duration ("3 часа", "2 дня",
// "1 week") into a time.Duration. An explicitly supplied duration that does
// not parse is an error, never a silent fallback.
func ParseDuration(s string) (time.Duration, error) {
	for _, u := range durationUnits {
		m := u.pattern.FindStringSubmatch(s)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil || n <= 0 {
			break
		}
		return time.Duration(n) * u.unit, nil
	}
	return 0, fmt.Errorf("не удалось распознать длительность %q", s)
}

// FormatDuration renders a duration back into a human string at the same
// unit granularity ParseDuration accepts.
func FormatDuration(d time.Duration) string {
	const week = 7 * 24 * time.Hour
	const day = 24 * time.Hour
	switch {
	case d >= week && d%week == 0:
		return fmt.Sprintf("%d %s", d/week, pluralRu(int(d/week), "неделя", "недели", "недель"))
	case d >= day && d%day == 0:
		return fmt.Sprintf("%d %s", d/day, pluralRu(int(d/day), "день", "дня", "дней"))
	default:
		hours := int(d / time.Hour)
		if hours < 1 {
			hours = 1
		}
		return fmt.Sprintf("%d %s", hours, pluralRu(hours, "час", "часа", "часов"))
	}
}

// pluralRu picks the Russian plural form for n.
func pluralRu(n int, one, few, many string) string {
	n = n % 100
	if n >= 11 && n <= 14 {
		return many
	}
	switch n % 10 {
	case 1:
		return one
	case 2, 3, 4:
		return few
	default:
		return many
	}
}
