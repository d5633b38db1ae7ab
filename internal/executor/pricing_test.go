package executor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyDiscount(t *testing.T) {
	assert.Equal(t, 799.20, ApplyDiscount(999, 20))
	assert.Equal(t, 50.0, ApplyDiscount(100, 50))
	assert.Equal(t, 0.0, ApplyDiscount(100, 100))
	assert.Equal(t, 33.33, ApplyDiscount(49.99, 33.33))
}

func TestBulkMultiplier(t *testing.T) {
	assert.Equal(t, 1.10, BulkMultiplier(10, true))
	assert.Equal(t, 0.75, BulkMultiplier(25, false))
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"3 часа", 3 * time.Hour},
		{"1 час", time.Hour},
		{"2 дня", 48 * time.Hour},
		{"7 дней", 7 * 24 * time.Hour},
		{"1 неделя", 7 * 24 * time.Hour},
		{"2 недели", 14 * 24 * time.Hour},
		{"3 days", 3 * 24 * time.Hour},
		{"1 week", 7 * 24 * time.Hour},
		{"5 hours", 5 * time.Hour},
	}
	for _, tt := range tests {
		got, err := ParseDuration(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestParseDurationRejectsUnparseable(t *testing.T) {
	for _, in := range []string{"", "навсегда", "пять минут", "0 дней"} {
		_, err := ParseDuration(in)
		assert.Error(t, err, in)
	}
}

func TestFormatDurationRoundTrips(t *testing.T) {
	for _, in := range []string{"3 часа", "2 дня", "1 неделя", "5 дней"} {
		d, err := ParseDuration(in)
		require.NoError(t, err)

		back, err := ParseDuration(FormatDuration(d))
		require.NoError(t, err, FormatDuration(d))
		assert.Equal(t, d, back, in)
	}
}

func TestFormatDurationPlurals(t *testing.T) {
	assert.Equal(t, "1 час", FormatDuration(time.Hour))
	assert.Equal(t, "2 часа", FormatDuration(2*time.Hour))
	assert.Equal(t, "5 часов", FormatDuration(5*time.Hour))
	assert.Equal(t, "1 день", FormatDuration(24*time.Hour))
	assert.Equal(t, "3 дня", FormatDuration(72*time.Hour))
	assert.Equal(t, "2 недели", FormatDuration(14*24*time.Hour))
}
