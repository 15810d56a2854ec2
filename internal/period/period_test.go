package period

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEquivalentForms(t *testing.T) {
	t.Parallel()
	want := 3*24*time.Hour + 2*time.Hour + 30*time.Minute
	for _, raw := range []string{"3d:2h:30m:0ml", "3d:150m", "3d:30m:2h:0s", "74h:30m"} {
		got, err := Parse(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}
}

func TestParseOrderIndependent(t *testing.T) {
	t.Parallel()
	a, err := Parse("1h:30m")
	require.NoError(t, err)
	b, err := Parse("30m:1h")
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Equal(t, 90*time.Minute, a)
}

func TestParseSubSecondUnits(t *testing.T) {
	t.Parallel()
	got, err := Parse("1s:250ml:7mc")
	require.NoError(t, err)
	assert.Equal(t, time.Second+250*time.Millisecond+7*time.Microsecond, got)
}

func TestParseInvalid(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		raw  string
	}{
		{"uppercase unit", "2H"},
		{"missing suffix", "5"},
		{"duplicate unit", "2h:1h"},
		{"empty component", "1d::3m"},
		{"missing digits", "1s:ml"},
		{"empty string", ""},
		{"unknown unit", "3w"},
		{"sign", "-3s"},
		{"trailing colon", "3s:"},
		{"embedded garbage", "1x2s"},
		{"overflow", "9999999999999999d"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Parse(tt.raw)
			var fe *FormatError
			require.Error(t, err)
			assert.True(t, errors.As(err, &fe), "want *FormatError, got %T", err)
		})
	}
}

func TestFrom(t *testing.T) {
	t.Parallel()

	d, err := From("1h:30m")
	require.NoError(t, err)
	assert.Equal(t, 90*time.Minute, d)

	d, err = From(90 * time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 90*time.Minute, d)

	_, err = From(10)
	var te *InvalidTypeError
	require.Error(t, err)
	assert.True(t, errors.As(err, &te))
	var fe *FormatError
	assert.False(t, errors.As(err, &fe), "type error must not be a format error")
}

func TestFormatRoundTrip(t *testing.T) {
	t.Parallel()
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "0s"},
		{90 * time.Minute, "1h:30m"},
		{3*24*time.Hour + 2*time.Hour + 30*time.Minute, "3d:2h:30m"},
		{1500 * time.Millisecond, "1s:500ml"},
		{2 * time.Microsecond, "2mc"},
		{500 * time.Nanosecond, "0s"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Format(tt.d))
		if tt.d%time.Microsecond == 0 {
			back, err := Parse(tt.want)
			require.NoError(t, err)
			assert.Equal(t, tt.d, back)
		}
	}
}
