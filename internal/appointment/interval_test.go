package appointment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(hour, min int) time.Time {
	return time.Date(2026, 1, 1, hour, min, 0, 0, time.UTC)
}

func TestInterval_Overlaps(t *testing.T) {
	base := Interval{Start: at(10, 0), End: at(10, 30)}

	tests := []struct {
		name  string
		other Interval
		want  bool
	}{
		{"identical", base, true},
		{"starts inside", Interval{at(10, 15), at(10, 45)}, true},
		{"ends inside", Interval{at(9, 45), at(10, 15)}, true},
		{"contains", Interval{at(9, 0), at(11, 0)}, true},
		{"contained", Interval{at(10, 5), at(10, 10)}, true},
		{"touches end", Interval{at(10, 30), at(11, 0)}, false},
		{"touches start", Interval{at(9, 30), at(10, 0)}, false},
		{"before", Interval{at(8, 0), at(9, 0)}, false},
		{"after", Interval{at(11, 0), at(12, 0)}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, base.Overlaps(tt.other))
			assert.Equal(t, tt.want, tt.other.Overlaps(base), "overlap is symmetric")
		})
	}
}

func TestNewInterval(t *testing.T) {
	_, err := NewInterval(at(10, 0), at(10, 0))
	require.ErrorIs(t, err, ErrInvalidInterval)

	_, err = NewInterval(at(10, 30), at(10, 0))
	require.ErrorIs(t, err, ErrInvalidInterval)
	assert.ErrorIs(t, err, ErrInvalidInput)

	buenosAires := time.FixedZone("ART", -3*60*60)
	iv, err := NewInterval(
		time.Date(2026, 1, 1, 7, 0, 0, 0, buenosAires),
		time.Date(2026, 1, 1, 7, 30, 0, 0, buenosAires),
	)
	require.NoError(t, err)
	assert.Equal(t, time.UTC, iv.Start.Location())
	assert.True(t, iv.Start.Equal(at(10, 0)))
	assert.Equal(t, 30*time.Minute, iv.Duration())
}

func TestCanonical_TruncatesToMicroseconds(t *testing.T) {
	in := time.Date(2026, 1, 1, 10, 0, 0, 123456789, time.UTC)
	got := Canonical(in)
	assert.Equal(t, 123456000, got.Nanosecond())
}
