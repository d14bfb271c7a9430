package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimeOfDay(t *testing.T) {

	assert := assert.New(t)

	v, err := ParseTimeOfDay("08:30:15")
	assert.NoError(err)
	assert.Equal(NewTimeOfDay(8, 30, 15), v)
	assert.Equal("08:30:15", v.String())
	assert.Equal("08:30", v.Short())

	v, err = ParseTimeOfDay("23:59")
	assert.NoError(err)
	assert.Equal(NewTimeOfDay(23, 59, 0), v)

	for _, bad := range []string{"", "8:00", "24:00", "12:60", "12:00:61", "aa:bb", "12:00:00:00"} {
		_, err = ParseTimeOfDay(bad)
		assert.Error(err, bad)
	}
}

func TestTimeRangeValidate(t *testing.T) {

	require := require.New(t)

	_, err := ParseTimeRange("08:00:00", "18:00:00")
	require.NoError(err)

	_, err = ParseTimeRange("00:00", "00:00")
	require.NoError(err, "full day range")

	_, err = ParseTimeRange("10:00", "10:00")
	require.Error(err, "empty range")

	_, err = ParseTimeRange("22:00", "02:00")
	require.Error(err, "ranges do not wrap midnight")
}

func TestTimeRangeContainsIsInclusive(t *testing.T) {

	assert := assert.New(t)

	r, err := ParseTimeRange("08:00:00", "18:00:00")
	assert.NoError(err)

	assert.False(r.Contains(NewTimeOfDay(7, 59, 59)))
	assert.True(r.Contains(NewTimeOfDay(8, 0, 0)))
	assert.True(r.Contains(NewTimeOfDay(18, 0, 0)))
	assert.False(r.Contains(NewTimeOfDay(18, 0, 1)))
}

func TestOverlappingRanges(t *testing.T) {

	assert := assert.New(t)

	ranges := []TimeRange{
		{Start: NewTimeOfDay(8, 0, 0), End: NewTimeOfDay(12, 0, 0)},
		{Start: NewTimeOfDay(11, 0, 0), End: NewTimeOfDay(14, 0, 0)},
		{Start: NewTimeOfDay(15, 0, 0), End: NewTimeOfDay(16, 0, 0)},
	}
	assert.Equal([][2]int{{0, 1}}, OverlappingRanges(ranges))
}

func TestTimeOfDayOn(t *testing.T) {

	day := time.Date(2024, 6, 1, 15, 4, 5, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC), NewTimeOfDay(8, 0, 0).On(day))
}
