package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResetScheduleMidnight(t *testing.T) {

	r, err := NewResetSchedule("", time.UTC)
	require.NoError(t, err)

	next, err := r.Next(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC), next)

	next, err = r.Next(time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC), next, "strictly after now")
}

func TestResetScheduleCustom(t *testing.T) {

	r, err := NewResetSchedule("0 30 3 * * *", time.UTC)
	require.NoError(t, err)

	next, err := r.Next(time.Date(2024, 6, 1, 3, 29, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 6, 1, 3, 30, 0, 0, time.UTC), next)

	_, err = NewResetSchedule("every midnight", time.UTC)
	assert.Error(t, err)
}
