package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClock(t *testing.T) {
	hour, minute, err := parseClock(" 07:45 ")
	require.NoError(t, err)
	assert.Equal(t, 7, hour)
	assert.Equal(t, 45, minute)

	for _, bad := range []string{"", "7", "24:00", "12:60", "aa:10", "10:bb", "1:2:3"} {
		_, _, err := parseClock(bad)
		assert.Error(t, err, bad)
	}
}

func TestBuildHourlySpec(t *testing.T) {
	spec, err := buildHourlySpec(5)
	require.NoError(t, err)
	assert.Equal(t, "0 5 * * * *", spec)

	_, err = buildHourlySpec(60)
	assert.Error(t, err)
}

func TestScheduleHourly(t *testing.T) {
	s := NewSchedulerService(time.UTC)
	_, err := s.ScheduleHourly(30, func() {})
	require.NoError(t, err)
	assert.Equal(t, 1, s.Entries())

	_, err = s.ScheduleHourly(-1, func() {})
	assert.Error(t, err)
	assert.Equal(t, 1, s.Entries())

	s.Start()
	s.Stop()
}
