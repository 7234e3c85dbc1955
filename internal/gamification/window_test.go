package gamification

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWindow(t *testing.T) {
	w, err := ParseWindow("")
	require.NoError(t, err)
	assert.Equal(t, WindowWeek, w)

	w, err = ParseWindow(" Month ")
	require.NoError(t, err)
	assert.Equal(t, WindowMonth, w)

	_, err = ParseWindow("year")
	assert.Error(t, err)
}

func TestPolicyRangeRolling(t *testing.T) {
	p := DefaultPolicy()

	week := p.Range(WindowWeek, baseTime)
	require.NotNil(t, week.Start)
	assert.Equal(t, baseTime.Add(-7*24*time.Hour), *week.Start)

	month := p.Range(WindowMonth, baseTime)
	assert.Equal(t, baseTime.Add(-30*24*time.Hour), *month.Start)

	today := p.Range(WindowToday, baseTime)
	assert.Equal(t, time.Date(2024, time.March, 14, 0, 0, 0, 0, time.UTC), *today.Start)

	all := p.Range(WindowAll, baseTime)
	assert.Nil(t, all.Start)
	assert.Nil(t, all.End)
}

func TestPolicyRangeCalendar(t *testing.T) {
	p := Policy{Mode: ModeCalendar, Location: time.UTC}

	week := p.Range(WindowWeek, baseTime)
	assert.Equal(t, time.Date(2024, time.March, 11, 0, 0, 0, 0, time.UTC), *week.Start)

	sunday := time.Date(2024, time.March, 17, 23, 0, 0, 0, time.UTC)
	week = p.Range(WindowWeek, sunday)
	assert.Equal(t, time.Date(2024, time.March, 11, 0, 0, 0, 0, time.UTC), *week.Start)

	month := p.Range(WindowMonth, baseTime)
	assert.Equal(t, time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC), *month.Start)
}

func TestTodayFollowsPolicyLocation(t *testing.T) {
	zone := time.FixedZone("UTC+7", 7*3600)
	p := Policy{Mode: ModeRolling, Location: zone}

	// 20:00 UTC is already 03:00 the next day at UTC+7.
	now := time.Date(2024, time.March, 14, 20, 0, 0, 0, time.UTC)
	today := p.Range(WindowToday, now)
	assert.True(t, today.Start.Equal(time.Date(2024, time.March, 15, 0, 0, 0, 0, zone)))
	assert.False(t, today.Contains(time.Date(2024, time.March, 14, 16, 59, 0, 0, time.UTC)))
	assert.True(t, today.Contains(time.Date(2024, time.March, 14, 17, 0, 0, 0, time.UTC)))
}

func TestRangeBoundsAreHalfOpen(t *testing.T) {
	start := baseTime
	end := baseTime.Add(time.Hour)
	r := Range{Start: &start, End: &end}
	assert.True(t, r.Contains(start))
	assert.False(t, r.Contains(end))
	assert.False(t, r.Contains(start.Add(-time.Nanosecond)))
}
