package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimeTrigger_ParseParamRegistration(t *testing.T) {
	m := NewManager(fakeSettings{})
	trigger := NewTimeTrigger(m, fakeSettings{}, nil)

	trigger.ParseParam("minute", "30")
	assert.Empty(t, bucketFor(m, 30), "incomplete trigger must not register")

	trigger.ParseParam("hour", "7")
	require.Len(t, bucketFor(m, 30), 1)
	assert.Equal(t, 30, trigger.Minute())
	assert.Equal(t, 7, trigger.Hour())
	assert.True(t, trigger.Active())
}

func TestTimeTrigger_InvalidParamIgnored(t *testing.T) {
	m := NewManager(fakeSettings{})
	trigger := NewTimeTrigger(m, fakeSettings{}, nil)

	trigger.ParseParam("minute", "thirty")
	trigger.ParseParam("hour", "7")
	assert.Empty(t, bucketFor(m, 7), "unparsable minute leaves the trigger unregistered")
}

func TestTimeTrigger_EveryHour(t *testing.T) {
	m := NewManager(fakeSettings{})
	trigger := NewTimeTrigger(m, fakeSettings{}, nil)

	trigger.ParseParam("minute", "0")
	trigger.ParseParam("hour", "-1")

	assert.Equal(t, -1, trigger.Hour())
	require.Len(t, bucketFor(m, 0), 1)
}

func TestTimeTrigger_UTCConversion(t *testing.T) {
	tests := []struct {
		name     string
		timezone string
		now      time.Time
		setHour  int
		expected int
	}{
		{
			name:     "UTC passthrough",
			timezone: "UTC",
			now:      time.Date(2026, 1, 15, 6, 0, 0, 0, time.UTC),
			setHour:  8,
			expected: 8,
		},
		{
			name:     "winter offset before the local hour",
			timezone: "Europe/Stockholm",
			now:      time.Date(2026, 1, 15, 6, 0, 0, 0, time.UTC),
			setHour:  8,
			expected: 7,
		},
		{
			name:     "winter offset after the local hour rolls to tomorrow",
			timezone: "Europe/Stockholm",
			now:      time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC),
			setHour:  8,
			expected: 7,
		},
		{
			name:     "summer offset",
			timezone: "Europe/Stockholm",
			now:      time.Date(2026, 7, 15, 3, 0, 0, 0, time.UTC),
			setHour:  8,
			expected: 6,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager(fakeSettings{"tz": tt.timezone})
			trigger := NewTimeTrigger(m, fakeSettings{"tz": tt.timezone}, nil)
			trigger.now = func() time.Time { return tt.now }

			trigger.ParseParam("minute", "0")
			trigger.ParseParam("hour", "7") // placeholder so registration happens
			trigger.setHour = tt.setHour
			assert.Equal(t, tt.expected, trigger.utcHourFor(tt.setHour))
		})
	}
}

func TestTimeTrigger_RecalculateFollowsTimezoneChange(t *testing.T) {
	settings := fakeSettings{"tz": "UTC"}
	m := NewManager(settings)
	trigger := NewTimeTrigger(m, settings, nil)
	trigger.now = func() time.Time {
		return time.Date(2026, 1, 15, 3, 0, 0, 0, time.UTC)
	}

	trigger.ParseParam("minute", "0")
	trigger.ParseParam("hour", "8")
	require.Equal(t, 8, trigger.Hour())

	settings["tz"] = "Europe/Stockholm"
	changed := trigger.Recalculate()
	assert.True(t, changed)
	assert.Equal(t, 7, trigger.Hour())

	assert.False(t, trigger.Recalculate(), "second recalculation sees no change")
}

func TestTimeTrigger_FiresThroughManager(t *testing.T) {
	settings := fakeSettings{}
	m := NewManager(settings)
	m.now = func() time.Time {
		return time.Date(2026, 3, 10, 7, 30, 2, 0, time.UTC)
	}

	var ctxs []map[string]string
	trigger := NewTimeTrigger(m, settings, func(ctx map[string]string) {
		ctxs = append(ctxs, ctx)
	})
	trigger.now = m.now

	trigger.ParseParam("minute", "30")
	trigger.ParseParam("hour", "7")

	m.tick()
	require.Len(t, ctxs, 1)
	assert.Equal(t, "time", ctxs[0]["triggertype"])
}

func TestTimeTrigger_Close(t *testing.T) {
	m := NewManager(fakeSettings{})
	trigger := NewTimeTrigger(m, fakeSettings{}, nil)
	trigger.ParseParam("minute", "30")
	trigger.ParseParam("hour", "7")
	require.Len(t, bucketFor(m, 30), 1)

	trigger.Close()
	assert.Empty(t, bucketFor(m, 30))
}
