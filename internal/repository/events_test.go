package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rehearse/pkg/schema"
)

func createdEvent(id string, at time.Time) *schema.SessionCreated {
	st := schema.NewState(id)
	st.Difficulty = schema.DifficultyHard
	return &schema.SessionCreated{EventID_: "EVT-created", State: *st, Timestamp_: at}
}

func deltaEvent(eventID string, at time.Time, d schema.Delta) *schema.DeltaApplied {
	return &schema.DeltaApplied{EventID_: eventID, Delta: d, Trigger: "continue", Timestamp_: at}
}

func TestReplayEvents(t *testing.T) {
	base := time.Date(2025, 10, 1, 9, 0, 0, 0, time.UTC)

	events := []schema.ChangelogEvent{
		createdEvent("SES-replay", base),
		deltaEvent("EVT-1", base.Add(time.Second), schema.Delta{
			Status:     schema.StatusPtr(schema.StatusReady),
			Utterances: []schema.Utterance{{Speaker: schema.SpeakerSystem, Text: "Session ready."}},
		}),
		deltaEvent("EVT-2", base.Add(2*time.Second), schema.Delta{
			Utterances:     []schema.Utterance{{Speaker: schema.SpeakerTrainee, Text: "Good evening."}, {Speaker: schema.SpeakerGuest, Text: "Finally."}},
			Status:         schema.StatusPtr(schema.StatusActive),
			Turns:          1,
			CompletedSteps: []string{"Greet the guest"},
		}),
	}

	state, err := ReplayEvents(nil, events)
	require.NoError(t, err)

	assert.Equal(t, "SES-replay", state.ID)
	assert.Equal(t, schema.DifficultyHard, state.Difficulty)
	assert.Equal(t, schema.StatusActive, state.Status)
	assert.Equal(t, 1, state.TurnCount)
	assert.Len(t, state.Utterances, 3)
	assert.Equal(t, []string{"Greet the guest"}, state.CompletedSteps)
}

func TestReplayEvents_OrdersByTimestamp(t *testing.T) {
	base := time.Date(2025, 10, 1, 9, 0, 0, 0, time.UTC)

	// Recorded out of order; equal timestamps keep their recorded order.
	events := []schema.ChangelogEvent{
		deltaEvent("EVT-2", base.Add(2*time.Second), schema.Delta{
			Utterances: []schema.Utterance{{Speaker: schema.SpeakerTrainee, Text: "second"}},
		}),
		createdEvent("SES-order", base),
		deltaEvent("EVT-3", base.Add(2*time.Second), schema.Delta{
			Utterances: []schema.Utterance{{Speaker: schema.SpeakerGuest, Text: "third"}},
		}),
		deltaEvent("EVT-1", base.Add(time.Second), schema.Delta{
			Utterances: []schema.Utterance{{Speaker: schema.SpeakerSystem, Text: "first"}},
		}),
	}

	state, err := ReplayEvents(nil, events)
	require.NoError(t, err)

	var texts []string
	for _, u := range state.Utterances {
		texts = append(texts, u.Text)
	}
	assert.Equal(t, []string{"first", "second", "third"}, texts)
}

func TestReplayEvents_Deterministic(t *testing.T) {
	base := time.Date(2025, 10, 1, 9, 0, 0, 0, time.UTC)
	events := []schema.ChangelogEvent{
		createdEvent("SES-det", base),
		deltaEvent("EVT-1", base.Add(time.Second), schema.Delta{Turns: 1, CriticalErrors: 1}),
		deltaEvent("EVT-2", base.Add(2*time.Second), schema.Delta{Turns: 1}),
	}

	first, err := ReplayEvents(nil, events)
	require.NoError(t, err)
	second, err := ReplayEvents(nil, events)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 2, first.TurnCount)
	assert.Equal(t, 1, first.CriticalErrorCount)
}

func TestReplayEvents_Errors(t *testing.T) {
	base := time.Date(2025, 10, 1, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		state  *schema.State
		events []schema.ChangelogEvent
		errMsg string
	}{
		{
			name:   "delta before creation",
			events: []schema.ChangelogEvent{deltaEvent("EVT-1", base, schema.Delta{Turns: 1})},
			errMsg: "delta before session was created",
		},
		{
			name:   "created twice",
			state:  schema.NewState("SES-twice"),
			events: []schema.ChangelogEvent{createdEvent("SES-twice", base)},
			errMsg: "already created",
		},
		{
			name:   "no events and no state",
			errMsg: "no session state",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReplayEvents(tt.state, tt.events)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestEventRecords(t *testing.T) {
	at := time.Date(2025, 10, 1, 9, 0, 0, 0, time.UTC)

	t.Run("delta applied keeps trigger", func(t *testing.T) {
		rec, err := toRecord(deltaEvent("EVT-1", at, schema.Delta{Turns: 1}))
		require.NoError(t, err)
		assert.Equal(t, EventDeltaApplied, rec.EventType)
		assert.Equal(t, "continue", rec.Trigger)
		assert.Nil(t, rec.State)

		event, err := fromRecord(rec)
		require.NoError(t, err)
		applied, ok := event.(*schema.DeltaApplied)
		require.True(t, ok)
		assert.Equal(t, 1, applied.Delta.Turns)
		assert.Equal(t, at, applied.Timestamp())
	})

	t.Run("missing payload", func(t *testing.T) {
		_, err := fromRecord(eventRecord{EventType: EventSessionCreated, EventID: "EVT-x"})
		assert.ErrorContains(t, err, "missing state")

		_, err = fromRecord(eventRecord{EventType: EventDeltaApplied, EventID: "EVT-y"})
		assert.ErrorContains(t, err, "missing delta")
	})

	t.Run("unknown type", func(t *testing.T) {
		_, err := fromRecord(eventRecord{EventType: "RequirementAdded"})
		assert.ErrorContains(t, err, "unknown event type")
	})
}
