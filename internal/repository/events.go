package repository

import (
	"fmt"
	"sort"
	"time"

	"rehearse/pkg/schema"
)

// Event type names as stored in the changelog.
const (
	EventSessionCreated = "SessionCreated"
	EventDeltaApplied   = "DeltaApplied"
)

// eventRecord is the on-disk form of a changelog event.
type eventRecord struct {
	EventType string        `yaml:"event_type"`
	EventID   string        `yaml:"event_id"`
	Timestamp time.Time     `yaml:"timestamp"`
	Trigger   string        `yaml:"trigger,omitempty"`
	State     *schema.State `yaml:"state,omitempty"`
	Delta     *schema.Delta `yaml:"delta,omitempty"`
}

// changelog is the on-disk form of a session's event log.
type changelog struct {
	SessionID           string        `yaml:"session_id"`
	Events              []eventRecord `yaml:"events"`
	LastSnapshot        int           `yaml:"last_snapshot"`
	EventsSinceSnapshot int           `yaml:"events_since_snapshot"`
}

func toRecord(event schema.ChangelogEvent) (eventRecord, error) {
	rec := eventRecord{
		EventType: event.EventType(),
		EventID:   event.EventID(),
		Timestamp: event.Timestamp(),
	}

	switch e := event.(type) {
	case *schema.SessionCreated:
		st := e.State
		rec.State = &st
	case *schema.DeltaApplied:
		d := e.Delta
		rec.Delta = &d
		rec.Trigger = e.Trigger
	default:
		return eventRecord{}, fmt.Errorf("unknown event type: %T", event)
	}

	return rec, nil
}

func fromRecord(rec eventRecord) (schema.ChangelogEvent, error) {
	switch rec.EventType {
	case EventSessionCreated:
		if rec.State == nil {
			return nil, fmt.Errorf("event %s: missing state", rec.EventID)
		}
		return &schema.SessionCreated{
			EventID_:   rec.EventID,
			State:      *rec.State,
			Timestamp_: rec.Timestamp,
		}, nil

	case EventDeltaApplied:
		if rec.Delta == nil {
			return nil, fmt.Errorf("event %s: missing delta", rec.EventID)
		}
		return &schema.DeltaApplied{
			EventID_:   rec.EventID,
			Delta:      *rec.Delta,
			Trigger:    rec.Trigger,
			Timestamp_: rec.Timestamp,
		}, nil

	default:
		return nil, fmt.Errorf("unknown event type: %s", rec.EventType)
	}
}

// ReplayEvents folds events into state in chronological order. Events with
// equal timestamps keep their recorded order. A nil state is only valid when
// the first event is SessionCreated.
func ReplayEvents(state *schema.State, events []schema.ChangelogEvent) (*schema.State, error) {
	sorted := make([]schema.ChangelogEvent, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp().Before(sorted[j].Timestamp())
	})

	for _, event := range sorted {
		next, err := applyEvent(state, event)
		if err != nil {
			return nil, fmt.Errorf("apply event %s: %w", event.EventID(), err)
		}
		state = next
	}

	if state == nil {
		return nil, fmt.Errorf("no session state after replay")
	}
	return state, nil
}

func applyEvent(state *schema.State, event schema.ChangelogEvent) (*schema.State, error) {
	switch e := event.(type) {
	case *schema.SessionCreated:
		if state != nil {
			return nil, fmt.Errorf("session %s already created", state.ID)
		}
		return e.State.Clone(), nil

	case *schema.DeltaApplied:
		if state == nil {
			return nil, fmt.Errorf("delta before session was created")
		}
		return schema.Apply(state, e.Delta), nil

	default:
		return nil, fmt.Errorf("unknown event type: %T", event)
	}
}

// replayRecords converts stored records and replays them onto state.
func replayRecords(state *schema.State, records []eventRecord) (*schema.State, error) {
	events := make([]schema.ChangelogEvent, 0, len(records))
	for _, rec := range records {
		event, err := fromRecord(rec)
		if err != nil {
			return nil, fmt.Errorf("convert event record: %w", err)
		}
		events = append(events, event)
	}
	return ReplayEvents(state, events)
}
