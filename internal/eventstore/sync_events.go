package eventstore

import (
	"encoding/json"

	"git.home.luguber.info/inful/ghsync/internal/daemon/events"
)

// Journal event type names.
const (
	TypeSyncCompleted = "SyncCompleted"
	TypeBackupCreated = "BackupCreated"
)

// NewSyncCompleted converts a queue completion into a journal row.
func NewSyncCompleted(evt events.SyncCompleted) (*BaseEvent, error) {
	payload, err := json.Marshal(evt)
	if err != nil {
		return nil, wrap(ErrMarshalPayloadFailed, err)
	}
	return &BaseEvent{
		EventCycleID:   evt.CycleID,
		EventType:      TypeSyncCompleted,
		EventTimestamp: evt.StartedAt,
		EventPayload:   payload,
		EventMetadata: map[string]string{
			"trigger": string(evt.Trigger),
			"op":      evt.Op,
			"outcome": evt.Outcome,
		},
	}, nil
}

// NewBackupCreated converts a backup notice into a journal row.
func NewBackupCreated(evt events.BackupCreated) (*BaseEvent, error) {
	payload, err := json.Marshal(evt)
	if err != nil {
		return nil, wrap(ErrMarshalPayloadFailed, err)
	}
	return &BaseEvent{
		EventCycleID:   evt.CycleID,
		EventType:      TypeBackupCreated,
		EventTimestamp: evt.CreatedAt,
		EventPayload:   payload,
		EventMetadata:  map[string]string{"backup_branch": evt.Backup},
	}, nil
}

// DecodeSyncCompleted reads the payload of a TypeSyncCompleted row.
func DecodeSyncCompleted(e Event) (events.SyncCompleted, error) {
	var evt events.SyncCompleted
	if err := json.Unmarshal(e.Payload(), &evt); err != nil {
		return evt, wrap(ErrUnmarshalPayloadFailed, err)
	}
	return evt, nil
}
