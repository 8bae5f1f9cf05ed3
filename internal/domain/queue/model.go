package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a queue entry.
type Status string

const (
	StatusWaiting    Status = "Waiting"
	StatusInProgress Status = "In Progress"
	StatusCompleted  Status = "Completed"
	StatusCancelled  Status = "Cancelled"
)

var validStatuses = map[Status]bool{
	StatusWaiting: true, StatusInProgress: true,
	StatusCompleted: true, StatusCancelled: true,
}

func (s Status) Valid() bool { return validStatuses[s] }

// Active reports whether the entry still takes part in display selection.
func (s Status) Active() bool {
	return s == StatusWaiting || s == StatusInProgress
}

func ParseStatus(v string) (Status, error) {
	s := Status(v)
	if !s.Valid() {
		return "", fmt.Errorf("invalid queue status: %q", v)
	}
	return s, nil
}

func (s *Status) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	parsed, err := ParseStatus(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// EntryType tags why the patient is being seen. It never affects ordering.
type EntryType string

const (
	TypeCheckUp      EntryType = "Check-up"
	TypeConsultation EntryType = "Consultation"
	TypeFollowUp     EntryType = "Follow-up"
	TypeEmergency    EntryType = "Emergency"
)

var validTypes = map[EntryType]bool{
	TypeCheckUp: true, TypeConsultation: true,
	TypeFollowUp: true, TypeEmergency: true,
}

// Valid accepts the four known tags and the empty tag.
func (t EntryType) Valid() bool { return t == "" || validTypes[t] }

func (t *EntryType) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if !EntryType(raw).Valid() {
		return fmt.Errorf("invalid queue entry type: %q", raw)
	}
	*t = EntryType(raw)
	return nil
}

// Entry is one patient's pending-or-active visit request. PatientName and
// Doctor are copied at creation time and never re-synced with their sources.
type Entry struct {
	ID          uuid.UUID `json:"id"`
	PatientID   string    `json:"patientId"`
	PatientName string    `json:"patientName"`
	QueueNumber int       `json:"queueNumber"`
	Status      Status    `json:"status"`
	Type        EntryType `json:"type"`
	Doctor      string    `json:"doctor"`
	Timestamp   time.Time `json:"timestamp"`
}

// NewEntry is the input of an "add to queue" action. Status is accepted for
// parity with callers that send it, and ignored. It is kept as a plain string
// so an unrecognised value does not reject the request.
type NewEntry struct {
	PatientID   string    `json:"patientId"`
	PatientName string    `json:"patientName"`
	Type        EntryType `json:"type"`
	Doctor      string    `json:"doctor"`
	Status      *string   `json:"status,omitempty"`
}

// Patch carries the editable, non-status fields of an entry. Nil fields are
// left untouched. Status changes go through the transition operations or,
// explicitly, Manager.ForceStatus.
type Patch struct {
	PatientID   *string    `json:"patientId,omitempty"`
	PatientName *string    `json:"patientName,omitempty"`
	Type        *EntryType `json:"type,omitempty"`
	Doctor      *string    `json:"doctor,omitempty"`
}

func (p Patch) apply(e *Entry) {
	if p.PatientID != nil {
		e.PatientID = *p.PatientID
	}
	if p.PatientName != nil {
		e.PatientName = *p.PatientName
	}
	if p.Type != nil {
		e.Type = *p.Type
	}
	if p.Doctor != nil {
		e.Doctor = *p.Doctor
	}
}

// Snapshot is the persisted form of the queue: every entry plus the highest
// queue number ever handed out.
type Snapshot struct {
	Entries         []Entry `json:"queue"`
	LastQueueNumber int     `json:"lastQueueNumber"`
}
