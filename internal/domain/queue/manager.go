package queue

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// Manager owns an in-memory queue collection. It is a plain data structure:
// not safe for concurrent use, never blocks, never fails. Operations on an
// unknown id do nothing and report false.
type Manager struct {
	entries    []*Entry
	lastNumber int
	now        func() time.Time
}

type ManagerOption func(*Manager)

// WithClock overrides the time source used for entry timestamps.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.now = now }
}

func NewManager(snap Snapshot, opts ...ManagerOption) *Manager {
	m := &Manager{
		entries:    make([]*Entry, 0, len(snap.Entries)),
		lastNumber: snap.LastQueueNumber,
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(m)
	}
	for i := range snap.Entries {
		e := snap.Entries[i]
		m.entries = append(m.entries, &e)
		if e.QueueNumber > m.lastNumber {
			m.lastNumber = e.QueueNumber
		}
	}
	return m
}

// Snapshot returns a copy of the collection suitable for persistence.
func (m *Manager) Snapshot() Snapshot {
	return Snapshot{Entries: m.Entries(), LastQueueNumber: m.lastNumber}
}

// Entries returns copies of all entries in insertion order.
func (m *Manager) Entries() []Entry {
	out := make([]Entry, len(m.entries))
	for i, e := range m.entries {
		out[i] = *e
	}
	return out
}

func (m *Manager) Get(id uuid.UUID) (Entry, bool) {
	if e := m.find(id); e != nil {
		return *e, true
	}
	return Entry{}, false
}

func (m *Manager) find(id uuid.UUID) *Entry {
	for _, e := range m.entries {
		if e.ID == id {
			return e
		}
	}
	return nil
}

// nextNumber is one above both the largest live number and the high-water
// mark, so a number freed by Remove is never handed out again.
func (m *Manager) nextNumber() int {
	highest := m.lastNumber
	for _, e := range m.entries {
		if e.QueueNumber > highest {
			highest = e.QueueNumber
		}
	}
	m.lastNumber = highest + 1
	return m.lastNumber
}

// Add appends a new Waiting entry with the next queue number. The caller's
// status, if any, is ignored and nothing is validated.
func (m *Manager) Add(in NewEntry) Entry {
	e := &Entry{
		ID:          uuid.New(),
		PatientID:   in.PatientID,
		PatientName: in.PatientName,
		QueueNumber: m.nextNumber(),
		Status:      StatusWaiting,
		Type:        in.Type,
		Doctor:      in.Doctor,
		Timestamp:   m.now(),
	}
	m.entries = append(m.entries, e)
	return *e
}

// Update merges the non-status fields of p into the entry.
func (m *Manager) Update(id uuid.UUID, p Patch) bool {
	e := m.find(id)
	if e == nil {
		return false
	}
	p.apply(e)
	e.Timestamp = m.now()
	return true
}

// ForceStatus sets any status on the entry without checking the transition
// or the single-consultation rule. It can leave two entries In Progress;
// ResetAllInProgressToWaiting is the recovery path for that.
func (m *Manager) ForceStatus(id uuid.UUID, s Status) bool {
	e := m.find(id)
	if e == nil {
		return false
	}
	m.setStatus(e, s)
	return true
}

// Remove hard-deletes the entry. Remaining queue numbers are untouched.
func (m *Manager) Remove(id uuid.UUID) bool {
	for i, e := range m.entries {
		if e.ID == id {
			m.entries = append(m.entries[:i], m.entries[i+1:]...)
			return true
		}
	}
	return false
}

// StartConsultation moves the entry to In Progress and sends every other
// In Progress entry back to Waiting.
func (m *Manager) StartConsultation(id uuid.UUID) bool {
	target := m.find(id)
	if target == nil {
		return false
	}
	m.setStatus(target, StatusInProgress)
	for _, e := range m.entries {
		if e != target && e.Status == StatusInProgress {
			m.setStatus(e, StatusWaiting)
		}
	}
	return true
}

// CompleteConsultation marks the entry Completed. The next Waiting entry is
// not promoted; staff pick who to see next.
func (m *Manager) CompleteConsultation(id uuid.UUID) bool {
	e := m.find(id)
	if e == nil {
		return false
	}
	m.setStatus(e, StatusCompleted)
	return true
}

// RevertToWaiting sends the entry back to Waiting whatever its status.
func (m *Manager) RevertToWaiting(id uuid.UUID) bool {
	e := m.find(id)
	if e == nil {
		return false
	}
	m.setStatus(e, StatusWaiting)
	return true
}

// ResetAllInProgressToWaiting returns how many entries were reset.
func (m *Manager) ResetAllInProgressToWaiting() int {
	n := 0
	for _, e := range m.entries {
		if e.Status == StatusInProgress {
			m.setStatus(e, StatusWaiting)
			n++
		}
	}
	return n
}

func (m *Manager) setStatus(e *Entry, s Status) {
	e.Status = s
	e.Timestamp = m.now()
}

// Display is SelectDisplayEntry over the current collection.
func (m *Manager) Display() *Entry {
	return SelectDisplayEntry(m.Entries())
}

// SelectDisplayEntry picks the entry a "now serving" screen should show: the
// In Progress entry if there is one, otherwise the Waiting entry with the
// smallest queue number, otherwise nil. It does not modify entries.
func SelectDisplayEntry(entries []Entry) *Entry {
	active := activeOrder(entries)
	if len(active) == 0 {
		return nil
	}
	for i := range active {
		if active[i].Status == StatusInProgress {
			return &active[i]
		}
	}
	for i := range active {
		if active[i].Status == StatusWaiting {
			return &active[i]
		}
	}
	return nil
}

// DisplayOrder returns the entries in presentation order: the active set
// (In Progress first, then by queue number) followed by Completed and
// Cancelled entries by queue number.
func DisplayOrder(entries []Entry) []Entry {
	out := activeOrder(entries)
	var done []Entry
	for _, e := range entries {
		if !e.Status.Active() {
			done = append(done, e)
		}
	}
	sort.SliceStable(done, func(i, j int) bool {
		return done[i].QueueNumber < done[j].QueueNumber
	})
	return append(out, done...)
}

func activeOrder(entries []Entry) []Entry {
	active := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.Status.Active() {
			active = append(active, e)
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		ai := active[i].Status == StatusInProgress
		aj := active[j].Status == StatusInProgress
		if ai != aj {
			return ai
		}
		return active[i].QueueNumber < active[j].QueueNumber
	})
	return active
}
