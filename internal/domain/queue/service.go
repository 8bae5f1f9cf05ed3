package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/platform/redisclient"
	"github.com/clinic/clinic/internal/platform/websocket"
)

const (
	// Topic is the websocket topic display screens subscribe to.
	Topic = "queue"

	EventChanged  = "queue.changed"
	EventSnapshot = "queue.snapshot"

	lockKey = "queue"
)

// PatientDirectory resolves a patient reference to the name shown on the queue.
type PatientDirectory interface {
	DisplayName(ctx context.Context, patientID string) (string, error)
}

// Recorder receives operation outcomes and per-status entry counts.
type Recorder interface {
	ObserveOperation(operation, outcome string)
	SetEntries(counts map[string]int)
}

// Service runs Manager operations against a Repository. Each mutation loads
// the stored snapshot, applies the operation and saves the result while
// holding both a process-local mutex and the Locker, so concurrent writers
// in one or many processes never interleave.
type Service struct {
	mu        sync.Mutex
	repo      Repository
	locker    redisclient.Locker
	publisher websocket.EventPublisher
	recorder  Recorder
	directory PatientDirectory
	clock     func() time.Time
	logger    zerolog.Logger
}

type ServiceOption func(*Service)

func WithLocker(l redisclient.Locker) ServiceOption {
	return func(s *Service) { s.locker = l }
}

func WithPublisher(p websocket.EventPublisher) ServiceOption {
	return func(s *Service) { s.publisher = p }
}

func WithRecorder(r Recorder) ServiceOption {
	return func(s *Service) { s.recorder = r }
}

func WithDirectory(d PatientDirectory) ServiceOption {
	return func(s *Service) { s.directory = d }
}

func WithServiceClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.clock = now }
}

func NewService(repo Repository, logger zerolog.Logger, opts ...ServiceOption) *Service {
	s := &Service{
		repo:   repo,
		locker: redisclient.NoopLocker{},
		logger: logger.With().Str("component", "queue").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) load(ctx context.Context) (*Manager, error) {
	snap, err := s.repo.Load(ctx)
	if err != nil {
		return nil, err
	}
	var opts []ManagerOption
	if s.clock != nil {
		opts = append(opts, WithClock(s.clock))
	}
	return NewManager(snap, opts...), nil
}

// List returns every entry in presentation order.
func (s *Service) List(ctx context.Context) ([]Entry, error) {
	m, err := s.load(ctx)
	if err != nil {
		return nil, fmt.Errorf("list queue: %w", err)
	}
	return DisplayOrder(m.Entries()), nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (Entry, bool, error) {
	m, err := s.load(ctx)
	if err != nil {
		return Entry{}, false, fmt.Errorf("get queue entry: %w", err)
	}
	e, ok := m.Get(id)
	return e, ok, nil
}

// Display returns the entry a "now serving" screen shows, or nil.
func (s *Service) Display(ctx context.Context) (*Entry, error) {
	m, err := s.load(ctx)
	if err != nil {
		return nil, fmt.Errorf("display queue: %w", err)
	}
	return m.Display(), nil
}

// Add puts a patient at the back of the queue. A blank name is looked up in
// the patient directory; a failed lookup leaves it blank.
func (s *Service) Add(ctx context.Context, in NewEntry) (Entry, error) {
	if strings.TrimSpace(in.PatientName) == "" && in.PatientID != "" && s.directory != nil {
		name, err := s.directory.DisplayName(ctx, in.PatientID)
		if err != nil {
			s.logger.Debug().Err(err).Str("patient_id", in.PatientID).Msg("patient name lookup failed")
		} else {
			in.PatientName = name
		}
	}

	var added Entry
	_, err := s.mutate(ctx, "add", func(m *Manager) bool {
		added = m.Add(in)
		return true
	})
	if err != nil {
		return Entry{}, err
	}
	return added, nil
}

func (s *Service) Update(ctx context.Context, id uuid.UUID, p Patch) (bool, error) {
	return s.mutate(ctx, "update", func(m *Manager) bool { return m.Update(id, p) })
}

// ForceStatus sets a status without any transition rule.
func (s *Service) ForceStatus(ctx context.Context, id uuid.UUID, st Status) (bool, error) {
	return s.mutate(ctx, "force_status", func(m *Manager) bool { return m.ForceStatus(id, st) })
}

func (s *Service) Remove(ctx context.Context, id uuid.UUID) (bool, error) {
	return s.mutate(ctx, "remove", func(m *Manager) bool { return m.Remove(id) })
}

func (s *Service) StartConsultation(ctx context.Context, id uuid.UUID) (bool, error) {
	return s.mutate(ctx, "start", func(m *Manager) bool { return m.StartConsultation(id) })
}

func (s *Service) CompleteConsultation(ctx context.Context, id uuid.UUID) (bool, error) {
	return s.mutate(ctx, "complete", func(m *Manager) bool { return m.CompleteConsultation(id) })
}

func (s *Service) RevertToWaiting(ctx context.Context, id uuid.UUID) (bool, error) {
	return s.mutate(ctx, "revert", func(m *Manager) bool { return m.RevertToWaiting(id) })
}

func (s *Service) ResetAllInProgressToWaiting(ctx context.Context) (int, error) {
	var n int
	_, err := s.mutate(ctx, "reset", func(m *Manager) bool {
		n = m.ResetAllInProgressToWaiting()
		return n > 0
	})
	return n, err
}

// mutate applies fn to the stored queue. When fn reports no change nothing
// is written or published.
func (s *Service) mutate(ctx context.Context, op string, fn func(m *Manager) bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		applied bool
		snap    Snapshot
	)
	err := s.locker.WithLock(ctx, lockKey, func(ctx context.Context) error {
		m, err := s.load(ctx)
		if err != nil {
			return err
		}
		if applied = fn(m); !applied {
			return nil
		}
		snap = m.Snapshot()
		return s.repo.Save(ctx, snap)
	})
	if err != nil {
		s.logger.Error().Err(err).Str("operation", op).Msg("queue operation failed")
		s.observe(op, "error")
		return false, fmt.Errorf("queue %s: %w", op, err)
	}

	if !applied {
		s.observe(op, "noop")
		return false, nil
	}
	s.observe(op, "applied")
	if s.recorder != nil {
		s.recorder.SetEntries(countByStatus(snap.Entries))
	}
	s.publish(ctx, op, snap)
	return true, nil
}

func (s *Service) observe(op, outcome string) {
	if s.recorder != nil {
		s.recorder.ObserveOperation(op, outcome)
	}
}

type changePayload struct {
	Operation string `json:"operation"`
	Display   *Entry `json:"display"`
}

func (s *Service) publish(ctx context.Context, op string, snap Snapshot) {
	if s.publisher == nil {
		return
	}
	ev, err := newEvent(EventChanged, changePayload{Operation: op, Display: SelectDisplayEntry(snap.Entries)})
	if err != nil {
		s.logger.Error().Err(err).Msg("encode queue event")
		return
	}
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.logger.Warn().Err(err).Str("operation", op).Msg("publish queue event")
	}
}

// InitialDisplay is the websocket initial-state hook for the queue topic.
func (s *Service) InitialDisplay(ctx context.Context, topic string) (websocket.Event, bool) {
	if topic != Topic {
		return websocket.Event{}, false
	}
	d, err := s.Display(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("load display for new subscriber")
		return websocket.Event{}, false
	}
	ev, err := newEvent(EventSnapshot, changePayload{Display: d})
	if err != nil {
		return websocket.Event{}, false
	}
	return ev, true
}

func newEvent(typ string, payload changePayload) (websocket.Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return websocket.Event{}, err
	}
	return websocket.Event{
		Type:      typ,
		Topic:     Topic,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}, nil
}

func countByStatus(entries []Entry) map[string]int {
	counts := map[string]int{
		string(StatusWaiting): 0, string(StatusInProgress): 0,
		string(StatusCompleted): 0, string(StatusCancelled): 0,
	}
	for _, e := range entries {
		counts[string(e.Status)]++
	}
	return counts
}
