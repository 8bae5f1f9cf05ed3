package seed

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/domain/patient"
	"github.com/clinic/clinic/internal/domain/queue"
)

type mockPatients struct {
	created []*patient.Patient
	err     error
}

func (m *mockPatients) CreatePatient(_ context.Context, p *patient.Patient) error {
	if m.err != nil {
		return m.err
	}
	p.ID = uuid.New()
	m.created = append(m.created, p)
	return nil
}

type mockQueue struct {
	added []queue.NewEntry
}

func (m *mockQueue) Add(_ context.Context, in queue.NewEntry) (queue.Entry, error) {
	m.added = append(m.added, in)
	return queue.Entry{ID: uuid.New(), QueueNumber: len(m.added)}, nil
}

func TestGenerator_Deterministic(t *testing.T) {
	a, b := NewGenerator(42), NewGenerator(42)

	pa, pb := a.Patient(), b.Patient()
	if pa.FirstName != pb.FirstName || pa.LastName != pb.LastName {
		t.Errorf("same seed produced different patients: %q %q vs %q %q", pa.FirstName, pa.LastName, pb.FirstName, pb.LastName)
	}
	ea, eb := a.Entry("p-1", ""), b.Entry("p-1", "")
	if ea != eb {
		t.Errorf("same seed produced different entries: %+v vs %+v", ea, eb)
	}
}

func TestGenerator_PatientFields(t *testing.T) {
	p := NewGenerator(7).Patient()
	if p.FirstName == "" || p.LastName == "" {
		t.Errorf("expected names, got %+v", p)
	}
	if p.Phone == nil || *p.Phone == "" {
		t.Error("expected phone")
	}
	if p.BirthDate == nil || p.BirthDate.Year() < 1940 || p.BirthDate.Year() > 2020 {
		t.Errorf("unexpected birth date %v", p.BirthDate)
	}
}

func TestGenerator_EntryUsesKnownType(t *testing.T) {
	g := NewGenerator(3)
	for i := 0; i < 20; i++ {
		e := g.Entry("p", "n")
		if !e.Type.Valid() || e.Type == "" {
			t.Fatalf("unexpected entry type %q", e.Type)
		}
		if e.Doctor == "" {
			t.Fatal("expected doctor")
		}
	}
}

func TestRun_WithPatients(t *testing.T) {
	pats := &mockPatients{}
	q := &mockQueue{}

	res, err := Run(context.Background(), NewGenerator(1), pats, q, 2, 5, zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Patients != 2 || res.Entries != 5 {
		t.Errorf("unexpected result %+v", res)
	}
	for i, in := range q.added {
		want := pats.created[i%2].ID.String()
		if in.PatientID != want {
			t.Errorf("entry %d: expected patient %s, got %s", i, want, in.PatientID)
		}
		if in.PatientName != "" {
			t.Errorf("entry %d: name should be left for the directory, got %q", i, in.PatientName)
		}
	}
}

func TestRun_WithoutPatientStore(t *testing.T) {
	q := &mockQueue{}

	res, err := Run(context.Background(), NewGenerator(1), nil, q, 10, 3, zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Patients != 0 || res.Entries != 3 {
		t.Errorf("unexpected result %+v", res)
	}
	for _, in := range q.added {
		if in.PatientName == "" {
			t.Error("expected generated name")
		}
		if _, err := uuid.Parse(in.PatientID); err != nil {
			t.Errorf("expected uuid patient id, got %q", in.PatientID)
		}
	}
}

func TestRun_PatientError(t *testing.T) {
	boom := errors.New("boom")
	q := &mockQueue{}

	_, err := Run(context.Background(), NewGenerator(1), &mockPatients{err: boom}, q, 1, 1, zerolog.Nop())
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if len(q.added) != 0 {
		t.Error("queue should not be seeded after a patient failure")
	}
}
