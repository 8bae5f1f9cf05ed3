package patient

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

// -- Mock Patient Repository --

type mockRepo struct {
	patients map[uuid.UUID]*Patient
}

func newMockRepo() *mockRepo {
	return &mockRepo{patients: make(map[uuid.UUID]*Patient)}
}

func (m *mockRepo) Create(_ context.Context, p *Patient) error {
	p.ID = uuid.New()
	p.CreatedAt = time.Now()
	p.UpdatedAt = time.Now()
	m.patients[p.ID] = p
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	p, ok := m.patients[id]
	if !ok {
		return nil, ErrNotFound
	}
	return p, nil
}

func (m *mockRepo) Update(_ context.Context, p *Patient) error {
	if _, ok := m.patients[p.ID]; !ok {
		return ErrNotFound
	}
	p.UpdatedAt = time.Now()
	m.patients[p.ID] = p
	return nil
}

func (m *mockRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := m.patients[id]; !ok {
		return ErrNotFound
	}
	delete(m.patients, id)
	return nil
}

func (m *mockRepo) List(_ context.Context, limit, offset int) ([]*Patient, int, error) {
	return m.page(func(*Patient) bool { return true }, limit, offset)
}

func (m *mockRepo) Search(_ context.Context, name string, limit, offset int) ([]*Patient, int, error) {
	name = strings.ToLower(name)
	return m.page(func(p *Patient) bool {
		return strings.Contains(strings.ToLower(p.FirstName), name) || strings.Contains(strings.ToLower(p.LastName), name)
	}, limit, offset)
}

func (m *mockRepo) page(match func(*Patient) bool, limit, offset int) ([]*Patient, int, error) {
	var result []*Patient
	for _, p := range m.patients {
		if match(p) {
			result = append(result, p)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].LastName < result[j].LastName })
	total := len(result)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return result[offset:end], total, nil
}

func newTestService() *Service {
	return NewService(newMockRepo())
}

// -- Tests --

func TestCreatePatient(t *testing.T) {
	svc := newTestService()
	p := &Patient{FirstName: " Ana ", LastName: "Reyes"}

	if err := svc.CreatePatient(context.Background(), p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.ID == uuid.Nil {
		t.Error("expected ID to be set")
	}
	if p.FirstName != "Ana" {
		t.Errorf("expected trimmed first name, got %q", p.FirstName)
	}
}

func TestCreatePatient_MissingNames(t *testing.T) {
	svc := newTestService()
	for _, p := range []*Patient{
		{LastName: "Reyes"},
		{FirstName: "Ana"},
		{FirstName: "  ", LastName: "Reyes"},
	} {
		if err := svc.CreatePatient(context.Background(), p); err == nil {
			t.Errorf("expected error for %+v", p)
		}
	}
}

func TestUpdatePatient(t *testing.T) {
	svc := newTestService()
	p := &Patient{FirstName: "Ana", LastName: "Reyes"}
	svc.CreatePatient(context.Background(), p)

	phone := "+63 917 000 0000"
	upd := &Patient{ID: p.ID, FirstName: "Ana", LastName: "Cruz", Phone: &phone}
	if err := svc.UpdatePatient(context.Background(), upd); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, _ := svc.GetPatient(context.Background(), p.ID)
	if got.LastName != "Cruz" || got.Phone == nil || *got.Phone != phone {
		t.Errorf("update not applied: %+v", got)
	}

	if err := svc.UpdatePatient(context.Background(), &Patient{ID: uuid.New(), FirstName: "A", LastName: "B"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestDeletePatient(t *testing.T) {
	svc := newTestService()
	p := &Patient{FirstName: "Ana", LastName: "Reyes"}
	svc.CreatePatient(context.Background(), p)

	if err := svc.DeletePatient(context.Background(), p.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.GetPatient(context.Background(), p.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestListPatients_SearchByName(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	svc.CreatePatient(ctx, &Patient{FirstName: "Ana", LastName: "Reyes"})
	svc.CreatePatient(ctx, &Patient{FirstName: "Ben", LastName: "Santos"})
	svc.CreatePatient(ctx, &Patient{FirstName: "Carla", LastName: "Reyna"})

	all, total, _ := svc.ListPatients(ctx, "", 10, 0)
	if total != 3 || len(all) != 3 {
		t.Errorf("expected 3 patients, got %d/%d", len(all), total)
	}

	found, total, _ := svc.ListPatients(ctx, "rey", 10, 0)
	if total != 2 || len(found) != 2 {
		t.Errorf("expected 2 matches for rey, got %d/%d", len(found), total)
	}
}

func TestDisplayName(t *testing.T) {
	svc := newTestService()
	p := &Patient{FirstName: "Ana", LastName: "Reyes"}
	svc.CreatePatient(context.Background(), p)

	name, err := svc.DisplayName(context.Background(), p.ID.String())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if name != "Ana Reyes" {
		t.Errorf("expected Ana Reyes, got %q", name)
	}

	if _, err := svc.DisplayName(context.Background(), "walk-in"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for malformed reference, got %v", err)
	}
	if _, err := svc.DisplayName(context.Background(), uuid.NewString()); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown patient, got %v", err)
	}
}
