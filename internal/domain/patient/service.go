package patient

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

type Service struct {
	patients Repository
}

func NewService(patients Repository) *Service {
	return &Service{patients: patients}
}

func validate(p *Patient) error {
	p.FirstName = strings.TrimSpace(p.FirstName)
	p.LastName = strings.TrimSpace(p.LastName)
	if p.FirstName == "" || p.LastName == "" {
		return fmt.Errorf("first_name and last_name are required")
	}
	return nil
}

func (s *Service) CreatePatient(ctx context.Context, p *Patient) error {
	if err := validate(p); err != nil {
		return err
	}
	return s.patients.Create(ctx, p)
}

func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.patients.GetByID(ctx, id)
}

func (s *Service) UpdatePatient(ctx context.Context, p *Patient) error {
	if err := validate(p); err != nil {
		return err
	}
	return s.patients.Update(ctx, p)
}

func (s *Service) DeletePatient(ctx context.Context, id uuid.UUID) error {
	return s.patients.Delete(ctx, id)
}

// ListPatients filters by name when name is non-empty.
func (s *Service) ListPatients(ctx context.Context, name string, limit, offset int) ([]*Patient, int, error) {
	if name = strings.TrimSpace(name); name != "" {
		return s.patients.Search(ctx, name, limit, offset)
	}
	return s.patients.List(ctx, limit, offset)
}

// DisplayName resolves a patient reference to "First Last". It satisfies the
// queue's patient directory.
func (s *Service) DisplayName(ctx context.Context, patientID string) (string, error) {
	id, err := uuid.Parse(patientID)
	if err != nil {
		return "", fmt.Errorf("patient reference %q: %w", patientID, ErrNotFound)
	}
	p, err := s.patients.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	return p.FullName(), nil
}
