// Package seed fills a development clinic with fake patients and a queue.
package seed

import (
	"context"
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/domain/patient"
	"github.com/clinic/clinic/internal/domain/queue"
)

var entryTypes = []string{
	string(queue.TypeCheckUp),
	string(queue.TypeConsultation),
	string(queue.TypeFollowUp),
	string(queue.TypeEmergency),
}

// Generator produces fake records. Two generators built with the same
// non-zero seed produce the same sequence.
type Generator struct {
	f       *gofakeit.Faker
	doctors []string
}

// NewGenerator returns a generator with a roster of three doctors. A zero
// seed picks a random one.
func NewGenerator(seed uint64) *Generator {
	f := gofakeit.New(seed)
	doctors := make([]string, 3)
	for i := range doctors {
		doctors[i] = "Dr. " + f.LastName()
	}
	return &Generator{f: f, doctors: doctors}
}

func (g *Generator) Patient() *patient.Patient {
	phone := g.f.Phone()
	birth := g.f.DateRange(
		time.Date(1940, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2020, 12, 31, 0, 0, 0, 0, time.UTC),
	).Truncate(24 * time.Hour)
	return &patient.Patient{
		FirstName: g.f.FirstName(),
		LastName:  g.f.LastName(),
		Phone:     &phone,
		BirthDate: &birth,
	}
}

// Entry builds a queue request for patientID. An empty name is left for the
// queue's patient directory to fill in.
func (g *Generator) Entry(patientID, name string) queue.NewEntry {
	return queue.NewEntry{
		PatientID:   patientID,
		PatientName: name,
		Type:        queue.EntryType(g.f.RandomString(entryTypes)),
		Doctor:      g.doctors[g.f.Number(0, len(g.doctors)-1)],
	}
}

type PatientCreator interface {
	CreatePatient(ctx context.Context, p *patient.Patient) error
}

type QueueAdder interface {
	Add(ctx context.Context, in queue.NewEntry) (queue.Entry, error)
}

type Result struct {
	Patients int
	Entries  int
}

// Run creates nPatients patients when patients is non-nil, then queues
// nEntries visits. Queued visits reference the created patients in turn;
// without a patient store each visit gets a fresh id and a fake name.
func Run(ctx context.Context, g *Generator, patients PatientCreator, q QueueAdder, nPatients, nEntries int, logger zerolog.Logger) (Result, error) {
	var res Result
	var created []*patient.Patient

	if patients != nil {
		for i := 0; i < nPatients; i++ {
			p := g.Patient()
			if err := patients.CreatePatient(ctx, p); err != nil {
				return res, fmt.Errorf("seed patient %d: %w", i+1, err)
			}
			created = append(created, p)
			res.Patients++
		}
		logger.Info().Int("count", res.Patients).Msg("patients seeded")
	}

	for i := 0; i < nEntries; i++ {
		var in queue.NewEntry
		if len(created) > 0 {
			in = g.Entry(created[i%len(created)].ID.String(), "")
		} else {
			in = g.Entry(uuid.NewString(), g.f.Name())
		}
		if _, err := q.Add(ctx, in); err != nil {
			return res, fmt.Errorf("seed queue entry %d: %w", i+1, err)
		}
		res.Entries++
	}
	logger.Info().Int("count", res.Entries).Msg("queue seeded")

	return res, nil
}
