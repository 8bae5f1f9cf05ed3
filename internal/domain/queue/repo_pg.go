package queue

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinic/clinic/internal/platform/db"
)

type repoPG struct {
	pool db.Pool
}

// NewPGRepo stores entries as rows of queue_entry and the high-water mark in
// the single-row queue_counter table.
func NewPGRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

const entryCols = `id, patient_id, patient_name, queue_number, status, type, doctor, timestamp`

func (r *repoPG) Load(ctx context.Context) (Snapshot, error) {
	q := db.Conn(ctx, r.pool)

	rows, err := q.Query(ctx, `SELECT `+entryCols+` FROM queue_entry ORDER BY queue_number`)
	if err != nil {
		return Snapshot{}, fmt.Errorf("queue load entries: %w", err)
	}
	defer rows.Close()

	var snap Snapshot
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return Snapshot{}, fmt.Errorf("queue scan entry: %w", err)
		}
		snap.Entries = append(snap.Entries, e)
	}
	if err := rows.Err(); err != nil {
		return Snapshot{}, fmt.Errorf("queue load entries: %w", err)
	}

	err = q.QueryRow(ctx, `SELECT last_number FROM queue_counter WHERE id`).Scan(&snap.LastQueueNumber)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return Snapshot{}, fmt.Errorf("queue load counter: %w", err)
	}
	return snap, nil
}

// Save replaces the stored queue with snap in one transaction: entries are
// upserted by id, rows whose id is missing from snap are deleted and the
// counter only ever moves forward.
func (r *repoPG) Save(ctx context.Context, snap Snapshot) error {
	return db.WithTx(ctx, r.pool, func(ctx context.Context) error {
		q := db.Conn(ctx, r.pool)

		ids := make([]uuid.UUID, 0, len(snap.Entries))
		for _, e := range snap.Entries {
			ids = append(ids, e.ID)
		}
		if _, err := q.Exec(ctx, `DELETE FROM queue_entry WHERE NOT (id = ANY($1))`, ids); err != nil {
			return fmt.Errorf("queue delete removed: %w", err)
		}

		for _, e := range snap.Entries {
			_, err := q.Exec(ctx, `
				INSERT INTO queue_entry (`+entryCols+`)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
				ON CONFLICT (id) DO UPDATE SET
					patient_id = EXCLUDED.patient_id,
					patient_name = EXCLUDED.patient_name,
					queue_number = EXCLUDED.queue_number,
					status = EXCLUDED.status,
					type = EXCLUDED.type,
					doctor = EXCLUDED.doctor,
					timestamp = EXCLUDED.timestamp`,
				e.ID, e.PatientID, e.PatientName, e.QueueNumber,
				string(e.Status), string(e.Type), e.Doctor, e.Timestamp,
			)
			if err != nil {
				return fmt.Errorf("queue upsert entry %s: %w", e.ID, err)
			}
		}

		_, err := q.Exec(ctx, `
			INSERT INTO queue_counter (id, last_number) VALUES (TRUE, $1)
			ON CONFLICT (id) DO UPDATE SET last_number = GREATEST(queue_counter.last_number, EXCLUDED.last_number)`,
			snap.LastQueueNumber,
		)
		if err != nil {
			return fmt.Errorf("queue update counter: %w", err)
		}
		return nil
	})
}

func scanEntry(rows pgx.Rows) (Entry, error) {
	var (
		e      Entry
		status string
		typ    string
	)
	err := rows.Scan(&e.ID, &e.PatientID, &e.PatientName, &e.QueueNumber, &status, &typ, &e.Doctor, &e.Timestamp)
	if err != nil {
		return Entry{}, err
	}
	e.Status = Status(status)
	e.Type = EntryType(typ)
	return e, nil
}
