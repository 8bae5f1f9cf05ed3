package patient

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
)

var patientColumns = []string{"id", "first_name", "last_name", "phone", "birth_date", "created_at", "updated_at"}

func newMockPGRepo(t *testing.T) (*repoPG, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	t.Cleanup(mock.Close)
	return &repoPG{pool: mock}, mock
}

func TestPGRepo_Create(t *testing.T) {
	repo, mock := newMockPGRepo(t)
	now := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)

	mock.ExpectQuery("INSERT INTO patient").
		WithArgs(pgxmock.AnyArg(), "Ana", "Lim", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	p := &Patient{FirstName: "Ana", LastName: "Lim"}
	if err := repo.Create(context.Background(), p); err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if p.ID == uuid.Nil {
		t.Error("expected ID to be assigned")
	}
	if !p.CreatedAt.Equal(now) {
		t.Errorf("expected created_at %s, got %s", now, p.CreatedAt)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPGRepo_GetByID(t *testing.T) {
	repo, mock := newMockPGRepo(t)
	id := uuid.New()
	phone := "+62 811 000"
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT (.+) FROM patient WHERE id").WithArgs(id).
		WillReturnRows(pgxmock.NewRows(patientColumns).AddRow(id, "Ana", "Lim", &phone, nil, now, now))

	p, err := repo.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("GetByID() error: %v", err)
	}
	if p.FullName() != "Ana Lim" {
		t.Errorf("expected Ana Lim, got %q", p.FullName())
	}
	if p.Phone == nil || *p.Phone != phone {
		t.Errorf("expected phone %q, got %v", phone, p.Phone)
	}
	if p.BirthDate != nil {
		t.Errorf("expected nil birth date, got %v", p.BirthDate)
	}
}

func TestPGRepo_GetByID_NotFound(t *testing.T) {
	repo, mock := newMockPGRepo(t)
	id := uuid.New()

	mock.ExpectQuery("SELECT (.+) FROM patient WHERE id").WithArgs(id).WillReturnError(pgx.ErrNoRows)

	_, err := repo.GetByID(context.Background(), id)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPGRepo_Update_NotFound(t *testing.T) {
	repo, mock := newMockPGRepo(t)
	p := &Patient{ID: uuid.New(), FirstName: "Ana", LastName: "Lim"}

	mock.ExpectQuery("UPDATE patient").
		WithArgs(p.ID, "Ana", "Lim", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(pgx.ErrNoRows)

	if err := repo.Update(context.Background(), p); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPGRepo_Delete(t *testing.T) {
	repo, mock := newMockPGRepo(t)
	id := uuid.New()

	mock.ExpectExec("DELETE FROM patient").WithArgs(id).WillReturnResult(pgxmock.NewResult("DELETE", 1))
	if err := repo.Delete(context.Background(), id); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}

	mock.ExpectExec("DELETE FROM patient").WithArgs(id).WillReturnResult(pgxmock.NewResult("DELETE", 0))
	if err := repo.Delete(context.Background(), id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPGRepo_Search(t *testing.T) {
	repo, mock := newMockPGRepo(t)
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT COUNT").WithArgs("%an%").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectQuery("SELECT (.+) FROM patient WHERE (.+) LIMIT").WithArgs("%an%", 1, 0).
		WillReturnRows(pgxmock.NewRows(patientColumns).AddRow(uuid.New(), "Ana", "Lim", nil, nil, now, now))

	items, total, err := repo.Search(context.Background(), "an", 1, 0)
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if total != 2 {
		t.Errorf("expected total 2, got %d", total)
	}
	if len(items) != 1 || items[0].FirstName != "Ana" {
		t.Errorf("unexpected items: %+v", items)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPGRepo_List(t *testing.T) {
	repo, mock := newMockPGRepo(t)

	mock.ExpectQuery("SELECT COUNT").WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery("SELECT (.+) FROM patient (.+) LIMIT").WithArgs(20, 0).
		WillReturnRows(pgxmock.NewRows(patientColumns))

	items, total, err := repo.List(context.Background(), 20, 0)
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if total != 0 || len(items) != 0 {
		t.Errorf("expected empty page, got %d items, total %d", len(items), total)
	}
}
