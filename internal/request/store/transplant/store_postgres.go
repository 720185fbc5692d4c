package transplant

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"transplant/internal/platform/postgres"
	"transplant/internal/request/models"
	id "transplant/pkg/domain"
	"transplant/pkg/platform/sentinel"
	"transplant/pkg/platform/tx"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const transplantColumns = `id, request_id, hospital_id, donor_kind, donor_id, surgeon, operating_room,
	scheduled_date, status, outcome_success, outcome_complications, outcome_notes, outcome_recorded_at, created_at`

func (s *PostgresStore) Create(ctx context.Context, t *models.Transplant) error {
	_, err := tx.Pick(ctx, s.db).ExecContext(ctx, `
		INSERT INTO transplants (id, request_id, hospital_id, donor_kind, donor_id, surgeon,
			operating_room, scheduled_date, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		uuid.UUID(t.ID),
		string(t.RequestID),
		uuid.UUID(t.HospitalID),
		string(t.Donor.Kind),
		t.Donor.ID,
		t.Surgery.Surgeon,
		t.Surgery.OperatingRoom,
		t.Surgery.ScheduledDate,
		string(t.Status),
		t.CreatedAt,
	)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return fmt.Errorf("transplant for request %s: %w", t.RequestID, sentinel.ErrAlreadyExists)
		}
		return fmt.Errorf("insert transplant: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, transplantID id.TransplantID) (*models.Transplant, error) {
	row := tx.Pick(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+transplantColumns+` FROM transplants WHERE id = $1`, uuid.UUID(transplantID))
	t, err := scanTransplant(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("transplant %s: %w", transplantID, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find transplant: %w", err)
	}
	return t, nil
}

func (s *PostgresStore) FindByRequest(ctx context.Context, requestID id.RequestID) (*models.Transplant, error) {
	row := tx.Pick(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+transplantColumns+` FROM transplants WHERE request_id = $1`, string(requestID))
	t, err := scanTransplant(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("transplant for request %s: %w", requestID, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find transplant by request: %w", err)
	}
	return t, nil
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, t *models.Transplant, from models.TransplantStatus) error {
	var (
		success              sql.NullBool
		complications, notes sql.NullString
		recordedAt           sql.NullTime
	)
	if t.Outcome != nil {
		success = sql.NullBool{Bool: t.Outcome.Success, Valid: true}
		complications = sql.NullString{String: t.Outcome.Complications, Valid: true}
		notes = sql.NullString{String: t.Outcome.Notes, Valid: true}
		recordedAt = sql.NullTime{Time: t.Outcome.RecordedAt, Valid: true}
	}
	res, err := tx.Pick(ctx, s.db).ExecContext(ctx, `
		UPDATE transplants
		SET status = $3, outcome_success = $4, outcome_complications = $5,
			outcome_notes = $6, outcome_recorded_at = $7
		WHERE id = $1 AND status = $2
	`, uuid.UUID(t.ID), string(from), string(t.Status), success, complications, notes, recordedAt)
	if err != nil {
		return fmt.Errorf("update transplant: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update transplant rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("transplant %s no longer %s: %w", t.ID, from, sentinel.ErrConflict)
	}
	return nil
}

func (s *PostgresStore) ListByHospital(ctx context.Context, hospitalID id.HospitalID) ([]*models.Transplant, error) {
	rows, err := tx.Pick(ctx, s.db).QueryContext(ctx,
		`SELECT `+transplantColumns+` FROM transplants WHERE hospital_id = $1 ORDER BY created_at`,
		uuid.UUID(hospitalID))
	if err != nil {
		return nil, fmt.Errorf("list transplants: %w", err)
	}
	defer rows.Close()
	out := make([]*models.Transplant, 0)
	for rows.Next() {
		t, err := scanTransplant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transplant: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *PostgresStore) SaveStats(ctx context.Context, stats models.HospitalStats) error {
	_, err := tx.Pick(ctx, s.db).ExecContext(ctx, `
		INSERT INTO hospital_stats (hospital_id, completed, successful, success_rate, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (hospital_id) DO UPDATE
		SET completed = EXCLUDED.completed, successful = EXCLUDED.successful,
			success_rate = EXCLUDED.success_rate, updated_at = EXCLUDED.updated_at
	`, uuid.UUID(stats.HospitalID), stats.Completed, stats.Successful, stats.SuccessRate, stats.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save hospital stats: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindStats(ctx context.Context, hospitalID id.HospitalID) (models.HospitalStats, error) {
	stats := models.HospitalStats{HospitalID: hospitalID}
	err := tx.Pick(ctx, s.db).QueryRowContext(ctx, `
		SELECT completed, successful, success_rate, updated_at
		FROM hospital_stats WHERE hospital_id = $1
	`, uuid.UUID(hospitalID)).Scan(&stats.Completed, &stats.Successful, &stats.SuccessRate, &stats.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.HospitalStats{}, fmt.Errorf("stats for hospital %s: %w", hospitalID, sentinel.ErrNotFound)
	}
	if err != nil {
		return models.HospitalStats{}, fmt.Errorf("find hospital stats: %w", err)
	}
	return stats, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTransplant(row scanner) (*models.Transplant, error) {
	var (
		t                                 models.Transplant
		transplantID, hospitalID, donorID uuid.UUID
		requestID, donorKind, status      string
		success                           sql.NullBool
		complications, notes              sql.NullString
		recordedAt                        sql.NullTime
	)
	err := row.Scan(&transplantID, &requestID, &hospitalID, &donorKind, &donorID,
		&t.Surgery.Surgeon, &t.Surgery.OperatingRoom, &t.Surgery.ScheduledDate, &status,
		&success, &complications, &notes, &recordedAt, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	t.ID = id.TransplantID(transplantID)
	t.RequestID = id.RequestID(requestID)
	t.HospitalID = id.HospitalID(hospitalID)
	t.Donor = id.DonorRef{Kind: id.DonorKind(donorKind), ID: donorID}
	t.Status = models.TransplantStatus(status)
	if success.Valid {
		t.Outcome = &models.Outcome{
			Success:       success.Bool,
			Complications: complications.String,
			Notes:         notes.String,
			RecordedAt:    recordedAt.Time,
		}
	}
	return &t, nil
}
