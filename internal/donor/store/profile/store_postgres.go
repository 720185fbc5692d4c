package profile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"transplant/internal/donor/models"
	"transplant/internal/platform/postgres"
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

const profileColumns = `user_id, name, blood_type, date_of_birth, organ_preferences, city, state, status, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, p *models.PublicProfile) error {
	organs := make([]string, 0, len(p.OrganPreferences))
	for _, o := range p.OrganPreferences {
		organs = append(organs, string(o))
	}
	var dob sql.NullTime
	if p.DateOfBirth != nil {
		dob = sql.NullTime{Time: *p.DateOfBirth, Valid: true}
	}
	_, err := tx.Pick(ctx, s.db).ExecContext(ctx, `
		INSERT INTO public_profiles (`+profileColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, uuid.UUID(p.UserID), p.Name, string(p.BloodType), dob, pq.Array(organs),
		p.Location.City, p.Location.State, string(p.Status), p.CreatedAt, p.UpdatedAt)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return fmt.Errorf("profile %s: %w", p.UserID, sentinel.ErrAlreadyExists)
		}
		return fmt.Errorf("insert profile: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByUserID(ctx context.Context, userID id.UserID) (*models.PublicProfile, error) {
	row := tx.Pick(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM public_profiles WHERE user_id = $1`, uuid.UUID(userID))
	p, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("profile %s: %w", userID, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("select profile: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) List(ctx context.Context, status models.Status) ([]*models.PublicProfile, error) {
	query := `SELECT ` + profileColumns + ` FROM public_profiles`
	var args []any
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at, user_id`
	rows, err := tx.Pick(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	defer rows.Close()
	var out []*models.PublicProfile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, userID id.UserID, from, to models.Status, now time.Time) error {
	exec := tx.Pick(ctx, s.db)
	res, err := exec.ExecContext(ctx,
		`UPDATE public_profiles SET status = $3, updated_at = $4 WHERE user_id = $1 AND status = $2`,
		uuid.UUID(userID), string(from), string(to), now)
	if err != nil {
		return fmt.Errorf("update profile status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update profile status: %w", err)
	}
	if n == 1 {
		return nil
	}
	var exists bool
	if err := exec.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM public_profiles WHERE user_id = $1)`, uuid.UUID(userID)).Scan(&exists); err != nil {
		return fmt.Errorf("check profile: %w", err)
	}
	if !exists {
		return fmt.Errorf("profile %s: %w", userID, sentinel.ErrNotFound)
	}
	return fmt.Errorf("profile %s is not %s: %w", userID, from, sentinel.ErrConflict)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProfile(row scanner) (*models.PublicProfile, error) {
	var (
		p             models.PublicProfile
		userID        uuid.UUID
		blood, status string
		dob           sql.NullTime
		organs        pq.StringArray
	)
	err := row.Scan(&userID, &p.Name, &blood, &dob, &organs, &p.Location.City, &p.Location.State,
		&status, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.UserID = id.UserID(userID)
	p.BloodType = id.BloodType(blood)
	p.Status = models.Status(status)
	if dob.Valid {
		t := dob.Time.UTC()
		p.DateOfBirth = &t
	}
	for _, o := range organs {
		p.OrganPreferences = append(p.OrganPreferences, id.OrganType(o))
	}
	return &p, nil
}
