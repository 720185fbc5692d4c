package request

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"transplant/internal/platform/postgres"
	"transplant/internal/request/models"
	id "transplant/pkg/domain"
	"transplant/pkg/platform/sentinel"
	"transplant/pkg/platform/tx"
)

// PostgresStore persists requests in PostgreSQL. Every method joins the
// transaction carried by ctx, if any.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const requestColumns = `id, hospital_id, patient_name, patient_age, blood_type, condition, urgency,
	organ_type, status, eligibility_status, consent_status, matched_donor_kind, matched_donor_id,
	transplant_id, confidential_data_revealed, sla_breached_at, delay_reason, expiry_date,
	created_at, updated_at, version`

func (s *PostgresStore) Create(ctx context.Context, req *models.Request) error {
	exec := tx.Pick(ctx, s.db)
	kind, donorID := donorColumns(req.MatchedDonor)
	_, err := exec.ExecContext(ctx, `
		INSERT INTO requests (`+requestColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
	`,
		string(req.ID),
		uuid.UUID(req.HospitalID),
		req.Patient.Name,
		req.Patient.Age,
		string(req.Patient.BloodType),
		req.Patient.Condition,
		string(req.Urgency),
		string(req.OrganType),
		string(req.Status),
		string(req.EligibilityStatus),
		string(req.ConsentStatus),
		kind,
		donorID,
		transplantColumn(req.TransplantID),
		req.ConfidentialDataRevealed,
		nullTime(req.SLABreachedAt),
		req.DelayReason,
		req.ExpiryDate,
		req.CreatedAt,
		req.UpdatedAt,
		req.Version,
	)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return fmt.Errorf("request %s: %w", req.ID, sentinel.ErrAlreadyExists)
		}
		return fmt.Errorf("insert request: %w", err)
	}
	for _, entry := range req.Lifecycle {
		if err := insertLifecycle(ctx, exec, req.ID, entry); err != nil {
			return err
		}
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, requestID id.RequestID) (*models.Request, error) {
	exec := tx.Pick(ctx, s.db)
	row := exec.QueryRowContext(ctx, `SELECT `+requestColumns+` FROM requests WHERE id = $1`, string(requestID))
	req, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("request %s: %w", requestID, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find request: %w", err)
	}
	if err := s.loadLifecycles(ctx, exec, map[id.RequestID]*models.Request{req.ID: req}); err != nil {
		return nil, err
	}
	return req, nil
}

func (s *PostgresStore) List(ctx context.Context, filter ListFilter) ([]*models.Request, error) {
	exec := tx.Pick(ctx, s.db)

	var (
		where []string
		args  []any
	)
	if !filter.HospitalID.IsNil() {
		args = append(args, uuid.UUID(filter.HospitalID))
		where = append(where, fmt.Sprintf("hospital_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Urgency != "" {
		args = append(args, string(filter.Urgency))
		where = append(where, fmt.Sprintf("urgency = $%d", len(args)))
	}
	query := `SELECT ` + requestColumns + ` FROM requests`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	args = append(args, filter.limit())
	query += fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT $%d`, len(args))

	rows, err := exec.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	defer rows.Close()

	out := make([]*models.Request, 0)
	byID := make(map[id.RequestID]*models.Request)
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan request: %w", err)
		}
		out = append(out, req)
		byID[req.ID] = req
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate requests: %w", err)
	}
	if err := s.loadLifecycles(ctx, exec, byID); err != nil {
		return nil, err
	}
	return out, nil
}

// Transition writes the mutable lifecycle columns guarded by version and
// appends the newest lifecycle entry. On success req.Version is advanced.
func (s *PostgresStore) Transition(ctx context.Context, req *models.Request) error {
	exec := tx.Pick(ctx, s.db)
	kind, donorID := donorColumns(req.MatchedDonor)
	res, err := exec.ExecContext(ctx, `
		UPDATE requests
		SET status = $3, eligibility_status = $4, consent_status = $5,
			matched_donor_kind = $6, matched_donor_id = $7, transplant_id = $8,
			updated_at = $9, version = version + 1
		WHERE id = $1 AND version = $2
	`,
		string(req.ID),
		req.Version,
		string(req.Status),
		string(req.EligibilityStatus),
		string(req.ConsentStatus),
		kind,
		donorID,
		transplantColumn(req.TransplantID),
		req.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update request: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update request rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("request %s version %d: %w", req.ID, req.Version, sentinel.ErrConflict)
	}
	if err := insertLifecycle(ctx, exec, req.ID, req.LastEntry()); err != nil {
		return err
	}
	req.Version++
	return nil
}

func (s *PostgresStore) RecordBreach(ctx context.Context, requestID id.RequestID, at time.Time, reason string) (bool, error) {
	exec := tx.Pick(ctx, s.db)
	res, err := exec.ExecContext(ctx, `
		UPDATE requests SET sla_breached_at = $2, delay_reason = $3
		WHERE id = $1 AND sla_breached_at IS NULL
	`, string(requestID), at.UTC(), reason)
	if err != nil {
		return false, fmt.Errorf("record sla breach: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("record sla breach rows affected: %w", err)
	}
	if affected == 1 {
		return true, nil
	}
	if err := s.ensureExists(ctx, exec, requestID); err != nil {
		return false, err
	}
	return false, nil
}

func (s *PostgresStore) MarkRevealed(ctx context.Context, requestID id.RequestID) (bool, error) {
	exec := tx.Pick(ctx, s.db)
	res, err := exec.ExecContext(ctx, `
		UPDATE requests SET confidential_data_revealed = TRUE
		WHERE id = $1
			AND NOT confidential_data_revealed
			AND eligibility_status = 'validated'
			AND consent_status = 'given'
			AND status IN ('matched', 'completed')
	`, string(requestID))
	if err != nil {
		return false, fmt.Errorf("mark revealed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark revealed rows affected: %w", err)
	}
	if affected == 1 {
		return true, nil
	}

	var revealed bool
	err = exec.QueryRowContext(ctx,
		`SELECT confidential_data_revealed FROM requests WHERE id = $1`, string(requestID)).Scan(&revealed)
	if errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("request %s: %w", requestID, sentinel.ErrNotFound)
	}
	if err != nil {
		return false, fmt.Errorf("check revealed: %w", err)
	}
	if !revealed {
		return false, fmt.Errorf("request %s: %w", requestID, sentinel.ErrInvalidState)
	}
	return false, nil
}

func (s *PostgresStore) ListExpirable(ctx context.Context, now time.Time, after ExpiryKey, limit int) ([]ExpiryKey, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	query := `
		SELECT id, expiry_date FROM requests
		WHERE status = 'pending' AND expiry_date <= $1`
	args := []any{now.UTC()}
	if !after.isZero() {
		args = append(args, after.ExpiryDate.UTC(), string(after.ID))
		query += ` AND (expiry_date, id) > ($2, $3)`
	}
	args = append(args, limit)
	query += fmt.Sprintf(` ORDER BY expiry_date, id LIMIT $%d`, len(args))

	rows, err := tx.Pick(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list expirable: %w", err)
	}
	defer rows.Close()
	var keys []ExpiryKey
	for rows.Next() {
		var (
			raw string
			k   ExpiryKey
		)
		if err := rows.Scan(&raw, &k.ExpiryDate); err != nil {
			return nil, fmt.Errorf("scan expirable: %w", err)
		}
		k.ID = id.RequestID(raw)
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (s *PostgresStore) CountBreaches(ctx context.Context, hospitalID id.HospitalID) (total, breached int, err error) {
	err = tx.Pick(ctx, s.db).QueryRowContext(ctx, `
		SELECT count(*), count(sla_breached_at)
		FROM requests
		WHERE hospital_id = $1
	`, uuid.UUID(hospitalID)).Scan(&total, &breached)
	if err != nil {
		return 0, 0, fmt.Errorf("count breaches: %w", err)
	}
	return total, breached, nil
}

func (s *PostgresStore) FindRevealable(ctx context.Context, hospitalID id.HospitalID, ref id.DonorRef) (*models.Request, error) {
	exec := tx.Pick(ctx, s.db)
	row := exec.QueryRowContext(ctx, `
		SELECT `+requestColumns+` FROM requests
		WHERE hospital_id = $1
			AND matched_donor_kind = $2
			AND matched_donor_id = $3
			AND status IN ('matched', 'completed')
			AND eligibility_status = 'validated'
			AND consent_status = 'given'
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, uuid.UUID(hospitalID), string(ref.Kind), ref.ID)
	req, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("revealable request for %s: %w", ref.ID, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find revealable request: %w", err)
	}
	if err := s.loadLifecycles(ctx, exec, map[id.RequestID]*models.Request{req.ID: req}); err != nil {
		return nil, err
	}
	return req, nil
}

// ListOpenUnbreached is not paged and does not load lifecycle entries.
func (s *PostgresStore) ListOpenUnbreached(ctx context.Context, urgency models.Urgency, createdBefore time.Time) ([]*models.Request, error) {
	rows, err := tx.Pick(ctx, s.db).QueryContext(ctx, `
		SELECT `+requestColumns+` FROM requests
		WHERE status IN ('pending', 'matched')
			AND urgency = $1
			AND sla_breached_at IS NULL
			AND created_at <= $2
		ORDER BY created_at DESC, id DESC
	`, string(urgency), createdBefore.UTC())
	if err != nil {
		return nil, fmt.Errorf("list open unbreached: %w", err)
	}
	defer rows.Close()
	out := make([]*models.Request, 0)
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan request: %w", err)
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ensureExists(ctx context.Context, exec tx.Execer, requestID id.RequestID) error {
	var one int
	err := exec.QueryRowContext(ctx, `SELECT 1 FROM requests WHERE id = $1`, string(requestID)).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("request %s: %w", requestID, sentinel.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("check request: %w", err)
	}
	return nil
}

func (s *PostgresStore) loadLifecycles(ctx context.Context, exec tx.Execer, byID map[id.RequestID]*models.Request) error {
	if len(byID) == 0 {
		return nil
	}
	keys := make([]string, 0, len(byID))
	for k := range byID {
		keys = append(keys, string(k))
	}
	rows, err := exec.QueryContext(ctx, `
		SELECT request_id, stage, notes, created_at
		FROM request_lifecycle
		WHERE request_id = ANY($1)
		ORDER BY request_id, id
	`, pq.Array(keys))
	if err != nil {
		return fmt.Errorf("load lifecycle: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			requestID string
			entry     models.LifecycleEntry
			stage     string
		)
		if err := rows.Scan(&requestID, &stage, &entry.Notes, &entry.Timestamp); err != nil {
			return fmt.Errorf("scan lifecycle: %w", err)
		}
		entry.Stage = models.Stage(stage)
		if req, ok := byID[id.RequestID(requestID)]; ok {
			req.Lifecycle = append(req.Lifecycle, entry)
		}
	}
	return rows.Err()
}

func insertLifecycle(ctx context.Context, exec tx.Execer, requestID id.RequestID, entry models.LifecycleEntry) error {
	_, err := exec.ExecContext(ctx, `
		INSERT INTO request_lifecycle (request_id, stage, notes, created_at)
		VALUES ($1, $2, $3, $4)
	`, string(requestID), string(entry.Stage), entry.Notes, entry.Timestamp)
	if err != nil {
		return fmt.Errorf("insert lifecycle entry: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRequest(row scanner) (*models.Request, error) {
	var (
		req                                  models.Request
		requestID, bloodType, urgency, organ string
		status, eligibility, consent         string
		hospitalID                           uuid.UUID
		donorKind                            sql.NullString
		donorID, transplantID                uuid.NullUUID
		breachedAt                           sql.NullTime
	)
	err := row.Scan(
		&requestID, &hospitalID, &req.Patient.Name, &req.Patient.Age, &bloodType, &req.Patient.Condition,
		&urgency, &organ, &status, &eligibility, &consent, &donorKind, &donorID,
		&transplantID, &req.ConfidentialDataRevealed, &breachedAt, &req.DelayReason, &req.ExpiryDate,
		&req.CreatedAt, &req.UpdatedAt, &req.Version,
	)
	if err != nil {
		return nil, err
	}
	req.ID = id.RequestID(requestID)
	req.HospitalID = id.HospitalID(hospitalID)
	req.Patient.BloodType = id.BloodType(bloodType)
	req.Urgency = models.Urgency(urgency)
	req.OrganType = id.OrganType(organ)
	req.Status = models.Status(status)
	req.EligibilityStatus = models.EligibilityStatus(eligibility)
	req.ConsentStatus = models.ConsentStatus(consent)
	if donorKind.Valid && donorID.Valid {
		req.MatchedDonor = &id.DonorRef{Kind: id.DonorKind(donorKind.String), ID: donorID.UUID}
	}
	if transplantID.Valid {
		tid := id.TransplantID(transplantID.UUID)
		req.TransplantID = &tid
	}
	if breachedAt.Valid {
		at := breachedAt.Time.UTC()
		req.SLABreachedAt = &at
	}
	return &req, nil
}

func donorColumns(ref *id.DonorRef) (sql.NullString, uuid.NullUUID) {
	if ref == nil {
		return sql.NullString{}, uuid.NullUUID{}
	}
	return sql.NullString{String: string(ref.Kind), Valid: true}, uuid.NullUUID{UUID: ref.ID, Valid: true}
}

func transplantColumn(tid *id.TransplantID) uuid.NullUUID {
	if tid == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: uuid.UUID(*tid), Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
