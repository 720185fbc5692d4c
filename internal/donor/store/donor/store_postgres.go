package donor

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
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

const donorColumns = `id, registered_by, user_id, name, email, phone, date_of_birth, blood_type,
	weight_kg, height_cm, medical_history, allergies, organ_preferences, is_living_donor,
	city, state, status, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, d *models.Donor) error {
	_, err := tx.Pick(ctx, s.db).ExecContext(ctx, `
		INSERT INTO donors (`+donorColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
	`,
		uuid.UUID(d.ID),
		uuid.UUID(d.RegisteredBy),
		nullUser(d.UserID),
		d.Name,
		d.Contact.Email,
		d.Contact.Phone,
		nullTime(d.DateOfBirth),
		string(d.BloodType),
		d.WeightKg,
		d.HeightCm,
		d.MedicalHistory,
		pq.Array(nonNil(d.Allergies)),
		pq.Array(organStrings(d.OrganPreferences)),
		d.IsLivingDonor,
		d.Location.City,
		d.Location.State,
		string(d.Status),
		d.CreatedAt,
		d.UpdatedAt,
	)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return fmt.Errorf("donor %s: %w", d.ID, sentinel.ErrAlreadyExists)
		}
		return fmt.Errorf("insert donor: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, donorID id.DonorID) (*models.Donor, error) {
	return s.findOne(ctx, `SELECT `+donorColumns+` FROM donors WHERE id = $1`, uuid.UUID(donorID))
}

func (s *PostgresStore) FindByUserID(ctx context.Context, userID id.UserID) (*models.Donor, error) {
	return s.findOne(ctx, `SELECT `+donorColumns+` FROM donors WHERE user_id = $1`, uuid.UUID(userID))
}

func (s *PostgresStore) findOne(ctx context.Context, query string, arg any) (*models.Donor, error) {
	exec := tx.Pick(ctx, s.db)
	d, err := scanDonor(exec.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("donor %v: %w", arg, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("select donor: %w", err)
	}
	d.ConsentRequests, err = s.consentRequests(ctx, exec, d.ID)
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (s *PostgresStore) List(ctx context.Context, filter ListFilter) ([]*models.Donor, error) {
	var (
		where []string
		args  []any
	)
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if !filter.RegisteredBy.IsNil() {
		args = append(args, uuid.UUID(filter.RegisteredBy))
		where = append(where, fmt.Sprintf("registered_by = $%d", len(args)))
	}
	if filter.Organ != "" {
		args = append(args, string(filter.Organ))
		where = append(where, fmt.Sprintf("$%d = ANY(organ_preferences)", len(args)))
	}
	if len(filter.BloodTypes) > 0 {
		types := make([]string, 0, len(filter.BloodTypes))
		for _, bt := range filter.BloodTypes {
			types = append(types, string(bt))
		}
		args = append(args, pq.Array(types))
		where = append(where, fmt.Sprintf("blood_type = ANY($%d)", len(args)))
	}
	query := `SELECT ` + donorColumns + ` FROM donors`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, filter.limit(), filter.offset())
	query += fmt.Sprintf(" ORDER BY created_at, id LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := tx.Pick(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list donors: %w", err)
	}
	defer rows.Close()
	var out []*models.Donor
	for rows.Next() {
		d, err := scanDonor(rows)
		if err != nil {
			return nil, fmt.Errorf("scan donor: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, donorID id.DonorID, from, to models.Status, now time.Time) error {
	exec := tx.Pick(ctx, s.db)
	res, err := exec.ExecContext(ctx,
		`UPDATE donors SET status = $3, updated_at = $4 WHERE id = $1 AND status = $2`,
		uuid.UUID(donorID), string(from), string(to), now)
	if err != nil {
		return fmt.Errorf("update donor status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update donor status: %w", err)
	}
	if n == 1 {
		return nil
	}
	var exists bool
	if err := exec.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM donors WHERE id = $1)`, uuid.UUID(donorID)).Scan(&exists); err != nil {
		return fmt.Errorf("check donor: %w", err)
	}
	if !exists {
		return fmt.Errorf("donor %s: %w", donorID, sentinel.ErrNotFound)
	}
	return fmt.Errorf("donor %s is not %s: %w", donorID, from, sentinel.ErrConflict)
}

// UpsertConsentRequest files a pending request, replacing a rejected one.
// An open or accepted request is left alone.
func (s *PostgresStore) UpsertConsentRequest(ctx context.Context, donorID id.DonorID, cr models.ConsentRequest) error {
	res, err := tx.Pick(ctx, s.db).ExecContext(ctx, `
		INSERT INTO donor_consent_requests (donor_id, hospital_id, status, requested_at, responded_at)
		VALUES ($1, $2, $3, $4, NULL)
		ON CONFLICT (donor_id, hospital_id) DO UPDATE
			SET status = EXCLUDED.status, requested_at = EXCLUDED.requested_at, responded_at = NULL
			WHERE donor_consent_requests.status = 'rejected'
	`, uuid.UUID(donorID), uuid.UUID(cr.HospitalID), string(cr.Status), cr.RequestedAt)
	if err != nil {
		if postgres.IsForeignKeyViolation(err) {
			return fmt.Errorf("donor %s: %w", donorID, sentinel.ErrNotFound)
		}
		return fmt.Errorf("upsert consent request: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("upsert consent request: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("consent request from %s: %w", cr.HospitalID, sentinel.ErrAlreadyExists)
	}
	return nil
}

func (s *PostgresStore) RespondConsentRequest(ctx context.Context, donorID id.DonorID, cr models.ConsentRequest) error {
	exec := tx.Pick(ctx, s.db)
	res, err := exec.ExecContext(ctx, `
		UPDATE donor_consent_requests SET status = $3, responded_at = $4
		WHERE donor_id = $1 AND hospital_id = $2 AND status = 'pending'
	`, uuid.UUID(donorID), uuid.UUID(cr.HospitalID), string(cr.Status), nullTime(cr.RespondedAt))
	if err != nil {
		return fmt.Errorf("respond consent request: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("respond consent request: %w", err)
	}
	if n == 1 {
		return nil
	}
	var status string
	err = exec.QueryRowContext(ctx,
		`SELECT status FROM donor_consent_requests WHERE donor_id = $1 AND hospital_id = $2`,
		uuid.UUID(donorID), uuid.UUID(cr.HospitalID)).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("consent request from %s: %w", cr.HospitalID, sentinel.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("check consent request: %w", err)
	}
	return fmt.Errorf("consent request from %s is %s: %w", cr.HospitalID, status, sentinel.ErrConflict)
}

func (s *PostgresStore) SaveConfidential(ctx context.Context, rec models.ConfidentialRecord) error {
	identity, err := json.Marshal(nonNilDocs(rec.IdentityDocuments))
	if err != nil {
		return fmt.Errorf("marshal identity documents: %w", err)
	}
	labs, err := json.Marshal(nonNilDocs(rec.LabReports))
	if err != nil {
		return fmt.Errorf("marshal lab reports: %w", err)
	}
	forms, err := json.Marshal(nonNilDocs(rec.LegalConsentForms))
	if err != nil {
		return fmt.Errorf("marshal consent forms: %w", err)
	}
	_, err = tx.Pick(ctx, s.db).ExecContext(ctx, `
		INSERT INTO donor_confidential (donor_id, identity_documents, lab_reports, legal_consent_forms)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (donor_id) DO UPDATE SET identity_documents = EXCLUDED.identity_documents,
			lab_reports = EXCLUDED.lab_reports, legal_consent_forms = EXCLUDED.legal_consent_forms
	`, uuid.UUID(rec.DonorID), identity, labs, forms)
	if err != nil {
		if postgres.IsForeignKeyViolation(err) {
			return fmt.Errorf("donor %s: %w", rec.DonorID, sentinel.ErrNotFound)
		}
		return fmt.Errorf("save confidential record: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindConfidential(ctx context.Context, donorID id.DonorID) (*models.ConfidentialRecord, error) {
	var identity, labs, forms []byte
	err := tx.Pick(ctx, s.db).QueryRowContext(ctx, `
		SELECT identity_documents, lab_reports, legal_consent_forms FROM donor_confidential WHERE donor_id = $1
	`, uuid.UUID(donorID)).Scan(&identity, &labs, &forms)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("confidential record for %s: %w", donorID, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("select confidential record: %w", err)
	}
	rec := &models.ConfidentialRecord{DonorID: donorID}
	for _, part := range []struct {
		raw  []byte
		dest *[]models.DocumentRef
	}{{identity, &rec.IdentityDocuments}, {labs, &rec.LabReports}, {forms, &rec.LegalConsentForms}} {
		if err := json.Unmarshal(part.raw, part.dest); err != nil {
			return nil, fmt.Errorf("decode confidential record: %w", err)
		}
	}
	return rec, nil
}

func (s *PostgresStore) consentRequests(ctx context.Context, exec tx.Execer, donorID id.DonorID) ([]models.ConsentRequest, error) {
	rows, err := exec.QueryContext(ctx, `
		SELECT hospital_id, status, requested_at, responded_at
		FROM donor_consent_requests WHERE donor_id = $1 ORDER BY requested_at
	`, uuid.UUID(donorID))
	if err != nil {
		return nil, fmt.Errorf("select consent requests: %w", err)
	}
	defer rows.Close()
	var out []models.ConsentRequest
	for rows.Next() {
		var (
			cr        models.ConsentRequest
			hospital  uuid.UUID
			status    string
			responded sql.NullTime
		)
		if err := rows.Scan(&hospital, &status, &cr.RequestedAt, &responded); err != nil {
			return nil, fmt.Errorf("scan consent request: %w", err)
		}
		cr.HospitalID = id.HospitalID(hospital)
		cr.Status = models.ConsentRequestStatus(status)
		if responded.Valid {
			at := responded.Time.UTC()
			cr.RespondedAt = &at
		}
		out = append(out, cr)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDonor(row scanner) (*models.Donor, error) {
	var (
		d                   models.Donor
		donorID, registered uuid.UUID
		userID              uuid.NullUUID
		dob                 sql.NullTime
		blood, status       string
		allergies, organs   pq.StringArray
	)
	err := row.Scan(&donorID, &registered, &userID, &d.Name, &d.Contact.Email, &d.Contact.Phone, &dob,
		&blood, &d.WeightKg, &d.HeightCm, &d.MedicalHistory, &allergies, &organs, &d.IsLivingDonor,
		&d.Location.City, &d.Location.State, &status, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	d.ID = id.DonorID(donorID)
	d.RegisteredBy = id.HospitalID(registered)
	if userID.Valid {
		d.UserID = id.UserID(userID.UUID)
	}
	if dob.Valid {
		t := dob.Time.UTC()
		d.DateOfBirth = &t
	}
	d.BloodType = id.BloodType(blood)
	d.Status = models.Status(status)
	d.Allergies = []string(allergies)
	for _, o := range organs {
		d.OrganPreferences = append(d.OrganPreferences, id.OrganType(o))
	}
	return &d, nil
}

func nullUser(u id.UserID) uuid.NullUUID {
	if u.IsNil() {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: uuid.UUID(u), Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

func nonNilDocs(docs []models.DocumentRef) []models.DocumentRef {
	if docs == nil {
		return []models.DocumentRef{}
	}
	return docs
}

func organStrings(organs []id.OrganType) []string {
	out := make([]string, 0, len(organs))
	for _, o := range organs {
		out = append(out, string(o))
	}
	return out
}
