package request

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transplant/internal/request/models"
	id "transplant/pkg/domain"
	"transplant/pkg/platform/sentinel"
)

var columns = []string{
	"id", "hospital_id", "patient_name", "patient_age", "blood_type", "condition", "urgency",
	"organ_type", "status", "eligibility_status", "consent_status", "matched_donor_kind", "matched_donor_id",
	"transplant_id", "confidential_data_revealed", "sla_breached_at", "delay_reason", "expiry_date",
	"created_at", "updated_at", "version",
}

func newMock(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgres(db), mock
}

func TestPostgres_CreateDuplicate(t *testing.T) {
	store, mock := newMock(t)
	now := time.Now().UTC()
	r, err := models.NewRequest("REQ-2026-000001", id.NewHospitalID(),
		models.Patient{Name: "P", Age: 30, BloodType: id.BloodOPos}, models.UrgencyLow, id.OrganKidney, now, time.Hour)
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO requests").WillReturnError(&pq.Error{Code: "23505"})

	err = store.Create(context.Background(), r)
	assert.ErrorIs(t, err, sentinel.ErrAlreadyExists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_FindByID(t *testing.T) {
	store, mock := newMock(t)
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	hospital := id.NewHospitalID()
	donor := id.NewDonorID()

	mock.ExpectQuery("SELECT .* FROM requests WHERE id = \\$1").
		WithArgs("REQ-2026-000001").
		WillReturnRows(sqlmock.NewRows(columns).AddRow(
			"REQ-2026-000001", hospital.String(), "P", 41, "A+", "", "critical",
			"heart", "matched", "validated", "pending", "donor", donor.String(),
			nil, false, nil, "", now.Add(time.Hour),
			now, now, 3,
		))
	mock.ExpectQuery("SELECT request_id, stage, notes, created_at").
		WillReturnRows(sqlmock.NewRows([]string{"request_id", "stage", "notes", "created_at"}).
			AddRow("REQ-2026-000001", "pending", "", now).
			AddRow("REQ-2026-000001", "matched", "", now))

	r, err := store.FindByID(context.Background(), "REQ-2026-000001")
	require.NoError(t, err)
	assert.Equal(t, hospital, r.HospitalID)
	assert.Equal(t, models.UrgencyCritical, r.Urgency)
	require.NotNil(t, r.MatchedDonor)
	assert.Equal(t, id.RefToDonor(donor), *r.MatchedDonor)
	assert.Nil(t, r.TransplantID)
	assert.Len(t, r.Lifecycle, 2)
	assert.NoError(t, r.CheckInvariants())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_TransitionLosesRace(t *testing.T) {
	store, mock := newMock(t)
	now := time.Now().UTC()
	r, err := models.NewRequest("REQ-2026-000001", id.NewHospitalID(),
		models.Patient{Name: "P", Age: 30, BloodType: id.BloodOPos}, models.UrgencyLow, id.OrganKidney, now, time.Hour)
	require.NoError(t, err)
	require.NoError(t, r.Match(id.RefToDonor(id.NewDonorID()), now, ""))

	mock.ExpectExec(regexp.QuoteMeta("WHERE id = $1 AND version = $2")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = store.Transition(context.Background(), r)
	assert.ErrorIs(t, err, sentinel.ErrConflict)
	assert.Equal(t, 1, r.Version)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_TransitionAppendsEntry(t *testing.T) {
	store, mock := newMock(t)
	now := time.Now().UTC()
	r, err := models.NewRequest("REQ-2026-000001", id.NewHospitalID(),
		models.Patient{Name: "P", Age: 30, BloodType: id.BloodOPos}, models.UrgencyLow, id.OrganKidney, now, time.Hour)
	require.NoError(t, err)
	require.NoError(t, r.Cancel(now, "duplicate request"))

	mock.ExpectExec("UPDATE requests").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO request_lifecycle").
		WithArgs("REQ-2026-000001", "cancelled", "duplicate request", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, store.Transition(context.Background(), r))
	assert.Equal(t, 2, r.Version)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_RecordBreach(t *testing.T) {
	store, mock := newMock(t)
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta("WHERE id = $1 AND sla_breached_at IS NULL")).
		WithArgs("REQ-2026-000001", at, "late").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT 1 FROM requests").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

	recorded, err := store.RecordBreach(context.Background(), "REQ-2026-000001", at, "late")
	require.NoError(t, err)
	assert.False(t, recorded, "existing breach is kept")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_MarkRevealedGatesNotMet(t *testing.T) {
	store, mock := newMock(t)

	mock.ExpectExec("UPDATE requests SET confidential_data_revealed").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT confidential_data_revealed").
		WillReturnRows(sqlmock.NewRows([]string{"confidential_data_revealed"}).AddRow(false))

	_, err := store.MarkRevealed(context.Background(), "REQ-2026-000001")
	assert.ErrorIs(t, err, sentinel.ErrInvalidState)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_CountBreaches(t *testing.T) {
	store, mock := newMock(t)
	hospital := id.NewHospitalID()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT count(*), count(sla_breached_at)")).
		WithArgs(hospital.String()).
		WillReturnRows(sqlmock.NewRows([]string{"count", "count"}).AddRow(600, 100))

	total, breached, err := store.CountBreaches(context.Background(), hospital)
	require.NoError(t, err)
	assert.Equal(t, 600, total)
	assert.Equal(t, 100, breached)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_ListExpirableResumesAfterKey(t *testing.T) {
	store, mock := newMock(t)
	now := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	after := ExpiryKey{ExpiryDate: now.Add(-time.Hour), ID: "REQ-2026-000200"}

	mock.ExpectQuery(regexp.QuoteMeta("AND (expiry_date, id) > ($2, $3) ORDER BY expiry_date, id LIMIT $4")).
		WithArgs(now, after.ExpiryDate, "REQ-2026-000200", 200).
		WillReturnRows(sqlmock.NewRows([]string{"id", "expiry_date"}).
			AddRow("REQ-2026-000201", now.Add(-time.Minute)))

	keys, err := store.ListExpirable(context.Background(), now, after, 200)
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, id.RequestID("REQ-2026-000201"), keys[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_FindRevealableNone(t *testing.T) {
	store, mock := newMock(t)
	hospital := id.NewHospitalID()
	ref := id.RefToDonor(id.NewDonorID())

	mock.ExpectQuery("SELECT .* FROM requests\\s+WHERE hospital_id = \\$1\\s+AND matched_donor_kind = \\$2").
		WithArgs(hospital.String(), "donor", ref.ID.String()).
		WillReturnRows(sqlmock.NewRows(columns))

	_, err := store.FindRevealable(context.Background(), hospital, ref)
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
