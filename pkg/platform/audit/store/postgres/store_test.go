package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "transplant/pkg/domain"
	audit "transplant/pkg/platform/audit"
)

func TestAppendWritesLogAndOutbox(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := New(db)
	entry := audit.Entry{
		ID:          id.EntryID(uuid.New()),
		ActionType:  audit.ActionMatch,
		PerformedBy: audit.Performer{ID: uuid.NewString(), Name: "Dr. Okafor", Role: id.RoleHospital},
		EntityType:  audit.EntityRequest,
		EntityID:    "REQ-2026-000001",
		Details:     "donor matched",
		Timestamp:   time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}

	mock.ExpectExec("INSERT INTO audit_log").
		WithArgs(uuid.UUID(entry.ID), "MATCH", entry.PerformedBy.ID, "Dr. Okafor", "hospital",
			"request", "REQ-2026-000001", "donor matched", "", "", entry.Timestamp).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO outbox").
		WithArgs(sqlmock.AnyArg(), "request", "REQ-2026-000001", "MATCH", sqlmock.AnyArg(), entry.Timestamp).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.Append(context.Background(), entry))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendFailsWhenLogInsertFails(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO audit_log").WillReturnError(errors.New("disk full"))

	err = New(db).Append(context.Background(), audit.Entry{ActionType: audit.ActionMatch})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert audit entry")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOutboxPayloadCarriesCategory(t *testing.T) {
	payload := OutboxPayload{Category: string(audit.ActionConfidentialDataAccess.Category())}
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"category":"security"`)
}

func TestListByEntity(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	entryID := uuid.New()
	ts := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "action_type", "performer_id", "performer_name", "performer_role",
		"entity_type", "entity_id", "details", "request_id", "client", "created_at"}).
		AddRow(entryID.String(), "REQUEST_CREATED", "u1", "Dr. Okafor", "hospital", "request", "REQ-2026-000001", "", "rid", "", ts)
	mock.ExpectQuery("FROM audit_log").WithArgs("request", "REQ-2026-000001").WillReturnRows(rows)

	entries, err := New(db).ListByEntity(context.Background(), audit.EntityRequest, "REQ-2026-000001")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, audit.ActionRequestCreated, entries[0].ActionType)
	assert.Equal(t, id.RoleHospital, entries[0].PerformedBy.Role)
	assert.Equal(t, "rid", entries[0].RequestID)
}
