package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"wisefido-sos/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupMockAlertHistoryDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *AlertHistoryRepository) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	repo := NewAlertHistoryRepository(db, zap.NewNop())
	return db, mock, repo
}

func TestEnsureSchema(t *testing.T) {
	db, mock, repo := setupMockAlertHistoryDB(t)
	defer db.Close()

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS sos_alert_history`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.EnsureSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertRecord_Success(t *testing.T) {
	db, mock, repo := setupMockAlertHistoryDB(t)
	defer db.Close()

	recordID := uuid.New().String()
	occurredAt := time.Now().UTC()
	rec := models.HistoryRecord{
		ID:        recordID,
		Type:      models.HistoryTypeEmergency,
		Location:  &models.LocationFix{Latitude: 4.711, Longitude: -74.0721, Accuracy: 12},
		Contacts:  &models.DispatchSummary{Total: 3, Sent: 2, Failed: 1},
		Message:   "🚨 ¡EMERGENCIA de Laura!",
		Timestamp: occurredAt,
		Blockchain: &models.LedgerResult{
			Success:         true,
			TransactionHash: "0xabc",
			BlockNumber:     42,
		},
	}

	mock.ExpectExec(`INSERT INTO sos_alert_history`).
		WithArgs(
			recordID, models.HistoryTypeEmergency,
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			3, 2, 1,
			rec.Message, sqlmock.AnyArg(), sqlmock.AnyArg(), occurredAt,
		).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, repo.InsertRecord(context.Background(), rec))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertRecord_MissingID(t *testing.T) {
	db, _, repo := setupMockAlertHistoryDB(t)
	defer db.Close()

	err := repo.InsertRecord(context.Background(), models.HistoryRecord{Type: models.HistoryTypeShare})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "record_id is required")
}

func TestInsertRecord_DBError(t *testing.T) {
	db, mock, repo := setupMockAlertHistoryDB(t)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO sos_alert_history`).
		WillReturnError(errors.New("connection reset"))

	err := repo.InsertRecord(context.Background(), models.HistoryRecord{ID: "r1", Type: models.HistoryTypeShare, Timestamp: time.Now()})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to insert alert history")
}

func TestListRecords_Success(t *testing.T) {
	db, mock, repo := setupMockAlertHistoryDB(t)
	defer db.Close()

	now := time.Now().UTC()
	mock.ExpectQuery(`SELECT COUNT`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	rows := sqlmock.NewRows([]string{
		"record_id", "record_type", "latitude", "longitude", "accuracy",
		"contacts_total", "contacts_sent", "contacts_failed",
		"message", "blockchain", "occurred_at",
	}).
		AddRow("r2", models.HistoryTypeEmergency, 4.7, -74.1, 10.0, 2, 2, 0, "m2", `{"success":true,"transactionHash":"0x1"}`, now).
		AddRow("r1", models.HistoryTypeShare, nil, nil, nil, 0, 0, 0, "m1", nil, now.Add(-time.Hour))

	mock.ExpectQuery(`SELECT`).
		WithArgs(20, 0).
		WillReturnRows(rows)

	records, total, err := repo.ListRecords(context.Background(), AlertHistoryFilters{}, 1, 20)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, records, 2)

	assert.Equal(t, "r2", records[0].ID)
	require.NotNil(t, records[0].Contacts)
	assert.Equal(t, 2, records[0].Contacts.Sent)
	require.NotNil(t, records[0].Blockchain)
	assert.Equal(t, "0x1", records[0].Blockchain.TransactionHash)

	assert.Nil(t, records[1].Location)
	assert.Nil(t, records[1].Contacts)
	assert.Nil(t, records[1].Blockchain)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListRecords_WithFilters(t *testing.T) {
	db, mock, repo := setupMockAlertHistoryDB(t)
	defer db.Close()

	recordType := models.HistoryTypeShare
	start := time.Now().Add(-24 * time.Hour)

	mock.ExpectQuery(`SELECT COUNT`).
		WithArgs(recordType, start).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(`SELECT`).
		WithArgs(recordType, start, 10, 10).
		WillReturnRows(sqlmock.NewRows([]string{
			"record_id", "record_type", "latitude", "longitude", "accuracy",
			"contacts_total", "contacts_sent", "contacts_failed",
			"message", "blockchain", "occurred_at",
		}))

	records, total, err := repo.ListRecords(context.Background(), AlertHistoryFilters{
		RecordType: &recordType,
		StartTime:  &start,
	}, 2, 10)
	require.NoError(t, err)
	assert.Equal(t, 0, total)
	assert.Len(t, records, 0)
	assert.NoError(t, mock.ExpectationsWereMet())
}
