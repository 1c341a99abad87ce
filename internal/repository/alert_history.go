package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"wisefido-sos/internal/models"

	"go.uber.org/zap"
)

// AlertHistoryRepository 告警历史镜像仓库（PostgreSQL）
// K/V 中的 alert_history 是主记录，这里只做查询/归档镜像
type AlertHistoryRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAlertHistoryRepository 创建告警历史仓库
func NewAlertHistoryRepository(db *sql.DB, logger *zap.Logger) *AlertHistoryRepository {
	return &AlertHistoryRepository{
		db:     db,
		logger: logger,
	}
}

const createAlertHistoryTable = `
	CREATE TABLE IF NOT EXISTS sos_alert_history (
		record_id       TEXT PRIMARY KEY,
		record_type     TEXT NOT NULL,
		latitude        DOUBLE PRECISION,
		longitude       DOUBLE PRECISION,
		accuracy        DOUBLE PRECISION,
		contacts_total  INTEGER NOT NULL DEFAULT 0,
		contacts_sent   INTEGER NOT NULL DEFAULT 0,
		contacts_failed INTEGER NOT NULL DEFAULT 0,
		message         TEXT NOT NULL,
		tx_hash         TEXT,
		blockchain      JSONB,
		occurred_at     TIMESTAMPTZ NOT NULL,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)
`

// EnsureSchema 建表（幂等）
func (r *AlertHistoryRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createAlertHistoryTable); err != nil {
		return fmt.Errorf("failed to create sos_alert_history: %w", err)
	}
	return nil
}

// InsertRecord 写入一条历史记录；同 record_id 重复写入时忽略
func (r *AlertHistoryRepository) InsertRecord(ctx context.Context, rec models.HistoryRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("record_id is required")
	}

	var lat, lon, acc sql.NullFloat64
	if rec.Location != nil {
		lat = sql.NullFloat64{Float64: rec.Location.Latitude, Valid: true}
		lon = sql.NullFloat64{Float64: rec.Location.Longitude, Valid: true}
		acc = sql.NullFloat64{Float64: rec.Location.Accuracy, Valid: true}
	}

	var total, sent, failed int
	if rec.Contacts != nil {
		total, sent, failed = rec.Contacts.Total, rec.Contacts.Sent, rec.Contacts.Failed
	}

	var txHash sql.NullString
	var blockchainJSON []byte
	if rec.Blockchain != nil {
		if rec.Blockchain.TransactionHash != "" {
			txHash = sql.NullString{String: rec.Blockchain.TransactionHash, Valid: true}
		}
		b, err := json.Marshal(rec.Blockchain)
		if err != nil {
			return fmt.Errorf("failed to marshal blockchain: %w", err)
		}
		blockchainJSON = b
	}

	query := `
		INSERT INTO sos_alert_history (
			record_id, record_type, latitude, longitude, accuracy,
			contacts_total, contacts_sent, contacts_failed,
			message, tx_hash, blockchain, occurred_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (record_id) DO NOTHING
	`

	_, err := r.db.ExecContext(ctx, query,
		rec.ID, rec.Type, lat, lon, acc,
		total, sent, failed,
		rec.Message, txHash, nullableJSON(blockchainJSON), rec.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to insert alert history: %w", err)
	}
	return nil
}

// AlertHistoryFilters 查询条件
type AlertHistoryFilters struct {
	RecordType *string
	StartTime  *time.Time
	EndTime    *time.Time
}

// ListRecords 按发生时间倒序分页查询
func (r *AlertHistoryRepository) ListRecords(ctx context.Context, filters AlertHistoryFilters, page, size int) ([]models.HistoryRecord, int, error) {
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}

	where := "WHERE 1=1"
	args := []any{}
	argN := 1
	if filters.RecordType != nil {
		where += fmt.Sprintf(" AND record_type = $%d", argN)
		args = append(args, *filters.RecordType)
		argN++
	}
	if filters.StartTime != nil {
		where += fmt.Sprintf(" AND occurred_at >= $%d", argN)
		args = append(args, *filters.StartTime)
		argN++
	}
	if filters.EndTime != nil {
		where += fmt.Sprintf(" AND occurred_at <= $%d", argN)
		args = append(args, *filters.EndTime)
		argN++
	}

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sos_alert_history "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count alert history: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT
			record_id, record_type, latitude, longitude, accuracy,
			contacts_total, contacts_sent, contacts_failed,
			message, blockchain, occurred_at
		FROM sos_alert_history
		%s
		ORDER BY occurred_at DESC
		LIMIT $%d OFFSET $%d
	`, where, argN, argN+1)
	args = append(args, size, (page-1)*size)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list alert history: %w", err)
	}
	defer rows.Close()

	out := []models.HistoryRecord{}
	for rows.Next() {
		var rec models.HistoryRecord
		var lat, lon, acc sql.NullFloat64
		var summary models.DispatchSummary
		var blockchain []byte
		if err := rows.Scan(
			&rec.ID, &rec.Type, &lat, &lon, &acc,
			&summary.Total, &summary.Sent, &summary.Failed,
			&rec.Message, &blockchain, &rec.Timestamp,
		); err != nil {
			return nil, 0, fmt.Errorf("failed to scan alert history: %w", err)
		}
		if lat.Valid && lon.Valid {
			rec.Location = &models.LocationFix{Latitude: lat.Float64, Longitude: lon.Float64, Accuracy: acc.Float64}
		}
		if rec.Type == models.HistoryTypeEmergency {
			s := summary
			rec.Contacts = &s
		}
		if len(blockchain) > 0 {
			var lr models.LedgerResult
			if err := json.Unmarshal(blockchain, &lr); err != nil {
				r.logger.Warn("Failed to unmarshal blockchain column",
					zap.String("record_id", rec.ID),
					zap.Error(err),
				)
			} else {
				rec.Blockchain = &lr
			}
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate alert history: %w", err)
	}
	return out, total, nil
}

func nullableJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
