package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"wisefido-sos/internal/config"
	"wisefido-sos/internal/database"
	"wisefido-sos/internal/models"
	"wisefido-sos/internal/repository"

	"go.uber.org/zap"
)

// 打印 PostgreSQL 镜像中最近的告警历史，用于核对 K/V 主记录是否已同步
func main() {
	recordType := flag.String("type", "", "record type filter (emergency_alert / location_share)")
	hours := flag.Int("hours", 24, "look back window in hours, 0 = all")
	size := flag.Int("size", 20, "number of records")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	repo := repository.NewAlertHistoryRepository(db, zap.NewNop())
	filters := repository.AlertHistoryFilters{}
	if *recordType != "" {
		filters.RecordType = recordType
	}
	if *hours > 0 {
		since := time.Now().Add(-time.Duration(*hours) * time.Hour)
		filters.StartTime = &since
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	records, total, err := repo.ListRecords(ctx, filters, 1, *size)
	if err != nil {
		log.Fatalf("Failed to query sos_alert_history: %v", err)
	}

	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("sos_alert_history: %d record(s) matched, showing %d\n", total, len(records))
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("%-38s %-16s %-20s %-22s %-10s %-12s\n",
		"record_id", "type", "occurred_at", "location", "contacts", "ledger")
	fmt.Println(strings.Repeat("-", 80))

	for _, rec := range records {
		fmt.Printf("%-38s %-16s %-20s %-22s %-10s %-12s\n",
			rec.ID, rec.Type, rec.Timestamp.Local().Format("2006-01-02 15:04:05"),
			locationString(rec.Location), contactsString(rec.Contacts), ledgerString(rec.Blockchain))
	}

	if len(records) == 0 {
		fmt.Println("⚠️  未找到告警历史记录（检查 SOS_HISTORY_POSTGRES 是否开启）")
	}
}

func locationString(fix *models.LocationFix) string {
	if fix == nil {
		return "NULL"
	}
	return models.FormatCoordinates(fix.Latitude, fix.Longitude, 5)
}

func contactsString(s *models.DispatchSummary) string {
	if s == nil {
		return "NULL"
	}
	return fmt.Sprintf("%d/%d", s.Sent, s.Total)
}

func ledgerString(lr *models.LedgerResult) string {
	switch {
	case lr == nil:
		return "-"
	case lr.Success:
		return "confirmed"
	default:
		return "failed"
	}
}
