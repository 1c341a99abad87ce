package httpapi

import (
	"bytes"
	"fmt"
	"time"

	"wisefido-sos/internal/models"

	"github.com/xuri/excelize/v2"
)

// AlertHistoryExportHeader 导出表头
var AlertHistoryExportHeader = []string{
	"Record ID",
	"Type",
	"Time (UTC)",
	"Latitude",
	"Longitude",
	"Accuracy (m)",
	"Contacts Total",
	"Contacts Sent",
	"Contacts Failed",
	"Ledger Status",
	"Transaction Hash",
	"Explorer URL",
	"Message",
}

var alertHistoryColumnWidths = []float64{38, 18, 22, 14, 14, 14, 15, 15, 16, 14, 68, 40, 60}

const alertHistorySheet = "Alert History"

// GenerateAlertHistoryExport 生成告警历史 Excel；records 为空时只有表头
func GenerateAlertHistoryExport(records []models.HistoryRecord) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(alertHistorySheet)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	f.DeleteSheet("Sheet1")
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#FDE2E2"},
			Pattern: 1,
		},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	for col, header := range AlertHistoryExportHeader {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return nil, fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetCellValue(alertHistorySheet, cell, header); err != nil {
			return nil, fmt.Errorf("failed to set header cell %s: %w", cell, err)
		}
		if err := f.SetCellStyle(alertHistorySheet, cell, cell, headerStyle); err != nil {
			return nil, fmt.Errorf("failed to set header style: %w", err)
		}
		name, err := excelize.ColumnNumberToName(col + 1)
		if err != nil {
			return nil, fmt.Errorf("failed to convert column number: %w", err)
		}
		if err := f.SetColWidth(alertHistorySheet, name, name, alertHistoryColumnWidths[col]); err != nil {
			return nil, fmt.Errorf("failed to set column width: %w", err)
		}
	}

	for i, rec := range records {
		row := historyRow(rec)
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetSheetRow(alertHistorySheet, cell, &row); err != nil {
			return nil, fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to write excel: %w", err)
	}
	return buf.Bytes(), nil
}

func historyRow(rec models.HistoryRecord) []any {
	row := make([]any, len(AlertHistoryExportHeader))
	row[0] = rec.ID
	row[1] = rec.Type
	row[2] = rec.Timestamp.UTC().Format(time.DateTime)
	if rec.Location != nil {
		row[3] = rec.Location.Latitude
		row[4] = rec.Location.Longitude
		row[5] = rec.Location.Accuracy
	}
	if rec.Contacts != nil {
		row[6] = rec.Contacts.Total
		row[7] = rec.Contacts.Sent
		row[8] = rec.Contacts.Failed
	}
	switch {
	case rec.Blockchain == nil:
		row[9] = "-"
	case rec.Blockchain.Success:
		row[9] = "confirmed"
		row[10] = rec.Blockchain.TransactionHash
		row[11] = rec.Blockchain.ExplorerURL
	default:
		row[9] = "failed"
	}
	row[12] = rec.Message
	return row
}
