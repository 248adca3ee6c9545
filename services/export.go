package services

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"maintenance-query-agent/internal/logger"
	"maintenance-query-agent/models"
)

// HistoryLister reads back persisted chat exchanges, newest first.
type HistoryLister interface {
	ListHistory(ctx context.Context, limit int) ([]models.History, error)
}

// ExportService generates downloadable reports of the chat history.
type ExportService struct {
	history HistoryLister
}

func NewExportService(history HistoryLister) *ExportService {
	return &ExportService{history: history}
}

// ExportHistoryExcel renders the full chat history as an Excel workbook
// with a data sheet and a small summary sheet.
func (es *ExportService) ExportHistoryExcel(ctx context.Context) ([]byte, error) {
	records, err := es.history.ListHistory(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}

	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			logger.Error("Error closing Excel file", "error", err)
		}
	}()

	sheetName := "Chat History"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	f.DeleteSheet("Sheet1")

	// Set headers
	headers := []string{"ID", "Query", "Answer", "Used Documents", "Sources", "Created At"}
	for i, header := range headers {
		cell := fmt.Sprintf("%c1", 'A'+i)
		f.SetCellValue(sheetName, cell, header)
	}

	// Write data rows
	answeredFromDocs := 0
	for rowIdx, rec := range records {
		row := rowIdx + 2 // Start from row 2 (after headers)

		f.SetCellValue(sheetName, fmt.Sprintf("A%d", row), rec.ID)
		f.SetCellValue(sheetName, fmt.Sprintf("B%d", row), rec.Query)
		f.SetCellValue(sheetName, fmt.Sprintf("C%d", row), rec.Answer)
		f.SetCellValue(sheetName, fmt.Sprintf("D%d", row), rec.UsedDocuments)
		f.SetCellValue(sheetName, fmt.Sprintf("E%d", row), formatSources(rec.Sources))
		f.SetCellValue(sheetName, fmt.Sprintf("F%d", row), rec.CreatedAt.Format("2006-01-02 15:04:05"))

		if rec.UsedDocuments {
			answeredFromDocs++
		}
	}

	for i := 0; i < len(headers); i++ {
		col := fmt.Sprintf("%c:%c", 'A'+i, 'A'+i)
		f.SetColWidth(sheetName, col, col, 24)
	}

	summarySheetName := "Summary"
	if _, err := f.NewSheet(summarySheetName); err != nil {
		return nil, fmt.Errorf("failed to create summary sheet: %w", err)
	}

	summaryData := [][]interface{}{
		{"Export Date", time.Now().UTC().Format("2006-01-02 15:04:05")},
		{"Total Records", len(records)},
		{"Answered From Documents", answeredFromDocs},
		{"General Knowledge Answers", len(records) - answeredFromDocs},
	}
	for i, row := range summaryData {
		for j, cell := range row {
			cellRef := fmt.Sprintf("%c%d", 'A'+j, i+1)
			f.SetCellValue(summarySheetName, cellRef, cell)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to write Excel file: %w", err)
	}

	return buf.Bytes(), nil
}

func formatSources(sources []models.Source) string {
	if len(sources) == 0 {
		return ""
	}
	names := make([]string, 0, len(sources))
	for _, s := range sources {
		names = append(names, s.Doc)
	}
	return strings.Join(names, "; ")
}
