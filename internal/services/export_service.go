package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strconv"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/weavetrack/erp-api/internal/models"
	"github.com/xuri/excelize/v2"
)

// Export formats
const (
	ExportFormatCSV  = "csv"
	ExportFormatXLSX = "xlsx"
	ExportFormatPDF  = "pdf"
)

const maxExportRows = 5000

var exportHeader = []string{
	"Batch Number", "Process Type", "Status", "Progress (%)", "Efficiency (%)",
	"Actual Start", "Actual End", "Downtime (min)", "Total Cost", "Created At",
}

// ExportFile is a rendered export ready to be sent to the client.
type ExportFile struct {
	Data        []byte
	Filename    string
	ContentType string
}

type ExportService struct {
	batchSvc *BatchService
	now      func() time.Time
}

func NewExportService(batchSvc *BatchService) *ExportService {
	return &ExportService{batchSvc: batchSvc, now: time.Now}
}

// Export renders every batch matching filter in the requested format.
func (s *ExportService) Export(ctx context.Context, filter BatchFilter, format string) (*ExportFile, error) {
	switch format {
	case ExportFormatCSV, ExportFormatXLSX, ExportFormatPDF:
	default:
		return nil, NewValidationError("format", "must be one of: csv, xlsx, pdf")
	}

	batches, err := s.collect(ctx, filter)
	if err != nil {
		return nil, err
	}
	analytics, err := s.batchSvc.Analytics(ctx, filter)
	if err != nil {
		return nil, err
	}

	switch format {
	case ExportFormatXLSX:
		return s.ExportXLSX(batches, analytics)
	case ExportFormatPDF:
		return s.ExportPDF(batches, analytics)
	default:
		return s.ExportCSV(batches)
	}
}

func (s *ExportService) collect(ctx context.Context, filter BatchFilter) ([]models.Batch, error) {
	filter.Limit = maxPageSize
	var out []models.Batch
	for page := 1; len(out) < maxExportRows; page++ {
		filter.Page = page
		result, err := s.batchSvc.List(ctx, filter)
		if err != nil {
			return nil, err
		}
		out = append(out, result.Items...)
		if int64(page) >= result.Pages {
			break
		}
	}
	if len(out) > maxExportRows {
		out = out[:maxExportRows]
	}
	return out, nil
}

func exportRow(b *models.Batch) []string {
	return []string{
		b.BatchNumber,
		b.ProcessType,
		b.Status,
		strconv.Itoa(b.Progress),
		fmt.Sprintf("%.1f", b.Efficiency),
		formatTime(b.Timing.ActualStartTime),
		formatTime(b.Timing.ActualEndTime),
		strconv.Itoa(b.Timing.DowntimeMinutes),
		b.TotalCost().StringFixed(2),
		b.CreatedAt.UTC().Format("2006-01-02 15:04"),
	}
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format("2006-01-02 15:04")
}

func (s *ExportService) filename(ext string) string {
	return fmt.Sprintf("pre_processing_batches_%s.%s", s.now().Format("2006-01-02"), ext)
}

func (s *ExportService) ExportCSV(batches []models.Batch) (*ExportFile, error) {
	buf := new(bytes.Buffer)
	writer := csv.NewWriter(buf)

	_ = writer.Write(exportHeader)
	for i := range batches {
		_ = writer.Write(exportRow(&batches[i]))
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, err
	}

	return &ExportFile{
		Data:        buf.Bytes(),
		Filename:    s.filename("csv"),
		ContentType: "text/csv",
	}, nil
}

func (s *ExportService) ExportXLSX(batches []models.Batch, analytics *models.BatchAnalytics) (*ExportFile, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheet := "Batches"
	_ = f.SetSheetName("Sheet1", sheet)

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E0E0E0"}, Pattern: 1},
	})

	for col, title := range exportHeader {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		_ = f.SetCellValue(sheet, cell, title)
	}
	last, _ := excelize.CoordinatesToCellName(len(exportHeader), 1)
	_ = f.SetCellStyle(sheet, "A1", last, headerStyle)

	for i := range batches {
		b := &batches[i]
		row := i + 2
		values := []interface{}{
			b.BatchNumber,
			b.ProcessType,
			b.Status,
			b.Progress,
			b.Efficiency,
			formatTime(b.Timing.ActualStartTime),
			formatTime(b.Timing.ActualEndTime),
			b.Timing.DowntimeMinutes,
			b.TotalCost().InexactFloat64(),
			b.CreatedAt.UTC().Format("2006-01-02 15:04"),
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			_ = f.SetCellValue(sheet, cell, v)
		}
	}

	summary := "Summary"
	if _, err := f.NewSheet(summary); err != nil {
		return nil, err
	}
	_ = f.SetCellValue(summary, "A1", "Metric")
	_ = f.SetCellValue(summary, "B1", "Value")
	_ = f.SetCellStyle(summary, "A1", "B1", headerStyle)
	_ = f.SetCellValue(summary, "A2", "Total Batches")
	_ = f.SetCellValue(summary, "B2", analytics.TotalBatches)
	_ = f.SetCellValue(summary, "A3", "Completion Rate (%)")
	_ = f.SetCellValue(summary, "B3", analytics.CompletionRate)
	_ = f.SetCellValue(summary, "A4", "Average Efficiency (%)")
	_ = f.SetCellValue(summary, "B4", analytics.AverageEfficiency)
	_ = f.SetCellValue(summary, "A5", "Total Downtime (min)")
	_ = f.SetCellValue(summary, "B5", analytics.TotalDowntimeMinutes)

	row := 7
	for _, status := range models.BatchStatuses {
		_ = f.SetCellValue(summary, fmt.Sprintf("A%d", row), status)
		_ = f.SetCellValue(summary, fmt.Sprintf("B%d", row), analytics.StatusCounts[status])
		row++
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}

	return &ExportFile{
		Data:        buf.Bytes(),
		Filename:    s.filename("xlsx"),
		ContentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	}, nil
}

func (s *ExportService) ExportPDF(batches []models.Batch, analytics *models.BatchAnalytics) (*ExportFile, error) {
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.Cell(40, 10, "Pre-processing Batches")
	pdf.Ln(12)

	pdf.SetFont("Arial", "", 10)
	pdf.Cell(60, 6, fmt.Sprintf("Total batches: %d", analytics.TotalBatches))
	pdf.Cell(60, 6, fmt.Sprintf("Completion rate: %.1f%%", analytics.CompletionRate))
	pdf.Cell(60, 6, fmt.Sprintf("Avg efficiency: %.1f%%", analytics.AverageEfficiency))
	pdf.Cell(60, 6, fmt.Sprintf("Downtime: %d min", analytics.TotalDowntimeMinutes))
	pdf.Ln(10)

	widths := []float64{34, 26, 24, 20, 22, 30, 30, 24, 26, 30}

	pdf.SetFont("Arial", "B", 8)
	pdf.SetFillColor(224, 224, 224)
	for i, title := range exportHeader {
		pdf.CellFormat(widths[i], 7, title, "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 8)
	for i := range batches {
		for col, value := range exportRow(&batches[i]) {
			pdf.CellFormat(widths[col], 6, value, "1", 0, "L", false, 0, "")
		}
		pdf.Ln(-1)
	}

	buf := new(bytes.Buffer)
	if err := pdf.Output(buf); err != nil {
		return nil, err
	}

	return &ExportFile{
		Data:        buf.Bytes(),
		Filename:    s.filename("pdf"),
		ContentType: "application/pdf",
	}, nil
}
