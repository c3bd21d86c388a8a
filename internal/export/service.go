package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
)

// Sheet is one named tab of a published workbook, carried as raw CSV.
type Sheet struct {
	Name string
	CSV  []byte
}

// Publisher is the publish sink: it turns a bundle of tabular sheets into a
// durable artifact and returns its identifier.
type Publisher interface {
	Publish(ctx context.Context, title string, sheets []Sheet) (string, error)
}

// Service publishes summary bundles as XLSX workbooks under an output
// directory. The returned id is the generated workbook id embedded in the
// file name.
type Service struct {
	outputDir string
	logger    *slog.Logger
}

func NewService(outputDir string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{outputDir: outputDir, logger: logger}
}

// Publish converts each CSV sheet into a worksheet and writes one workbook
// named "<title> <id>.xlsx". Sheet order is preserved.
func (s *Service) Publish(ctx context.Context, title string, sheets []Sheet) (string, error) {
	start := time.Now()
	if len(sheets) == 0 {
		return "", fmt.Errorf("publish %q: no sheets", title)
	}

	f := excelize.NewFile()
	for i, sheet := range sheets {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		name := sanitizeSheetName(sheet.Name, i)
		if i == 0 {
			// Rename the default sheet rather than leaving an empty tab.
			if err := f.SetSheetName("Sheet1", name); err != nil {
				return "", fmt.Errorf("rename sheet %q: %w", name, err)
			}
		} else {
			if _, err := f.NewSheet(name); err != nil {
				return "", fmt.Errorf("new sheet %q: %w", name, err)
			}
		}
		if err := writeCSVSheet(f, name, sheet.CSV); err != nil {
			return "", fmt.Errorf("sheet %q: %w", name, err)
		}
	}
	f.SetActiveSheet(0)

	id := uuid.New().String()
	if err := os.MkdirAll(s.outputDir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	path := filepath.Join(s.outputDir, fmt.Sprintf("%s %s.xlsx", title, id))
	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("xlsx save: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"title", title,
		"sheets", len(sheets),
		"path", path,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return id, nil
}

// writeCSVSheet streams CSV records into worksheet rows. Ragged rows are
// written as-is; excelize fills missing cells with blanks.
func writeCSVSheet(f *excelize.File, sheet string, raw []byte) error {
	r := csv.NewReader(strings.NewReader(string(raw)))
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return fmt.Errorf("parse csv: %w", err)
	}
	for rowIdx, record := range records {
		row := make([]any, len(record))
		for i, v := range record {
			row[i] = v
		}
		cell, err := excelize.CoordinatesToCellName(1, rowIdx+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", rowIdx+1, err)
		}
	}
	return nil
}

// sanitizeSheetName keeps names within excelize's 31-char sheet name limit
// and strips characters the format forbids.
func sanitizeSheetName(name string, index int) string {
	if name == "" {
		return fmt.Sprintf("Sheet%d", index+1)
	}
	replacer := strings.NewReplacer(":", "-", "\\", "-", "/", "-", "?", "", "*", "", "[", "(", "]", ")")
	name = replacer.Replace(name)
	if len(name) > 31 {
		name = name[:31]
	}
	return name
}
