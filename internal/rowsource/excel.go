package rowsource

import (
	"context"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/londonaicentre/PhenoLab-sub001/internal/domain"
)

// ExcelProducer reads flat definition rows from a workbook sheet, as
// published by sources that distribute codelists as spreadsheets (e.g. the
// NHSBSA BNF mappings).
type ExcelProducer struct {
	name  string
	path  string
	sheet string // empty means the first sheet
}

func NewExcelProducer(name, path, sheet string) *ExcelProducer {
	return &ExcelProducer{name: name, path: path, sheet: sheet}
}

var _ Producer = (*ExcelProducer)(nil)

func (p *ExcelProducer) Name() string { return p.name }

func (p *ExcelProducer) Rows(ctx context.Context) ([]domain.Row, error) {
	f, err := excelize.OpenFile(p.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook %s: %w", p.path, err)
	}
	defer f.Close()

	sheet := p.sheet
	if sheet == "" {
		sheet = f.GetSheetName(0)
	}

	records, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q of %s: %w", sheet, p.path, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: sheet %q of %s is empty", domain.ErrSchema, sheet, p.path)
	}

	index, err := headerIndex(records[0])
	if err != nil {
		return nil, err
	}

	uploadedAt := time.Now()
	var rows []domain.Row
	for _, record := range records[1:] {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if isEmptyRecord(record) {
			continue
		}
		row, err := rowFromRecord(record, index, uploadedAt)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func isEmptyRecord(record []string) bool {
	for _, cell := range record {
		if cell != "" {
			return false
		}
	}
	return true
}
