package rowsource

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/londonaicentre/PhenoLab-sub001/internal/domain"
)

// CSVProducer reads flat definition rows from a CSV export (one row per
// code, ingested-row schema headers).
type CSVProducer struct {
	name string
	path string
}

func NewCSVProducer(name, path string) *CSVProducer {
	return &CSVProducer{name: name, path: path}
}

var _ Producer = (*CSVProducer)(nil)

func (p *CSVProducer) Name() string { return p.name }

func (p *CSVProducer) Rows(ctx context.Context) ([]domain.Row, error) {
	f, err := os.Open(p.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", p.path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header of %s: %w", filepath.Base(p.path), err)
	}
	index, err := headerIndex(header)
	if err != nil {
		return nil, err
	}

	uploadedAt := time.Now()
	var rows []domain.Row
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", filepath.Base(p.path), err)
		}
		row, err := rowFromRecord(record, index, uploadedAt)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}
