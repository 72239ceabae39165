package rowsource

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/londonaicentre/PhenoLab-sub001/internal/domain"
)

// JSONDirProducer flattens every definition JSON file in a directory, the
// layout PhenoLab uses for locally authored definitions.
type JSONDirProducer struct {
	name string
	dir  string
}

func NewJSONDirProducer(name, dir string) *JSONDirProducer {
	return &JSONDirProducer{name: name, dir: dir}
}

var _ Producer = (*JSONDirProducer)(nil)

func (p *JSONDirProducer) Name() string { return p.name }

func (p *JSONDirProducer) Rows(ctx context.Context) ([]domain.Row, error) {
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read definitions dir %s: %w", p.dir, err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		paths = append(paths, filepath.Join(p.dir, entry.Name()))
	}
	sort.Strings(paths)

	uploadedAt := time.Now()
	var rows []domain.Row
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		definition, err := domain.DefinitionFromJSONFile(path)
		if err != nil {
			return nil, err
		}
		definition.UploadedDatetime = uploadedAt
		rows = append(rows, domain.Flatten(definition)...)
	}
	return rows, nil
}
