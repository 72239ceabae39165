package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/londonaicentre/PhenoLab-sub001/internal/repository"
	"github.com/londonaicentre/PhenoLab-sub001/internal/rowsource"
)

// SourceBatch pairs one row producer with the target table its rows are
// merged into.
type SourceBatch struct {
	Producer rowsource.Producer
	Table    string
}

// BatchResult reports a batch load: how many sources merged cleanly and
// which ones were skipped.
type BatchResult struct {
	Processed int
	Total     int
	Failed    []string
}

func (r BatchResult) String() string {
	if len(r.Failed) == 0 {
		return fmt.Sprintf("processed %d/%d", r.Processed, r.Total)
	}
	return fmt.Sprintf("processed %d/%d, failed: %v", r.Processed, r.Total, r.Failed)
}

// IngestService runs batch loads: each source is produced, validated and
// merged independently, and one bad source never blocks the rest. After a
// batch it recreates the unified view so new tables and rows are queryable.
type IngestService struct {
	definitions  repository.DefinitionsRepository
	storeView    repository.StoreViewRepository
	sourceTables []string
	logger       *zap.Logger
}

func NewIngestService(
	definitions repository.DefinitionsRepository,
	storeView repository.StoreViewRepository,
	sourceTables []string,
	logger *zap.Logger,
) *IngestService {
	return &IngestService{
		definitions:  definitions,
		storeView:    storeView,
		sourceTables: sourceTables,
		logger:       logger,
	}
}

// LoadAll merges every source in the batch into its target table. A failing
// source is logged, recorded in the result and skipped; the load is
// idempotent so a failed source can simply be re-run later. When at least
// one source merged, the unified view is recreated over the configured
// source tables.
func (s *IngestService) LoadAll(ctx context.Context, batch []SourceBatch) (BatchResult, error) {
	result := BatchResult{Total: len(batch)}

	for _, item := range batch {
		name := item.Producer.Name()
		if err := s.loadOne(ctx, item); err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			s.logger.Warn("skipping source after failed load",
				zap.String("source", name),
				zap.String("table", item.Table),
				zap.Error(err))
			result.Failed = append(result.Failed, name)
			continue
		}
		result.Processed++
	}

	if result.Processed > 0 {
		if err := s.storeView.CreateView(ctx, s.sourceTables); err != nil {
			return result, fmt.Errorf("failed to refresh definition store view: %w", err)
		}
	}

	s.logger.Info("batch load finished", zap.String("result", result.String()))
	return result, nil
}

func (s *IngestService) loadOne(ctx context.Context, item SourceBatch) error {
	rows, err := item.Producer.Rows(ctx)
	if err != nil {
		return fmt.Errorf("failed to produce rows: %w", err)
	}
	if len(rows) == 0 {
		s.logger.Info("source produced no rows", zap.String("source", item.Producer.Name()))
		return nil
	}

	if err := s.definitions.Load(ctx, rows, item.Table); err != nil {
		return err
	}
	s.logger.Info("merged source rows",
		zap.String("source", item.Producer.Name()),
		zap.String("table", item.Table),
		zap.Int("produced", len(rows)))
	return nil
}
