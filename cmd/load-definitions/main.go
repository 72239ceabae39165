package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/londonaicentre/PhenoLab-sub001/internal/config"
	"github.com/londonaicentre/PhenoLab-sub001/internal/database"
	"github.com/londonaicentre/PhenoLab-sub001/internal/logger"
	"github.com/londonaicentre/PhenoLab-sub001/internal/repository"
	"github.com/londonaicentre/PhenoLab-sub001/internal/rowsource"
	"github.com/londonaicentre/PhenoLab-sub001/internal/service"
	"github.com/londonaicentre/PhenoLab-sub001/internal/store"
	"github.com/londonaicentre/PhenoLab-sub001/internal/warehouse"
)

// tableFile is a repeatable "table=path" flag value.
type tableFile struct {
	Table string
	Path  string
}

type tableFiles []tableFile

func (f *tableFiles) String() string {
	parts := make([]string, 0, len(*f))
	for _, tf := range *f {
		parts = append(parts, tf.Table+"="+tf.Path)
	}
	return strings.Join(parts, ",")
}

func (f *tableFiles) Set(value string) error {
	table, path, ok := strings.Cut(value, "=")
	if !ok || table == "" || path == "" {
		return fmt.Errorf("expected table=path, got %q", value)
	}
	*f = append(*f, tableFile{Table: table, Path: path})
	return nil
}

func main() {
	var (
		csvSources   tableFiles
		excelSources tableFiles
	)
	jsonTable := flag.String("json-table", "aic_definitions", "target table for the definition JSON directory")
	jsonDir := flag.String("json-dir", "", "directory of definition JSON files (default: DEFINITIONS_DIR)")
	skipJSON := flag.Bool("skip-json", false, "do not load the definition JSON directory")
	flag.Var(&csvSources, "csv", "CSV source as table=path (repeatable)")
	flag.Var(&excelSources, "excel", "Excel source as table=path (repeatable, first sheet)")
	flag.Parse()

	cfg := config.Load()

	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "load-definitions")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		log.Fatal("failed to connect to warehouse", zap.Error(err))
	}
	defer database.Close(db)

	wh := warehouse.NewPostgresClient(db)
	definitions := repository.NewPostgresDefinitionsRepository(wh, cfg.Library.Schema, log)

	var storeView repository.StoreViewRepository = repository.NewPostgresStoreViewRepository(
		wh, cfg.Library.Schema, cfg.Library.ViewName,
		cfg.Library.ConceptTable, cfg.Library.ConceptMapTable, log)

	if cfg.Redis.Enabled {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		storeView = store.NewCachedStoreView(storeView, store.NewRedisKV(redisClient), cfg.Redis.TTL, log)
	}

	var batch []service.SourceBatch
	if !*skipJSON {
		dir := *jsonDir
		if dir == "" {
			dir = cfg.Library.DefinitionsDir
		}
		batch = append(batch, service.SourceBatch{
			Producer: rowsource.NewJSONDirProducer("definitions-json", dir),
			Table:    *jsonTable,
		})
	}
	for _, src := range csvSources {
		batch = append(batch, service.SourceBatch{
			Producer: rowsource.NewCSVProducer(src.Table+"-csv", src.Path),
			Table:    src.Table,
		})
	}
	for _, src := range excelSources {
		batch = append(batch, service.SourceBatch{
			Producer: rowsource.NewExcelProducer(src.Table+"-excel", src.Path, ""),
			Table:    src.Table,
		})
	}
	if len(batch) == 0 {
		log.Fatal("nothing to load: all sources skipped")
	}

	ingest := service.NewIngestService(definitions, storeView, cfg.Library.SourceTables, log)
	result, err := ingest.LoadAll(context.Background(), batch)
	fmt.Println(result.String())
	if err != nil {
		log.Fatal("batch load failed", zap.Error(err))
	}
	if len(result.Failed) > 0 {
		os.Exit(1)
	}
}
