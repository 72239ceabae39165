package main

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/londonaicentre/PhenoLab-sub001/internal/config"
	"github.com/londonaicentre/PhenoLab-sub001/internal/database"
	"github.com/londonaicentre/PhenoLab-sub001/internal/logger"
	"github.com/londonaicentre/PhenoLab-sub001/internal/repository"
	"github.com/londonaicentre/PhenoLab-sub001/internal/warehouse"
)

func main() {
	cfg := config.Load()

	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "update-store-view")
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

	storeView := repository.NewPostgresStoreViewRepository(
		warehouse.NewPostgresClient(db),
		cfg.Library.Schema, cfg.Library.ViewName,
		cfg.Library.ConceptTable, cfg.Library.ConceptMapTable, log)

	if err := storeView.CreateView(context.Background(), cfg.Library.SourceTables); err != nil {
		log.Fatal("failed to recreate store view", zap.Error(err))
	}
	fmt.Printf("view %s.%s recreated over %d source tables\n",
		cfg.Library.Schema, cfg.Library.ViewName, len(cfg.Library.SourceTables))
}
