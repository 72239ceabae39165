package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/londonaicentre/PhenoLab-sub001/internal/config"
	"github.com/londonaicentre/PhenoLab-sub001/internal/database"
	"github.com/londonaicentre/PhenoLab-sub001/internal/domain"
	"github.com/londonaicentre/PhenoLab-sub001/internal/logger"
	"github.com/londonaicentre/PhenoLab-sub001/internal/repository"
	"github.com/londonaicentre/PhenoLab-sub001/internal/warehouse"
)

func main() {
	action := flag.String("action", "", "one of: init, add, update, refresh, rollback, delete, list, versions")
	name := flag.String("name", "", "feature name (add)")
	description := flag.String("description", "", "feature/change description (add, update)")
	format := flag.String("format", "binary", "feature format: binary, categorical, continuous, one_hot, count (add)")
	query := flag.String("query", "", "defining SQL query (add, update)")
	queryFile := flag.String("query-file", "", "read the defining SQL query from a file (add, update)")
	existenceOK := flag.Bool("existence-ok", false, "adopt an existing table instead of failing (add)")
	id := flag.Int64("id", 0, "feature id (update, refresh, rollback, delete, versions)")
	toVersion := flag.Int("to-version", 0, "version to roll back to (rollback)")
	flag.Parse()

	cfg := config.Load()

	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "feature-store")
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

	features := repository.NewPostgresFeatureStoreRepository(
		warehouse.NewPostgresClient(db), cfg.FeatureStore.Schema, log)
	ctx := context.Background()

	if err := run(ctx, features, *action, runArgs{
		name:        *name,
		description: *description,
		format:      *format,
		query:       *query,
		queryFile:   *queryFile,
		existenceOK: *existenceOK,
		id:          *id,
		toVersion:   *toVersion,
	}); err != nil {
		log.Fatal("feature store action failed", zap.String("action", *action), zap.Error(err))
	}
}

type runArgs struct {
	name        string
	description string
	format      string
	query       string
	queryFile   string
	existenceOK bool
	id          int64
	toVersion   int
}

func run(ctx context.Context, features repository.FeatureStoreRepository, action string, args runArgs) error {
	switch action {
	case "init":
		if err := features.CreateRegistry(ctx); err != nil {
			return err
		}
		fmt.Println("feature registry created")
		return nil

	case "add":
		if args.name == "" {
			return fmt.Errorf("-name is required")
		}
		query, err := resolveQuery(args)
		if err != nil {
			return err
		}
		featureFormat, err := domain.ParseFormat(args.format)
		if err != nil {
			return err
		}
		id, version, err := features.AddFeature(ctx, args.name, args.description, featureFormat, query, args.existenceOK)
		if err != nil {
			return err
		}
		fmt.Printf("feature %d registered at version %d\n", id, version)
		return nil

	case "update":
		if args.id == 0 {
			return fmt.Errorf("-id is required")
		}
		query, err := resolveQuery(args)
		if err != nil {
			return err
		}
		version, err := features.UpdateFeature(ctx, args.id, query, args.description)
		if err != nil {
			return err
		}
		fmt.Printf("feature %d now at version %d\n", args.id, version)
		return nil

	case "refresh":
		if args.id == 0 {
			return fmt.Errorf("-id is required")
		}
		if err := features.RefreshFeature(ctx, args.id); err != nil {
			return err
		}
		fmt.Printf("feature %d refreshed\n", args.id)
		return nil

	case "rollback":
		if args.id == 0 || args.toVersion == 0 {
			return fmt.Errorf("-id and -to-version are required")
		}
		version, err := features.RollbackFeature(ctx, args.id, args.toVersion)
		if err != nil {
			return err
		}
		fmt.Printf("feature %d rolled back to version %d content, recorded as version %d\n",
			args.id, args.toVersion, version)
		return nil

	case "delete":
		if args.id == 0 {
			return fmt.Errorf("-id is required")
		}
		if err := features.DeleteFeature(ctx, args.id); err != nil {
			return err
		}
		fmt.Printf("feature %d deleted (version history retained)\n", args.id)
		return nil

	case "list":
		list, err := features.ListFeatures(ctx)
		if err != nil {
			return err
		}
		for _, f := range list {
			fmt.Printf("%d\t%s\t%s\t%s\n", f.FeatureID, f.Name, f.TableName, f.Format)
		}
		fmt.Printf("%d features\n", len(list))
		return nil

	case "versions":
		if args.id == 0 {
			return fmt.Errorf("-id is required")
		}
		versions, err := features.ListFeatureVersions(ctx, args.id)
		if err != nil {
			return err
		}
		for _, v := range versions {
			fmt.Printf("v%d\t%s\t%s\n", v.Version, v.RegisteredAt.Format("2006-01-02 15:04:05"), v.ChangeDescription)
		}
		return nil

	default:
		return fmt.Errorf("unknown action %q", action)
	}
}

func resolveQuery(args runArgs) (string, error) {
	if args.queryFile != "" {
		raw, err := os.ReadFile(args.queryFile)
		if err != nil {
			return "", fmt.Errorf("failed to read query file: %w", err)
		}
		return string(raw), nil
	}
	if args.query == "" {
		return "", fmt.Errorf("-query or -query-file is required")
	}
	return args.query, nil
}
