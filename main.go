package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // database/sql driver for migrations
	"go.uber.org/zap"

	"github.com/popfly/queryweaver/migrations"
	"github.com/popfly/queryweaver/pkg/audit"
	"github.com/popfly/queryweaver/pkg/config"
	"github.com/popfly/queryweaver/pkg/database"
	"github.com/popfly/queryweaver/pkg/generator"
	"github.com/popfly/queryweaver/pkg/handlers"
	"github.com/popfly/queryweaver/pkg/llm"
	"github.com/popfly/queryweaver/pkg/logging"
	"github.com/popfly/queryweaver/pkg/mcp"
	"github.com/popfly/queryweaver/pkg/mcp/tools"
	"github.com/popfly/queryweaver/pkg/middleware"
	"github.com/popfly/queryweaver/pkg/narrative"
	"github.com/popfly/queryweaver/pkg/registry"
	"github.com/popfly/queryweaver/pkg/repositories"
	"github.com/popfly/queryweaver/pkg/warehouse"
)

// Version is set at build time via ldflags.
var Version = "dev"

func main() {
	ingestPath := flag.String("ingest", "", "ingest a narrative document and exit")
	dryRun := flag.Bool("dry-run", false, "with -ingest: parse and report, write nothing")
	flag.Parse()

	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()

	db, err := database.NewConnection(ctx, &database.Config{
		URL:            cfg.Database.ConnectionString(),
		MaxConnections: cfg.Database.MaxConnections,
	})
	if err != nil {
		logger.Fatal("Failed to connect to metadata store", zap.Error(err))
	}
	defer db.Close()

	if err := migrateMetadataStore(cfg, logger); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}

	executor := newWarehouseExecutor(ctx, cfg, db, logger)

	columnRepo := repositories.NewColumnMetadataRepository(db)
	contextRepo := repositories.NewBusinessContextRepository(db)
	templateRepo := repositories.NewPromptTemplateRepository(db)
	constraintRepo := repositories.NewConstraintRepository(db)
	toolRepo := repositories.NewToolRepository(db)
	auditRepo := repositories.NewAuditRepository(db)

	if *ingestPath != "" {
		runIngest(ctx, *ingestPath, *dryRun, columnRepo, contextRepo, templateRepo, executor, logger)
		return
	}

	llmClient, err := llm.NewClient(&llm.Config{
		Endpoint: cfg.Completion.Endpoint,
		Model:    cfg.Completion.Model,
		APIKey:   cfg.Completion.APIKey,
		Timeout:  cfg.Completion.Timeout(),
	}, logger)
	if err != nil {
		logger.Fatal("Failed to create completion client", zap.Error(err))
	}

	gen := generator.New(constraintRepo, columnRepo, contextRepo, templateRepo, llmClient,
		generator.Defaults{
			Temperature: cfg.Completion.Temperature,
			MaxTokens:   cfg.Completion.MaxTokens,
		}, logger)

	catalog := tools.Catalog(&tools.Deps{
		Version:     cfg.Version,
		Constraints: constraintRepo,
		Generator:   gen,
		Executor:    executor,
		Logger:      logger,
	})

	reg := registry.New(toolRepo, catalog, logger)
	if err := reg.Load(ctx); err != nil {
		// No guessing at the tool surface: an unreadable registry means no service.
		logger.Fatal("Failed to load tool registry", zap.Error(err))
	}

	hooks := mcp.NewAuditHooks(audit.NewLogger(auditRepo, logger))

	mcpServer, err := mcp.NewServer("queryweaver", cfg.Version, reg, hooks, logger)
	if err != nil {
		logger.Fatal("Failed to build MCP surface", zap.Error(err))
	}

	mux := http.NewServeMux()
	handlers.NewHealthHandler(cfg, logger).RegisterRoutes(mux)
	mux.Handle("/mcp/", mcpServer.Handler())
	mux.Handle("/mcp", mcpServer.Handler())

	handler := middleware.RequestLogger(logger)(mux)

	addr := cfg.BindAddr + ":" + cfg.Port
	logger.Info("Starting queryweaver",
		zap.String("addr", addr),
		zap.String("version", cfg.Version),
		zap.String("env", cfg.Env))

	if err := http.ListenAndServe(addr, handler); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
}

// migrateMetadataStore runs the embedded migrations over a short-lived
// database/sql connection; the pgx pool stays dedicated to serving queries.
func migrateMetadataStore(cfg *config.Config, logger *zap.Logger) error {
	sqlDB, err := sql.Open("pgx", cfg.Database.ConnectionString())
	if err != nil {
		return fmt.Errorf("failed to open migration connection: %w", err)
	}
	defer func() { _ = sqlDB.Close() }()

	return database.RunMigrations(sqlDB, migrations.FS, logger)
}

// newWarehouseExecutor connects the warehouse pool. Without WAREHOUSE_URL the
// metadata store doubles as the warehouse, which is only sensible for local
// development and is logged as such.
func newWarehouseExecutor(ctx context.Context, cfg *config.Config, db *database.DB, logger *zap.Logger) warehouse.Executor {
	if cfg.Warehouse.URL == "" {
		logger.Warn("WAREHOUSE_URL not set; using the metadata store as the warehouse")
		return warehouse.NewPgExecutor(db.Pool, cfg.Warehouse.QueryTimeout(), logger)
	}

	pool, err := pgxpool.New(ctx, cfg.Warehouse.URL)
	if err != nil {
		logger.Fatal("Failed to connect to warehouse", zap.Error(err))
	}
	return warehouse.NewPgExecutor(pool, cfg.Warehouse.QueryTimeout(), logger)
}

func runIngest(
	ctx context.Context,
	path string,
	dryRun bool,
	columnRepo repositories.ColumnMetadataRepository,
	contextRepo repositories.BusinessContextRepository,
	templateRepo repositories.PromptTemplateRepository,
	executor warehouse.Executor,
	logger *zap.Logger,
) {
	text, err := os.ReadFile(path)
	if err != nil {
		logger.Fatal("Failed to read narrative file", zap.String("path", path), zap.Error(err))
	}

	ingestor := narrative.NewIngestor(columnRepo, contextRepo, templateRepo, executor, logger)

	result, err := ingestor.Ingest(ctx, string(text), dryRun)
	if err != nil {
		logger.Fatal("Ingestion failed", zap.String("path", path), zap.Error(err))
	}

	for _, warning := range result.Warnings {
		fmt.Fprintf(os.Stderr, "warning: %s\n", warning)
	}

	mode := "ingested"
	if result.DryRun {
		mode = "dry run:"
	}
	fmt.Printf("%s %s (domains: %v, columns: %d, template stored: %v)\n",
		mode, result.TargetName, result.Domains, result.ColumnsUpserted, result.TemplateStored)
}
