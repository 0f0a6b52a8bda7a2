package app

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"ftmgraph/internal/config"
	"ftmgraph/internal/domain"
	"ftmgraph/internal/etl"
	_ "ftmgraph/internal/etl/sources"
	"ftmgraph/internal/logger"
	"ftmgraph/internal/neo4jdb"
	"ftmgraph/internal/secret"
	"ftmgraph/internal/service"
	"ftmgraph/internal/storage"
)

// App wires configuration, storage, the export engine and the services
// built on them. Commands that only export build an Engine without it.
type App struct {
	Config  *config.Config
	Log     *logger.Logger
	Engine  *etl.Engine
	Exports *service.ExportService

	db    *storage.DB
	graph *graphLoader
}

// Open opens the job database and builds the export service.
func Open(cfg *config.Config, log *logger.Logger) (*App, error) {
	engine, err := NewEngine(cfg, log)
	if err != nil {
		return nil, err
	}

	db, err := storage.New(cfg.DBPath())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	a := &App{Config: cfg, Log: log, Engine: engine, db: db}

	var loader service.ScriptRunner
	if cfg.Neo4j.URI != "" {
		a.graph = newGraphLoader(cfg.Neo4j, log)
		loader = a.graph
	}

	defaults := cfg.Export
	defaults.OutputDir = filepath.Join(cfg.DataDir, "exports")
	a.Exports = service.NewExportService(
		storage.NewJobStore(db),
		engine,
		loader,
		nil,
		log,
		service.Options{RunTimeout: cfg.RunTimeout, Defaults: defaults, Secrets: secret.Default()},
	)
	return a, nil
}

// Close stops the watchers, waits briefly for running jobs and releases
// the database and the Neo4j driver.
func (a *App) Close() {
	a.Exports.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	a.Exports.WaitRunning(ctx)

	if a.graph != nil {
		if err := a.graph.Close(ctx); err != nil {
			a.Log.Warn("close neo4j", "error", err)
		}
	}
	if err := a.db.Close(); err != nil {
		a.Log.Warn("close database", "error", err)
	}
}

// NewEngine builds an export engine with the configured model.
func NewEngine(cfg *config.Config, log *logger.Logger) (*etl.Engine, error) {
	model, err := loadModel(cfg.Model)
	if err != nil {
		return nil, err
	}
	return &etl.Engine{
		Model:         model,
		Log:           log,
		DiskKeys:      storage.Opener,
		ProgressEvery: cfg.ProgressEvery,
	}, nil
}

func loadModel(path string) (*domain.Model, error) {
	if path == "" {
		return domain.DefaultModel()
	}
	m, err := domain.LoadModel(path)
	if err != nil {
		return nil, fmt.Errorf("load model %s: %w", path, err)
	}
	return m, nil
}

// ── Neo4j ──────────────────────────────────────────────────

// graphLoader connects to Neo4j on first use, so commands that never
// load do not need a reachable server.
type graphLoader struct {
	cfg neo4jdb.Config
	log *logger.Logger

	mu     sync.Mutex
	client *neo4jdb.Client
}

func newGraphLoader(cfg neo4jdb.Config, log *logger.Logger) *graphLoader {
	return &graphLoader{cfg: cfg, log: log}
}

func (g *graphLoader) connect() (*neo4jdb.Client, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.client != nil {
		return g.client, nil
	}
	c, err := neo4jdb.New(g.cfg, g.log)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, service.ErrNeo4jNotConfigured
	}
	g.client = c
	return c, nil
}

func (g *graphLoader) RunScript(ctx context.Context, stmts []string) (*neo4jdb.LoadStats, error) {
	c, err := g.connect()
	if err != nil {
		return nil, err
	}
	return c.RunScript(ctx, stmts)
}

func (g *graphLoader) Close(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.client == nil {
		return nil
	}
	err := g.client.Close(ctx)
	g.client = nil
	return err
}
