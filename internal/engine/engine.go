// Package engine wires storage, the schema registry, validation and the
// query compiler into the operations exposed to callers: schema
// registration, record validation, filter compilation, search planning and
// search execution.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aidanlsb/moltrack/internal/audit"
	"github.com/aidanlsb/moltrack/internal/chem"
	"github.com/aidanlsb/moltrack/internal/config"
	"github.com/aidanlsb/moltrack/internal/errs"
	"github.com/aidanlsb/moltrack/internal/metrics"
	"github.com/aidanlsb/moltrack/internal/query"
	"github.com/aidanlsb/moltrack/internal/registry"
	"github.com/aidanlsb/moltrack/internal/schema"
	"github.com/aidanlsb/moltrack/internal/sqlutil"
	"github.com/aidanlsb/moltrack/internal/store"
	"github.com/aidanlsb/moltrack/internal/validation"
)

// Engine is the entry point used by the CLI.
type Engine struct {
	cfg        *config.Config
	db         *store.DB
	registry   *registry.Registry
	validation *validation.Engine
	metrics    *metrics.Metrics
	logger     *slog.Logger
	chem       chem.Engine
	compile    query.Options
	policy     validation.Policy
	audit      *audit.Logger

	registerer prometheus.Registerer
	ownsDB     bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger overrides the logger built from the log config.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithChemistry overrides the engine built from the chemistry config.
func WithChemistry(c chem.Engine) Option {
	return func(e *Engine) { e.chem = c }
}

// WithRegisterer registers metrics with reg instead of the default
// Prometheus registerer. Metrics are only created when enabled in config.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(e *Engine) { e.registerer = reg }
}

// Open opens the configured database and builds an engine over it.
func Open(ctx context.Context, cfg *config.Config, opts ...Option) (*Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	e, err := build(cfg, opts)
	if err != nil {
		return nil, err
	}

	dsn := cfg.Database.DSN
	if isSQLiteFile(cfg.Database.Driver, dsn) {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	if cfg.Audit.Enabled && cfg.Audit.Path == "" && isSQLiteFile(cfg.Database.Driver, dsn) {
		e.audit = audit.New(filepath.Join(filepath.Dir(dsn), "audit.log"))
	}
	db, err := store.Open(ctx, cfg.Database.Driver, dsn, store.WithLogger(e.logger))
	if err != nil {
		return nil, err
	}
	e.ownsDB = true
	if err := e.attach(db); err != nil {
		db.Close()
		return nil, err
	}
	return e, nil
}

// New builds an engine over an already open database. The caller keeps
// ownership of db.
func New(db *store.DB, cfg *config.Config, opts ...Option) (*Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	e, err := build(cfg, opts)
	if err != nil {
		return nil, err
	}
	if err := e.attach(db); err != nil {
		return nil, err
	}
	return e, nil
}

func build(cfg *config.Config, opts []Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errs.Wrap(errs.InvalidDefinition, err, err.Error())
	}
	e := &Engine{cfg: cfg, registerer: prometheus.DefaultRegisterer}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = cfg.Log.NewLogger(os.Stderr)
	}

	// Validate has already accepted these spellings.
	sens, _ := chem.ParseSensitivity(cfg.Chemistry.Sensitivity)
	metric, _ := chem.ParseMetric(cfg.Chemistry.SimilarityMetric)
	e.policy, _ = validation.ParsePolicy(cfg.Validation.ErrorHandling)
	e.compile = query.Options{
		Sensitivity:           sens,
		Metric:                metric,
		DefaultThreshold:      cfg.Chemistry.DefaultThreshold,
		AllowDefaultThreshold: cfg.Chemistry.AllowDefaultThreshold,
	}

	if e.chem == nil && cfg.Chemistry.Endpoint != "" {
		timeout, _ := cfg.Chemistry.TimeoutDuration()
		e.chem = chem.NewClient(cfg.Chemistry.Endpoint, metric, timeout)
	}

	e.audit = audit.New("")
	if cfg.Audit.Enabled {
		e.audit = audit.New(cfg.Audit.Path)
	}

	if cfg.Metrics.Enabled {
		m, err := metrics.New(e.registerer, cfg.Metrics.Namespace)
		if err != nil {
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
		e.metrics = m
	}
	return e, nil
}

func (e *Engine) attach(db *store.DB) error {
	e.db = db
	if e.chem != nil && db.Dialect() == sqlutil.SQLite {
		store.SetChemistry(e.chem)
	}
	e.registry = registry.New(db, registry.WithLogger(e.logger), registry.WithMetrics(e.metrics))
	v, err := validation.New(e.registry, e.cfg.Validation.CacheSize,
		validation.WithLogger(e.logger), validation.WithMetrics(e.metrics))
	if err != nil {
		return err
	}
	e.validation = v
	return nil
}

func isSQLiteFile(driver, dsn string) bool {
	if driver != "" && driver != "sqlite" && driver != "sqlite3" {
		return false
	}
	return dsn != "" && dsn != ":memory:" && filepath.Dir(dsn) != "."
}

// Close releases the database if the engine opened it.
func (e *Engine) Close() error {
	if e.ownsDB {
		return e.db.Close()
	}
	return nil
}

// Registry exposes the schema registry for definition management.
func (e *Engine) Registry() *registry.Registry {
	return e.registry
}

// Store exposes the storage backend.
func (e *Engine) Store() *store.DB {
	return e.db
}

// Policy is the configured batch validation policy.
func (e *Engine) Policy() validation.Policy {
	return e.policy
}

// RegisterSchema registers definitions item by item.
func (e *Engine) RegisterSchema(ctx context.Context, defs *schema.Definitions) []registry.Outcome {
	outcomes := e.registry.Register(ctx, defs)
	for _, o := range outcomes {
		e.record(audit.OpRegister, o)
	}
	return outcomes
}

// RegisterValidator registers one record-level validator.
func (e *Engine) RegisterValidator(ctx context.Context, v schema.Validator) registry.Outcome {
	o := e.registry.RegisterValidator(ctx, v)
	e.record(audit.OpRegister, o)
	return o
}

// UpdateDefinition replaces the property or synonym type with the given id.
func (e *Engine) UpdateDefinition(ctx context.Context, id string, desired schema.Entry) registry.Outcome {
	o := e.registry.Update(ctx, id, desired)
	e.record(audit.OpUpdate, o)
	return o
}

// SetValidatorActive enables or disables a validator by name.
func (e *Engine) SetValidatorActive(ctx context.Context, name string, active bool) error {
	toggle, op := e.registry.DisableValidator, audit.OpDisable
	if active {
		toggle, op = e.registry.EnableValidator, audit.OpEnable
	}
	err := toggle(ctx, name)
	o := registry.Outcome{Kind: "validator", Name: name, Status: registry.Success}
	if err != nil {
		o.Status, o.Message = registry.Failed, err.Error()
	}
	e.record(op, o)
	return err
}

// History returns recorded schema changes.
func (e *Engine) History(filter audit.Filter) ([]audit.Entry, error) {
	return e.audit.Read(filter)
}

// AuditPath is the schema history file, empty when history is off.
func (e *Engine) AuditPath() string {
	return e.audit.Path()
}

// record appends changes to the schema history. Skipped items changed
// nothing and are left out.
func (e *Engine) record(op string, o registry.Outcome) {
	if o.Status == registry.Skipped {
		return
	}
	err := e.audit.Log(audit.Entry{
		Operation:  op,
		Kind:       o.Kind,
		Name:       o.Name,
		EntityType: string(o.EntityType),
		ID:         o.ID,
		Status:     string(o.Status),
		Message:    o.Message,
	})
	if err != nil {
		e.logger.Warn("failed to record schema change", "name", o.Name, "error", err)
	}
}

// Schema returns the registered definitions of et.
func (e *Engine) Schema(ctx context.Context, et schema.EntityType) (*schema.Schema, error) {
	return e.registry.Get(ctx, et)
}

// Validate checks one record.
func (e *Engine) Validate(ctx context.Context, et schema.EntityType, record map[string]any) (*validation.Result, error) {
	return e.validation.Validate(ctx, et, record)
}

// ValidateRows checks a batch. An empty policy uses the configured one.
func (e *Engine) ValidateRows(ctx context.Context, et schema.EntityType, rows []map[string]any, policy validation.Policy) (*validation.BatchResult, error) {
	if policy == "" {
		policy = e.policy
	}
	return e.validation.ValidateRows(ctx, et, rows, policy)
}

// ValidateSynonym checks a synonym value against its pattern.
func (e *Engine) ValidateSynonym(ctx context.Context, et schema.EntityType, name, value string) (*validation.Result, error) {
	return e.validation.ValidateSynonym(ctx, et, name, value)
}

func (e *Engine) compiler(ctx context.Context) *query.Compiler {
	return query.NewCompiler(e.registry.Catalog(ctx), e.compile)
}

// CompileFilter compiles a filter tree anchored at et.
func (e *Engine) CompileFilter(ctx context.Context, root *query.FilterNode, et schema.EntityType) (*query.CompiledPredicate, error) {
	start := time.Now()
	cp, err := e.compiler(ctx).Compile(root, et)
	e.metrics.Compile("filter", start, errorCode(err))
	return cp, err
}

// PlanSearch plans a search request.
func (e *Engine) PlanSearch(ctx context.Context, req query.SearchRequest) (*query.QueryPlan, error) {
	start := time.Now()
	plan, err := e.compiler(ctx).PlanRequest(req)
	e.metrics.Compile("plan", start, errorCode(err))
	return plan, err
}

// Search plans and executes a search request.
func (e *Engine) Search(ctx context.Context, req query.SearchRequest) (*store.Result, error) {
	plan, err := e.PlanSearch(ctx, req)
	if err != nil {
		return nil, err
	}
	res, err := e.db.Execute(ctx, plan)
	if err != nil {
		return nil, err
	}
	e.metrics.SearchRows(len(res.Rows))
	e.logger.Debug("search complete", "entity_type", plan.EntityType, "rows", len(res.Rows))
	return res, nil
}

func errorCode(err error) string {
	if err == nil {
		return ""
	}
	return errs.KindOf(err).Code()
}
