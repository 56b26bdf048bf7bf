package telemetry

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Attribute keys for database metrics.
var (
	attrDBOperation = attribute.Key("operation")
	attrDBTable     = attribute.Key("table")
	attrDBState     = attribute.Key("state")
)

// dbDurationBuckets are bucket boundaries for query latency (seconds). The
// workload is single-row lookups and CAS updates on the sequences and
// documents tables, so the buckets skew small.
var dbDurationBuckets = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5}

// DBMetricsConfig holds configuration for database metrics collection.
type DBMetricsConfig struct {
	// SlowQueryThreshold marks queries as slow above this duration.
	SlowQueryThreshold time.Duration
	// PoolStatsInterval is how often connection pool stats are sampled.
	PoolStatsInterval time.Duration
}

// DefaultDBMetricsConfig returns the default database metrics configuration.
func DefaultDBMetricsConfig() DBMetricsConfig {
	return DBMetricsConfig{
		SlowQueryThreshold: 200 * time.Millisecond,
		PoolStatsInterval:  15 * time.Second,
	}
}

// DBMetrics records query latency and connection pool utilization. Query
// timing comes from the GORM plugin below; pool stats from a sampling
// goroutine started with StartPoolStatsCollection.
type DBMetrics struct {
	queryDuration   *Histogram // db_query_duration_seconds by operation
	slowQueries     *Counter   // db_slow_query_total by table
	poolConnections *Gauge     // db_pool_connections by state
	poolMax         *Gauge     // db_pool_connections_max

	config DBMetricsConfig
	logger *zap.Logger

	mu       sync.RWMutex
	sqlDB    *sql.DB
	stopCh   chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewDBMetrics creates the database metric instruments on the given meter.
func NewDBMetrics(meter metric.Meter, cfg DBMetricsConfig, logger *zap.Logger) (*DBMetrics, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SlowQueryThreshold == 0 {
		cfg.SlowQueryThreshold = 200 * time.Millisecond
	}
	if cfg.PoolStatsInterval == 0 {
		cfg.PoolStatsInterval = 15 * time.Second
	}

	queryDuration, err := NewHistogram(meter, HistogramOpts{
		Name:        "db_query_duration_seconds",
		Description: "Database query latency distribution in seconds",
		Unit:        "s",
		Boundaries:  dbDurationBuckets,
	})
	if err != nil {
		return nil, err
	}

	slowQueries, err := NewCounter(
		meter,
		"db_slow_query_total",
		"Total number of queries exceeding the slow query threshold",
		"{query}",
	)
	if err != nil {
		return nil, err
	}

	poolConnections, err := NewGauge(
		meter,
		"db_pool_connections",
		"Open database connections by state",
		"{connection}",
	)
	if err != nil {
		return nil, err
	}

	poolMax, err := NewGauge(
		meter,
		"db_pool_connections_max",
		"Configured connection pool ceiling",
		"{connection}",
	)
	if err != nil {
		return nil, err
	}

	return &DBMetrics{
		queryDuration:   queryDuration,
		slowQueries:     slowQueries,
		poolConnections: poolConnections,
		poolMax:         poolMax,
		config:          cfg,
		logger:          logger,
		stopCh:          make(chan struct{}),
	}, nil
}

// SetSQLDB sets the sql.DB sampled for pool stats. Must be called before
// StartPoolStatsCollection.
func (m *DBMetrics) SetSQLDB(sqlDB *sql.DB) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sqlDB = sqlDB
}

// StartPoolStatsCollection starts the pool stats sampling goroutine. Call
// Stop to terminate it.
func (m *DBMetrics) StartPoolStatsCollection(ctx context.Context) {
	m.mu.RLock()
	sqlDB := m.sqlDB
	m.mu.RUnlock()

	if sqlDB == nil {
		m.logger.Warn("Cannot start pool stats collection: sqlDB not set")
		return
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		ticker := time.NewTicker(m.config.PoolStatsInterval)
		defer ticker.Stop()

		m.collectPoolStats(ctx)
		for {
			select {
			case <-ticker.C:
				m.collectPoolStats(ctx)
			case <-m.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	m.logger.Info("Started connection pool stats collection",
		zap.Duration("interval", m.config.PoolStatsInterval),
	)
}

func (m *DBMetrics) collectPoolStats(ctx context.Context) {
	m.mu.RLock()
	sqlDB := m.sqlDB
	m.mu.RUnlock()

	if sqlDB == nil {
		return
	}

	stats := sqlDB.Stats()
	m.poolMax.Record(ctx, int64(stats.MaxOpenConnections))
	m.poolConnections.Record(ctx, int64(stats.Idle), attrDBState.String("idle"))
	m.poolConnections.Record(ctx, int64(stats.InUse), attrDBState.String("in_use"))
}

// Stop terminates the pool stats goroutine. Safe to call more than once.
func (m *DBMetrics) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
		m.wg.Wait()
	})
}

// RecordQuery records latency for one query and counts it as slow when it
// exceeds the configured threshold.
func (m *DBMetrics) RecordQuery(ctx context.Context, operation, table string, duration time.Duration) {
	operation = strings.ToUpper(operation)
	if operation == "" {
		operation = "OTHER"
	}

	m.queryDuration.RecordDuration(ctx, duration, attrDBOperation.String(operation))

	if duration > m.config.SlowQueryThreshold {
		if table == "" {
			table = "unknown"
		}
		m.slowQueries.Inc(ctx, attrDBTable.String(table))
		m.logger.Warn("slow query",
			zap.String("operation", operation),
			zap.String("table", table),
			zap.Duration("duration", duration),
		)
	}
}

// DBMetricsPlugin hooks query timing into every GORM operation.
type DBMetricsPlugin struct {
	metrics *DBMetrics
	logger  *zap.Logger
}

// NewDBMetricsPlugin creates the GORM plugin for database metrics.
func NewDBMetricsPlugin(metrics *DBMetrics, logger *zap.Logger) *DBMetricsPlugin {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DBMetricsPlugin{metrics: metrics, logger: logger}
}

// Name returns the plugin name.
func (p *DBMetricsPlugin) Name() string {
	return "db_metrics"
}

type dbMetricsCtxKey struct{}

// Initialize registers start and finish callbacks around each operation
// type. Row and Raw statements derive the operation from the SQL text.
func (p *DBMetricsPlugin) Initialize(db *gorm.DB) error {
	start := func(db *gorm.DB) {
		ctx := db.Statement.Context
		if ctx == nil {
			ctx = context.Background()
		}
		db.Statement.Context = context.WithValue(ctx, dbMetricsCtxKey{}, time.Now())
	}
	done := func(operation string) func(*gorm.DB) {
		return func(db *gorm.DB) {
			p.record(db, operation)
		}
	}
	fromSQL := func(db *gorm.DB) {
		p.record(db, operationFromSQL(db.Statement.SQL.String()))
	}

	cb := db.Callback()
	return errors.Join(
		cb.Create().Before("gorm:create").Register("db_metrics:start_create", start),
		cb.Create().After("gorm:create").Register("db_metrics:done_create", done("INSERT")),
		cb.Query().Before("gorm:query").Register("db_metrics:start_query", start),
		cb.Query().After("gorm:query").Register("db_metrics:done_query", done("SELECT")),
		cb.Update().Before("gorm:update").Register("db_metrics:start_update", start),
		cb.Update().After("gorm:update").Register("db_metrics:done_update", done("UPDATE")),
		cb.Delete().Before("gorm:delete").Register("db_metrics:start_delete", start),
		cb.Delete().After("gorm:delete").Register("db_metrics:done_delete", done("DELETE")),
		cb.Row().Before("gorm:row").Register("db_metrics:start_row", start),
		cb.Row().After("gorm:row").Register("db_metrics:done_row", fromSQL),
		cb.Raw().Before("gorm:raw").Register("db_metrics:start_raw", start),
		cb.Raw().After("gorm:raw").Register("db_metrics:done_raw", fromSQL),
	)
}

func (p *DBMetricsPlugin) record(db *gorm.DB, operation string) {
	ctx := db.Statement.Context
	if ctx == nil {
		ctx = context.Background()
	}

	var duration time.Duration
	if started, ok := ctx.Value(dbMetricsCtxKey{}).(time.Time); ok {
		duration = time.Since(started)
	}

	p.metrics.RecordQuery(ctx, operation, db.Statement.Table, duration)
}

// operationFromSQL classifies a raw SQL statement by its leading keyword.
func operationFromSQL(sql string) string {
	sql = strings.TrimSpace(strings.ToUpper(sql))
	switch {
	case strings.HasPrefix(sql, "SELECT"):
		return "SELECT"
	case strings.HasPrefix(sql, "INSERT"):
		return "INSERT"
	case strings.HasPrefix(sql, "UPDATE"):
		return "UPDATE"
	case strings.HasPrefix(sql, "DELETE"):
		return "DELETE"
	default:
		return "OTHER"
	}
}
