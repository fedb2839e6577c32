package metrics

import (
	"sync"
	"time"

	"mercator-hq/lucid/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// Model versions beyond this many distinct values are reported as "other".
const maxModelVersions = 100

// Collector owns the Prometheus metrics for decisions, governance verdicts
// and the audit trail. Every method is a no-op on a nil or disabled
// collector, so callers never need to check.
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry

	decisionMetrics   *DecisionMetrics
	governanceMetrics *GovernanceMetrics
	auditMetrics      *AuditMetrics

	modelVersions *CardinalityLimiter
}

// NewCollector creates a new metrics collector registered with registry.
// If registry is nil, a fresh registry is created.
//
// Example:
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	mux.Handle(cfg.Telemetry.Metrics.Path, collector.Handler())
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	namespace := cfg.Namespace
	if namespace == "" {
		namespace = config.DefaultMetricsNamespace
	}
	buckets := cfg.ConfidenceBuckets
	if len(buckets) == 0 {
		buckets = config.DefaultConfidenceBuckets
	}

	return &Collector{
		config:            cfg,
		registry:          registry,
		decisionMetrics:   NewDecisionMetrics(namespace, buckets, registry),
		governanceMetrics: NewGovernanceMetrics(namespace, registry),
		auditMetrics:      NewAuditMetrics(namespace, registry),
		modelVersions:     NewCardinalityLimiter(maxModelVersions),
	}
}

func (c *Collector) enabled() bool {
	return c != nil && c.config.Enabled
}

// RecordDecision records a completed decision.
func (c *Collector) RecordDecision(modelVersion string, confidence float64) {
	if !c.enabled() {
		return
	}
	if !c.modelVersions.Allow(modelVersion) {
		modelVersion = "other"
	}
	c.decisionMetrics.RecordDecision(modelVersion, confidence)
}

// RecordStage records the duration of one pipeline stage
// ("decision", "explanation", "responsibility").
func (c *Collector) RecordStage(stage string, duration time.Duration) {
	if !c.enabled() {
		return
	}
	c.decisionMetrics.RecordStage(stage, duration)
}

// RecordError records a failed evaluation by error kind
// ("validation", "configuration", "serialization", "internal").
func (c *Collector) RecordError(kind string) {
	if !c.enabled() {
		return
	}
	c.decisionMetrics.RecordError(kind)
}

// RecordBatch records the size of an evaluated batch.
func (c *Collector) RecordBatch(size int) {
	if !c.enabled() {
		return
	}
	c.decisionMetrics.RecordBatch(size)
}

// RecordVerdict records a governance verdict and its violated rules.
func (c *Collector) RecordVerdict(allowed bool, violatedRules []string) {
	if !c.enabled() {
		return
	}
	c.governanceMetrics.RecordVerdict(allowed, violatedRules)
}

// RecordGovernanceReload records a governance hot reload.
func (c *Collector) RecordGovernanceReload(success bool) {
	if !c.enabled() {
		return
	}
	c.governanceMetrics.RecordReload(success)
}

// RecordAuditStored records an audit record written to storage.
func (c *Collector) RecordAuditStored(duration time.Duration) {
	if !c.enabled() {
		return
	}
	c.auditMetrics.RecordStored(duration)
}

// RecordAuditFailed records an audit record that storage rejected.
func (c *Collector) RecordAuditFailed() {
	if !c.enabled() {
		return
	}
	c.auditMetrics.RecordFailed()
}

// RecordAuditDropped records an audit record dropped because the recorder
// buffer was full.
func (c *Collector) RecordAuditDropped() {
	if !c.enabled() {
		return
	}
	c.auditMetrics.RecordDropped()
}

// RecordAuditPruned records records removed by retention.
func (c *Collector) RecordAuditPruned(count int64) {
	if !c.enabled() {
		return
	}
	c.auditMetrics.RecordPruned(count)
}

// Registry returns the Prometheus registry used by this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// CardinalityLimiter bounds the number of distinct label values a metric
// may see.
type CardinalityLimiter struct {
	maxCardinality int
	current        map[string]struct{}
	mu             sync.RWMutex
}

// NewCardinalityLimiter creates a new cardinality limiter with the specified
// maximum cardinality.
func NewCardinalityLimiter(maxCardinality int) *CardinalityLimiter {
	return &CardinalityLimiter{
		maxCardinality: maxCardinality,
		current:        make(map[string]struct{}),
	}
}

// Allow reports whether value is already known or still fits under the
// limit, remembering it in the latter case.
func (cl *CardinalityLimiter) Allow(value string) bool {
	cl.mu.RLock()
	if _, exists := cl.current[value]; exists {
		cl.mu.RUnlock()
		return true
	}
	cl.mu.RUnlock()

	cl.mu.Lock()
	defer cl.mu.Unlock()

	if _, exists := cl.current[value]; exists {
		return true
	}
	if len(cl.current) >= cl.maxCardinality {
		return false
	}
	cl.current[value] = struct{}{}
	return true
}

// Count returns the current cardinality.
func (cl *CardinalityLimiter) Count() int {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return len(cl.current)
}
