package telemetry

// LoadBuckets for library load latency (header parse + dlopen)
var LoadBuckets = []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1}

// Native Library Metrics
var (
	// LibraryLoadsTotal counts libraries actually opened (idempotent re-inits excluded)
	LibraryLoadsTotal Counter = NoopStat{}

	// LibraryLoadSeconds measures locate + parse + open latency
	LibraryLoadSeconds Histogram = NoopStat{}

	// SymbolResolutionsTotal counts symbol lookups by result (hit, miss, error)
	SymbolResolutionsTotal CounterVec = noopCounterVec{}

	// NativeCallsTotal counts foreign calls by symbol
	NativeCallsTotal CounterVec = noopCounterVec{}
)

// Object Lifetime Metrics
var (
	// ObjectsCreatedTotal counts bound objects by type and mode (originate, wrap, cast)
	ObjectsCreatedTotal CounterVec = noopCounterVec{}

	// ReleasesTotal counts releases by type and outcome (destroyed, alias, duplicate, leaked)
	ReleasesTotal CounterVec = noopCounterVec{}

	// LiveAllocations tracks originated allocations not yet destroyed, by type
	LiveAllocations GaugeVec = noopGaugeVec{}

	// CastsTotal counts view materializations by result (memo, computed)
	CastsTotal CounterVec = noopCounterVec{}
)

// InitMetrics initializes all Prometheus metrics.
// Must be called after InitializeTelemetry().
func InitMetrics() {
	LibraryLoadsTotal = NewCounter(
		"library_loads_total",
		"Total native libraries opened",
	)
	LibraryLoadSeconds = NewHistogramWithBuckets(
		"library_load_seconds",
		"Native library locate, parse and open duration in seconds",
		LoadBuckets,
	)
	SymbolResolutionsTotal = NewCounterVec(
		"symbol_resolutions_total",
		"Native symbol resolutions by result",
		[]string{"result"},
	)
	NativeCallsTotal = NewCounterVec(
		"native_calls_total",
		"Native calls by symbol",
		[]string{"symbol"},
	)

	ObjectsCreatedTotal = NewCounterVec(
		"objects_created_total",
		"Bound objects created by type and mode",
		[]string{"type", "mode"},
	)
	ReleasesTotal = NewCounterVec(
		"releases_total",
		"Object releases by type and outcome",
		[]string{"type", "outcome"},
	)
	LiveAllocations = NewGaugeVec(
		"live_allocations",
		"Originated native allocations not yet destroyed",
		[]string{"type"},
	)
	CastsTotal = NewCounterVec(
		"casts_total",
		"View lookups by result",
		[]string{"result"},
	)
}
