package annlite

import (
	"github.com/annlite/annlite/codec"
	"github.com/annlite/annlite/persistence"
	"github.com/annlite/annlite/resource"
)

// Options configures a database instance.
type Options struct {
	// Space selects the distance space: "euclidean" (default) or "cosine".
	Space string

	// M is the number of bidirectional links per node in the HNSW graph.
	M int

	// EFConstruction is the candidate list size during graph construction.
	EFConstruction int

	// EFSearch is the default candidate list size during search. If 0, the
	// larger of EFConstruction and the requested k is used per query.
	EFSearch int

	// MMax0 is the connection cap at the base layer. If 0, 2*M is used.
	MMax0 int

	// Heuristic selects the diversity-aware neighbor selection rule.
	Heuristic bool

	// RandomSeed seeds the level generator for reproducible graphs.
	RandomSeed *int64

	// Exact replaces the HNSW graph with an exhaustive exact index.
	Exact bool

	// Logger receives structured operation logs. If nil, logging is off.
	Logger *Logger

	// Metrics receives operation metrics. If nil, metrics are off.
	Metrics MetricsCollector

	// Codec encodes snapshot manifests. If nil, codec.Default is used.
	Codec codec.Codec

	// Compression selects snapshot payload compression.
	Compression persistence.CompressionType

	// Resource bounds snapshot IO and concurrency. Nil enforces nothing.
	Resource *resource.Controller
}

// DefaultOptions holds the default configuration.
var DefaultOptions = Options{
	Space:          "euclidean",
	M:              16,
	EFConstruction: 200,
	Heuristic:      true,
	Compression:    persistence.CompressionZSTD,
}

// WithCosine selects the cosine distance space.
func WithCosine() func(o *Options) {
	return func(o *Options) {
		o.Space = "cosine"
	}
}

// WithSeed fixes the level-generator seed for reproducible graphs.
func WithSeed(seed int64) func(o *Options) {
	return func(o *Options) {
		o.RandomSeed = &seed
	}
}

// WithLogger configures structured operation logging.
func WithLogger(l *Logger) func(o *Options) {
	return func(o *Options) {
		o.Logger = l
	}
}

// WithMetrics configures a metrics collector.
func WithMetrics(m MetricsCollector) func(o *Options) {
	return func(o *Options) {
		o.Metrics = m
	}
}
