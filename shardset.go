package firmstore

import (
	"context"
	"sort"
	"time"
)

// ShardSet is the fixed, ordered set of shards the catalog runs over. The
// order is part of the system contract: shard 0 is the primary (all creates
// go there), probes walk shards in order and stop at the first hit, and
// cross-shard aggregation resolves duplicate ids in favor of the
// earliest shard.
//
// The set is injected into repositories and searchers; nothing reads it from
// package-level state.
type ShardSet struct {
	shards  []*Shard
	logger  Logger
	metrics Metrics
}

// NewShardSet creates a shard set from the given shards, in primary-first
// order. At least one shard is required.
func NewShardSet(shards ...*Shard) (*ShardSet, error) {
	if len(shards) == 0 {
		return nil, ErrNoShards
	}
	return &ShardSet{
		shards:  shards,
		logger:  &NoOpLogger{},
		metrics: &NoOpMetrics{},
	}, nil
}

// SetObservability wires logging and metrics into the set's fan-out paths
func (ss *ShardSet) SetObservability(logger Logger, metrics Metrics) {
	if logger != nil {
		ss.logger = logger
	}
	if metrics != nil {
		ss.metrics = metrics
	}
}

// Shards returns the shards in set order
func (ss *ShardSet) Shards() []*Shard { return ss.shards }

// Primary returns the shard that receives all writes of new documents
func (ss *ShardSet) Primary() *Shard { return ss.shards[0] }

// Len returns the number of shards
func (ss *ShardSet) Len() int { return len(ss.shards) }

// Logger returns the set's logger
func (ss *ShardSet) Logger() Logger { return ss.logger }

// Metrics returns the set's metrics sink
func (ss *ShardSet) Metrics() Metrics { return ss.metrics }

// Ping checks every shard's backend and returns the first failure
func (ss *ShardSet) Ping(ctx context.Context) error {
	for _, shard := range ss.shards {
		if err := shard.Backend().Ping(ctx); err != nil {
			return WithContext(ErrShardUnavailable, map[string]interface{}{
				"shard": shard.Name(), "cause": err.Error(),
			})
		}
	}
	return nil
}

// Close closes every shard's backend, returning the first error encountered
func (ss *ShardSet) Close() error {
	var firstErr error
	for _, shard := range ss.shards {
		if err := shard.Backend().Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// ProbeDoc looks a document up shard by shard, in set order, and returns the
// first hit along with the shard that holds it. Sequential on purpose: later
// shards are never consulted once a document is found. Returns ErrNotFound
// when no shard holds the id; any other shard error aborts the probe.
func ProbeDoc[T any](ctx context.Context, ss *ShardSet, collection, id string) (*T, *Shard, error) {
	start := time.Now()
	defer func() {
		ss.metrics.RecordDuration(MetricProbeDuration, time.Since(start), map[string]string{"collection": collection})
	}()

	for _, shard := range ss.shards {
		var doc T
		err := shard.GetDoc(ctx, collection, id, &doc)
		if err == nil {
			return &doc, shard, nil
		}
		if !IsNotFound(err) {
			return nil, nil, err
		}
	}

	return nil, nil, WithContext(ErrNotFound, map[string]interface{}{
		"collection": collection, "id": id,
	})
}

// FanOut runs fn concurrently against every shard and collects the per-shard
// results in set order. All-or-nothing: if any shard fails, the whole call
// fails with that shard's error and no partial results are returned.
func FanOut[T any](ctx context.Context, ss *ShardSet, fn func(context.Context, *Shard) (T, error)) ([]T, error) {
	start := time.Now()
	defer func() {
		ss.metrics.RecordDuration(MetricFanOutDuration, time.Since(start), nil)
	}()

	results := make([]T, len(ss.shards))
	errs := make([]error, len(ss.shards))

	done := make(chan int, len(ss.shards))
	for i, shard := range ss.shards {
		go func(i int, shard *Shard) {
			results[i], errs[i] = fn(ctx, shard)
			done <- i
		}(i, shard)
	}
	for range ss.shards {
		<-done
	}

	for i, err := range errs {
		if err != nil {
			ss.logger.Warn("fan-out shard failure", map[string]interface{}{
				"shard": ss.shards[i].Name(), "error": err.Error(),
			})
			return nil, err
		}
	}
	return results, nil
}

// AggregateDocs reads a whole collection from every shard in parallel and
// merges the results: duplicates by id are resolved in favor of the earliest
// shard, and the merged listing is sorted by each entity's sort key.
func AggregateDocs[T Entity](ctx context.Context, ss *ShardSet, collection string) ([]T, error) {
	perShard, err := FanOut(ctx, ss, func(ctx context.Context, shard *Shard) ([]T, error) {
		return ShardDocs[T](ctx, shard, collection)
	})
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	merged := make([]T, 0)
	for _, docs := range perShard {
		for _, doc := range docs {
			if seen[doc.EntityID()] {
				continue
			}
			seen[doc.EntityID()] = true
			merged = append(merged, doc)
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].SortKey() < merged[j].SortKey()
	})
	return merged, nil
}
