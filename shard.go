package firmstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Shard is one schema-identical document store inside the shard set. It maps
// (collection, id) pairs onto backend keys and keeps the shard's secondary
// indexes in step with writes.
//
// Documents are stored as JSON blobs under "collection/id.json". Every shard
// carries the same collections; which shard holds a given document is decided
// by the shard set, not by the shard itself.
type Shard struct {
	name    string
	backend Backend
	index   *FieldIndex
	locks   *StripedLocks
	logger  Logger
	metrics Metrics
}

// NewShard creates a shard over the given backend with no-op observability
func NewShard(name string, backend Backend) *Shard {
	return &Shard{
		name:    name,
		backend: backend,
		locks:   NewStripedLocks(64),
		logger:  &NoOpLogger{},
		metrics: &NoOpMetrics{},
	}
}

// NewShardWithObservability creates a shard with logging and metrics wired in
func NewShardWithObservability(name string, backend Backend, logger Logger, metrics Metrics) *Shard {
	s := NewShard(name, backend)
	if logger != nil {
		s.logger = logger
	}
	if metrics != nil {
		s.metrics = metrics
	}
	return s
}

// SetIndex attaches a secondary index to the shard. Writes after this call
// keep the index updated; queries may use it. A nil index means queries fall
// back to collection scans.
func (s *Shard) SetIndex(index *FieldIndex) {
	s.index = index
}

// Name returns the shard's name
func (s *Shard) Name() string { return s.name }

// Index returns the shard's secondary index, or nil
func (s *Shard) Index() *FieldIndex { return s.index }

// Backend returns the underlying blob backend
func (s *Shard) Backend() Backend { return s.backend }

func (s *Shard) key(collection, id string) string {
	return collection + "/" + id + ".json"
}

func (s *Shard) tags(collection string) map[string]string {
	return map[string]string{"shard": s.name, "collection": collection}
}

// GetDoc reads a document into dest. Returns ErrNotFound (possibly wrapped)
// when the shard does not hold the document.
func (s *Shard) GetDoc(ctx context.Context, collection, id string, dest interface{}) error {
	start := time.Now()
	data, err := s.backend.Get(ctx, s.key(collection, id))
	s.metrics.RecordDuration(MetricShardGet, time.Since(start), s.tags(collection))

	if err != nil {
		if !IsNotFound(err) {
			s.metrics.IncrementCounter(MetricShardError, s.tags(collection))
			s.logger.Error("shard get failed", map[string]interface{}{
				"shard": s.name, "collection": collection, "id": id, "error": err.Error(),
			})
		}
		return WithContext(err, map[string]interface{}{
			"shard": s.name, "collection": collection, "id": id,
		})
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return WithContext(ErrInvalidData, map[string]interface{}{
			"shard": s.name, "collection": collection, "id": id, "parse_error": err.Error(),
		})
	}
	return nil
}

// PutDoc writes a document, replacing any existing version, and refreshes the
// shard's secondary indexes.
func (s *Shard) PutDoc(ctx context.Context, collection, id string, doc interface{}) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return WithContext(ErrInvalidData, map[string]interface{}{
			"shard": s.name, "collection": collection, "id": id, "marshal_error": err.Error(),
		})
	}

	prev := s.priorDoc(ctx, collection, id)

	start := time.Now()
	err = s.backend.Put(ctx, s.key(collection, id), data)
	s.metrics.RecordDuration(MetricShardPut, time.Since(start), s.tags(collection))
	if err != nil {
		s.metrics.IncrementCounter(MetricShardError, s.tags(collection))
		return WithContext(err, map[string]interface{}{
			"shard": s.name, "collection": collection, "id": id,
		})
	}

	return s.updateIndex(ctx, collection, id, prev, data)
}

// MergeDoc applies a shallow field patch to a document via read-modify-write.
// Missing documents are created from the patch alone. The striped lock keeps
// concurrent in-process merges on the same document from interleaving; merges
// racing from other processes can still lose updates.
func (s *Shard) MergeDoc(ctx context.Context, collection, id string, patch map[string]interface{}) error {
	unlock := s.locks.Lock(s.key(collection, id))
	defer unlock()

	doc := make(map[string]interface{})
	data, err := s.backend.Get(ctx, s.key(collection, id))
	if err != nil && !IsNotFound(err) {
		return WithContext(err, map[string]interface{}{
			"shard": s.name, "collection": collection, "id": id,
		})
	}
	if err == nil {
		if err := json.Unmarshal(data, &doc); err != nil {
			return WithContext(ErrInvalidData, map[string]interface{}{
				"shard": s.name, "collection": collection, "id": id, "parse_error": err.Error(),
			})
		}
	}

	var prev map[string]interface{}
	if len(doc) > 0 && s.indexed(collection) {
		prev = make(map[string]interface{}, len(doc))
		for k, v := range doc {
			prev[k] = v
		}
	}

	for k, v := range patch {
		doc[k] = v
	}

	merged, err := json.Marshal(doc)
	if err != nil {
		return WithContext(ErrInvalidData, map[string]interface{}{
			"shard": s.name, "collection": collection, "id": id, "marshal_error": err.Error(),
		})
	}

	start := time.Now()
	err = s.backend.Put(ctx, s.key(collection, id), merged)
	s.metrics.RecordDuration(MetricShardPut, time.Since(start), s.tags(collection))
	if err != nil {
		s.metrics.IncrementCounter(MetricShardError, s.tags(collection))
		return WithContext(err, map[string]interface{}{
			"shard": s.name, "collection": collection, "id": id,
		})
	}

	return s.updateIndex(ctx, collection, id, prev, merged)
}

// DeleteDoc removes a document and its index entries
func (s *Shard) DeleteDoc(ctx context.Context, collection, id string) error {
	// Read first so index entries can be removed by value
	var doc map[string]interface{}
	if s.index != nil {
		if err := s.GetDoc(ctx, collection, id, &doc); err != nil && !IsNotFound(err) {
			return err
		}
	}

	start := time.Now()
	err := s.backend.Delete(ctx, s.key(collection, id))
	s.metrics.RecordDuration(MetricShardDelete, time.Since(start), s.tags(collection))
	if err != nil {
		return WithContext(err, map[string]interface{}{
			"shard": s.name, "collection": collection, "id": id,
		})
	}

	if s.index != nil && doc != nil {
		if err := s.index.Remove(ctx, collection, id, doc); err != nil {
			s.logger.Warn("index cleanup failed after delete", map[string]interface{}{
				"shard": s.name, "collection": collection, "id": id, "error": err.Error(),
			})
		}
	}
	return nil
}

// ListIDs returns all document ids in a collection, in backend list order
// (lexicographic for every supported backend).
func (s *Shard) ListIDs(ctx context.Context, collection string) ([]string, error) {
	start := time.Now()
	keys, err := s.backend.List(ctx, collection+"/")
	s.metrics.RecordDuration(MetricShardList, time.Since(start), s.tags(collection))
	if err != nil {
		s.metrics.IncrementCounter(MetricShardError, s.tags(collection))
		return nil, WithContext(err, map[string]interface{}{
			"shard": s.name, "collection": collection,
		})
	}

	ids := make([]string, 0, len(keys))
	for _, key := range keys {
		id := strings.TrimPrefix(key, collection+"/")
		id = strings.TrimSuffix(id, ".json")
		if id != "" && !strings.Contains(id, "/") {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// Count returns the number of documents in a collection
func (s *Shard) Count(ctx context.Context, collection string) (int, error) {
	ids, err := s.ListIDs(ctx, collection)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

// AllDocs returns every document in a collection as raw maps, in id order.
// Any unreadable document fails the whole call.
func (s *Shard) AllDocs(ctx context.Context, collection string) ([]map[string]interface{}, error) {
	ids, err := s.ListIDs(ctx, collection)
	if err != nil {
		return nil, err
	}

	docs := make([]map[string]interface{}, 0, len(ids))
	for _, id := range ids {
		var doc map[string]interface{}
		if err := s.GetDoc(ctx, collection, id, &doc); err != nil {
			if IsNotFound(err) {
				continue // deleted between list and get
			}
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func (s *Shard) indexed(collection string) bool {
	return s.index != nil && len(s.index.SpecsFor(collection)) > 0
}

// priorDoc reads the stored version of a document so a write can clear index
// entries for values it changes. Returns nil when the shard holds no readable
// prior version or the collection is not indexed.
func (s *Shard) priorDoc(ctx context.Context, collection, id string) map[string]interface{} {
	if !s.indexed(collection) {
		return nil
	}
	data, err := s.backend.Get(ctx, s.key(collection, id))
	if err != nil {
		return nil
	}
	var doc map[string]interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil
	}
	return doc
}

func (s *Shard) updateIndex(ctx context.Context, collection, id string, prev map[string]interface{}, data []byte) error {
	if !s.indexed(collection) {
		return nil
	}

	var doc map[string]interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil // non-object documents are simply not indexed
	}
	if err := s.index.Replace(ctx, collection, id, prev, doc); err != nil {
		return fmt.Errorf("document written but index update failed: %w", err)
	}
	return nil
}

// ShardDocs reads every document of a collection from one shard as typed
// values, in id order.
func ShardDocs[T any](ctx context.Context, s *Shard, collection string) ([]T, error) {
	ids, err := s.ListIDs(ctx, collection)
	if err != nil {
		return nil, err
	}

	docs := make([]T, 0, len(ids))
	for _, id := range ids {
		var doc T
		if err := s.GetDoc(ctx, collection, id, &doc); err != nil {
			if IsNotFound(err) {
				continue
			}
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}
