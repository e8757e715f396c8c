package firmstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// IndexKind selects how a field is indexed.
type IndexKind int

const (
	// OrderedIndex keeps field values in a Redis sorted set under lexicographic
	// ordering, enabling prefix range queries over the values.
	OrderedIndex IndexKind = iota

	// MembershipIndex keeps one Redis set of document ids per field value,
	// enabling `in` queries via SUNION.
	MembershipIndex
)

// IndexSpec declares one indexed field of a collection.
type IndexSpec struct {
	Collection string
	Field      string // JSON field name inside the document
	Kind       IndexKind
	Fold       bool // lower-case values before indexing (and terms before querying)
}

// FieldIndex provides per-shard secondary indexes backed by Redis.
//
// Ordered indexes store members as "<value>\x00<id>" with score 0, so a
// ZRANGEBYLEX from "[term" up to the term's lexicographic successor selects
// exactly the documents whose field value has term as a prefix — the same
// documents a full scan with a prefix filter would find. Membership indexes
// are plain sets keyed by field value.
//
// Each shard owns a FieldIndex with its own namespace; the Redis instance
// may be shared.
type FieldIndex struct {
	redis *redis.Client
	ns    string
	specs map[string][]IndexSpec // collection -> specs
}

// NewFieldIndex creates an index namespaced to one shard
func NewFieldIndex(rdb *redis.Client, namespace string) *FieldIndex {
	return &FieldIndex{
		redis: rdb,
		ns:    namespace,
		specs: make(map[string][]IndexSpec),
	}
}

// Register adds an index spec. Call before any writes go through the shard.
func (x *FieldIndex) Register(spec IndexSpec) {
	x.specs[spec.Collection] = append(x.specs[spec.Collection], spec)
}

// SpecsFor returns the registered specs for a collection
func (x *FieldIndex) SpecsFor(collection string) []IndexSpec {
	return x.specs[collection]
}

func (x *FieldIndex) orderedKey(collection, field string) string {
	return fmt.Sprintf("%s:ord:%s:%s", x.ns, collection, field)
}

func (x *FieldIndex) memberKey(collection, field, value string) string {
	return fmt.Sprintf("%s:set:%s:%s:%s", x.ns, collection, field, value)
}

func (x *FieldIndex) fieldValue(spec IndexSpec, doc map[string]interface{}) (string, bool) {
	raw, ok := doc[spec.Field]
	if !ok {
		return "", false
	}
	value, ok := raw.(string)
	if !ok || value == "" {
		return "", false
	}
	if spec.Fold {
		value = strings.ToLower(value)
	}
	return value, true
}

func (x *FieldIndex) addEntry(ctx context.Context, spec IndexSpec, collection, id, value string) error {
	switch spec.Kind {
	case OrderedIndex:
		member := value + "\x00" + id
		if err := x.redis.ZAdd(ctx, x.orderedKey(collection, spec.Field), redis.Z{Score: 0, Member: member}).Err(); err != nil {
			return fmt.Errorf("failed to update ordered index %s.%s: %w", collection, spec.Field, err)
		}
	case MembershipIndex:
		if err := x.redis.SAdd(ctx, x.memberKey(collection, spec.Field, value), id).Err(); err != nil {
			return fmt.Errorf("failed to update membership index %s.%s: %w", collection, spec.Field, err)
		}
	}
	return nil
}

func (x *FieldIndex) removeEntry(ctx context.Context, spec IndexSpec, collection, id, value string) error {
	switch spec.Kind {
	case OrderedIndex:
		member := value + "\x00" + id
		if err := x.redis.ZRem(ctx, x.orderedKey(collection, spec.Field), member).Err(); err != nil {
			return err
		}
	case MembershipIndex:
		if err := x.redis.SRem(ctx, x.memberKey(collection, spec.Field, value), id).Err(); err != nil {
			return err
		}
	}
	return nil
}

// Update refreshes all registered indexes for a document after a write
func (x *FieldIndex) Update(ctx context.Context, collection, id string, doc map[string]interface{}) error {
	return x.Replace(ctx, collection, id, nil, doc)
}

// Replace refreshes all registered indexes for a document, clearing the
// entries of any indexed value the write changed. A nil prev behaves like
// Update and leaves entries for prior values behind.
func (x *FieldIndex) Replace(ctx context.Context, collection, id string, prev, doc map[string]interface{}) error {
	if x.redis == nil {
		return nil // graceful degradation, queries fall back to scans
	}

	for _, spec := range x.specs[collection] {
		newValue, hasNew := x.fieldValue(spec, doc)
		if prev != nil {
			if oldValue, hadOld := x.fieldValue(spec, prev); hadOld && (!hasNew || oldValue != newValue) {
				if err := x.removeEntry(ctx, spec, collection, id, oldValue); err != nil {
					return err
				}
			}
		}
		if !hasNew {
			continue
		}
		if err := x.addEntry(ctx, spec, collection, id, newValue); err != nil {
			return err
		}
	}
	return nil
}

// Remove drops a document from all registered indexes. Needs the document's
// current field values, so callers read before deleting.
func (x *FieldIndex) Remove(ctx context.Context, collection, id string, doc map[string]interface{}) error {
	if x.redis == nil {
		return nil
	}

	for _, spec := range x.specs[collection] {
		value, ok := x.fieldValue(spec, doc)
		if !ok {
			continue
		}
		if err := x.removeEntry(ctx, spec, collection, id, value); err != nil {
			return err
		}
	}
	return nil
}

// DropCollection deletes every index key of a collection so the index can be
// rebuilt from scratch.
func (x *FieldIndex) DropCollection(ctx context.Context, collection string) error {
	if x.redis == nil {
		return ErrIndexUnavailable
	}

	for _, spec := range x.specs[collection] {
		switch spec.Kind {
		case OrderedIndex:
			if err := x.redis.Del(ctx, x.orderedKey(collection, spec.Field)).Err(); err != nil {
				return err
			}
		case MembershipIndex:
			// One set per field value; find them by pattern
			iter := x.redis.Scan(ctx, 0, x.memberKey(collection, spec.Field, "*"), 0).Iterator()
			for iter.Next(ctx) {
				if err := x.redis.Del(ctx, iter.Val()).Err(); err != nil {
					return err
				}
			}
			if err := iter.Err(); err != nil {
				return err
			}
		}
	}
	return nil
}

// prefixUpper returns the exclusive ZRANGEBYLEX upper bound covering every
// member that has term as a prefix: the term with its last byte incremented.
// A term of all 0xff bytes has no successor, so the range is unbounded.
func prefixUpper(term string) string {
	b := []byte(term)
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] < 0xff {
			b[i]++
			return "(" + string(b[:i+1])
		}
	}
	return "+"
}

// PrefixRange returns ids of documents whose indexed field value has term as
// a prefix. The term must already be folded if the spec folds.
func (x *FieldIndex) PrefixRange(ctx context.Context, collection, field, term string, limit int) ([]string, error) {
	if x.redis == nil {
		return nil, ErrIndexUnavailable
	}

	rng := &redis.ZRangeBy{
		Min: "[" + term,
		Max: prefixUpper(term),
	}
	if limit > 0 {
		rng.Count = int64(limit)
	}

	members, err := x.redis.ZRangeByLex(ctx, x.orderedKey(collection, field), rng).Result()
	if err != nil {
		return nil, fmt.Errorf("prefix range query failed on %s.%s: %w", collection, field, err)
	}

	ids := make([]string, 0, len(members))
	for _, m := range members {
		// member layout is "<value>\x00<id>"
		if i := strings.LastIndex(m, "\x00"); i >= 0 {
			ids = append(ids, m[i+1:])
		}
	}
	return ids, nil
}

// Members returns ids of documents whose indexed field value is in values
// (an `in` query), using SUNION across the per-value sets.
func (x *FieldIndex) Members(ctx context.Context, collection, field string, values []string) ([]string, error) {
	if x.redis == nil {
		return nil, ErrIndexUnavailable
	}
	if len(values) == 0 {
		return []string{}, nil
	}

	keys := make([]string, len(values))
	for i, v := range values {
		keys[i] = x.memberKey(collection, field, v)
	}

	ids, err := x.redis.SUnion(ctx, keys...).Result()
	if err == redis.Nil {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("membership query failed on %s.%s: %w", collection, field, err)
	}
	return ids, nil
}

// RegisterCatalogIndexes registers the standard firmware-catalog indexes:
// ordered prefixes over brand and series names and the lower-cased firmware
// file name, plus membership indexes over the firmware foreign keys.
// The case asymmetry (only fileName folded) mirrors the site's observed
// search behavior.
func RegisterCatalogIndexes(idx *FieldIndex) {
	idx.Register(IndexSpec{Collection: CollectionBrands, Field: "name", Kind: OrderedIndex})
	idx.Register(IndexSpec{Collection: CollectionSeries, Field: "name", Kind: OrderedIndex})
	idx.Register(IndexSpec{Collection: CollectionFirmware, Field: "fileName", Kind: OrderedIndex, Fold: true})
	idx.Register(IndexSpec{Collection: CollectionFirmware, Field: "brandId", Kind: MembershipIndex})
	idx.Register(IndexSpec{Collection: CollectionFirmware, Field: "seriesId", Kind: MembershipIndex})
}
