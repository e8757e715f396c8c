package firmstore

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"
	"unicode/utf8"
)

// Search tuning constants. The limits and minimum lengths differ between the
// full search page and the live search-as-you-type dropdown.
const (
	MinQueryLength     = 2
	MinLiveQueryLength = 3
	DefaultSearchLimit = 50
	LiveSearchLimit    = 5
)

// Searcher runs the two-phase firmware search over a shard set.
//
// Phase one fans out prefix queries over brand names, series names and
// firmware file names on every shard. Phase two expands brand and series
// hits into their firmware via foreign-key membership queries, again across
// all shards. Results are merged with duplicate ids resolved in favor of
// earlier shards, then truncated to the limit.
//
// File-name matching is case-insensitive (the index stores file names
// lower-cased); brand and series name matching is case-sensitive.
type Searcher struct {
	shards  *ShardSet
	logger  Logger
	metrics Metrics
}

// NewSearcher creates a searcher over the given shard set
func NewSearcher(shards *ShardSet) *Searcher {
	return &Searcher{
		shards:  shards,
		logger:  shards.Logger(),
		metrics: shards.Metrics(),
	}
}

type shardMatches struct {
	brandIDs  []string
	seriesIDs []string
	firmware  []Firmware
}

// Search runs the full two-phase search. Terms shorter than MinQueryLength
// return an empty result without touching any shard. A non-positive limit
// uses DefaultSearchLimit.
func (s *Searcher) Search(ctx context.Context, term string, limit int) ([]Firmware, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	term = strings.TrimSpace(term)
	if utf8.RuneCountInString(term) < MinQueryLength {
		return []Firmware{}, nil
	}
	return s.search(ctx, term, limit)
}

// LiveSearch runs the search-as-you-type variant: a higher minimum term
// length and a hard limit of LiveSearchLimit results.
func (s *Searcher) LiveSearch(ctx context.Context, term string) ([]Firmware, error) {
	term = strings.TrimSpace(term)
	if utf8.RuneCountInString(term) < MinLiveQueryLength {
		return []Firmware{}, nil
	}
	return s.search(ctx, term, LiveSearchLimit)
}

func (s *Searcher) search(ctx context.Context, term string, limit int) ([]Firmware, error) {
	start := time.Now()
	defer func() {
		s.metrics.RecordDuration(MetricSearchDuration, time.Since(start), nil)
	}()

	// Phase one: prefix matches on every shard in parallel
	perShard, err := FanOut(ctx, s.shards, func(ctx context.Context, shard *Shard) (shardMatches, error) {
		return s.matchShard(ctx, shard, term, limit)
	})
	if err != nil {
		return nil, err
	}

	var brandIDs, seriesIDs []string
	seenBrand := make(map[string]bool)
	seenSeries := make(map[string]bool)
	seen := make(map[string]bool)
	results := make([]Firmware, 0, limit)

	for _, m := range perShard {
		for _, id := range m.brandIDs {
			if !seenBrand[id] {
				seenBrand[id] = true
				brandIDs = append(brandIDs, id)
			}
		}
		for _, id := range m.seriesIDs {
			if !seenSeries[id] {
				seenSeries[id] = true
				seriesIDs = append(seriesIDs, id)
			}
		}
		for _, fw := range m.firmware {
			if !seen[fw.ID] {
				seen[fw.ID] = true
				results = append(results, fw)
			}
		}
	}

	// Phase two: expand brand/series hits into their firmware
	if len(brandIDs) > 0 || len(seriesIDs) > 0 {
		expansions, err := FanOut(ctx, s.shards, func(ctx context.Context, shard *Shard) ([]Firmware, error) {
			return s.expandShard(ctx, shard, brandIDs, seriesIDs, limit)
		})
		if err != nil {
			return nil, err
		}
		for _, docs := range expansions {
			for _, fw := range docs {
				if !seen[fw.ID] {
					seen[fw.ID] = true
					results = append(results, fw)
				}
			}
		}
	}

	if len(results) > limit {
		results = results[:limit]
	}
	s.metrics.RecordGauge(MetricSearchResults, float64(len(results)), nil)
	return results, nil
}

func (s *Searcher) matchShard(ctx context.Context, shard *Shard, term string, limit int) (shardMatches, error) {
	var m shardMatches

	brandIDs, err := s.prefixIDs(ctx, shard, CollectionBrands, "name", term, false, limit)
	if err != nil {
		return m, err
	}
	m.brandIDs = brandIDs

	seriesIDs, err := s.prefixIDs(ctx, shard, CollectionSeries, "name", term, false, limit)
	if err != nil {
		return m, err
	}
	m.seriesIDs = seriesIDs

	fwIDs, err := s.prefixIDs(ctx, shard, CollectionFirmware, "fileName", term, true, limit)
	if err != nil {
		return m, err
	}

	for _, id := range fwIDs {
		var fw Firmware
		if err := shard.GetDoc(ctx, CollectionFirmware, id, &fw); err != nil {
			if IsNotFound(err) {
				continue // index entry outlived the document
			}
			return m, err
		}
		m.firmware = append(m.firmware, fw)
	}
	return m, nil
}

func (s *Searcher) expandShard(ctx context.Context, shard *Shard, brandIDs, seriesIDs []string, limit int) ([]Firmware, error) {
	seen := make(map[string]bool)
	var ids []string

	for _, q := range []struct {
		field  string
		values []string
	}{
		{"brandId", brandIDs},
		{"seriesId", seriesIDs},
	} {
		if len(q.values) == 0 {
			continue
		}
		matched, err := s.fieldIn(ctx, shard, CollectionFirmware, q.field, q.values)
		if err != nil {
			return nil, err
		}
		for _, id := range matched {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}

	if len(ids) > limit {
		ids = ids[:limit]
	}

	docs := make([]Firmware, 0, len(ids))
	for _, id := range ids {
		var fw Firmware
		if err := shard.GetDoc(ctx, CollectionFirmware, id, &fw); err != nil {
			if IsNotFound(err) {
				continue
			}
			return nil, err
		}
		docs = append(docs, fw)
	}
	return docs, nil
}

// prefixIDs resolves a prefix query against the shard's secondary index,
// falling back to a collection scan when no index is available.
func (s *Searcher) prefixIDs(ctx context.Context, shard *Shard, collection, field, term string, fold bool, limit int) ([]string, error) {
	if fold {
		term = strings.ToLower(term)
	}

	if idx := shard.Index(); idx != nil {
		ids, err := idx.PrefixRange(ctx, collection, field, term, limit)
		if err == nil {
			return ids, nil
		}
		if !errors.Is(err, ErrIndexUnavailable) {
			return nil, err
		}
	}

	s.metrics.IncrementCounter(MetricIndexFallback, map[string]string{
		"shard": shard.Name(), "collection": collection, "field": field,
	})
	return s.scanPrefixIDs(ctx, shard, collection, field, term, fold, limit)
}

func (s *Searcher) scanPrefixIDs(ctx context.Context, shard *Shard, collection, field, term string, fold bool, limit int) ([]string, error) {
	docs, err := shard.AllDocs(ctx, collection)
	if err != nil {
		return nil, err
	}

	type hit struct{ value, id string }
	var hits []hit
	for _, doc := range docs {
		value, _ := doc[field].(string)
		if fold {
			value = strings.ToLower(value)
		}
		id, _ := doc["id"].(string)
		if id == "" || !strings.HasPrefix(value, term) {
			continue
		}
		hits = append(hits, hit{value, id})
	}

	// Match the ordered index's value-then-id ordering
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].value != hits[j].value {
			return hits[i].value < hits[j].value
		}
		return hits[i].id < hits[j].id
	})

	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.id
	}
	return ids, nil
}

// fieldIn resolves an `in` membership query, preferring the shard index
func (s *Searcher) fieldIn(ctx context.Context, shard *Shard, collection, field string, values []string) ([]string, error) {
	if idx := shard.Index(); idx != nil {
		ids, err := idx.Members(ctx, collection, field, values)
		if err == nil {
			sort.Strings(ids) // SUNION order is unspecified
			return ids, nil
		}
		if !errors.Is(err, ErrIndexUnavailable) {
			return nil, err
		}
	}

	s.metrics.IncrementCounter(MetricIndexFallback, map[string]string{
		"shard": shard.Name(), "collection": collection, "field": field,
	})

	wanted := make(map[string]bool, len(values))
	for _, v := range values {
		wanted[v] = true
	}

	docs, err := shard.AllDocs(ctx, collection)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, doc := range docs {
		value, _ := doc[field].(string)
		id, _ := doc["id"].(string)
		if id != "" && wanted[value] {
			ids = append(ids, id)
		}
	}
	return ids, nil
}
