package firmstore

import (
	"context"
)

// ReindexReport summarizes an index rebuild
type ReindexReport struct {
	Shard   string         `json:"shard"`
	Indexed map[string]int `json:"indexed"` // documents re-indexed per collection
}

// RebuildShardIndex re-derives a shard's secondary indexes from its stored
// documents. Each collection's index keys are dropped before re-deriving, so
// a rebuild clears stale entries as well as filling in missing ones. Used
// after enabling Redis on an existing deployment, or to repair indexes that
// drifted from the documents (writes landed but index updates failed).
func RebuildShardIndex(ctx context.Context, shard *Shard) (*ReindexReport, error) {
	idx := shard.Index()
	if idx == nil {
		return nil, ErrIndexUnavailable
	}

	report := &ReindexReport{Shard: shard.Name(), Indexed: map[string]int{}}

	for collection := range idx.specs {
		if err := idx.DropCollection(ctx, collection); err != nil {
			return nil, err
		}
		docs, err := shard.AllDocs(ctx, collection)
		if err != nil {
			return nil, err
		}
		for _, doc := range docs {
			id, _ := doc["id"].(string)
			if id == "" {
				continue
			}
			if err := idx.Update(ctx, collection, id, doc); err != nil {
				return nil, err
			}
			report.Indexed[collection]++
		}
	}
	return report, nil
}

// RebuildIndexes rebuilds every shard's indexes, one shard at a time
func RebuildIndexes(ctx context.Context, ss *ShardSet) ([]*ReindexReport, error) {
	reports := make([]*ReindexReport, 0, ss.Len())
	for _, shard := range ss.Shards() {
		report, err := RebuildShardIndex(ctx, shard)
		if err != nil {
			return nil, err
		}
		reports = append(reports, report)
	}
	return reports, nil
}
