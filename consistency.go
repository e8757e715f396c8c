package firmstore

import (
	"context"
)

// IDCollision is one document id found on more than one shard. Reads resolve
// such collisions silently in favor of the earliest shard; this report makes
// them visible so an operator can clean up the shadowed copies.
type IDCollision struct {
	Collection string   `json:"collection"`
	ID         string   `json:"id"`
	Shards     []string `json:"shards"` // in set order; the first one wins on reads
}

// ConsistencyReport summarizes a cross-shard scan
type ConsistencyReport struct {
	Collisions []IDCollision  `json:"collisions"`
	DocCounts  map[string]int `json:"docCounts"` // per collection, including shadowed copies
}

// Clean reports whether the scan found no collisions
func (r *ConsistencyReport) Clean() bool {
	return len(r.Collisions) == 0
}

// ConsistencyChecker scans the shard set for documents whose id exists on
// more than one shard.
type ConsistencyChecker struct {
	shards *ShardSet
	logger Logger
}

// NewConsistencyChecker creates a checker over the shard set
func NewConsistencyChecker(shards *ShardSet) *ConsistencyChecker {
	return &ConsistencyChecker{shards: shards, logger: shards.Logger()}
}

// CheckCollection scans one collection across all shards
func (c *ConsistencyChecker) CheckCollection(ctx context.Context, collection string) (*ConsistencyReport, error) {
	report := &ConsistencyReport{DocCounts: map[string]int{}}
	if err := c.scan(ctx, collection, report); err != nil {
		return nil, err
	}
	return report, nil
}

// CheckCatalog scans every catalog collection
func (c *ConsistencyChecker) CheckCatalog(ctx context.Context) (*ConsistencyReport, error) {
	report := &ConsistencyReport{DocCounts: map[string]int{}}
	for _, collection := range []string{
		CollectionBrands, CollectionSeries, CollectionFirmware, CollectionTools, CollectionSettings,
	} {
		if err := c.scan(ctx, collection, report); err != nil {
			return nil, err
		}
	}
	return report, nil
}

func (c *ConsistencyChecker) scan(ctx context.Context, collection string, report *ConsistencyReport) error {
	perShard, err := FanOut(ctx, c.shards, func(ctx context.Context, shard *Shard) ([]string, error) {
		return shard.ListIDs(ctx, collection)
	})
	if err != nil {
		return err
	}

	holders := make(map[string][]string) // id -> shard names, in set order
	total := 0
	for i, ids := range perShard {
		name := c.shards.Shards()[i].Name()
		total += len(ids)
		for _, id := range ids {
			holders[id] = append(holders[id], name)
		}
	}
	report.DocCounts[collection] = total

	for _, ids := range perShard {
		for _, id := range ids {
			shards := holders[id]
			if len(shards) < 2 {
				continue
			}
			delete(holders, id) // report each collision once
			report.Collisions = append(report.Collisions, IDCollision{
				Collection: collection,
				ID:         id,
				Shards:     shards,
			})
			c.logger.Warn("id held by multiple shards", map[string]interface{}{
				"collection": collection, "id": id, "shards": shards,
			})
		}
	}
	return nil
}
