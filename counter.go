package firmstore

import (
	"context"
	"errors"
	"time"
)

// DownloadCounter records firmware downloads: it bumps the firmware
// document's downloadCount on whichever shard holds it, then bumps the daily
// download analytics. The two writes are independent best-effort operations;
// a failure in one never rolls back the other.
//
// The document increment is a read-modify-write: the count is read during
// the probe and the incremented value merged afterwards. The shard's striped
// lock serializes only the merge itself, not the probe-to-merge window, and
// the blob backends offer no atomic counter, so two increments racing each
// other can both read the same count and lose an update. The count is
// informational and that loss is accepted; the daily analytics counters, by
// contrast, are atomic Redis increments.
type DownloadCounter struct {
	shards    *ShardSet
	analytics *Analytics
	logger    Logger
	metrics   Metrics
}

// NewDownloadCounter creates a counter over the shard set. The analytics
// sink may be nil, in which case only document counts are maintained.
func NewDownloadCounter(shards *ShardSet, analytics *Analytics) *DownloadCounter {
	return &DownloadCounter{
		shards:    shards,
		analytics: analytics,
		logger:    shards.Logger(),
		metrics:   shards.Metrics(),
	}
}

// RecordDownload increments the firmware's download count and the daily
// download analytics. Returns ErrNotFound when no shard holds the firmware;
// in that case the analytics are not bumped either.
func (c *DownloadCounter) RecordDownload(ctx context.Context, firmwareID string) error {
	fw, shard, err := ProbeDoc[Firmware](ctx, c.shards, CollectionFirmware, firmwareID)
	if err != nil {
		return err
	}

	var docErr, statsErr error

	docErr = shard.MergeDoc(ctx, CollectionFirmware, firmwareID, map[string]interface{}{
		"downloadCount": fw.DownloadCount + 1,
	})
	if docErr == nil {
		c.metrics.IncrementCounter(MetricDownloadIncrement, map[string]string{"shard": shard.Name()})
	}

	if c.analytics != nil {
		if statsErr = c.analytics.RecordDownload(ctx, time.Now()); statsErr != nil {
			c.logger.Warn("daily download analytics not recorded", map[string]interface{}{
				"firmware": firmwareID, "error": statsErr.Error(),
			})
		}
	}

	return errors.Join(docErr, statsErr)
}
