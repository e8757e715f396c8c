package firmstore

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// AnalyticsDateFormat is the UTC calendar-day key format
const AnalyticsDateFormat = "2006-01-02"

// Analytics maintains per-day site counters (visitors, downloads, ad clicks)
// in a Redis hash keyed by UTC date. Each day's document is seeded with
// zeroed fields on first touch so dashboards never see missing fields, and
// all increments are atomic HINCRBY operations.
type Analytics struct {
	redis  *redis.Client
	prefix string
}

// NewAnalytics creates an analytics recorder on the given Redis client
func NewAnalytics(rdb *redis.Client) *Analytics {
	return &Analytics{redis: rdb, prefix: "analytics"}
}

func (a *Analytics) dayKey(t time.Time) string {
	return fmt.Sprintf("%s:%s", a.prefix, t.UTC().Format(AnalyticsDateFormat))
}

func (a *Analytics) bump(ctx context.Context, t time.Time, field string) error {
	if a.redis == nil {
		return ErrIndexUnavailable
	}
	key := a.dayKey(t)

	// Seed the day's document with zeroed fields; HSETNX leaves existing
	// values untouched.
	pipe := a.redis.Pipeline()
	pipe.HSetNX(ctx, key, "visitors", 0)
	pipe.HSetNX(ctx, key, "downloads", 0)
	pipe.HSetNX(ctx, key, "adsClicks", 0)
	pipe.HIncrBy(ctx, key, field, 1)
	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to record %s for %s: %w", field, key, err)
	}
	return nil
}

// RecordVisitor bumps the day's visitor count
func (a *Analytics) RecordVisitor(ctx context.Context, t time.Time) error {
	return a.bump(ctx, t, "visitors")
}

// RecordDownload bumps the day's download count
func (a *Analytics) RecordDownload(ctx context.Context, t time.Time) error {
	return a.bump(ctx, t, "downloads")
}

// RecordAdClick bumps the day's ad click count
func (a *Analytics) RecordAdClick(ctx context.Context, t time.Time) error {
	return a.bump(ctx, t, "adsClicks")
}

// Day returns the counters for one UTC calendar day. Days with no recorded
// activity return a zeroed document.
func (a *Analytics) Day(ctx context.Context, t time.Time) (DailyAnalytics, error) {
	var day DailyAnalytics
	if a.redis == nil {
		return day, ErrIndexUnavailable
	}

	fields, err := a.redis.HGetAll(ctx, a.dayKey(t)).Result()
	if err != nil {
		return day, fmt.Errorf("failed to read analytics for %s: %w", a.dayKey(t), err)
	}

	day.Visitors = parseCount(fields["visitors"])
	day.Downloads = parseCount(fields["downloads"])
	day.AdsClicks = parseCount(fields["adsClicks"])
	return day, nil
}

// Today returns the counters for the current UTC day
func (a *Analytics) Today(ctx context.Context) (DailyAnalytics, error) {
	return a.Day(ctx, time.Now())
}

func parseCount(s string) int64 {
	if s == "" {
		return 0
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
