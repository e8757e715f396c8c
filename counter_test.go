package firmstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestDownloadCounter_IncrementsOnHoldingShard(t *testing.T) {
	ctx := context.Background()
	ss := newTestShardSet(t, 2)

	fw := Firmware{ID: "s24-rom", FileName: "S24_OneUI6.zip", DownloadCount: 41}
	if err := ss.Shards()[1].PutDoc(ctx, CollectionFirmware, fw.ID, fw); err != nil {
		t.Fatalf("PutDoc failed: %v", err)
	}

	counter := NewDownloadCounter(ss, nil)
	if err := counter.RecordDownload(ctx, "s24-rom"); err != nil {
		t.Fatalf("RecordDownload failed: %v", err)
	}

	var got Firmware
	if err := ss.Shards()[1].GetDoc(ctx, CollectionFirmware, "s24-rom", &got); err != nil {
		t.Fatalf("GetDoc failed: %v", err)
	}
	if got.DownloadCount != 42 {
		t.Errorf("downloadCount = %d, want 42", got.DownloadCount)
	}
	if got.FileName != "S24_OneUI6.zip" {
		t.Errorf("merge lost fields: %+v", got)
	}
}

func TestDownloadCounter_InterleavedIncrementsCanLoseUpdate(t *testing.T) {
	ctx := context.Background()
	ss := newTestShardSet(t, 1)

	fw := Firmware{ID: "s24-rom", FileName: "S24_OneUI6.zip"}
	if err := ss.Primary().PutDoc(ctx, CollectionFirmware, fw.ID, fw); err != nil {
		t.Fatalf("PutDoc failed: %v", err)
	}

	// Two downloads served at once, interleaved the way RecordDownload
	// composes its primitives: both probe before either merges. The striped
	// lock serializes the merges but not the probe-to-merge window, so both
	// read count 0 and the second write overwrites the first. The count is
	// informational; this lost update is accepted.
	a, _, err := ProbeDoc[Firmware](ctx, ss, CollectionFirmware, "s24-rom")
	if err != nil {
		t.Fatalf("ProbeDoc failed: %v", err)
	}
	b, _, err := ProbeDoc[Firmware](ctx, ss, CollectionFirmware, "s24-rom")
	if err != nil {
		t.Fatalf("ProbeDoc failed: %v", err)
	}

	for _, read := range []*Firmware{a, b} {
		err := ss.Primary().MergeDoc(ctx, CollectionFirmware, "s24-rom", map[string]interface{}{
			"downloadCount": read.DownloadCount + 1,
		})
		if err != nil {
			t.Fatalf("MergeDoc failed: %v", err)
		}
	}

	var got Firmware
	if err := ss.Primary().GetDoc(ctx, CollectionFirmware, "s24-rom", &got); err != nil {
		t.Fatalf("GetDoc failed: %v", err)
	}
	if got.DownloadCount != 1 {
		t.Errorf("downloadCount = %d, want 1 (one of two interleaved increments lost)", got.DownloadCount)
	}
}

func TestDownloadCounter_MissingFirmware(t *testing.T) {
	ctx := context.Background()
	ss := newTestShardSet(t, 2)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	analytics := NewAnalytics(rdb)

	counter := NewDownloadCounter(ss, analytics)
	if err := counter.RecordDownload(ctx, "ghost"); !IsNotFound(err) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	// The analytics must not record a download for a missing firmware
	day, err := analytics.Today(ctx)
	if err != nil {
		t.Fatalf("Today failed: %v", err)
	}
	if day.Downloads != 0 {
		t.Errorf("analytics bumped despite missing firmware: %+v", day)
	}
}

func TestDownloadCounter_BumpsDailyAnalytics(t *testing.T) {
	ctx := context.Background()
	ss := newTestShardSet(t, 1)

	fw := Firmware{ID: "s24-rom", FileName: "S24_OneUI6.zip"}
	if err := ss.Primary().PutDoc(ctx, CollectionFirmware, fw.ID, fw); err != nil {
		t.Fatalf("PutDoc failed: %v", err)
	}

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	analytics := NewAnalytics(rdb)

	counter := NewDownloadCounter(ss, analytics)
	for i := 0; i < 3; i++ {
		if err := counter.RecordDownload(ctx, "s24-rom"); err != nil {
			t.Fatalf("RecordDownload failed: %v", err)
		}
	}

	day, err := analytics.Today(ctx)
	if err != nil {
		t.Fatalf("Today failed: %v", err)
	}
	if day.Downloads != 3 {
		t.Errorf("downloads = %d, want 3", day.Downloads)
	}
	if day.Visitors != 0 || day.AdsClicks != 0 {
		t.Errorf("other fields not zero-seeded: %+v", day)
	}
}

func TestAnalytics_DayKeyIsUTC(t *testing.T) {
	ctx := context.Background()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	analytics := NewAnalytics(rdb)

	// 23:30 in UTC-5 is already the next day in UTC
	loc := time.FixedZone("UTC-5", -5*3600)
	local := time.Date(2026, 3, 1, 23, 30, 0, 0, loc)

	if err := analytics.RecordVisitor(ctx, local); err != nil {
		t.Fatalf("RecordVisitor failed: %v", err)
	}

	day, err := analytics.Day(ctx, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("Day failed: %v", err)
	}
	if day.Visitors != 1 {
		t.Errorf("visitor recorded under the wrong UTC day: %+v", day)
	}
}

func TestAnalytics_EmptyDayIsZeroed(t *testing.T) {
	ctx := context.Background()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	day, err := NewAnalytics(rdb).Day(ctx, time.Now())
	if err != nil {
		t.Fatalf("Day failed: %v", err)
	}
	if day.Visitors != 0 || day.Downloads != 0 || day.AdsClicks != 0 {
		t.Errorf("expected zeroed day, got %+v", day)
	}
}
