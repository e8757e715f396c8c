package firmstore

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestIndex(t *testing.T) *FieldIndex {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	idx := NewFieldIndex(rdb, "idx:test")
	RegisterCatalogIndexes(idx)
	return idx
}

func TestFieldIndex_PrefixRange(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t)

	docs := map[string]map[string]interface{}{
		"s24-rom":  {"id": "s24-rom", "fileName": "S24_OneUI6.zip"},
		"s23-rom":  {"id": "s23-rom", "fileName": "S23_OneUI5.zip"},
		"note-rom": {"id": "note-rom", "fileName": "Note12_MIUI14.zip"},
	}
	for id, doc := range docs {
		if err := idx.Update(ctx, CollectionFirmware, id, doc); err != nil {
			t.Fatalf("Update failed: %v", err)
		}
	}

	t.Run("folded term matches", func(t *testing.T) {
		ids, err := idx.PrefixRange(ctx, CollectionFirmware, "fileName", "s2", 0)
		if err != nil {
			t.Fatalf("PrefixRange failed: %v", err)
		}
		if len(ids) != 2 {
			t.Fatalf("expected 2 ids, got %v", ids)
		}
		// Lexicographic by folded value: s23 before s24
		if ids[0] != "s23-rom" || ids[1] != "s24-rom" {
			t.Errorf("unexpected order: %v", ids)
		}
	})

	t.Run("limit applies", func(t *testing.T) {
		ids, err := idx.PrefixRange(ctx, CollectionFirmware, "fileName", "s2", 1)
		if err != nil {
			t.Fatalf("PrefixRange failed: %v", err)
		}
		if len(ids) != 1 {
			t.Errorf("expected 1 id, got %v", ids)
		}
	})

	t.Run("no match", func(t *testing.T) {
		ids, err := idx.PrefixRange(ctx, CollectionFirmware, "fileName", "zz", 0)
		if err != nil {
			t.Fatalf("PrefixRange failed: %v", err)
		}
		if len(ids) != 0 {
			t.Errorf("expected no ids, got %v", ids)
		}
	})
}

func TestFieldIndex_BrandNameCaseSensitive(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t)

	if err := idx.Update(ctx, CollectionBrands, "samsung", map[string]interface{}{
		"id": "samsung", "name": "Samsung",
	}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	ids, err := idx.PrefixRange(ctx, CollectionBrands, "name", "Sams", 0)
	if err != nil {
		t.Fatalf("PrefixRange failed: %v", err)
	}
	if len(ids) != 1 || ids[0] != "samsung" {
		t.Errorf("expected samsung, got %v", ids)
	}

	ids, err = idx.PrefixRange(ctx, CollectionBrands, "name", "sams", 0)
	if err != nil {
		t.Fatalf("PrefixRange failed: %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("brand name matching should be case-sensitive, got %v", ids)
	}
}

func TestFieldIndex_Members(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t)

	for id, brand := range map[string]string{
		"rom-a": "samsung",
		"rom-b": "samsung",
		"rom-c": "xiaomi",
	} {
		if err := idx.Update(ctx, CollectionFirmware, id, map[string]interface{}{
			"id": id, "fileName": id + ".zip", "brandId": brand,
		}); err != nil {
			t.Fatalf("Update failed: %v", err)
		}
	}

	ids, err := idx.Members(ctx, CollectionFirmware, "brandId", []string{"samsung"})
	if err != nil {
		t.Fatalf("Members failed: %v", err)
	}
	if len(ids) != 2 {
		t.Errorf("expected 2 ids, got %v", ids)
	}

	ids, err = idx.Members(ctx, CollectionFirmware, "brandId", []string{"samsung", "xiaomi"})
	if err != nil {
		t.Fatalf("Members failed: %v", err)
	}
	if len(ids) != 3 {
		t.Errorf("union expected 3 ids, got %v", ids)
	}

	ids, err = idx.Members(ctx, CollectionFirmware, "brandId", nil)
	if err != nil {
		t.Fatalf("Members failed: %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("empty value set must match nothing, got %v", ids)
	}
}

func TestFieldIndex_Remove(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t)

	doc := map[string]interface{}{"id": "rom-a", "fileName": "Rom_A.zip", "brandId": "samsung"}
	if err := idx.Update(ctx, CollectionFirmware, "rom-a", doc); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if err := idx.Remove(ctx, CollectionFirmware, "rom-a", doc); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}

	ids, _ := idx.PrefixRange(ctx, CollectionFirmware, "fileName", "rom", 0)
	if len(ids) != 0 {
		t.Errorf("ordered entry survived removal: %v", ids)
	}
	ids, _ = idx.Members(ctx, CollectionFirmware, "brandId", []string{"samsung"})
	if len(ids) != 0 {
		t.Errorf("membership entry survived removal: %v", ids)
	}
}

func TestShard_WritesKeepIndexCurrent(t *testing.T) {
	ctx := context.Background()
	shard := NewShard("shard0", NewFilesystemBackend(t.TempDir()))
	shard.SetIndex(newTestIndex(t))

	fw := Firmware{ID: "s24-rom", FileName: "S24_OneUI6.zip", BrandID: "samsung"}
	if err := shard.PutDoc(ctx, CollectionFirmware, fw.ID, fw); err != nil {
		t.Fatalf("PutDoc failed: %v", err)
	}

	ids, err := shard.Index().PrefixRange(ctx, CollectionFirmware, "fileName", "s24", 0)
	if err != nil {
		t.Fatalf("PrefixRange failed: %v", err)
	}
	if len(ids) != 1 || ids[0] != "s24-rom" {
		t.Errorf("put did not index the document: %v", ids)
	}

	if err := shard.DeleteDoc(ctx, CollectionFirmware, fw.ID); err != nil {
		t.Fatalf("DeleteDoc failed: %v", err)
	}
	ids, _ = shard.Index().PrefixRange(ctx, CollectionFirmware, "fileName", "s24", 0)
	if len(ids) != 0 {
		t.Errorf("delete left the index entry behind: %v", ids)
	}
}

func TestFieldIndex_PrefixRangeCoversWholeValueSpace(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t)

	// A value continuing past the term with an arbitrarily high codepoint
	// still has the term as a prefix and must match, same as the scan path
	if err := idx.Update(ctx, CollectionFirmware, "odd-rom", map[string]interface{}{
		"id": "odd-rom", "fileName": "s24\uf8ff.zip",
	}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	ids, err := idx.PrefixRange(ctx, CollectionFirmware, "fileName", "s24", 0)
	if err != nil {
		t.Fatalf("PrefixRange failed: %v", err)
	}
	if len(ids) != 1 || ids[0] != "odd-rom" {
		t.Errorf("high-codepoint value missed by prefix range: %v", ids)
	}
}

func TestShard_UpdateClearsStaleIndexEntries(t *testing.T) {
	ctx := context.Background()
	shard := NewShard("shard0", NewFilesystemBackend(t.TempDir()))
	shard.SetIndex(newTestIndex(t))

	fw := Firmware{ID: "s24-rom", FileName: "Old_Rom.zip", BrandID: "samsung"}
	if err := shard.PutDoc(ctx, CollectionFirmware, fw.ID, fw); err != nil {
		t.Fatalf("PutDoc failed: %v", err)
	}

	t.Run("merge replaces ordered entry", func(t *testing.T) {
		err := shard.MergeDoc(ctx, CollectionFirmware, fw.ID, map[string]interface{}{
			"fileName": "New_Rom.zip",
		})
		if err != nil {
			t.Fatalf("MergeDoc failed: %v", err)
		}

		ids, _ := shard.Index().PrefixRange(ctx, CollectionFirmware, "fileName", "old", 0)
		if len(ids) != 0 {
			t.Errorf("old file name still indexed after rename: %v", ids)
		}
		ids, _ = shard.Index().PrefixRange(ctx, CollectionFirmware, "fileName", "new", 0)
		if len(ids) != 1 || ids[0] != "s24-rom" {
			t.Errorf("new file name not indexed: %v", ids)
		}
	})

	t.Run("put replaces membership entry", func(t *testing.T) {
		moved := Firmware{ID: "s24-rom", FileName: "New_Rom.zip", BrandID: "xiaomi"}
		if err := shard.PutDoc(ctx, CollectionFirmware, moved.ID, moved); err != nil {
			t.Fatalf("PutDoc failed: %v", err)
		}

		ids, _ := shard.Index().Members(ctx, CollectionFirmware, "brandId", []string{"samsung"})
		if len(ids) != 0 {
			t.Errorf("old brand membership survived the rewrite: %v", ids)
		}
		ids, _ = shard.Index().Members(ctx, CollectionFirmware, "brandId", []string{"xiaomi"})
		if len(ids) != 1 || ids[0] != "s24-rom" {
			t.Errorf("new brand membership missing: %v", ids)
		}
	})
}

func TestSearcher_RenamedFirmwareDropsFromOldTerm(t *testing.T) {
	ctx := context.Background()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	shard := NewShard("shard0", NewFilesystemBackend(t.TempDir()))
	idx := NewFieldIndex(rdb, "idx:shard0")
	RegisterCatalogIndexes(idx)
	shard.SetIndex(idx)
	ss, _ := NewShardSet(shard)
	catalog := NewCatalog(ss)

	fw, err := catalog.AddFirmware(ctx, Firmware{FileName: "Old_Rom.zip", Version: "1.0"})
	if err != nil {
		t.Fatalf("AddFirmware failed: %v", err)
	}
	if err := catalog.Firmware.Update(ctx, fw.ID, map[string]interface{}{
		"fileName": "New_Rom.zip",
	}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	searcher := NewSearcher(ss)
	results, err := searcher.Search(ctx, "old", 0)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("renamed firmware still found under its old name: %+v", results)
	}

	results, err = searcher.Search(ctx, "new", 0)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 1 || results[0].FileName != "New_Rom.zip" {
		t.Errorf("renamed firmware not found under its new name: %+v", results)
	}
}

func TestRebuildShardIndex(t *testing.T) {
	ctx := context.Background()

	// Documents written before any index existed
	shard := NewShard("shard0", NewFilesystemBackend(t.TempDir()))
	fw := Firmware{ID: "s24-rom", FileName: "S24_OneUI6.zip", BrandID: "samsung"}
	if err := shard.PutDoc(ctx, CollectionFirmware, fw.ID, fw); err != nil {
		t.Fatalf("PutDoc failed: %v", err)
	}
	brand := Brand{ID: "samsung", Name: "Samsung"}
	if err := shard.PutDoc(ctx, CollectionBrands, brand.ID, brand); err != nil {
		t.Fatalf("PutDoc failed: %v", err)
	}

	shard.SetIndex(newTestIndex(t))

	report, err := RebuildShardIndex(ctx, shard)
	if err != nil {
		t.Fatalf("RebuildShardIndex failed: %v", err)
	}
	if report.Indexed[CollectionFirmware] != 1 || report.Indexed[CollectionBrands] != 1 {
		t.Errorf("unexpected report: %+v", report.Indexed)
	}

	ids, err := shard.Index().PrefixRange(ctx, CollectionFirmware, "fileName", "s24", 0)
	if err != nil {
		t.Fatalf("PrefixRange failed: %v", err)
	}
	if len(ids) != 1 {
		t.Errorf("rebuild did not index existing documents: %v", ids)
	}
}

func TestRebuildShardIndex_ClearsStaleEntries(t *testing.T) {
	ctx := context.Background()
	shard := NewShard("shard0", NewFilesystemBackend(t.TempDir()))
	idx := newTestIndex(t)
	shard.SetIndex(idx)

	fw := Firmware{ID: "s24-rom", FileName: "Old_Rom.zip", BrandID: "samsung"}
	if err := shard.PutDoc(ctx, CollectionFirmware, fw.ID, fw); err != nil {
		t.Fatalf("PutDoc failed: %v", err)
	}

	// A write that bypassed the index (crashed process, missed update)
	// leaves the index describing the old document
	shard.SetIndex(nil)
	fw.FileName = "New_Rom.zip"
	fw.BrandID = "xiaomi"
	if err := shard.PutDoc(ctx, CollectionFirmware, fw.ID, fw); err != nil {
		t.Fatalf("PutDoc failed: %v", err)
	}
	shard.SetIndex(idx)

	if _, err := RebuildShardIndex(ctx, shard); err != nil {
		t.Fatalf("RebuildShardIndex failed: %v", err)
	}

	ids, _ := idx.PrefixRange(ctx, CollectionFirmware, "fileName", "old", 0)
	if len(ids) != 0 {
		t.Errorf("rebuild kept a stale ordered entry: %v", ids)
	}
	ids, _ = idx.Members(ctx, CollectionFirmware, "brandId", []string{"samsung"})
	if len(ids) != 0 {
		t.Errorf("rebuild kept a stale membership entry: %v", ids)
	}
	ids, _ = idx.PrefixRange(ctx, CollectionFirmware, "fileName", "new", 0)
	if len(ids) != 1 || ids[0] != "s24-rom" {
		t.Errorf("rebuild missed the current file name: %v", ids)
	}
}

func TestSearcher_UsesRedisIndex(t *testing.T) {
	ctx := context.Background()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	shards := make([]*Shard, 2)
	for i := range shards {
		shards[i] = NewShard("shard"+string(rune('0'+i)), NewFilesystemBackend(t.TempDir()))
		idx := NewFieldIndex(rdb, "idx:shard"+string(rune('0'+i)))
		RegisterCatalogIndexes(idx)
		shards[i].SetIndex(idx)
	}
	ss, _ := NewShardSet(shards...)
	seedSearchFixture(t, ss)

	results, err := NewSearcher(ss).Search(ctx, "Sams", 0)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}

	ids := make(map[string]bool)
	for _, fw := range results {
		ids[fw.ID] = true
	}
	if !ids["s24-oneui"] || !ids["s23-oneui"] {
		t.Errorf("indexed search missed expansion results: %v", ids)
	}
}
