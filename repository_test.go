package firmstore

import (
	"context"
	"testing"
)

func TestCatalog_CreateBrandOnPrimary(t *testing.T) {
	ctx := context.Background()
	ss := newTestShardSet(t, 2)
	catalog := NewCatalog(ss)

	brand, err := catalog.CreateBrand(ctx, "Samsung")
	if err != nil {
		t.Fatalf("CreateBrand failed: %v", err)
	}
	if brand.ID != "samsung" {
		t.Errorf("unexpected brand id %q", brand.ID)
	}

	// The document must live on the primary, not the secondary
	var got Brand
	if err := ss.Primary().GetDoc(ctx, CollectionBrands, "samsung", &got); err != nil {
		t.Fatalf("brand not on primary: %v", err)
	}
	if err := ss.Shards()[1].GetDoc(ctx, CollectionBrands, "samsung", &got); !IsNotFound(err) {
		t.Errorf("brand unexpectedly on secondary: %v", err)
	}
}

func TestCatalog_CreateSeriesRequiresBrand(t *testing.T) {
	ctx := context.Background()
	ss := newTestShardSet(t, 2)
	catalog := NewCatalog(ss)

	t.Run("missing brand fails without writing", func(t *testing.T) {
		_, err := catalog.CreateSeries(ctx, "nokia", "Lumia")
		if !IsNotFound(err) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}

		n, err := catalog.Series.Count(ctx)
		if err != nil {
			t.Fatalf("Count failed: %v", err)
		}
		if n != 0 {
			t.Errorf("series written despite failed precondition: %d docs", n)
		}
	})

	t.Run("brand on any shard satisfies the check", func(t *testing.T) {
		// Brand lives on the secondary shard (legacy data)
		legacy := Brand{ID: "nokia", Name: "Nokia"}
		if err := ss.Shards()[1].PutDoc(ctx, CollectionBrands, legacy.ID, legacy); err != nil {
			t.Fatalf("PutDoc failed: %v", err)
		}

		series, err := catalog.CreateSeries(ctx, "nokia", "Lumia")
		if err != nil {
			t.Fatalf("CreateSeries failed: %v", err)
		}
		if series.ID != "nokia-lumia" || series.BrandID != "nokia" {
			t.Errorf("unexpected series: %+v", series)
		}

		// New series still lands on the primary
		var got Series
		if err := ss.Primary().GetDoc(ctx, CollectionSeries, series.ID, &got); err != nil {
			t.Errorf("series not on primary: %v", err)
		}
	})
}

func TestRepository_UpdateRoutesToHolder(t *testing.T) {
	ctx := context.Background()
	ss := newTestShardSet(t, 3)
	catalog := NewCatalog(ss)

	// Legacy firmware on the last shard
	fw := Firmware{ID: "old-rom", FileName: "old_rom.zip", Version: "1.0"}
	if err := ss.Shards()[2].PutDoc(ctx, CollectionFirmware, fw.ID, fw); err != nil {
		t.Fatalf("PutDoc failed: %v", err)
	}

	if err := catalog.Firmware.Update(ctx, "old-rom", map[string]interface{}{"version": "1.1"}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	// Updated in place, not migrated to the primary
	var got Firmware
	if err := ss.Shards()[2].GetDoc(ctx, CollectionFirmware, "old-rom", &got); err != nil {
		t.Fatalf("GetDoc failed: %v", err)
	}
	if got.Version != "1.1" || got.FileName != "old_rom.zip" {
		t.Errorf("merge lost fields: %+v", got)
	}
	if err := ss.Primary().GetDoc(ctx, CollectionFirmware, "old-rom", &got); !IsNotFound(err) {
		t.Errorf("update migrated the document to the primary: %v", err)
	}
}

func TestRepository_UpdateMissing(t *testing.T) {
	ctx := context.Background()
	catalog := NewCatalog(newTestShardSet(t, 2))

	err := catalog.Firmware.Update(ctx, "ghost", map[string]interface{}{"version": "2.0"})
	if !IsNotFound(err) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestCatalog_GetOrCreateTool(t *testing.T) {
	ctx := context.Background()
	catalog := NewCatalog(newTestShardSet(t, 2))

	first, err := catalog.GetOrCreateTool(ctx, "Odin", "Samsung flash tool")
	if err != nil {
		t.Fatalf("GetOrCreateTool failed: %v", err)
	}
	if first.ID != "odin" {
		t.Errorf("unexpected tool id %q", first.ID)
	}

	// Second call with a different description returns the existing tool
	second, err := catalog.GetOrCreateTool(ctx, "Odin", "something else")
	if err != nil {
		t.Fatalf("GetOrCreateTool failed: %v", err)
	}
	if second.Description != "Samsung flash tool" {
		t.Errorf("existing tool overwritten: %+v", second)
	}

	n, _ := catalog.Tools.Count(ctx)
	if n != 1 {
		t.Errorf("expected 1 tool, got %d", n)
	}
}

func TestCatalog_SingletonSettings(t *testing.T) {
	ctx := context.Background()
	catalog := NewCatalog(newTestShardSet(t, 2))

	if _, err := catalog.GetAdSettings(ctx); !IsNotFound(err) {
		t.Errorf("expected ErrNotFound before write, got %v", err)
	}

	if err := catalog.SetAdSettings(ctx, AdSettings{Provider: "adsense", Enabled: true}); err != nil {
		t.Fatalf("SetAdSettings failed: %v", err)
	}

	got, err := catalog.GetAdSettings(ctx)
	if err != nil {
		t.Fatalf("GetAdSettings failed: %v", err)
	}
	if got.ID != SettingsAdsID || !got.Enabled {
		t.Errorf("unexpected settings: %+v", got)
	}
}

func TestRepository_GetAllAcrossShards(t *testing.T) {
	ctx := context.Background()
	ss := newTestShardSet(t, 2)
	catalog := NewCatalog(ss)

	if _, err := catalog.CreateBrand(ctx, "Samsung"); err != nil {
		t.Fatalf("CreateBrand failed: %v", err)
	}
	legacy := Brand{ID: "xiaomi", Name: "Xiaomi"}
	if err := ss.Shards()[1].PutDoc(ctx, CollectionBrands, legacy.ID, legacy); err != nil {
		t.Fatalf("PutDoc failed: %v", err)
	}

	brands, err := catalog.Brands.GetAll(ctx)
	if err != nil {
		t.Fatalf("GetAll failed: %v", err)
	}
	if len(brands) != 2 {
		t.Fatalf("expected 2 brands, got %d", len(brands))
	}
	if brands[0].Name != "Samsung" || brands[1].Name != "Xiaomi" {
		t.Errorf("unexpected order: %+v", brands)
	}
}
