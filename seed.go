package firmstore

import (
	"context"
)

// SeedSeries describes one series of a seed brand
type SeedSeries struct {
	Name     string     `json:"name"`
	Firmware []Firmware `json:"firmware,omitempty"`
}

// SeedBrand describes one brand and its series for seeding
type SeedBrand struct {
	Name   string       `json:"name"`
	Series []SeedSeries `json:"series,omitempty"`
}

// Seeder loads an initial catalog onto the primary shard. Seeding is
// idempotent: ids are slugs of names, and anything already present on any
// shard is left untouched, so re-running a seed never duplicates documents
// or resets download counts.
type Seeder struct {
	catalog *Catalog
	logger  Logger
}

// NewSeeder creates a seeder over the catalog
func NewSeeder(catalog *Catalog) *Seeder {
	return &Seeder{catalog: catalog, logger: catalog.ShardSet().Logger()}
}

// EnsureBrand creates the brand unless some shard already holds it.
// Returns the brand and whether it was created.
func (s *Seeder) EnsureBrand(ctx context.Context, name string) (Brand, bool, error) {
	id := Slugify(name)
	if existing, err := s.catalog.Brands.GetByID(ctx, id); err == nil {
		return *existing, false, nil
	} else if !IsNotFound(err) {
		return Brand{}, false, err
	}

	brand, err := s.catalog.CreateBrand(ctx, name)
	return brand, err == nil, err
}

// EnsureSeries creates the series under the brand unless it already exists
func (s *Seeder) EnsureSeries(ctx context.Context, brandID, name string) (Series, bool, error) {
	id := SeriesID(brandID, name)
	if existing, err := s.catalog.Series.GetByID(ctx, id); err == nil {
		return *existing, false, nil
	} else if !IsNotFound(err) {
		return Series{}, false, err
	}

	series, err := s.catalog.CreateSeries(ctx, brandID, name)
	return series, err == nil, err
}

// EnsureFirmware creates the firmware unless it already exists
func (s *Seeder) EnsureFirmware(ctx context.Context, fw Firmware) (Firmware, bool, error) {
	if fw.ID == "" {
		fw.ID = Slugify(fw.FileName)
	}
	if existing, err := s.catalog.Firmware.GetByID(ctx, fw.ID); err == nil {
		return *existing, false, nil
	} else if !IsNotFound(err) {
		return Firmware{}, false, err
	}

	created, err := s.catalog.AddFirmware(ctx, fw)
	return created, err == nil, err
}

// Seed loads the whole seed set, reporting how many documents were created
func (s *Seeder) Seed(ctx context.Context, brands []SeedBrand) (created int, err error) {
	for _, sb := range brands {
		brand, madeBrand, err := s.EnsureBrand(ctx, sb.Name)
		if err != nil {
			return created, err
		}
		if madeBrand {
			created++
		}

		for _, ss := range sb.Series {
			series, madeSeries, err := s.EnsureSeries(ctx, brand.ID, ss.Name)
			if err != nil {
				return created, err
			}
			if madeSeries {
				created++
			}

			for _, fw := range ss.Firmware {
				fw.BrandID = brand.ID
				fw.SeriesID = series.ID
				_, madeFw, err := s.EnsureFirmware(ctx, fw)
				if err != nil {
					return created, err
				}
				if madeFw {
					created++
				}
			}
		}
	}

	s.logger.Info("seed complete", map[string]interface{}{"created": created})
	return created, nil
}
