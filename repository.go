package firmstore

import (
	"context"
)

// Repository provides typed CRUD over one collection of a shard set. Reads
// probe or fan out across all shards; writes of new documents always land on
// the primary shard. Updates are routed to whichever shard currently holds
// the document, so legacy documents living on secondary shards stay where
// they are.
type Repository[T Entity] struct {
	shards     *ShardSet
	collection string
}

// NewRepository creates a repository over one collection
func NewRepository[T Entity](shards *ShardSet, collection string) *Repository[T] {
	return &Repository[T]{shards: shards, collection: collection}
}

// Collection returns the collection name the repository operates on
func (r *Repository[T]) Collection() string { return r.collection }

// GetByID probes the shards in order and returns the first match.
// Returns ErrNotFound when no shard holds the id.
func (r *Repository[T]) GetByID(ctx context.Context, id string) (*T, error) {
	doc, _, err := ProbeDoc[T](ctx, r.shards, r.collection, id)
	return doc, err
}

// Locate returns the document together with the shard that holds it
func (r *Repository[T]) Locate(ctx context.Context, id string) (*T, *Shard, error) {
	return ProbeDoc[T](ctx, r.shards, r.collection, id)
}

// Exists reports whether any shard holds the id
func (r *Repository[T]) Exists(ctx context.Context, id string) (bool, error) {
	_, err := r.GetByID(ctx, id)
	if err == nil {
		return true, nil
	}
	if IsNotFound(err) {
		return false, nil
	}
	return false, err
}

// GetAll returns the merged cross-shard listing of the collection, deduped
// by id (earliest shard wins) and sorted by sort key. All-or-nothing: one
// failing shard fails the whole listing.
func (r *Repository[T]) GetAll(ctx context.Context) ([]T, error) {
	return AggregateDocs[T](ctx, r.shards, r.collection)
}

// Create writes a new document to the primary shard
func (r *Repository[T]) Create(ctx context.Context, doc T) error {
	return r.shards.Primary().PutDoc(ctx, r.collection, doc.EntityID(), doc)
}

// Update applies a shallow field patch to the document on whichever shard
// holds it. Returns ErrNotFound if no shard does.
func (r *Repository[T]) Update(ctx context.Context, id string, patch map[string]interface{}) error {
	_, shard, err := ProbeDoc[T](ctx, r.shards, r.collection, id)
	if err != nil {
		return err
	}
	return shard.MergeDoc(ctx, r.collection, id, patch)
}

// Delete removes the document from whichever shard holds it
func (r *Repository[T]) Delete(ctx context.Context, id string) error {
	_, shard, err := ProbeDoc[T](ctx, r.shards, r.collection, id)
	if err != nil {
		return err
	}
	return shard.DeleteDoc(ctx, r.collection, id)
}

// Count sums the collection size across all shards. Duplicate ids (which the
// consistency checker flags) are counted once per shard here.
func (r *Repository[T]) Count(ctx context.Context) (int, error) {
	counts, err := FanOut(ctx, r.shards, func(ctx context.Context, shard *Shard) (int, error) {
		return shard.Count(ctx, r.collection)
	})
	if err != nil {
		return 0, err
	}
	total := 0
	for _, c := range counts {
		total += c
	}
	return total, nil
}

// Catalog bundles the typed repositories of the firmware catalog and the
// operations that span them (foreign-key checks, lazy tool creation,
// singleton settings).
type Catalog struct {
	Brands   *Repository[Brand]
	Series   *Repository[Series]
	Firmware *Repository[Firmware]
	Tools    *Repository[Tool]

	shards *ShardSet
}

// NewCatalog creates the catalog repositories over a shard set
func NewCatalog(shards *ShardSet) *Catalog {
	return &Catalog{
		Brands:   NewRepository[Brand](shards, CollectionBrands),
		Series:   NewRepository[Series](shards, CollectionSeries),
		Firmware: NewRepository[Firmware](shards, CollectionFirmware),
		Tools:    NewRepository[Tool](shards, CollectionTools),
		shards:   shards,
	}
}

// ShardSet returns the underlying shard set
func (c *Catalog) ShardSet() *ShardSet { return c.shards }

// CreateBrand creates a brand on the primary shard, deriving its id from the
// name. Re-creating an existing brand rewrites the same document.
func (c *Catalog) CreateBrand(ctx context.Context, name string) (Brand, error) {
	brand := Brand{ID: Slugify(name), Name: name}
	if brand.ID == "" {
		return Brand{}, WithContext(ErrInvalidData, map[string]interface{}{"name": name})
	}
	return brand, c.Brands.Create(ctx, brand)
}

// CreateSeries creates a series under a brand. The brand must already exist
// on some shard; if it does not, nothing is written and the brand lookup's
// ErrNotFound is returned.
func (c *Catalog) CreateSeries(ctx context.Context, brandID, name string) (Series, error) {
	if _, err := c.Brands.GetByID(ctx, brandID); err != nil {
		return Series{}, err
	}

	series := Series{ID: SeriesID(brandID, name), BrandID: brandID, Name: name}
	if series.ID == "" {
		return Series{}, WithContext(ErrInvalidData, map[string]interface{}{"name": name})
	}
	return series, c.Series.Create(ctx, series)
}

// AddFirmware stores a firmware document on the primary shard. A missing id
// is derived from the file name.
func (c *Catalog) AddFirmware(ctx context.Context, fw Firmware) (Firmware, error) {
	if fw.ID == "" {
		fw.ID = Slugify(fw.FileName)
	}
	if fw.ID == "" {
		return Firmware{}, WithContext(ErrInvalidData, map[string]interface{}{"fileName": fw.FileName})
	}
	return fw, c.Firmware.Create(ctx, fw)
}

// GetOrCreateTool returns the tool with the slug of name, creating it on the
// primary shard if no shard holds it yet.
func (c *Catalog) GetOrCreateTool(ctx context.Context, name, description string) (Tool, error) {
	id := Slugify(name)
	if id == "" {
		return Tool{}, WithContext(ErrInvalidData, map[string]interface{}{"name": name})
	}

	existing, err := c.Tools.GetByID(ctx, id)
	if err == nil {
		return *existing, nil
	}
	if !IsNotFound(err) {
		return Tool{}, err
	}

	tool := Tool{ID: id, Name: name, Description: description}
	return tool, c.Tools.Create(ctx, tool)
}

// Singleton settings live on the primary shard only; reads do not probe.

// GetAdSettings reads the singleton ad configuration from the primary shard
func (c *Catalog) GetAdSettings(ctx context.Context) (*AdSettings, error) {
	var s AdSettings
	if err := c.shards.Primary().GetDoc(ctx, CollectionSettings, SettingsAdsID, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// SetAdSettings writes the singleton ad configuration
func (c *Catalog) SetAdSettings(ctx context.Context, s AdSettings) error {
	s.ID = SettingsAdsID
	return c.shards.Primary().PutDoc(ctx, CollectionSettings, SettingsAdsID, s)
}

// GetAPIKey reads the text-generation API key configuration
func (c *Catalog) GetAPIKey(ctx context.Context) (*APIKeyConfig, error) {
	var k APIKeyConfig
	if err := c.shards.Primary().GetDoc(ctx, CollectionSettings, SettingsAPIKeyID, &k); err != nil {
		return nil, err
	}
	return &k, nil
}

// SetAPIKey writes the text-generation API key configuration
func (c *Catalog) SetAPIKey(ctx context.Context, k APIKeyConfig) error {
	k.ID = SettingsAPIKeyID
	return c.shards.Primary().PutDoc(ctx, CollectionSettings, SettingsAPIKeyID, k)
}

// GetHeaderScripts reads the singleton header-scripts document
func (c *Catalog) GetHeaderScripts(ctx context.Context) (*HeaderScripts, error) {
	var h HeaderScripts
	if err := c.shards.Primary().GetDoc(ctx, CollectionSettings, SettingsHeaderScriptsID, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// SetHeaderScripts writes the singleton header-scripts document
func (c *Catalog) SetHeaderScripts(ctx context.Context, h HeaderScripts) error {
	h.ID = SettingsHeaderScriptsID
	return c.shards.Primary().PutDoc(ctx, CollectionSettings, SettingsHeaderScriptsID, h)
}
