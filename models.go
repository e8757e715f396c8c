package firmstore

// Collection names. Every shard carries the same collections; the data they
// hold is disjoint.
const (
	CollectionBrands   = "brands"
	CollectionSeries   = "series"
	CollectionFirmware = "firmware"
	CollectionTools    = "tools"
	CollectionSettings = "settings"
)

// Entity is implemented by every document stored in the sharded catalog.
type Entity interface {
	// EntityID returns the document id, unique within a collection per shard.
	EntityID() string
	// SortKey returns the display field listings are sorted by.
	SortKey() string
}

// Brand is a device manufacturer. Its id is a slug derived from the name, so
// the same name always maps to the same id.
type Brand struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (b Brand) EntityID() string { return b.ID }
func (b Brand) SortKey() string  { return b.Name }

// Series is a device line belonging to a brand. BrandID must reference an
// existing brand at creation time.
type Series struct {
	ID      string `json:"id"`
	BrandID string `json:"brandId"`
	Name    string `json:"name"`
}

func (s Series) EntityID() string { return s.ID }
func (s Series) SortKey() string  { return s.Name }

// Firmware is a downloadable firmware package. DownloadCount is mutated only
// by the DownloadCounter and never decreases.
type Firmware struct {
	ID             string `json:"id"`
	SeriesID       string `json:"seriesId"`
	BrandID        string `json:"brandId"`
	FileName       string `json:"fileName"`
	Version        string `json:"version"`
	AndroidVersion string `json:"androidVersion"`
	Size           string `json:"size"`
	DownloadURL    string `json:"downloadUrl"`
	UploadDate     string `json:"uploadDate"`
	DownloadCount  int64  `json:"downloadCount"`
}

func (f Firmware) EntityID() string { return f.ID }
func (f Firmware) SortKey() string  { return f.FileName }

// Tool is a flashing utility. Created lazily the first time a brand's
// flashing instructions reference it.
type Tool struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	DownloadURL string `json:"downloadUrl,omitempty"`
}

func (t Tool) EntityID() string { return t.ID }
func (t Tool) SortKey() string  { return t.Name }

// InstructionStep is one step of a flashing guide.
type InstructionStep struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// FlashingInstructions is a per-brand flashing guide. Stored in the key-value
// store keyed by brand id, not in the sharded collections.
type FlashingInstructions struct {
	Introduction  string            `json:"introduction"`
	Prerequisites []string          `json:"prerequisites"`
	Instructions  []InstructionStep `json:"instructions"`
	Warning       string            `json:"warning"`
	Tool          string            `json:"tool,omitempty"`
}

// DailyAnalytics aggregates one UTC calendar day of site activity.
type DailyAnalytics struct {
	Visitors  int64 `json:"visitors"`
	Downloads int64 `json:"downloads"`
	AdsClicks int64 `json:"adsClicks"`
}

// AdSettings is a singleton configuration document in the settings collection.
type AdSettings struct {
	ID          string `json:"id"`
	Provider    string `json:"provider"`
	ClientID    string `json:"clientId"`
	SlotHeader  string `json:"slotHeader"`
	SlotContent string `json:"slotContent"`
	Enabled     bool   `json:"enabled"`
}

func (a AdSettings) EntityID() string { return a.ID }
func (a AdSettings) SortKey() string  { return a.ID }

// APIKeyConfig holds the hosted text-generation service key. Singleton.
type APIKeyConfig struct {
	ID  string `json:"id"`
	Key string `json:"key"`
}

func (k APIKeyConfig) EntityID() string { return k.ID }
func (k APIKeyConfig) SortKey() string  { return k.ID }

// HeaderScripts holds verification/analytics snippets injected site-wide.
// Singleton.
type HeaderScripts struct {
	ID      string `json:"id"`
	Scripts string `json:"scripts"`
}

func (h HeaderScripts) EntityID() string { return h.ID }
func (h HeaderScripts) SortKey() string  { return h.ID }

// Singleton document ids in the settings collection
const (
	SettingsAdsID           = "ads"
	SettingsAPIKeyID        = "api-key"
	SettingsHeaderScriptsID = "header-scripts"
)
