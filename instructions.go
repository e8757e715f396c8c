package firmstore

import (
	"context"
)

// InstructionsStore manages per-brand flashing guides. Guides live in the
// key-value store keyed by brand id, outside the sharded collections, and
// can be generated on demand when a brand has none yet.
type InstructionsStore struct {
	kv      KVStore
	catalog *Catalog
	gen     TextGenerator
	logger  Logger
}

// NewInstructionsStore creates the store. The generator may be nil, in which
// case GetOrGenerate degrades to Get.
func NewInstructionsStore(kv KVStore, catalog *Catalog, gen TextGenerator, logger Logger) *InstructionsStore {
	if logger == nil {
		logger = &NoOpLogger{}
	}
	return &InstructionsStore{kv: kv, catalog: catalog, gen: gen, logger: logger}
}

func instructionsPath(brandID string) string {
	return "instructions/" + brandID
}

// Get returns the stored flashing guide for a brand, or ErrNotFound
func (s *InstructionsStore) Get(ctx context.Context, brandID string) (*FlashingInstructions, error) {
	var guide FlashingInstructions
	if err := GetJSON(ctx, s.kv, instructionsPath(brandID), &guide); err != nil {
		return nil, err
	}
	return &guide, nil
}

// Put stores a flashing guide for a brand, replacing any existing one
func (s *InstructionsStore) Put(ctx context.Context, brandID string, guide *FlashingInstructions) error {
	return SetJSON(ctx, s.kv, instructionsPath(brandID), guide)
}

// GetOrGenerate returns the stored guide, generating and persisting one when
// the brand has none. The brand must exist in the catalog. When a generated
// guide names a flashing tool, the tool is created in the catalog on first
// reference.
func (s *InstructionsStore) GetOrGenerate(ctx context.Context, brandID string) (*FlashingInstructions, error) {
	guide, err := s.Get(ctx, brandID)
	if err == nil {
		return guide, nil
	}
	if !IsNotFound(err) || s.gen == nil {
		return nil, err
	}

	brand, err := s.catalog.Brands.GetByID(ctx, brandID)
	if err != nil {
		return nil, err
	}

	generated, err := s.gen.FlashingGuide(ctx, brand.Name)
	if err != nil {
		return nil, err
	}

	if generated.Tool != "" {
		if _, err := s.catalog.GetOrCreateTool(ctx, generated.Tool, ""); err != nil {
			s.logger.Warn("flashing tool not registered", map[string]interface{}{
				"brand": brandID, "tool": generated.Tool, "error": err.Error(),
			})
		}
	}

	if err := s.Put(ctx, brandID, generated); err != nil {
		return nil, err
	}
	s.logger.Info("flashing guide generated", map[string]interface{}{
		"brand": brandID, "steps": len(generated.Instructions),
	})
	return generated, nil
}
