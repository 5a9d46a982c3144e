package block

import (
	"fmt"
	"slices"
)

// AssetRefs returns the asset references held by cfg, in field order.
func AssetRefs(cfg Config) []string {
	if cfg == nil {
		return nil
	}
	return Visit[[]string](cfg, assetRefs{})
}

// DroppedAssets returns the references held by before that after no longer holds.
func DroppedAssets(before, after Config) []string {
	kept := AssetRefs(after)
	var dropped []string
	for _, ref := range AssetRefs(before) {
		if !slices.Contains(kept, ref) && !slices.Contains(dropped, ref) {
			dropped = append(dropped, ref)
		}
	}
	return dropped
}

type assetRefs struct{}

var _ Visitor[[]string] = assetRefs{}

func (assetRefs) Text(TextConfig) []string { return nil }

func (assetRefs) Gallery(c GalleryConfig) []string { return c.Images }

func (assetRefs) Events(EventsConfig) []string { return nil }

func (assetRefs) Leadership(c LeadershipConfig) []string {
	var refs []string
	for _, m := range c.Members {
		if m.ImageURL != "" {
			refs = append(refs, m.ImageURL)
		}
	}
	return refs
}

func (assetRefs) Achievements(AchievementsConfig) []string { return nil }
func (assetRefs) Stats(StatsConfig) []string               { return nil }
func (assetRefs) CTA(CTAConfig) []string                   { return nil }

// HasAssetSlots reports whether blocks of type t hold uploaded assets.
func HasAssetSlots(t Type) bool {
	return t == TypeGallery || t == TypeLeadership
}

// AssetSlot is what an asset slot held when an upload into it started.
// Uploads land on that content again, wherever it has moved since.
type AssetSlot struct {
	Index  int
	Append bool    // a new gallery image
	Ref    string  // the gallery image being replaced
	Member *Member // the member whose photo is being replaced
}

// SlotAt returns the asset slot at index of cfg. Gallery slots are the images plus one past
// the end for a new image; leadership slots are member photos.
// It fails with an InvalidConfigError when cfg has no such slot.
func SlotAt(cfg Config, index int) (AssetSlot, error) {
	res := Visit[slotResult](cfg, slotFinder{index: index})
	return res.slot, res.err
}

// PlaceAsset stores ref in slot, found again by its content, and returns the new config.
// It fails with ErrSlotGone when the image or member of slot is no longer in cfg.
func PlaceAsset(cfg Config, slot AssetSlot, ref string) (Config, error) {
	res := Visit[placeResult](cfg, assetPlacer{slot: slot, ref: ref})
	return res.cfg, res.err
}

func noSlot(t Type, index int) error {
	return &InvalidConfigError{Type: t, Reason: fmt.Sprintf("no asset slot %d", index)}
}

type slotResult struct {
	slot AssetSlot
	err  error
}

type slotFinder struct{ index int }

var _ Visitor[slotResult] = slotFinder{}

func (f slotFinder) none(t Type) slotResult { return slotResult{err: noSlot(t, f.index)} }

func (f slotFinder) Text(TextConfig) slotResult { return f.none(TypeText) }

func (f slotFinder) Gallery(c GalleryConfig) slotResult {
	switch {
	case f.index < 0 || f.index > len(c.Images):
		return f.none(TypeGallery)
	case f.index == len(c.Images):
		return slotResult{slot: AssetSlot{Index: f.index, Append: true}}
	}
	return slotResult{slot: AssetSlot{Index: f.index, Ref: c.Images[f.index]}}
}

func (f slotFinder) Events(EventsConfig) slotResult { return f.none(TypeEvents) }

func (f slotFinder) Leadership(c LeadershipConfig) slotResult {
	if f.index < 0 || f.index >= len(c.Members) {
		return f.none(TypeLeadership)
	}
	m := c.Members[f.index]
	return slotResult{slot: AssetSlot{Index: f.index, Member: &m}}
}

func (f slotFinder) Achievements(AchievementsConfig) slotResult { return f.none(TypeAchievements) }
func (f slotFinder) Stats(StatsConfig) slotResult               { return f.none(TypeStats) }
func (f slotFinder) CTA(CTAConfig) slotResult                   { return f.none(TypeCTA) }

type placeResult struct {
	cfg Config
	err error
}

type assetPlacer struct {
	slot AssetSlot
	ref  string
}

var _ Visitor[placeResult] = assetPlacer{}

func (p assetPlacer) none(t Type) placeResult { return placeResult{err: noSlot(t, p.slot.Index)} }

func (p assetPlacer) Text(TextConfig) placeResult { return p.none(TypeText) }

func (p assetPlacer) Gallery(c GalleryConfig) placeResult {
	if p.slot.Append {
		c.Images = append(c.Images, p.ref)
		return placeResult{cfg: c}
	}
	if p.slot.Ref == "" {
		return p.none(TypeGallery)
	}
	i := slices.Index(c.Images, p.slot.Ref)
	if i < 0 {
		return placeResult{err: ErrSlotGone}
	}
	c.Images[i] = p.ref
	return placeResult{cfg: c}
}

func (p assetPlacer) Events(EventsConfig) placeResult { return p.none(TypeEvents) }

func (p assetPlacer) Leadership(c LeadershipConfig) placeResult {
	if p.slot.Member == nil {
		return p.none(TypeLeadership)
	}
	i := slices.Index(c.Members, *p.slot.Member)
	if i < 0 {
		return placeResult{err: ErrSlotGone}
	}
	c.Members[i].ImageURL = p.ref
	return placeResult{cfg: c}
}

func (p assetPlacer) Achievements(AchievementsConfig) placeResult { return p.none(TypeAchievements) }
func (p assetPlacer) Stats(StatsConfig) placeResult               { return p.none(TypeStats) }
func (p assetPlacer) CTA(CTAConfig) placeResult                   { return p.none(TypeCTA) }
