package block

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
)

// Page is a page with its fields and its ordered blocks.
type Page struct {
	ID        string
	Title     string
	Slug      string
	Category  string
	Version   int64
	UpdatedAt time.Time
	Blocks    []Block
}

// Document is the persisted form of a Page. Block configs are kept as raw JSON
// so that pages written by other versions can still be loaded.
type Document struct {
	ID        string          `json:"id"`
	Title     string          `json:"title"`
	Slug      string          `json:"slug"`
	Category  string          `json:"category"`
	Version   int64           `json:"version"`
	UpdatedAt time.Time       `json:"updated_at"`
	Blocks    []BlockDocument `json:"blocks"`
}

type BlockDocument struct {
	ID     string          `json:"id"`
	Type   string          `json:"type"`
	Order  int             `json:"order"`
	Config json.RawMessage `json:"config"`
}

// Serialize returns the persisted form of p.
func Serialize(p Page) (Document, error) {
	doc := Document{
		ID:        p.ID,
		Title:     p.Title,
		Slug:      p.Slug,
		Category:  p.Category,
		Version:   p.Version,
		UpdatedAt: p.UpdatedAt,
		Blocks:    make([]BlockDocument, 0, len(p.Blocks)),
	}
	for _, b := range p.Blocks {
		if b.Config == nil || b.Config.Type() != b.Type {
			return Document{}, &InvalidConfigError{BlockID: b.ID, Type: b.Type, Reason: "config does not match block type"}
		}
		raw, err := json.Marshal(b.Config)
		if err != nil {
			return Document{}, errors.Wrapf(err, "serialize block %s", b.ID)
		}
		doc.Blocks = append(doc.Blocks, BlockDocument{ID: b.ID, Type: string(b.Type), Order: b.Order, Config: raw})
	}
	return doc, nil
}

// Deserialize rebuilds a Page from its persisted form.
// Blocks with an unknown type tag, an undecodable config or a duplicate id are skipped;
// they are reported by a *SerializationMismatchError returned alongside the usable page.
// The remaining blocks are sorted by their persisted order and re-numbered densely.
func Deserialize(doc Document) (Page, error) {
	p := Page{
		ID:        doc.ID,
		Title:     doc.Title,
		Slug:      doc.Slug,
		Category:  doc.Category,
		Version:   doc.Version,
		UpdatedAt: doc.UpdatedAt,
		Blocks:    make([]Block, 0, len(doc.Blocks)),
	}

	var skipped []SkippedBlock
	seen := make(map[string]struct{}, len(doc.Blocks))
	for _, bd := range doc.Blocks {
		if _, dup := seen[bd.ID]; dup || bd.ID == "" {
			skipped = append(skipped, SkippedBlock{ID: bd.ID, Tag: bd.Type, Reason: "missing or duplicate id"})
			continue
		}
		t, err := ParseType(bd.Type)
		if err != nil {
			skipped = append(skipped, SkippedBlock{ID: bd.ID, Tag: bd.Type, Reason: err.Error()})
			continue
		}
		cfg, err := DecodeConfig(t, bd.Config)
		if err != nil {
			skipped = append(skipped, SkippedBlock{ID: bd.ID, Tag: bd.Type, Reason: err.Error()})
			continue
		}
		seen[bd.ID] = struct{}{}
		p.Blocks = append(p.Blocks, Block{ID: bd.ID, Type: t, Order: bd.Order, Config: cfg})
	}

	sort.SliceStable(p.Blocks, func(i, j int) bool { return p.Blocks[i].Order < p.Blocks[j].Order })
	for i := range p.Blocks {
		p.Blocks[i].Order = i
	}

	if len(skipped) > 0 {
		return p, &SerializationMismatchError{PageID: doc.ID, Skipped: skipped}
	}
	return p, nil
}

// DecodeConfig decodes raw into the config variant of t.
// Missing fields keep their default values; an empty or null payload yields the default config.
func DecodeConfig(t Type, raw []byte) (Config, error) {
	return MatchType[decoded](t, decoder{raw: raw}).result()
}

type decoded struct {
	cfg Config
	err error
}

func (d decoded) result() (Config, error) { return d.cfg, d.err }

type decoder struct{ raw []byte }

var _ TypeCases[decoded] = decoder{}

func decodeInto[C Config](raw []byte, t Type) decoded {
	cfg := DefaultConfig(t).(C)
	if len(raw) == 0 || string(raw) == "null" {
		return decoded{cfg: cfg}
	}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return decoded{err: errors.Wrapf(err, "decode %s config", t)}
	}
	return decoded{cfg: cfg}
}

func (d decoder) Text() decoded         { return decodeInto[TextConfig](d.raw, TypeText) }
func (d decoder) Gallery() decoded      { return decodeInto[GalleryConfig](d.raw, TypeGallery) }
func (d decoder) Events() decoded       { return decodeInto[EventsConfig](d.raw, TypeEvents) }
func (d decoder) Leadership() decoded   { return decodeInto[LeadershipConfig](d.raw, TypeLeadership) }
func (d decoder) Achievements() decoded { return decodeInto[AchievementsConfig](d.raw, TypeAchievements) }
func (d decoder) Stats() decoded        { return decodeInto[StatsConfig](d.raw, TypeStats) }
func (d decoder) CTA() decoded          { return decodeInto[CTAConfig](d.raw, TypeCTA) }

// DecodeTagged decodes a {"type": ..., "config": {...}} payload,
// selecting the config variant by its type tag.
func DecodeTagged(data []byte) (Config, error) {
	if !gjson.ValidBytes(data) {
		return nil, errors.New("invalid JSON payload")
	}
	res := gjson.GetManyBytes(data, "type", "config")
	t, err := ParseType(res[0].String())
	if err != nil {
		return nil, err
	}
	return DecodeConfig(t, []byte(res[1].Raw))
}

// UnmarshalJSON decodes a block whose config variant is selected by its type tag.
func (b *Block) UnmarshalJSON(data []byte) error {
	cfg, err := DecodeTagged(data)
	if err != nil {
		return err
	}
	res := gjson.GetManyBytes(data, "id", "order")
	*b = Block{ID: res[0].String(), Type: cfg.Type(), Order: int(res[1].Int()), Config: cfg}
	return nil
}
