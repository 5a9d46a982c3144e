package block

import (
	"fmt"
	"slices"
	"strconv"

	"github.com/trezcool/vitrine/core"
)

// FieldKind tells the editing surface which input to show for a field.
type FieldKind string

const (
	KindText     FieldKind = "text"
	KindTextarea FieldKind = "textarea"
	KindMarkdown FieldKind = "markdown"
	KindSelect   FieldKind = "select"
	KindStrings  FieldKind = "strings" // list of plain strings
	KindList     FieldKind = "list"    // list of records described by Item
	KindAsset    FieldKind = "asset"   // single asset reference
	KindAssets   FieldKind = "assets"  // list of asset references
)

// Field is one input of an editor form.
type Field struct {
	Name     string      `json:"name"`
	Label    string      `json:"label"`
	Kind     FieldKind   `json:"kind"`
	Required bool        `json:"required,omitempty"`
	Options  []string    `json:"options,omitempty"`
	Item     []Field     `json:"item,omitempty"`
	Value    interface{} `json:"value,omitempty"`
}

// FieldOp is an edit applied to a form field.
type FieldOp string

const (
	FieldSet    FieldOp = "set"
	FieldAppend FieldOp = "append"
	FieldRemove FieldOp = "remove"
	FieldMove   FieldOp = "move"
)

// FieldChange is a single edit made on a form.
// For lists, Index selects the item, Key the item's sub-field (empty for plain strings)
// and To the destination of a move.
type FieldChange struct {
	Op    FieldOp `json:"op"`
	Field string  `json:"field"`
	Index int     `json:"index"`
	To    int     `json:"to"`
	Key   string  `json:"key"`
	Value string  `json:"value"`
}

// Updater receives the configs produced by a Form. *Store satisfies it.
type Updater interface {
	Update(id string, cfg Config) (Block, error)
}

var _ Updater = (*Store)(nil)

// Form is the variant-specific editor of one block.
type Form struct {
	BlockID string  `json:"block_id"`
	Type    Type    `json:"type"`
	Fields  []Field `json:"fields"`

	block   Block
	updater Updater
}

// Edit returns the editor form of b. Changes applied to the form are written through u.
func Edit(b Block, u Updater) *Form {
	return &Form{
		BlockID: b.ID,
		Type:    b.Type,
		Fields:  Visit[editor](b.Config, editors{}).fields(),
		block:   b.clone(),
		updater: u,
	}
}

// Config returns a copy of the config the form is bound to.
func (f *Form) Config() Config { return f.block.Config.clone() }

// Apply computes the new config for ch, sends it through the form's updater,
// and returns the form bound to the updated block.
func (f *Form) Apply(ch FieldChange) (*Form, error) {
	cfg, err := Visit[editor](f.block.Config, editors{}).apply(ch)
	if err != nil {
		if icErr, ok := err.(*InvalidConfigError); ok {
			icErr.BlockID = f.BlockID
			icErr.Type = f.Type
		}
		return nil, err
	}
	b, err := f.updater.Update(f.BlockID, cfg)
	if err != nil {
		return nil, err
	}
	return Edit(b, f.updater), nil
}

// ApplyAll applies changes in order and stops at the first failure.
func (f *Form) ApplyAll(changes []FieldChange) (*Form, error) {
	form := f
	for _, ch := range changes {
		next, err := form.Apply(ch)
		if err != nil {
			return form, err
		}
		form = next
	}
	return form, nil
}

type editor interface {
	fields() []Field
	apply(ch FieldChange) (Config, error)
}

type editors struct{}

var _ Visitor[editor] = editors{}

func (editors) Text(c TextConfig) editor                 { return textEditor{c} }
func (editors) Gallery(c GalleryConfig) editor           { return galleryEditor{c} }
func (editors) Events(c EventsConfig) editor             { return eventsEditor{c} }
func (editors) Leadership(c LeadershipConfig) editor     { return leadershipEditor{c} }
func (editors) Achievements(c AchievementsConfig) editor { return achievementsEditor{c} }
func (editors) Stats(c StatsConfig) editor               { return statsEditor{c} }
func (editors) CTA(c CTAConfig) editor                   { return ctaEditor{c} }

var (
	alignmentOptions = []string{string(AlignLeft), string(AlignCenter), string(AlignRight)}
	fontSizeOptions  = []string{string(FontSmall), string(FontMedium), string(FontLarge)}
	gridViewOptions  = []string{"1", "2", "3", "4"}
)

// text

type textEditor struct{ c TextConfig }

func (e textEditor) fields() []Field {
	return []Field{
		{Name: "content", Label: "Content", Kind: KindMarkdown, Value: e.c.Content},
		{Name: "alignment", Label: "Alignment", Kind: KindSelect, Options: alignmentOptions, Value: e.c.Alignment},
		{Name: "fontSize", Label: "Font size", Kind: KindSelect, Options: fontSizeOptions, Value: e.c.FontSize},
	}
}

func (e textEditor) apply(ch FieldChange) (Config, error) {
	c := e.c
	if err := scalarOp(ch); err != nil {
		return nil, err
	}
	switch ch.Field {
	case "content":
		c.Content = ch.Value
	case "alignment":
		c.Alignment = Alignment(ch.Value)
	case "fontSize":
		c.FontSize = FontSize(ch.Value)
	default:
		return nil, unknownField(ch.Field)
	}
	return c, nil
}

// gallery

type galleryEditor struct{ c GalleryConfig }

func (e galleryEditor) fields() []Field {
	return []Field{
		{Name: "title", Label: "Title", Kind: KindText, Required: true, Value: e.c.Title},
		{Name: "description", Label: "Description", Kind: KindTextarea, Value: e.c.Description},
		{Name: "gridView", Label: "Columns", Kind: KindSelect, Options: gridViewOptions, Value: e.c.GridView},
		{Name: "images", Label: "Images", Kind: KindAssets, Value: e.c.Images},
	}
}

func (e galleryEditor) apply(ch FieldChange) (Config, error) {
	c := e.c.clone().(GalleryConfig)
	if ch.Field == "images" {
		images, err := editStrings(c.Images, ch)
		if err != nil {
			return nil, err
		}
		c.Images = images
		return c, nil
	}

	if err := scalarOp(ch); err != nil {
		return nil, err
	}
	switch ch.Field {
	case "title":
		c.Title = ch.Value
	case "description":
		c.Description = ch.Value
	case "gridView":
		n, err := strconv.Atoi(ch.Value)
		if err != nil {
			return nil, fieldError("gridView", "gridView must be a number")
		}
		c.GridView = n
	default:
		return nil, unknownField(ch.Field)
	}
	return c, nil
}

// events

type eventsEditor struct{ c EventsConfig }

var eventItem = []Field{
	{Name: "title", Label: "Title", Kind: KindText},
	{Name: "date", Label: "Date", Kind: KindText},
	{Name: "time", Label: "Time", Kind: KindText},
	{Name: "location", Label: "Location", Kind: KindText},
	{Name: "description", Label: "Description", Kind: KindTextarea},
}

func (e eventsEditor) fields() []Field {
	return []Field{
		{Name: "title", Label: "Title", Kind: KindText, Value: e.c.Title},
		{Name: "layout", Label: "Layout", Kind: KindSelect, Options: []string{string(LayoutList), string(LayoutGrid)}, Value: e.c.Layout},
		{Name: "events", Label: "Events", Kind: KindList, Item: eventItem, Value: e.c.Events},
	}
}

func (e eventsEditor) apply(ch FieldChange) (Config, error) {
	c := e.c.clone().(EventsConfig)
	if ch.Field == "events" {
		events, err := editRecords(c.Events, ch, func(ev *Event, key string) *string {
			switch key {
			case "title":
				return &ev.Title
			case "date":
				return &ev.Date
			case "time":
				return &ev.Time
			case "location":
				return &ev.Location
			case "description":
				return &ev.Description
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		c.Events = events
		return c, nil
	}

	if err := scalarOp(ch); err != nil {
		return nil, err
	}
	switch ch.Field {
	case "title":
		c.Title = ch.Value
	case "layout":
		c.Layout = Layout(ch.Value)
	default:
		return nil, unknownField(ch.Field)
	}
	return c, nil
}

// leadership

type leadershipEditor struct{ c LeadershipConfig }

var memberItem = []Field{
	{Name: "name", Label: "Name", Kind: KindText},
	{Name: "role", Label: "Role", Kind: KindText},
	{Name: "year", Label: "Year", Kind: KindText},
	{Name: "course", Label: "Course", Kind: KindText},
	{Name: "imageUrl", Label: "Photo", Kind: KindAsset},
}

func (e leadershipEditor) fields() []Field {
	return []Field{
		{Name: "title", Label: "Title", Kind: KindText, Value: e.c.Title},
		{Name: "layout", Label: "Layout", Kind: KindSelect, Options: []string{string(LayoutGrid), string(LayoutList)}, Value: e.c.Layout},
		{Name: "members", Label: "Members", Kind: KindList, Item: memberItem, Value: e.c.Members},
	}
}

func (e leadershipEditor) apply(ch FieldChange) (Config, error) {
	c := e.c.clone().(LeadershipConfig)
	if ch.Field == "members" {
		members, err := editRecords(c.Members, ch, func(m *Member, key string) *string {
			switch key {
			case "name":
				return &m.Name
			case "role":
				return &m.Role
			case "year":
				return &m.Year
			case "course":
				return &m.Course
			case "imageUrl":
				return &m.ImageURL
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		c.Members = members
		return c, nil
	}

	if err := scalarOp(ch); err != nil {
		return nil, err
	}
	switch ch.Field {
	case "title":
		c.Title = ch.Value
	case "layout":
		c.Layout = Layout(ch.Value)
	default:
		return nil, unknownField(ch.Field)
	}
	return c, nil
}

// achievements

type achievementsEditor struct{ c AchievementsConfig }

func (e achievementsEditor) fields() []Field {
	return []Field{
		{Name: "title", Label: "Title", Kind: KindText, Value: e.c.Title},
		{Name: "style", Label: "Style", Kind: KindSelect, Options: []string{string(StyleList), string(StyleBadges)}, Value: e.c.Style},
		{Name: "achievements", Label: "Achievements", Kind: KindStrings, Value: e.c.Achievements},
	}
}

func (e achievementsEditor) apply(ch FieldChange) (Config, error) {
	c := e.c.clone().(AchievementsConfig)
	if ch.Field == "achievements" {
		items, err := editStrings(c.Achievements, ch)
		if err != nil {
			return nil, err
		}
		c.Achievements = items
		return c, nil
	}

	if err := scalarOp(ch); err != nil {
		return nil, err
	}
	switch ch.Field {
	case "title":
		c.Title = ch.Value
	case "style":
		c.Style = Style(ch.Value)
	default:
		return nil, unknownField(ch.Field)
	}
	return c, nil
}

// stats

type statsEditor struct{ c StatsConfig }

var statItem = []Field{
	{Name: "label", Label: "Label", Kind: KindText},
	{Name: "value", Label: "Value", Kind: KindText},
	{Name: "icon", Label: "Icon", Kind: KindText},
}

func (e statsEditor) fields() []Field {
	return []Field{
		{Name: "layout", Label: "Layout", Kind: KindSelect, Options: []string{string(LayoutHorizontal), string(LayoutGrid)}, Value: e.c.Layout},
		{Name: "stats", Label: "Stats", Kind: KindList, Item: statItem, Value: e.c.Stats},
	}
}

func (e statsEditor) apply(ch FieldChange) (Config, error) {
	c := e.c.clone().(StatsConfig)
	if ch.Field == "stats" {
		stats, err := editRecords(c.Stats, ch, func(s *Stat, key string) *string {
			switch key {
			case "label":
				return &s.Label
			case "value":
				return &s.Value
			case "icon":
				return &s.Icon
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		c.Stats = stats
		return c, nil
	}

	if err := scalarOp(ch); err != nil {
		return nil, err
	}
	switch ch.Field {
	case "layout":
		c.Layout = Layout(ch.Value)
	default:
		return nil, unknownField(ch.Field)
	}
	return c, nil
}

// cta

type ctaEditor struct{ c CTAConfig }

func (e ctaEditor) fields() []Field {
	return []Field{
		{Name: "title", Label: "Title", Kind: KindText, Required: true, Value: e.c.Title},
		{Name: "link", Label: "Link", Kind: KindText, Required: true, Value: e.c.Link},
		{Name: "description", Label: "Description", Kind: KindTextarea, Value: e.c.Description},
	}
}

func (e ctaEditor) apply(ch FieldChange) (Config, error) {
	c := e.c
	if err := scalarOp(ch); err != nil {
		return nil, err
	}
	switch ch.Field {
	case "title":
		c.Title = ch.Value
	case "link":
		c.Link = core.CleanString(ch.Value)
	case "description":
		c.Description = ch.Value
	default:
		return nil, unknownField(ch.Field)
	}
	return c, nil
}

// list helpers

func editStrings(items []string, ch FieldChange) ([]string, error) {
	if ch.Op == FieldSet {
		if err := checkIndex(ch.Field, ch.Index, len(items)); err != nil {
			return nil, err
		}
		items[ch.Index] = ch.Value
		return items, nil
	}
	return editList(items, ch, func() string { return ch.Value })
}

// editRecords edits a list of records whose fields are all strings; field maps a key to the record's field.
func editRecords[T any](items []T, ch FieldChange, field func(*T, string) *string) ([]T, error) {
	if ch.Op == FieldSet {
		if err := checkIndex(ch.Field, ch.Index, len(items)); err != nil {
			return nil, err
		}
		p := field(&items[ch.Index], ch.Key)
		if p == nil {
			return nil, unknownField(fmt.Sprintf("%s[%d].%s", ch.Field, ch.Index, ch.Key))
		}
		*p = ch.Value
		return items, nil
	}
	return editList(items, ch, func() T {
		var zero T
		return zero
	})
}

// editList handles the structural list edits; items must already be a private copy.
func editList[T any](items []T, ch FieldChange, newItem func() T) ([]T, error) {
	switch ch.Op {
	case FieldAppend:
		if items == nil {
			items = []T{}
		}
		return append(items, newItem()), nil
	case FieldRemove:
		if err := checkIndex(ch.Field, ch.Index, len(items)); err != nil {
			return nil, err
		}
		return slices.Delete(items, ch.Index, ch.Index+1), nil
	case FieldMove:
		if err := checkIndex(ch.Field, ch.Index, len(items)); err != nil {
			return nil, err
		}
		if err := checkIndex(ch.Field, ch.To, len(items)); err != nil {
			return nil, err
		}
		item := items[ch.Index]
		items = slices.Delete(items, ch.Index, ch.Index+1)
		return slices.Insert(items, ch.To, item), nil
	}
	return nil, fieldError(ch.Field, fmt.Sprintf("unsupported operation %q", ch.Op))
}

func checkIndex(field string, i, n int) error {
	if i < 0 || i >= n {
		return fieldError(field, fmt.Sprintf("index %d out of range", i))
	}
	return nil
}

func scalarOp(ch FieldChange) error {
	if ch.Op != FieldSet {
		return fieldError(ch.Field, fmt.Sprintf("unsupported operation %q", ch.Op))
	}
	return nil
}

func unknownField(name string) error {
	return fieldError(name, "unknown field")
}

func fieldError(name, msg string) error {
	return &InvalidConfigError{Fields: []core.FieldError{{Field: name, Error: msg}}}
}
