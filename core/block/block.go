// Package block implements the content-block composition model of a page:
// the closed set of block variants, their default configs, the ordered block
// store, and the editor and renderer dispatchers.
package block

import (
	"slices"
)

// Type is the closed set of block variants.
type Type string

const (
	TypeText         Type = "text"
	TypeGallery      Type = "gallery"
	TypeEvents       Type = "events"
	TypeLeadership   Type = "leadership"
	TypeAchievements Type = "achievements"
	TypeStats        Type = "stats"
	TypeCTA          Type = "cta"
)

// Types lists every block type, in the order they are offered to page owners.
var Types = []Type{TypeText, TypeGallery, TypeEvents, TypeLeadership, TypeAchievements, TypeStats, TypeCTA}

// ParseType returns the Type named s or ErrUnknownType.
func ParseType(s string) (Type, error) {
	for _, t := range Types {
		if string(t) == s {
			return t, nil
		}
	}
	return "", &UnknownTypeError{Tag: s}
}

func (t Type) Valid() bool {
	_, err := ParseType(string(t))
	return err == nil
}

// Presentation enums
type (
	Alignment string
	FontSize  string
	Layout    string
	Style     string
)

const (
	AlignLeft   Alignment = "left"
	AlignCenter Alignment = "center"
	AlignRight  Alignment = "right"

	FontSmall  FontSize = "small"
	FontMedium FontSize = "medium"
	FontLarge  FontSize = "large"

	LayoutList       Layout = "list"
	LayoutGrid       Layout = "grid"
	LayoutHorizontal Layout = "horizontal"

	StyleList   Style = "list"
	StyleBadges Style = "badges"
)

// Block is one content unit of a page.
type Block struct {
	ID     string `json:"id"`
	Type   Type   `json:"type"`
	Order  int    `json:"order"`
	Config Config `json:"config"`
}

func (b Block) clone() Block {
	if b.Config != nil {
		b.Config = b.Config.clone()
	}
	return b
}

// Config is the variant-specific configuration of a block.
// It is sealed: only the variants of this package implement it.
type Config interface {
	Type() Type

	clone() Config
	accept(v visitor)
}

// Validation tags: `validate` is checked on every update (shape),
// `publish` is checked before a page is saved or rendered (completeness).

type TextConfig struct {
	Content   string    `json:"content"`
	Alignment Alignment `json:"alignment" validate:"oneof=left center right"`
	FontSize  FontSize  `json:"fontSize" validate:"oneof=small medium large"`
}

type GalleryConfig struct {
	Title       string   `json:"title" publish:"notblank"`
	Description string   `json:"description"`
	GridView    int      `json:"gridView" validate:"min=1,max=4"`
	Images      []string `json:"images" validate:"dive,notblank"` // asset references
}

type Event struct {
	Title       string `json:"title"`
	Date        string `json:"date"`
	Time        string `json:"time"`
	Location    string `json:"location"`
	Description string `json:"description"`
}

type EventsConfig struct {
	Title  string  `json:"title"`
	Layout Layout  `json:"layout" validate:"oneof=list grid"`
	Events []Event `json:"events"`
}

type Member struct {
	Name     string `json:"name"`
	Role     string `json:"role"`
	Year     string `json:"year"`
	Course   string `json:"course"`
	ImageURL string `json:"imageUrl,omitempty"` // asset reference
}

type LeadershipConfig struct {
	Title   string   `json:"title"`
	Layout  Layout   `json:"layout" validate:"oneof=grid list"`
	Members []Member `json:"members"`
}

type AchievementsConfig struct {
	Title        string   `json:"title"`
	Style        Style    `json:"style" validate:"oneof=list badges"`
	Achievements []string `json:"achievements"`
}

type Stat struct {
	Label string `json:"label"`
	Value string `json:"value"`
	Icon  string `json:"icon,omitempty"`
}

type StatsConfig struct {
	Layout Layout `json:"layout" validate:"oneof=horizontal grid"`
	Stats  []Stat `json:"stats"`
}

type CTAConfig struct {
	Title       string `json:"title" publish:"notblank"`
	Link        string `json:"link" publish:"required,uri"`
	Description string `json:"description"`
}

func (TextConfig) Type() Type         { return TypeText }
func (GalleryConfig) Type() Type      { return TypeGallery }
func (EventsConfig) Type() Type       { return TypeEvents }
func (LeadershipConfig) Type() Type   { return TypeLeadership }
func (AchievementsConfig) Type() Type { return TypeAchievements }
func (StatsConfig) Type() Type        { return TypeStats }
func (CTAConfig) Type() Type          { return TypeCTA }

// sub-list elements are plain values, so a shallow slice copy is a deep copy.

func (c TextConfig) clone() Config { return c }

func (c GalleryConfig) clone() Config {
	c.Images = slices.Clone(c.Images)
	return c
}

func (c EventsConfig) clone() Config {
	c.Events = slices.Clone(c.Events)
	return c
}

func (c LeadershipConfig) clone() Config {
	c.Members = slices.Clone(c.Members)
	return c
}

func (c AchievementsConfig) clone() Config {
	c.Achievements = slices.Clone(c.Achievements)
	return c
}

func (c StatsConfig) clone() Config {
	c.Stats = slices.Clone(c.Stats)
	return c
}

func (c CTAConfig) clone() Config { return c }
