package block

import "fmt"

// Visitor handles every config variant.
// Each variant's accept method calls exactly one of these, so adding a variant
// means adding a method here, and every dispatcher stops compiling until it handles it.
type Visitor[R any] interface {
	Text(TextConfig) R
	Gallery(GalleryConfig) R
	Events(EventsConfig) R
	Leadership(LeadershipConfig) R
	Achievements(AchievementsConfig) R
	Stats(StatsConfig) R
	CTA(CTAConfig) R
}

// Visit dispatches cfg to the matching method of v.
// The visitor receives a copy of cfg and cannot mutate the caller's config.
func Visit[R any](cfg Config, v Visitor[R]) R {
	a := &adapter[R]{v: v}
	cfg.clone().accept(a)
	return a.out
}

// visitor is the non-generic form Config.accept can take.
type visitor interface {
	visitText(TextConfig)
	visitGallery(GalleryConfig)
	visitEvents(EventsConfig)
	visitLeadership(LeadershipConfig)
	visitAchievements(AchievementsConfig)
	visitStats(StatsConfig)
	visitCTA(CTAConfig)
}

type adapter[R any] struct {
	v   Visitor[R]
	out R
}

var _ visitor = (*adapter[struct{}])(nil)

func (a *adapter[R]) visitText(c TextConfig)                 { a.out = a.v.Text(c) }
func (a *adapter[R]) visitGallery(c GalleryConfig)           { a.out = a.v.Gallery(c) }
func (a *adapter[R]) visitEvents(c EventsConfig)             { a.out = a.v.Events(c) }
func (a *adapter[R]) visitLeadership(c LeadershipConfig)     { a.out = a.v.Leadership(c) }
func (a *adapter[R]) visitAchievements(c AchievementsConfig) { a.out = a.v.Achievements(c) }
func (a *adapter[R]) visitStats(c StatsConfig)               { a.out = a.v.Stats(c) }
func (a *adapter[R]) visitCTA(c CTAConfig)                   { a.out = a.v.CTA(c) }

func (c TextConfig) accept(v visitor)         { v.visitText(c) }
func (c GalleryConfig) accept(v visitor)      { v.visitGallery(c) }
func (c EventsConfig) accept(v visitor)       { v.visitEvents(c) }
func (c LeadershipConfig) accept(v visitor)   { v.visitLeadership(c) }
func (c AchievementsConfig) accept(v visitor) { v.visitAchievements(c) }
func (c StatsConfig) accept(v visitor)        { v.visitStats(c) }
func (c CTAConfig) accept(v visitor)          { v.visitCTA(c) }

// TypeCases handles every block type tag.
type TypeCases[R any] interface {
	Text() R
	Gallery() R
	Events() R
	Leadership() R
	Achievements() R
	Stats() R
	CTA() R
}

// MatchType dispatches t to the matching method of c.
// t must come from ParseType or one of the Type constants; anything else is a programming error.
func MatchType[R any](t Type, c TypeCases[R]) R {
	switch t {
	case TypeText:
		return c.Text()
	case TypeGallery:
		return c.Gallery()
	case TypeEvents:
		return c.Events()
	case TypeLeadership:
		return c.Leadership()
	case TypeAchievements:
		return c.Achievements()
	case TypeStats:
		return c.Stats()
	case TypeCTA:
		return c.CTA()
	}
	panic(fmt.Sprintf("block: unhandled type %q", string(t)))
}
