package block

// DefaultConfig returns the canonical default config of the given block type.
func DefaultConfig(t Type) Config {
	return MatchType[Config](t, registry{})
}

type registry struct{}

var _ TypeCases[Config] = registry{}

func (registry) Text() Config {
	return TextConfig{Content: "", Alignment: AlignLeft, FontSize: FontMedium}
}

func (registry) Gallery() Config {
	return GalleryConfig{GridView: 1, Images: []string{}}
}

func (registry) Events() Config {
	return EventsConfig{Layout: LayoutGrid, Events: []Event{}}
}

func (registry) Leadership() Config {
	return LeadershipConfig{Layout: LayoutGrid, Members: []Member{}}
}

func (registry) Achievements() Config {
	return AchievementsConfig{Style: StyleList, Achievements: []string{}}
}

func (registry) Stats() Config {
	return StatsConfig{Layout: LayoutHorizontal, Stats: []Stat{}}
}

func (registry) CTA() Config {
	return CTAConfig{}
}
