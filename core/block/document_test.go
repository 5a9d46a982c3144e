package block

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fullPage() Page {
	return Page{
		ID:        "p1",
		Title:     "Robotics Club",
		Slug:      "robotics",
		Category:  "clubs",
		Version:   3,
		UpdatedAt: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		Blocks: []Block{
			{ID: "a", Type: TypeText, Order: 0, Config: TextConfig{Content: "# Hi", Alignment: AlignRight, FontSize: FontSmall}},
			{ID: "b", Type: TypeGallery, Order: 1, Config: GalleryConfig{Title: "Build day", GridView: 2, Images: []string{"/media/2.png", "/media/1.png", "/media/3.png"}}},
			{ID: "c", Type: TypeEvents, Order: 2, Config: EventsConfig{Layout: LayoutList, Events: []Event{{Title: "Demo", Date: "2024-06-01"}, {Title: "Kickoff", Date: "2024-01-15"}}}},
			{ID: "d", Type: TypeLeadership, Order: 3, Config: LeadershipConfig{Layout: LayoutGrid, Members: []Member{{Name: "Ada", ImageURL: "/media/ada.png"}, {Name: "Lin"}}}},
			{ID: "e", Type: TypeAchievements, Order: 4, Config: AchievementsConfig{Style: StyleBadges, Achievements: []string{"Gold", "Bronze", "Silver"}}},
			{ID: "f", Type: TypeStats, Order: 5, Config: StatsConfig{Layout: LayoutHorizontal, Stats: []Stat{{Label: "Bots", Value: "12"}, {Label: "Awards", Value: "3"}}}},
			{ID: "g", Type: TypeCTA, Order: 6, Config: CTAConfig{Title: "Join", Link: "/join"}},
			{ID: "h", Type: TypeGallery, Order: 7, Config: DefaultConfig(TypeGallery)},
		},
	}
}

func TestSerialize_roundTrip(t *testing.T) {
	p := fullPage()
	doc, err := Serialize(p)
	require.NoError(t, err)
	require.Len(t, doc.Blocks, len(p.Blocks))
	assert.Equal(t, "gallery", doc.Blocks[1].Type)

	got, err := Deserialize(doc)
	require.NoError(t, err)
	assert.Equal(t, p, got)
	// nested lists keep their insertion order, which is not sorted
	assert.Equal(t, []string{"/media/2.png", "/media/1.png", "/media/3.png"}, got.Blocks[1].Config.(GalleryConfig).Images)
	assert.Equal(t, []string{"Gold", "Bronze", "Silver"}, got.Blocks[4].Config.(AchievementsConfig).Achievements)

	// through the JSON wire form too
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	var decoded Document
	require.NoError(t, json.Unmarshal(data, &decoded))
	got, err = Deserialize(decoded)
	require.NoError(t, err)
	assert.Equal(t, p, got)
}

func TestSerialize_mismatchedConfig(t *testing.T) {
	p := Page{ID: "p", Blocks: []Block{{ID: "x", Type: TypeText, Config: CTAConfig{}}}}
	_, err := Serialize(p)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestDeserialize_skipsBadBlocks(t *testing.T) {
	doc := Document{
		ID: "p1",
		Blocks: []BlockDocument{
			{ID: "a", Type: "text", Order: 3, Config: json.RawMessage(`{"content":"x","alignment":"left","fontSize":"small"}`)},
			{ID: "b", Type: "carousel", Order: 0, Config: json.RawMessage(`{"slides":[]}`)},
			{ID: "c", Type: "cta", Order: 1, Config: json.RawMessage(`{"title":"Join","link":"/join"}`)},
			{ID: "d", Type: "stats", Order: 2, Config: json.RawMessage(`{"stats":"oops"}`)},
			{ID: "c", Type: "text", Order: 5, Config: nil},
		},
	}

	p, err := Deserialize(doc)
	assert.ErrorIs(t, err, ErrSerializationMismatch)

	var smErr *SerializationMismatchError
	require.ErrorAs(t, err, &smErr)
	assert.Equal(t, "p1", smErr.PageID)
	skippedIDs := make([]string, len(smErr.Skipped))
	for i, s := range smErr.Skipped {
		skippedIDs[i] = s.ID
	}
	assert.Equal(t, []string{"b", "d", "c"}, skippedIDs)
	assert.Equal(t, "carousel", smErr.Skipped[0].Tag)

	// survivors sorted by persisted order, then re-numbered
	require.Len(t, p.Blocks, 2)
	assert.Equal(t, "c", p.Blocks[0].ID)
	assert.Equal(t, "a", p.Blocks[1].ID)
	assert.Equal(t, []int{0, 1}, orders(p.Blocks))
}

func TestDecodeConfig_fillsDefaults(t *testing.T) {
	cfg, err := DecodeConfig(TypeText, []byte(`{"content":"only content"}`))
	require.NoError(t, err)
	assert.Equal(t, TextConfig{Content: "only content", Alignment: AlignLeft, FontSize: FontMedium}, cfg)

	cfg, err = DecodeConfig(TypeGallery, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(TypeGallery), cfg)
}

func TestBlock_UnmarshalJSON(t *testing.T) {
	var b Block
	err := json.Unmarshal([]byte(`{"id":"z","type":"cta","order":4,"config":{"title":"Go","link":"/go"}}`), &b)
	require.NoError(t, err)
	assert.Equal(t, Block{ID: "z", Type: TypeCTA, Order: 4, Config: CTAConfig{Title: "Go", Link: "/go"}}, b)

	err = json.Unmarshal([]byte(`{"id":"z","type":"poll","config":{}}`), &b)
	assert.ErrorIs(t, err, ErrUnknownType)
}

func TestDecodeTagged(t *testing.T) {
	cfg, err := DecodeTagged([]byte(`{"type":"stats","config":{"layout":"grid"}}`))
	require.NoError(t, err)
	assert.Equal(t, StatsConfig{Layout: LayoutGrid, Stats: []Stat{}}, cfg)

	_, err = DecodeTagged([]byte(`{"type":`))
	assert.Error(t, err)
	_, err = DecodeTagged([]byte(`{"config":{}}`))
	assert.ErrorIs(t, err, ErrUnknownType)
}
