package page_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/vitrine/core/block"
	"github.com/trezcool/vitrine/core/page"
	"github.com/trezcool/vitrine/tests"
)

func openSession(t *testing.T, e env, blocks ...block.Block) *page.Session {
	doc := testutil.CreatePage(t, e.repo, "Club", "club", blocks...)
	s, err := e.svc.Open(context.Background(), doc.ID)
	require.NoError(t, err)
	return s
}

func galleryOf(t *testing.T, s *page.Session, id string) block.GalleryConfig {
	t.Helper()
	b, err := s.Get(id)
	require.NoError(t, err)
	return b.Config.(block.GalleryConfig)
}

func TestSession_editAndSave(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	s := openSession(t, e)

	text, err := s.Add(block.TypeText)
	require.NoError(t, err)
	gallery, err := s.Add(block.TypeGallery)
	require.NoError(t, err)
	stats, err := s.Add(block.TypeStats)
	require.NoError(t, err)

	moved, err := s.MoveUp(2)
	require.NoError(t, err)
	assert.True(t, moved)

	snap := s.Snapshot()
	assert.True(t, snap.Dirty)
	assert.Equal(t, []string{text.ID, stats.ID, gallery.ID}, []string{snap.Blocks[0].ID, snap.Blocks[1].ID, snap.Blocks[2].ID})

	// the fresh gallery has no title yet: nothing is written
	_, err = s.Save(ctx, 0)
	assert.ErrorIs(t, err, block.ErrInvalidConfig)
	stored, _ := e.repo.GetPage(ctx, s.PageID)
	assert.Empty(t, stored.Blocks)

	_, err = s.ApplyForm(gallery.ID, []block.FieldChange{
		{Op: block.FieldSet, Field: "title", Value: "Trips"},
		{Op: block.FieldSet, Field: "gridView", Value: "4"},
	})
	require.NoError(t, err)

	doc, err := s.Save(ctx, snap.BaseVersion)
	require.NoError(t, err)
	assert.Equal(t, snap.BaseVersion+1, doc.Version)
	assert.False(t, s.Snapshot().Dirty)
	assert.Equal(t, doc.Version, s.Snapshot().BaseVersion)

	p, err := e.svc.Get(ctx, s.PageID)
	require.NoError(t, err)
	assert.Equal(t, s.Snapshot().Blocks, p.Blocks)
	assert.Equal(t, 4, p.Blocks[2].Config.(block.GalleryConfig).GridView)
}

func TestSession_Save_versionConflict(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	s := openSession(t, e)
	base := s.Snapshot().BaseVersion

	// someone writes the page behind the session's back
	doc, _ := e.repo.GetPage(ctx, s.PageID)
	_, err := e.repo.SavePage(ctx, doc, 0)
	require.NoError(t, err)

	_, err = s.Add(block.TypeText)
	require.NoError(t, err)
	_, err = s.Save(ctx, base)
	assert.ErrorIs(t, err, page.ErrVersionConflict)
	assert.True(t, s.Snapshot().Dirty)

	// last write wins
	saved, err := s.Save(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, base+2, saved.Version)
}

func TestSession_Update_errors(t *testing.T) {
	e := setup(t)
	s := openSession(t, e, testutil.NewBlock("t", block.DefaultConfig(block.TypeText)))
	before := s.Snapshot().Blocks

	_, err := s.Update("missing", block.DefaultConfig(block.TypeText))
	assert.ErrorIs(t, err, block.ErrNotFound)
	assert.ErrorIs(t, s.Remove("missing"), block.ErrNotFound)
	_, err = s.Update("t", block.DefaultConfig(block.TypeCTA))
	assert.ErrorIs(t, err, block.ErrInvalidConfig)

	assert.Equal(t, before, s.Snapshot().Blocks)
	assert.False(t, s.Snapshot().Dirty)
}

func TestSession_Upload(t *testing.T) {
	e := setup(t)
	old := e.assets.Put("old.png", []byte("old"))
	s := openSession(t, e, testutil.NewBlock("g", block.GalleryConfig{Title: "G", GridView: 1, Images: []string{old}}))

	// replace the first image, append a second one
	require.NoError(t, s.Upload(page.Slot{BlockID: "g", Index: 0}, "new.png", []byte("new")))
	waitAll(t, e, s)
	require.NoError(t, s.Upload(page.Slot{BlockID: "g", Index: 1}, "more.png", []byte("more")))
	waitAll(t, e, s)

	images := galleryOf(t, s, "g").Images
	require.Len(t, images, 2)
	assert.Contains(t, images[0], "new.png")
	assert.Contains(t, images[1], "more.png")
	assert.True(t, e.assets.Has(images[0]))

	// the replaced image is cleaned up
	assert.Equal(t, []string{old}, e.assets.Deleted())
	assert.Equal(t, page.StatusIdle, s.UploadStatus(page.Slot{BlockID: "g", Index: 0}))
	assert.Empty(t, s.Snapshot().Uploads)
}

func TestSession_Upload_busySlot(t *testing.T) {
	e := setup(t)
	old := e.assets.Put("old.png", []byte("old"))
	s := openSession(t, e,
		testutil.NewBlock("g", block.GalleryConfig{Title: "G", GridView: 1, Images: []string{old}}),
		testutil.NewBlock("t", block.DefaultConfig(block.TypeText)),
	)
	gate := make(chan struct{})
	e.assets.Gate = gate

	slot := page.Slot{BlockID: "g", Index: 0}
	require.NoError(t, s.Upload(slot, "a.png", []byte("a")))
	assert.Equal(t, page.StatusUploading, s.UploadStatus(slot))
	assert.ErrorIs(t, s.Upload(slot, "b.png", []byte("b")), page.ErrSlotBusy)

	// another slot, and other blocks, stay usable
	require.NoError(t, s.Upload(page.Slot{BlockID: "g", Index: 1}, "c.png", []byte("c")))
	_, err := s.Update("t", block.TextConfig{Content: "still editable", Alignment: block.AlignLeft, FontSize: block.FontSmall})
	require.NoError(t, err)
	assert.Equal(t, 2, e.svc.UploadsInFlight())
	assert.Len(t, s.Snapshot().Uploads, 2)

	close(gate)
	waitAll(t, e, s)
	images := galleryOf(t, s, "g").Images
	require.Len(t, images, 2)
	assert.Equal(t, 0, e.svc.UploadsInFlight())
}

func TestSession_Upload_failure(t *testing.T) {
	e := setup(t)
	old := e.assets.Put("old.png", []byte("old"))
	s := openSession(t, e, testutil.NewBlock("g", block.GalleryConfig{Title: "G", GridView: 1, Images: []string{old}}))
	e.assets.UploadErr = errors.New("disk full")

	slot := page.Slot{BlockID: "g", Index: 0}
	require.NoError(t, s.Upload(slot, "new.png", []byte("new")))
	waitAll(t, e, s)

	assert.Equal(t, []string{old}, galleryOf(t, s, "g").Images)
	assert.Equal(t, page.StatusFailed, s.UploadStatus(slot))
	uploads := s.Snapshot().Uploads
	require.Len(t, uploads, 1)
	assert.Contains(t, uploads[0].Error, "disk full")
	assert.Len(t, e.log.Messages("ERROR"), 1)

	// a failed slot can be retried
	e.assets.UploadErr = nil
	require.NoError(t, s.Upload(slot, "new.png", []byte("new")))
	waitAll(t, e, s)
	assert.Equal(t, page.StatusIdle, s.UploadStatus(slot))
}

func TestSession_Upload_vanishedBlock(t *testing.T) {
	e := setup(t)
	s := openSession(t, e, testutil.NewBlock("l", block.LeadershipConfig{Layout: block.LayoutGrid, Members: []block.Member{{Name: "Ada"}}}))
	gate := make(chan struct{})
	e.assets.Gate = gate

	require.NoError(t, s.Upload(page.Slot{BlockID: "l", Index: 0}, "ada.png", []byte("ada")))
	require.NoError(t, s.Remove("l"))
	close(gate)
	waitAll(t, e, s)

	deleted := e.assets.Deleted()
	require.Len(t, deleted, 1)
	assert.Contains(t, deleted[0], "ada.png")
	assert.False(t, e.assets.Has(deleted[0]))
	assert.Empty(t, s.Snapshot().Blocks)
	assert.Len(t, e.log.Messages("WARN"), 1)
}

func TestSession_Upload_discardedSession(t *testing.T) {
	e := setup(t)
	s := openSession(t, e, testutil.NewBlock("g", block.GalleryConfig{Title: "G", GridView: 1}))
	gate := make(chan struct{})
	e.assets.Gate = gate

	require.NoError(t, s.Upload(page.Slot{BlockID: "g", Index: 0}, "a.png", []byte("a")))
	require.NoError(t, e.svc.Discard(s.ID))
	close(gate)
	waitAll(t, e, nil)

	assert.Len(t, e.assets.Deleted(), 1)
}

func TestSession_Upload_badSlot(t *testing.T) {
	e := setup(t)
	s := openSession(t, e,
		testutil.NewBlock("t", block.DefaultConfig(block.TypeText)),
		testutil.NewBlock("l", block.DefaultConfig(block.TypeLeadership)),
		testutil.NewBlock("g", block.GalleryConfig{Title: "G", GridView: 1, Images: []string{"a.png"}}),
	)
	tests := []struct {
		name    string
		slot    page.Slot
		wantErr error
	}{
		{name: "missing block", slot: page.Slot{BlockID: "nope"}, wantErr: block.ErrNotFound},
		{name: "no asset slots", slot: page.Slot{BlockID: "t"}, wantErr: block.ErrInvalidConfig},
		{name: "no such member", slot: page.Slot{BlockID: "l", Index: 0}, wantErr: block.ErrInvalidConfig},
		{name: "past the end of the gallery", slot: page.Slot{BlockID: "g", Index: 2}, wantErr: block.ErrInvalidConfig},
		{name: "negative index", slot: page.Slot{BlockID: "g", Index: -1}, wantErr: block.ErrInvalidConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, s.Upload(tt.slot, "x.png", []byte("x")), tt.wantErr)
		})
	}
	assert.Equal(t, 0, e.svc.UploadsInFlight())
	assert.Empty(t, s.Snapshot().Uploads)
}

func TestSession_Upload_editedMeanwhile(t *testing.T) {
	t.Run("replaced image moved", func(t *testing.T) {
		e := setup(t)
		a, b, c := e.assets.Put("a.png", []byte("a")), e.assets.Put("b.png", []byte("b")), e.assets.Put("c.png", []byte("c"))
		s := openSession(t, e, testutil.NewBlock("g", block.GalleryConfig{Title: "G", GridView: 1, Images: []string{a, b, c}}))
		gate := make(chan struct{})
		e.assets.Gate = gate

		require.NoError(t, s.Upload(page.Slot{BlockID: "g", Index: 1}, "b2.png", []byte("b2")))
		_, err := s.ApplyForm("g", []block.FieldChange{{Op: block.FieldRemove, Field: "images", Index: 0}})
		require.NoError(t, err)
		close(gate)
		waitAll(t, e, s)

		images := galleryOf(t, s, "g").Images
		require.Len(t, images, 2)
		assert.Contains(t, images[0], "b2.png")
		assert.Equal(t, c, images[1])
		assert.True(t, e.assets.Has(c))
		assert.ElementsMatch(t, []string{a, b}, e.assets.Deleted())
	})

	t.Run("replaced image removed", func(t *testing.T) {
		e := setup(t)
		a, b := e.assets.Put("a.png", []byte("a")), e.assets.Put("b.png", []byte("b"))
		s := openSession(t, e, testutil.NewBlock("g", block.GalleryConfig{Title: "G", GridView: 1, Images: []string{a, b}}))
		gate := make(chan struct{})
		e.assets.Gate = gate
		events, unsubscribe := e.svc.Events().Subscribe(s.ID, 10)
		defer unsubscribe()

		require.NoError(t, s.Upload(page.Slot{BlockID: "g", Index: 1}, "b2.png", []byte("b2")))
		_, err := s.ApplyForm("g", []block.FieldChange{{Op: block.FieldRemove, Field: "images", Index: 1}})
		require.NoError(t, err)
		close(gate)
		waitAll(t, e, s)

		assert.Equal(t, []string{a}, galleryOf(t, s, "g").Images)
		assert.True(t, e.assets.Has(a))
		deleted := e.assets.Deleted()
		require.Len(t, deleted, 2)
		assert.Contains(t, deleted, b)
		assert.NotContains(t, deleted, a)
		assert.Len(t, e.log.Messages("WARN"), 1)

		var kinds []page.EventKind
		for len(events) > 0 {
			kinds = append(kinds, (<-events).Kind)
		}
		assert.Contains(t, kinds, page.EventUploadOrphaned)
	})

	t.Run("member moved", func(t *testing.T) {
		e := setup(t)
		s := openSession(t, e, testutil.NewBlock("l", block.LeadershipConfig{
			Layout:  block.LayoutGrid,
			Members: []block.Member{{Name: "Ada"}, {Name: "Lin"}},
		}))
		gate := make(chan struct{})
		e.assets.Gate = gate

		require.NoError(t, s.Upload(page.Slot{BlockID: "l", Index: 1}, "lin.png", []byte("lin")))
		_, err := s.ApplyForm("l", []block.FieldChange{{Op: block.FieldMove, Field: "members", Index: 1, To: 0}})
		require.NoError(t, err)
		close(gate)
		waitAll(t, e, s)

		b, err := s.Get("l")
		require.NoError(t, err)
		members := b.Config.(block.LeadershipConfig).Members
		assert.Equal(t, "Lin", members[0].Name)
		assert.Contains(t, members[0].ImageURL, "lin.png")
		assert.Empty(t, members[1].ImageURL)
	})
}

func TestSession_Upload_serviceClosing(t *testing.T) {
	e := setup(t)
	members := make([]block.Member, 100)
	for i := range members {
		members[i] = block.Member{Name: fmt.Sprintf("m%d", i)}
	}
	s := openSession(t, e, testutil.NewBlock("l", block.LeadershipConfig{Layout: block.LayoutGrid, Members: members}))
	gate := make(chan struct{})
	e.assets.Gate = gate
	require.NoError(t, s.Upload(page.Slot{BlockID: "l", Index: 0}, "m0.png", []byte("m0")))

	closed := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		closed <- e.svc.Close(ctx)
	}()

	// uploads are refused once closing has started; those already running finish
	next := 1
	require.Eventually(t, func() bool {
		err := s.Upload(page.Slot{BlockID: "l", Index: next}, "m.png", []byte("m"))
		next++
		return errors.Is(err, page.ErrServiceClosed)
	}, 2*time.Second, time.Millisecond)

	close(gate)
	require.NoError(t, <-closed)
	assert.Equal(t, 0, s.InFlight())
}

func TestSession_assetCleanup(t *testing.T) {
	e := setup(t)
	owned := e.assets.Put("a.png", []byte("a"))
	kept := e.assets.Put("b.png", []byte("b"))
	external := "https://cdn.example.org/c.png"
	s := openSession(t, e,
		testutil.NewBlock("g", block.GalleryConfig{Title: "G", GridView: 1, Images: []string{owned, kept, external}}),
		testutil.NewBlock("l", block.LeadershipConfig{Layout: block.LayoutGrid, Members: []block.Member{{Name: "Ada", ImageURL: kept}}}),
	)

	_, err := s.Update("g", block.GalleryConfig{Title: "G", GridView: 1, Images: []string{kept}})
	require.NoError(t, err)
	waitAll(t, e, s)
	assert.Equal(t, []string{owned}, e.assets.Deleted())

	// still held by the gallery
	require.NoError(t, s.Remove("l"))
	waitAll(t, e, s)
	assert.Equal(t, []string{owned}, e.assets.Deleted())
	assert.True(t, e.assets.Has(kept))

	// failures are logged, the edit goes through
	e.assets.DeleteErr = errors.New("permission denied")
	require.NoError(t, s.Remove("g"))
	waitAll(t, e, s)
	assert.Empty(t, s.Snapshot().Blocks)
	assert.Len(t, e.log.Messages("WARN"), 1)
}

func TestSession_events(t *testing.T) {
	e := setup(t)
	s := openSession(t, e)
	events, unsubscribe := e.svc.Events().Subscribe(s.ID, 10)
	defer unsubscribe()
	all, unsubscribeAll := e.svc.Events().Subscribe("", 10)
	defer unsubscribeAll()

	b, err := s.Add(block.TypeCTA)
	require.NoError(t, err)
	require.NoError(t, s.Remove(b.ID))

	for _, ch := range []<-chan page.Event{events, all} {
		for _, want := range []block.Op{block.OpAdd, block.OpRemove} {
			select {
			case ev := <-ch:
				assert.Equal(t, page.EventBlock, ev.Kind)
				assert.Equal(t, s.ID, ev.SessionID)
				require.NotNil(t, ev.Change)
				assert.Equal(t, want, ev.Change.Op)
				assert.Equal(t, b.ID, ev.Change.BlockID)
			case <-time.After(time.Second):
				t.Fatalf("no %s event", want)
			}
		}
	}

	other, unsubscribeOther := e.svc.Events().Subscribe("other-session", 10)
	defer unsubscribeOther()
	_, _ = s.Add(block.TypeText)
	select {
	case ev := <-other:
		t.Fatalf("unexpected event %v", ev)
	default:
	}
}
