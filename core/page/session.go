package page

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/vitrine/core/block"
)

// Session is the live editing state of one page: its block store and upload slots.
// All methods are safe for concurrent use.
type Session struct {
	ID     string
	PageID string

	svc     *Service
	uploads *UploadTracker

	mu       sync.Mutex
	page     block.Page // page fields and the version the session started from; Blocks is unused
	store    *block.Store
	dirty    bool
	closed   bool
	lastUsed time.Time
}

var _ block.Updater = (*Session)(nil)

func newSession(svc *Service, id string, p block.Page) *Session {
	s := &Session{
		ID:       id,
		PageID:   p.ID,
		svc:      svc,
		uploads:  NewUploadTracker(),
		lastUsed: svc.now(),
	}
	s.store = block.NewStore(p.Blocks, block.WithOnChange(s.onChange))
	p.Blocks = nil
	s.page = p
	return s
}

func (s *Session) onChange(ch block.Change) {
	s.dirty = true
	s.emit(Event{Kind: EventBlock, Change: &ch})
}

func (s *Session) emit(ev Event) {
	ev.SessionID = s.ID
	ev.PageID = s.PageID
	ev.At = s.svc.now()
	s.svc.events.Emit(ev)
}

// lock acquires the session for an operation. It fails once the session is closed.
func (s *Session) lock() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionNotFound
	}
	s.lastUsed = s.svc.now()
	return nil
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		SessionID:   s.ID,
		PageID:      s.PageID,
		Title:       s.page.Title,
		BaseVersion: s.page.Version,
		Dirty:       s.dirty,
		Blocks:      s.store.Sequence(),
		Uploads:     s.uploads.Statuses(),
	}
}

func (s *Session) Get(id string) (block.Block, error) {
	if err := s.lock(); err != nil {
		return block.Block{}, err
	}
	defer s.mu.Unlock()
	return s.store.Get(id)
}

// Index returns the position of the block with the given id.
func (s *Session) Index(id string) (int, error) {
	if err := s.lock(); err != nil {
		return -1, err
	}
	defer s.mu.Unlock()
	i := s.store.Index(id)
	if i < 0 {
		return -1, block.ErrNotFound
	}
	return i, nil
}

func (s *Session) Add(t block.Type) (block.Block, error) {
	if err := s.lock(); err != nil {
		return block.Block{}, err
	}
	defer s.mu.Unlock()
	return s.store.Add(t), nil
}

// Update replaces the config of a block. Asset references no block holds anymore are deleted in the background.
func (s *Session) Update(id string, cfg block.Config) (block.Block, error) {
	if err := s.lock(); err != nil {
		return block.Block{}, err
	}
	defer s.mu.Unlock()
	return s.updateLocked(id, cfg)
}

func (s *Session) updateLocked(id string, cfg block.Config) (block.Block, error) {
	before, err := s.store.Get(id)
	if err != nil {
		return block.Block{}, err
	}
	b, err := s.store.Update(id, cfg)
	if err != nil {
		return block.Block{}, err
	}
	s.dropUnused(block.DroppedAssets(before.Config, b.Config))
	return b, nil
}

// dropUnused deletes the refs no block of the session holds anymore.
func (s *Session) dropUnused(refs []string) {
	if len(refs) == 0 {
		return
	}
	inUse := make(map[string]bool)
	for _, b := range s.store.Sequence() {
		for _, ref := range block.AssetRefs(b.Config) {
			inUse[ref] = true
		}
	}
	for _, ref := range refs {
		if !inUse[ref] {
			s.svc.dropAssets(ref)
		}
	}
}

// Remove deletes a block. Its asset references are deleted in the background.
func (s *Session) Remove(id string) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()
	b, err := s.store.Get(id)
	if err != nil {
		return err
	}
	if err := s.store.Remove(id); err != nil {
		return err
	}
	s.uploads.Forget(id)
	s.dropUnused(block.AssetRefs(b.Config))
	return nil
}

func (s *Session) MoveUp(index int) (bool, error) {
	if err := s.lock(); err != nil {
		return false, err
	}
	defer s.mu.Unlock()
	return s.store.MoveUp(index), nil
}

func (s *Session) MoveDown(index int) (bool, error) {
	if err := s.lock(); err != nil {
		return false, err
	}
	defer s.mu.Unlock()
	return s.store.MoveDown(index), nil
}

func (s *Session) Move(from, to int) (bool, error) {
	if err := s.lock(); err != nil {
		return false, err
	}
	defer s.mu.Unlock()
	return s.store.Move(from, to), nil
}

// Form returns the editor form of a block, bound to this session.
func (s *Session) Form(id string) (*block.Form, error) {
	b, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	return block.Edit(b, s), nil
}

// ApplyForm applies form changes to a block in order and returns the resulting form.
func (s *Session) ApplyForm(id string, changes []block.FieldChange) (*block.Form, error) {
	form, err := s.Form(id)
	if err != nil {
		return nil, err
	}
	return form.ApplyAll(changes)
}

// Render previews a block.
func (s *Session) Render(id string) (block.Display, error) {
	b, err := s.Get(id)
	if err != nil {
		return block.Display{}, err
	}
	return block.Render(b)
}

// Upload stores data as the asset of slot. The upload runs in the background;
// its progress is visible in the snapshot uploads and the session events.
// A slot can only run one upload at a time; other slots and blocks stay editable.
// The upload lands on the image or member the slot held when it started, even if the block was edited meanwhile.
func (s *Session) Upload(slot Slot, name string, data []byte) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()
	b, err := s.store.Get(slot.BlockID)
	if err != nil {
		return err
	}
	target, err := block.SlotAt(b.Config, slot.Index)
	if err != nil {
		return err
	}
	if !s.svc.startBackground() {
		return ErrServiceClosed
	}
	if !s.uploads.TryStart(slot) {
		s.svc.bg.Done()
		return ErrSlotBusy
	}

	s.emit(Event{Kind: EventUploadStarted, Slot: &slot})
	go s.upload(slot, target, name, data)
	return nil
}

func (s *Session) upload(slot Slot, target block.AssetSlot, name string, data []byte) {
	defer s.svc.bg.Done()
	ctx, cancel := context.WithTimeout(s.svc.ctx, s.svc.uploadTimeout)
	defer cancel()

	ref, err := s.svc.assets.Upload(ctx, name, bytes.NewReader(data))
	if err != nil {
		err = errors.Wrapf(err, "upload %s to block %s slot %d", name, slot.BlockID, slot.Index)
		s.svc.log.Error("asset upload failed", err)
		s.uploads.Fail(slot, err)
		s.emit(Event{Kind: EventUploadFailed, Slot: &slot, Error: err.Error()})
		return
	}

	// the block may have changed or vanished while uploading: apply to its current config.
	if err := s.attach(slot.BlockID, target, ref); err != nil {
		s.svc.log.Warn("discarding orphan upload", err, map[string]interface{}{"ref": ref})
		s.svc.dropAssets(ref)
		s.uploads.Done(slot)
		s.emit(Event{Kind: EventUploadOrphaned, Slot: &slot, Error: err.Error()})
		return
	}
	s.uploads.Done(slot)
	s.emit(Event{Kind: EventUploadDone, Slot: &slot})
}

func (s *Session) attach(blockID string, target block.AssetSlot, ref string) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()
	b, err := s.store.Get(blockID)
	if err != nil {
		return err
	}
	cfg, err := block.PlaceAsset(b.Config, target, ref)
	if err != nil {
		return err
	}
	_, err = s.updateLocked(blockID, cfg)
	return err
}

// WaitUploads blocks until the running uploads of the session complete or ctx is done.
func (s *Session) WaitUploads(ctx context.Context) error {
	return s.uploads.WaitAll(ctx)
}

// UploadStatus returns the status of slot.
func (s *Session) UploadStatus(slot Slot) UploadStatus {
	return s.uploads.Status(slot)
}

// Save validates every block and writes the whole page.
// expectedVersion 0 overwrites whatever is stored; otherwise it must match the stored version.
func (s *Session) Save(ctx context.Context, expectedVersion int64) (block.Document, error) {
	if err := s.lock(); err != nil {
		return block.Document{}, err
	}
	defer s.mu.Unlock()

	p := s.page
	p.Blocks = s.store.Sequence()
	p.UpdatedAt = s.svc.now()
	doc, err := s.svc.save(ctx, p, expectedVersion)
	if err != nil {
		return block.Document{}, err
	}
	s.page.Version = doc.Version
	s.page.UpdatedAt = doc.UpdatedAt
	s.dirty = false
	s.emit(Event{Kind: EventSaved, Version: doc.Version})
	return doc, nil
}

// InFlight returns the number of running uploads.
func (s *Session) InFlight() int { return s.uploads.InFlight() }

func (s *Session) idleSince(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastUsed)
}

// close marks the session closed. Uploads still running will find it closed and discard their asset.
func (s *Session) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()
	s.emit(Event{Kind: EventClosed})
}
