package page

import (
	"context"
	"sort"
	"sync"
)

// UploadStatus is the state of an asset slot.
type UploadStatus string

const (
	StatusIdle      UploadStatus = "idle"
	StatusUploading UploadStatus = "uploading"
	StatusFailed    UploadStatus = "failed"
)

// Slot identifies an asset position inside a block: a gallery image or a member photo.
type Slot struct {
	BlockID string `json:"block_id"`
	Index   int    `json:"index"`
}

type SlotStatus struct {
	Slot
	Status UploadStatus `json:"status"`
	Error  string       `json:"error,omitempty"`
}

// UploadTracker keeps the upload status of asset slots.
// It is independent of the block store: upload progress never touches block order or config.
// Slots absent from the tracker are idle.
type UploadTracker struct {
	mu      sync.Mutex
	slots   map[Slot]SlotStatus
	running int
	idle    chan struct{} // closed when running drops to zero
}

func NewUploadTracker() *UploadTracker {
	idle := make(chan struct{})
	close(idle)
	return &UploadTracker{slots: make(map[Slot]SlotStatus), idle: idle}
}

// TryStart marks slot as uploading. It returns false if an upload is already running for it.
func (t *UploadTracker) TryStart(slot Slot) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if st, ok := t.slots[slot]; ok && st.Status == StatusUploading {
		return false
	}
	t.slots[slot] = SlotStatus{Slot: slot, Status: StatusUploading}
	if t.running == 0 {
		t.idle = make(chan struct{})
	}
	t.running++
	return true
}

func (t *UploadTracker) finish() {
	t.running--
	if t.running == 0 {
		close(t.idle)
	}
}

// Done marks the upload of slot as finished. Must be called after TryStart returns true.
func (t *UploadTracker) Done(slot Slot) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.slots, slot)
	t.finish()
}

// Fail marks the upload of slot as failed. Must be called after TryStart returns true.
func (t *UploadTracker) Fail(slot Slot, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	st := SlotStatus{Slot: slot, Status: StatusFailed}
	if err != nil {
		st.Error = err.Error()
	}
	t.slots[slot] = st
	t.finish()
}

func (t *UploadTracker) Status(slot Slot) UploadStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	if st, ok := t.slots[slot]; ok {
		return st.Status
	}
	return StatusIdle
}

// Statuses returns the non-idle slots, by block id then index.
func (t *UploadTracker) Statuses() []SlotStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	sts := make([]SlotStatus, 0, len(t.slots))
	for _, st := range t.slots {
		sts = append(sts, st)
	}
	sort.Slice(sts, func(i, j int) bool {
		if sts[i].BlockID != sts[j].BlockID {
			return sts[i].BlockID < sts[j].BlockID
		}
		return sts[i].Index < sts[j].Index
	})
	return sts
}

// InFlight returns the number of running uploads.
func (t *UploadTracker) InFlight() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

// Forget drops the failed slots of a block. Running uploads are left alone.
func (t *UploadTracker) Forget(blockID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for slot, st := range t.slots {
		if slot.BlockID == blockID && st.Status != StatusUploading {
			delete(t.slots, slot)
		}
	}
}

// WaitAll blocks until no upload is running or ctx is cancelled.
// Uploads started while waiting are waited for too.
func (t *UploadTracker) WaitAll(ctx context.Context) error {
	for {
		t.mu.Lock()
		if t.running == 0 {
			t.mu.Unlock()
			return nil
		}
		idle := t.idle
		t.mu.Unlock()

		select {
		case <-idle:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
