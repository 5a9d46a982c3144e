package block

import (
	"github.com/google/uuid"
)

// Op names a Store mutation.
type Op string

const (
	OpAdd    Op = "add"
	OpUpdate Op = "update"
	OpRemove Op = "remove"
	OpMove   Op = "move"
)

// Change describes a mutation applied to a Store.
type Change struct {
	Op      Op     `json:"op"`
	BlockID string `json:"block_id"`
	Type    Type   `json:"type"`
	From    int    `json:"from"`
	To      int    `json:"to"`
}

// Store is the ordered block list of one page.
// Orders are always 0..n-1 with no gaps or duplicates, and the slice is kept sorted by order.
// A Store is not safe for concurrent use.
type Store struct {
	blocks   []Block
	newID    func() string
	onChange func(Change)
}

type StoreOption func(*Store)

// WithIDFunc sets the id generator of new blocks.
func WithIDFunc(fn func() string) StoreOption {
	return func(s *Store) { s.newID = fn }
}

// WithOnChange registers a listener called after every effective mutation.
func WithOnChange(fn func(Change)) StoreOption {
	return func(s *Store) { s.onChange = fn }
}

// NewStore returns a Store holding blocks, re-numbered in their given order.
func NewStore(blocks []Block, opts ...StoreOption) *Store {
	s := &Store{newID: uuid.NewString}
	for _, opt := range opts {
		opt(s)
	}
	s.blocks = make([]Block, 0, len(blocks))
	for _, b := range blocks {
		s.blocks = append(s.blocks, b.clone())
	}
	s.renumber(0)
	return s
}

// Len returns the number of blocks.
func (s *Store) Len() int { return len(s.blocks) }

// Sequence returns a copy of the blocks sorted by ascending order.
func (s *Store) Sequence() []Block {
	seq := make([]Block, len(s.blocks))
	for i, b := range s.blocks {
		seq[i] = b.clone()
	}
	return seq
}

// Get returns a copy of the block with the given id.
func (s *Store) Get(id string) (Block, error) {
	i := s.index(id)
	if i < 0 {
		return Block{}, ErrNotFound
	}
	return s.blocks[i].clone(), nil
}

// Index returns the position of the block with the given id, or -1.
func (s *Store) Index(id string) int { return s.index(id) }

// Add appends a new block of type t with its default config.
func (s *Store) Add(t Type) Block {
	b := Block{
		ID:     s.newID(),
		Type:   t,
		Order:  len(s.blocks),
		Config: DefaultConfig(t),
	}
	s.blocks = append(s.blocks, b)
	s.notify(Change{Op: OpAdd, BlockID: b.ID, Type: t, From: -1, To: b.Order})
	return b.clone()
}

// Update replaces the config of the block with the given id.
// The config must be of the block's variant and pass shape validation; drafts may be incomplete.
func (s *Store) Update(id string, cfg Config) (Block, error) {
	i := s.index(id)
	if i < 0 {
		return Block{}, ErrNotFound
	}
	b := s.blocks[i]
	if cfg == nil {
		return Block{}, &InvalidConfigError{BlockID: id, Type: b.Type, Reason: "missing config"}
	}
	if cfg.Type() != b.Type {
		return Block{}, &InvalidConfigError{
			BlockID: id,
			Type:    b.Type,
			Reason:  "got a " + string(cfg.Type()) + " config",
		}
	}
	if err := checkShape(cfg); err != nil {
		if icErr, ok := err.(*InvalidConfigError); ok {
			icErr.BlockID = id
		}
		return Block{}, err
	}

	s.blocks[i].Config = cfg.clone()
	s.notify(Change{Op: OpUpdate, BlockID: id, Type: b.Type, From: i, To: i})
	return s.blocks[i].clone(), nil
}

// Remove deletes the block with the given id and shifts down the orders of the blocks after it.
func (s *Store) Remove(id string) error {
	i := s.index(id)
	if i < 0 {
		return ErrNotFound
	}
	b := s.blocks[i]
	s.blocks = append(s.blocks[:i], s.blocks[i+1:]...)
	s.renumber(i)
	s.notify(Change{Op: OpRemove, BlockID: b.ID, Type: b.Type, From: i, To: -1})
	return nil
}

// MoveUp swaps the block at index with its predecessor.
// It reports whether anything moved: the first block and out of range indices are no-ops.
func (s *Store) MoveUp(index int) bool {
	return s.Move(index, index-1)
}

// MoveDown swaps the block at index with its successor.
// It reports whether anything moved: the last block and out of range indices are no-ops.
func (s *Store) MoveDown(index int) bool {
	return s.Move(index, index+1)
}

// Move relocates the block at from to position to, shifting the blocks in between.
// It reports whether anything moved.
func (s *Store) Move(from, to int) bool {
	n := len(s.blocks)
	if from < 0 || from >= n || to < 0 || to >= n || from == to {
		return false
	}
	b := s.blocks[from]
	for i := from; i != to; {
		next := i + 1
		if to < from {
			next = i - 1
		}
		s.blocks[i], s.blocks[next] = s.blocks[next], s.blocks[i]
		i = next
	}
	lo, hi := min(from, to), max(from, to)
	for i := lo; i <= hi; i++ {
		s.blocks[i].Order = i
	}
	s.notify(Change{Op: OpMove, BlockID: b.ID, Type: b.Type, From: from, To: to})
	return true
}

func (s *Store) index(id string) int {
	for i, b := range s.blocks {
		if b.ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) renumber(from int) {
	for i := from; i < len(s.blocks); i++ {
		s.blocks[i].Order = i
	}
}

func (s *Store) notify(ch Change) {
	if s.onChange != nil {
		s.onChange(ch)
	}
}
