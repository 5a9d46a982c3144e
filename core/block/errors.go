package block

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/trezcool/vitrine/core"
)

var (
	ErrNotFound              = errors.New("block not found")
	ErrInvalidConfig         = errors.New("invalid block config")
	ErrUnknownType           = errors.New("unknown block type")
	ErrSerializationMismatch = errors.New("block serialization mismatch")
	ErrSlotGone              = errors.New("asset slot no longer exists")
)

// UnknownTypeError reports a type tag outside the closed set of block types.
type UnknownTypeError struct {
	Tag string
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("unknown block type %q", e.Tag)
}

func (e *UnknownTypeError) Unwrap() error { return ErrUnknownType }

// InvalidConfigError reports a config that is the wrong variant for its block,
// or whose fields fail validation.
type InvalidConfigError struct {
	BlockID string
	Type    Type
	Reason  string
	Fields  []core.FieldError
}

func (e *InvalidConfigError) Error() string {
	var sb strings.Builder
	sb.WriteString("invalid ")
	sb.WriteString(string(e.Type))
	sb.WriteString(" config")
	if e.BlockID != "" {
		sb.WriteString(" for block ")
		sb.WriteString(e.BlockID)
	}
	if e.Reason != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Reason)
	}
	for i, fe := range e.Fields {
		if i == 0 && e.Reason == "" {
			sb.WriteString(": ")
		} else {
			sb.WriteString("; ")
		}
		sb.WriteString(fe.Field + ": " + fe.Error)
	}
	return sb.String()
}

func (e *InvalidConfigError) Unwrap() error { return ErrInvalidConfig }

// SkippedBlock describes a persisted block that could not be loaded.
type SkippedBlock struct {
	ID     string
	Tag    string
	Reason string
}

// SerializationMismatchError lists the persisted blocks dropped while loading a page.
// The page itself is still usable.
type SerializationMismatchError struct {
	PageID  string
	Skipped []SkippedBlock
}

func (e *SerializationMismatchError) Error() string {
	parts := make([]string, 0, len(e.Skipped))
	for _, s := range e.Skipped {
		parts = append(parts, fmt.Sprintf("%s (%q): %s", s.ID, s.Tag, s.Reason))
	}
	return fmt.Sprintf("page %s: skipped %d block(s): %s", e.PageID, len(e.Skipped), strings.Join(parts, ", "))
}

func (e *SerializationMismatchError) Unwrap() error { return ErrSerializationMismatch }
