package page

import "github.com/pkg/errors"

var (
	ErrNotFound        = errors.New("page not found")
	ErrSlugExists      = errors.New("a page with this slug already exists")
	ErrVersionConflict = errors.New("the page was saved by someone else in the meantime")
	ErrSessionNotFound = errors.New("editing session not found")
	ErrSlotBusy        = errors.New("an upload is already running for this slot")
	ErrCacheMiss       = errors.New("cache miss")
	ErrServiceClosed   = errors.New("the page service is shutting down")
)
