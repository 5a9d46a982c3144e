package inmemdb

import (
	"sync"

	"github.com/trezcool/vitrine/core/block"
)

type (
	DB struct {
		page *pageTable
	}

	pageTable struct {
		sync.RWMutex
		table map[string]*block.Document
	}
)

func Open() (*DB, error) {
	db := &DB{
		page: &pageTable{table: make(map[string]*block.Document)},
	}
	return db, nil
}
