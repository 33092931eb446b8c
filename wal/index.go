package wal

import (
	"encoding/binary"

	"github.com/syndtr/goleveldb/leveldb"

	"github.com/bft-core/engine/types"
)

// Index persists a height -> first-byte-offset mapping, per SPEC_FULL.md's
// E2 wiring of github.com/syndtr/goleveldb. Replay does not consult it; it
// always reads the segment from just after the header.
type Index struct {
	db *leveldb.DB
}

func OpenIndex(path string) (*Index, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	return &Index{db: db}, nil
}

func heightKey(h types.Height) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(h))
	return key
}

// Record notes that h's first entry in the current segment starts at
// offset, the first time h is seen; later calls for the same height are
// no-ops since offset only ever needs to mark the start.
func (i *Index) Record(h types.Height, offset int64) error {
	key := heightKey(h)
	if _, err := i.db.Get(key, nil); err == nil {
		return nil
	}
	val := make([]byte, 8)
	binary.BigEndian.PutUint64(val, uint64(offset))
	return i.db.Put(key, val, nil)
}

// Offset returns the recorded starting offset for h, if any.
func (i *Index) Offset(h types.Height) (int64, bool) {
	val, err := i.db.Get(heightKey(h), nil)
	if err != nil {
		return 0, false
	}
	return int64(binary.BigEndian.Uint64(val)), true
}

// Reset drops every recorded offset: a segment reset to height h makes
// every prior offset meaningless.
func (i *Index) Reset(h types.Height) error {
	iter := i.db.NewIterator(nil, nil)
	defer iter.Release()
	batch := new(leveldb.Batch)
	for iter.Next() {
		batch.Delete(append([]byte{}, iter.Key()...))
	}
	if err := iter.Error(); err != nil {
		return err
	}
	return i.db.Write(batch, nil)
}

func (i *Index) Close() error {
	return i.db.Close()
}
