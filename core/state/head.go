package state

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"grantchain/storage"
)

var headKey = []byte("grantchain/head")

// Head is the last committed state root and the block height it was
// committed at.
type Head struct {
	Root   common.Hash
	Height uint64
}

// ReadHead loads the head record. ok is false on a fresh database.
func ReadHead(db storage.Database) (Head, bool, error) {
	raw, err := db.Get(headKey)
	if errors.Is(err, storage.ErrNotFound) {
		return Head{}, false, nil
	}
	if err != nil {
		return Head{}, false, fmt.Errorf("read head: %w", err)
	}
	if len(raw) != common.HashLength+8 {
		return Head{}, false, fmt.Errorf("read head: malformed record of %d bytes", len(raw))
	}
	return Head{
		Root:   common.BytesToHash(raw[:common.HashLength]),
		Height: binary.BigEndian.Uint64(raw[common.HashLength:]),
	}, true, nil
}

// WriteHead persists the head record.
func WriteHead(db storage.Database, head Head) error {
	buf := make([]byte, common.HashLength+8)
	copy(buf, head.Root.Bytes())
	binary.BigEndian.PutUint64(buf[common.HashLength:], head.Height)
	return db.Put(headKey, buf)
}
