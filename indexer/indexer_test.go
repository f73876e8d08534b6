package indexer

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
	"github.com/xitongsys/parquet-go-source/buffer"
	"github.com/xitongsys/parquet-go/reader"

	"grantchain/core/events"
	"grantchain/crypto"
)

func setupIndexer(t *testing.T) *Indexer {
	t.Helper()
	db, err := Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	idx, err := New(db, nil)
	if err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func TestIndexerPersistsAllocations(t *testing.T) {
	idx := setupIndexer(t)
	oracle, grantee := crypto.DevAccount("oracle"), crypto.DevAccount("grantee")

	for seq := uint64(1); seq <= 2; seq++ {
		idx.Emit(events.AtHeight(events.Allocated{
			Seq:      seq,
			Oracle:   oracle,
			Grantee:  grantee,
			Amount:   uint256.NewInt(10 * seq),
			Consumed: uint256.NewInt(10 * seq),
		}, 40+seq))
	}
	idx.Emit(events.AtHeight(events.Transfer{From: grantee, To: oracle, Amount: uint256.NewInt(1)}, 43))

	rows, err := idx.Allocations(crypto.AccountString(grantee))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, uint64(1), rows[0].Seq)
	require.Equal(t, "20", rows[1].Amount)
	require.Equal(t, uint64(42), rows[1].Height)
	require.Equal(t, crypto.AccountString(oracle), rows[0].Oracle)

	all, err := idx.Events("", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, events.TypeTransfer, all[0].Type)

	allocated, err := idx.Events(events.TypeAllocated, 1)
	require.NoError(t, err)
	require.Len(t, allocated, 1)
	require.Equal(t, uint64(42), allocated[0].Height)
}

func TestIndexerSwallowsDuplicates(t *testing.T) {
	idx := setupIndexer(t)
	evt := events.Allocated{Seq: 1, Amount: uint256.NewInt(1), Consumed: uint256.NewInt(1)}
	idx.Emit(evt)
	idx.Emit(evt)

	rows, err := idx.Allocations(crypto.AccountString([20]byte{}))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	all, err := idx.Events(events.TypeAllocated, 0)
	require.NoError(t, err)
	require.Len(t, all, 1, "failed transaction leaves no partial rows")
}

func TestOpenRequiresDSN(t *testing.T) {
	_, err := Open(" ")
	require.Error(t, err)
	_, err = New(nil, nil)
	require.Error(t, err)
}

func TestAllocationsParquetExport(t *testing.T) {
	idx := setupIndexer(t)
	for seq := uint64(1); seq <= 3; seq++ {
		idx.Emit(events.AtHeight(events.Allocated{
			Seq:       seq,
			Grantee:   crypto.DevAccount(fmt.Sprintf("grantee-%d", seq)),
			Amount:    uint256.NewInt(seq),
			Consumed:  uint256.NewInt(seq * (seq + 1) / 2),
			ProofHash: [32]byte{byte(seq)},
		}, seq))
	}
	rows, err := idx.Allocations("")
	require.NoError(t, err)
	require.Len(t, rows, 3)

	var buf bytes.Buffer
	require.NoError(t, WriteAllocationsParquet(&buf, rows))
	out := buf.Bytes()
	require.Greater(t, len(out), 8)
	require.Equal(t, "PAR1", string(out[:4]))
	require.Equal(t, "PAR1", string(out[len(out)-4:]))

	pr, err := reader.NewParquetReader(buffer.NewBufferFileFromBytes(out), new(allocationRow), 1)
	require.NoError(t, err)
	defer pr.ReadStop()
	require.Equal(t, int64(3), pr.GetNumRows())
	decoded := make([]allocationRow, pr.GetNumRows())
	require.NoError(t, pr.Read(&decoded))
	require.Equal(t, int64(3), decoded[2].Seq)
	require.Equal(t, "3", decoded[2].Amount)
	require.Equal(t, "6", decoded[2].Consumed)
	require.Equal(t, rows[2].Grantee, decoded[2].Grantee)
	require.Equal(t, int64(3), decoded[2].Height)
}
