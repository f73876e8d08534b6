package indexer

import (
	"fmt"
	"io"

	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
)

type allocationRow struct {
	Seq       int64  `parquet:"name=seq, type=INT64"`
	Oracle    string `parquet:"name=oracle, type=UTF8, encoding=PLAIN_DICTIONARY"`
	Grantee   string `parquet:"name=grantee, type=UTF8, encoding=PLAIN_DICTIONARY"`
	Amount    string `parquet:"name=amount, type=UTF8, encoding=PLAIN_DICTIONARY"`
	Consumed  string `parquet:"name=consumed, type=UTF8, encoding=PLAIN_DICTIONARY"`
	ProofHash string `parquet:"name=proof_hash, type=UTF8, encoding=PLAIN_DICTIONARY"`
	Height    int64  `parquet:"name=height, type=INT64"`
}

// WriteAllocationsParquet writes rows as a snappy compressed parquet file.
// Amounts stay decimal strings since they can exceed 64 bits.
func WriteAllocationsParquet(w io.Writer, rows []Allocation) error {
	pw, err := writer.NewParquetWriter(writerfile.NewWriterFile(w), new(allocationRow), 1)
	if err != nil {
		return fmt.Errorf("indexer: parquet schema: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY
	for _, row := range rows {
		if err := pw.Write(&allocationRow{
			Seq:       int64(row.Seq),
			Oracle:    row.Oracle,
			Grantee:   row.Grantee,
			Amount:    row.Amount,
			Consumed:  row.Consumed,
			ProofHash: row.ProofHash,
			Height:    int64(row.Height),
		}); err != nil {
			_ = pw.WriteStop()
			return fmt.Errorf("indexer: parquet write: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return fmt.Errorf("indexer: parquet flush: %w", err)
	}
	return nil
}
