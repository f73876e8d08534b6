package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"grantchain/indexer"
)

func runExport(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet(exportCommand, flag.ContinueOnError)
	dsn := fs.String("dsn", "", "Indexer database DSN")
	grantee := fs.String("grantee", "", "Only export allocations to this bech32 account")
	out := fs.String("out", "allocations.parquet", "Output parquet file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *dsn == "" {
		return errors.New("usage: grantctl export-audit -dsn <dsn> [-grantee addr] [-out file]")
	}
	db, err := indexer.Open(*dsn)
	if err != nil {
		return err
	}
	idx, err := indexer.New(db, nil)
	if err != nil {
		return err
	}
	defer idx.Close()

	rows, err := idx.Allocations(*grantee)
	if err != nil {
		return err
	}
	file, err := os.Create(*out)
	if err != nil {
		return err
	}
	if err := indexer.WriteAllocationsParquet(file, rows); err != nil {
		file.Close()
		return err
	}
	if err := file.Close(); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Wrote %d allocations to %s\n", len(rows), *out)
	return nil
}
