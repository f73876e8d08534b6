package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"grantchain/core/genesis"
	"grantchain/crypto"
	"grantchain/native/grants"
)

const (
	devnetCommand   = "devnet-genesis"
	validateCommand = "validate-genesis"
	lockedCommand   = "locked"
	tokenCommand    = "token"
	exportCommand   = "export-audit"
	defaultConfig   = "./config.toml"
)

func main() {
	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case devnetCommand:
		err = runDevnet(os.Args[2:], os.Stdout)
	case validateCommand:
		err = runValidate(os.Args[2:], os.Stdout)
	case lockedCommand:
		err = runLocked(os.Args[2:], os.Stdout)
	case tokenCommand:
		err = runToken(os.Args[2:], os.Stdout, newSecretSource(os.LookupEnv))
	case exportCommand:
		err = runExport(os.Args[2:], os.Stdout)
	default:
		usage(os.Stderr)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runDevnet(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet(devnetCommand, flag.ContinueOnError)
	format := fs.String("format", "json", "Output format: json or yaml")
	out := fs.String("out", "", "Write to this file instead of stdout")
	roots := fs.String("roots", "alice", "Comma separated dev account labels for the committees")
	oracles := fs.String("oracles", "ferdie", "Comma separated dev account labels for the oracle role")
	endowed := fs.String("endowed", "bob,charlie", "Comma separated dev account labels that receive the endowment")
	if err := fs.Parse(args); err != nil {
		return err
	}

	spec := genesis.DevnetSpec(devAccounts(*roots), devAccounts(*oracles), devAccounts(*endowed), nil)
	if err := spec.Validate(); err != nil {
		return err
	}
	encoded, err := encodeSpec(spec, *format)
	if err != nil {
		return err
	}
	if *out == "" {
		_, err = stdout.Write(encoded)
		return err
	}
	if err := os.WriteFile(*out, encoded, 0o644); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Wrote devnet genesis to %s\n", *out)
	return nil
}

func devAccounts(labels string) [][20]byte {
	var out [][20]byte
	for _, label := range strings.Split(labels, ",") {
		if trimmed := strings.TrimSpace(label); trimmed != "" {
			out = append(out, crypto.DevAccount(trimmed))
		}
	}
	return out
}

func encodeSpec(spec *genesis.GenesisSpec, format string) ([]byte, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "json", "":
		encoded, err := json.MarshalIndent(spec, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(encoded, '\n'), nil
	case "yaml", "yml":
		return yaml.Marshal(spec)
	default:
		return nil, fmt.Errorf("unsupported format %q", format)
	}
}

func runValidate(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet(validateCommand, flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: grantctl validate-genesis <path>")
	}
	spec, err := genesis.LoadGenesisSpec(fs.Arg(0))
	if err != nil {
		return err
	}
	resolved := spec.Resolved()
	fmt.Fprintf(stdout, "%s: ok (%d balances, %d grantees)\n", fs.Arg(0), len(resolved.Balances), len(resolved.Schedules))
	return nil
}

func runLocked(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet(lockedCommand, flag.ContinueOnError)
	path := fs.String("genesis", "", "Genesis file carrying the schedules")
	account := fs.String("account", "", "Bech32 grantee address")
	height := fs.Uint64("height", 0, "Block height to evaluate at")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *path == "" || *account == "" {
		return errors.New("usage: grantctl locked -genesis <path> -account <address> [-height N]")
	}
	spec, err := genesis.LoadGenesisSpec(*path)
	if err != nil {
		return err
	}
	grantee, err := crypto.ParseAccount(*account)
	if err != nil {
		return err
	}
	rules := spec.Resolved().Schedules[grantee]
	locked, err := grants.LockedAt(rules, *height)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "%s locked at %d: %s (%d rules)\n", crypto.AccountString(grantee), *height, locked.Dec(), len(rules))
	return nil
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "grantctl <command>")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintf(w, "  %s    Print a devnet genesis document\n", devnetCommand)
	fmt.Fprintf(w, "  %s  Check a genesis document\n", validateCommand)
	fmt.Fprintf(w, "  %s            Evaluate a grantee's locked balance from a genesis file\n", lockedCommand)
	fmt.Fprintf(w, "  %s             Mint an operator token for the call API\n", tokenCommand)
	fmt.Fprintf(w, "  %s      Write indexed allocations to a parquet file\n", exportCommand)
}
