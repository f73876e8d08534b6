package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"grantchain/config"
	"grantchain/crypto"
	"grantchain/rpc"
)

// secretSource resolves the call API secret from the environment, falling
// back to an interactive prompt.
type secretSource struct {
	lookup func(string) (string, bool)
	prompt func() ([]byte, error)
}

func newSecretSource(lookup func(string) (string, bool)) *secretSource {
	return &secretSource{lookup: lookup, prompt: promptSecret}
}

func (s *secretSource) get(auth config.Auth) ([]byte, error) {
	if secret, err := auth.Secret(s.lookup); err == nil {
		return secret, nil
	}
	if s.prompt == nil {
		return nil, errors.New("api secret required")
	}
	secret, err := s.prompt()
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(string(secret)) == "" {
		return nil, errors.New("api secret cannot be empty")
	}
	return secret, nil
}

func promptSecret() ([]byte, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return nil, fmt.Errorf("api secret required; set %s or run interactively", config.DefaultSecretEnv)
	}
	fmt.Fprint(os.Stderr, "Enter call API secret: ")
	secret, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("failed to read secret: %w", err)
	}
	return secret, nil
}

func runToken(args []string, stdout io.Writer, secrets *secretSource) error {
	fs := flag.NewFlagSet(tokenCommand, flag.ContinueOnError)
	configPath := fs.String("config", defaultConfig, "Path to the node config file")
	account := fs.String("account", "", "Bech32 account the token acts for")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *account == "" {
		return errors.New("usage: grantctl token -account <address> [-config path]")
	}
	caller, err := crypto.ParseAccount(*account)
	if err != nil {
		return err
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	ttl, err := cfg.Auth.TTL()
	if err != nil {
		return err
	}
	secret, err := secrets.get(cfg.Auth)
	if err != nil {
		return err
	}
	token, err := rpc.IssueToken(rpc.AuthConfig{Secret: secret, Issuer: cfg.Auth.Issuer, Audience: cfg.Auth.Audience}, caller, ttl)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, token)
	return nil
}
