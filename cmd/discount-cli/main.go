package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"cpswap/cmd/internal/passphrase"
	"cpswap/crypto"
	"cpswap/native/discount"
	"cpswap/services/discountd/client"
)

const (
	endpointEnv   = "DISCOUNTD_URL"
	tokenEnv      = "DISCOUNTD_TOKEN"
	passphraseEnv = "DISCOUNTD_KEYSTORE_PASSPHRASE"
)

var (
	endpoint        = defaultEndpoint()
	requestTimeout  = 10 * time.Second
	keystoreOptions []crypto.KeystoreOption
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func defaultEndpoint() string {
	if value := strings.TrimSpace(os.Getenv(endpointEnv)); value != "" {
		return value
	}
	return "http://127.0.0.1:7081"
}

func passphraseSource(allowEmpty bool) *passphrase.Source {
	if allowEmpty {
		return passphrase.NewSource(passphraseEnv, passphrase.AllowEmpty())
	}
	return passphrase.NewSource(passphraseEnv)
}

func run(args []string, stdout, stderr io.Writer) int {
	args, err := applyGlobalFlags(args)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	if len(args) == 0 {
		fmt.Fprint(stderr, usage())
		return 1
	}
	switch args[0] {
	case "address":
		return runAddress(args[1:], stdout, stderr)
	case "generate-key":
		return runGenerateKey(args[1:], stdout, stderr)
	case "get":
		return runGet(args[1:], stdout, stderr)
	case "create":
		return runCreate(args[1:], stdout, stderr)
	case "set":
		return runSet(args[1:], stdout, stderr)
	case "fee":
		return runFee(args[1:], stdout, stderr)
	case "history":
		return runHistory(args[1:], stdout, stderr)
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage())
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[0])
		fmt.Fprint(stderr, usage())
		return 1
	}
}

func usage() string {
	buf := &bytes.Buffer{}
	fmt.Fprintln(buf, "Usage: discount-cli [--endpoint URL] <command> [flags]")
	fmt.Fprintln(buf, "Commands:")
	fmt.Fprintln(buf, "  address       Derive a participant's discount record address")
	fmt.Fprintln(buf, "  generate-key  Create an admin keystore")
	fmt.Fprintln(buf, "  get           Show a participant's discount")
	fmt.Fprintln(buf, "  create        Materialise a participant's discount record")
	fmt.Fprintln(buf, "  set           Sign and submit a new discount numerator")
	fmt.Fprintln(buf, "  fee           Quote the effective swap fee for a participant")
	fmt.Fprintln(buf, "  history       Show the audit trail for a participant")
	return buf.String()
}

// applyGlobalFlags strips leading --endpoint flags before the command name.
func applyGlobalFlags(args []string) ([]string, error) {
	for len(args) > 0 {
		arg := args[0]
		switch {
		case arg == "--endpoint" || arg == "-endpoint":
			if len(args) < 2 {
				return nil, errors.New("--endpoint requires a value")
			}
			endpoint = args[1]
			args = args[2:]
		case strings.HasPrefix(arg, "--endpoint="):
			endpoint = strings.TrimPrefix(arg, "--endpoint=")
			args = args[1:]
		default:
			return args, nil
		}
	}
	return args, nil
}

func newClient() (*client.Client, error) {
	c, err := client.New(endpoint, nil)
	if err != nil {
		return nil, err
	}
	return c.WithToken(os.Getenv(tokenEnv)), nil
}

func parseUser(raw string) ([20]byte, error) {
	if strings.TrimSpace(raw) == "" {
		return [20]byte{}, errors.New("--user is required")
	}
	user, err := crypto.ParseAccount(strings.TrimSpace(raw))
	if err != nil {
		return [20]byte{}, fmt.Errorf("invalid --user: %w", err)
	}
	return user, nil
}

func printJSON(stdout io.Writer, v any) {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func runAddress(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("address", flag.ContinueOnError)
	fs.SetOutput(stderr)
	userFlag := fs.String("user", "", "participant address")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	user, err := parseUser(*userFlag)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	addr, bump, err := discount.FindAddress(user)
	if err != nil {
		fmt.Fprintf(stderr, "Error deriving address: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "Record: %s\n", addr)
	fmt.Fprintf(stdout, "Bump:   %d\n", bump)
	return 0
}

func runGenerateKey(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("generate-key", flag.ContinueOnError)
	fs.SetOutput(stderr)
	out := fs.String("out", "admin.keystore", "keystore output path")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if _, err := os.Stat(*out); err == nil {
		fmt.Fprintf(stderr, "Error: %s already exists\n", *out)
		return 1
	}
	pass, err := passphraseSource(false).Get()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		fmt.Fprintf(stderr, "Error generating key: %v\n", err)
		return 1
	}
	if err := crypto.SaveToKeystore(*out, key, pass, keystoreOptions...); err != nil {
		fmt.Fprintf(stderr, "Error writing keystore: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "Admin address: %s\n", key.PubKey().Address())
	fmt.Fprintf(stdout, "Keystore:      %s\n", *out)
	return 0
}

func runGet(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("get", flag.ContinueOnError)
	fs.SetOutput(stderr)
	userFlag := fs.String("user", "", "participant address")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	user, err := parseUser(*userFlag)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	c, err := newClient()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	result, err := c.Get(ctx, user)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	printJSON(stdout, result)
	return 0
}

func runCreate(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("create", flag.ContinueOnError)
	fs.SetOutput(stderr)
	userFlag := fs.String("user", "", "participant address")
	payerFlag := fs.String("payer", "", "account funding the record (defaults to the participant)")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	user, err := parseUser(*userFlag)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	var payer [20]byte
	if strings.TrimSpace(*payerFlag) != "" {
		payer, err = crypto.ParseAccount(strings.TrimSpace(*payerFlag))
		if err != nil {
			fmt.Fprintf(stderr, "Error: invalid --payer: %v\n", err)
			return 1
		}
	}
	c, err := newClient()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	result, err := c.Create(ctx, user, payer)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	printJSON(stdout, result)
	return 0
}

func runSet(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("set", flag.ContinueOnError)
	fs.SetOutput(stderr)
	userFlag := fs.String("user", "", "participant address")
	recordFlag := fs.String("record", "", "record address (derived from --user when omitted)")
	numerator := fs.Uint64("numerator", 0, "discount numerator over the fee denominator")
	keystorePath := fs.String("keystore", "admin.keystore", "admin keystore path")
	allowEmpty := fs.Bool("allow-empty-passphrase", false, "accept an empty keystore passphrase")
	expiry := fs.Duration("expiry", 2*time.Minute, "signature lifetime")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	user, err := parseUser(*userFlag)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	var record discount.Address
	if strings.TrimSpace(*recordFlag) != "" {
		record, err = discount.ParseAddress(*recordFlag)
	} else {
		record, _, err = discount.FindAddress(user)
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: invalid record: %v\n", err)
		return 1
	}
	pass, err := passphraseSource(*allowEmpty).Get()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	key, err := crypto.LoadFromKeystore(*keystorePath, pass)
	if err != nil {
		fmt.Fprintf(stderr, "Error loading keystore: %v\n", err)
		return 1
	}
	c, err := newClient()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	result, err := c.Set(ctx, key, user, record, *numerator, *expiry)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	printJSON(stdout, result)
	return 0
}

func runFee(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("fee", flag.ContinueOnError)
	fs.SetOutput(stderr)
	userFlag := fs.String("user", "", "participant address")
	baseFee := fs.Uint64("base-fee", 0, "undiscounted fee")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	user, err := parseUser(*userFlag)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	c, err := newClient()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	result, err := c.Fee(ctx, user, *baseFee)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "Base fee:  %d\n", result.BaseFee)
	fmt.Fprintf(stdout, "Rebate:    %d\n", result.Rebate)
	fmt.Fprintf(stdout, "Effective: %d\n", result.Effective)
	return 0
}

func runHistory(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	fs.SetOutput(stderr)
	userFlag := fs.String("user", "", "participant address")
	limit := fs.Int("limit", 20, "maximum entries to return")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	user, err := parseUser(*userFlag)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	c, err := newClient()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	entries, err := c.History(ctx, user, *limit)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if len(entries) == 0 {
		fmt.Fprintln(stdout, "No discount events recorded.")
		return 0
	}
	for _, entry := range entries {
		fmt.Fprintf(stdout, "%s  %-17s %d -> %d  by %s\n",
			time.Unix(entry.CreatedAt, 0).UTC().Format(time.RFC3339),
			entry.Type, entry.Previous, entry.Numerator, entry.Actor)
	}
	return 0
}
