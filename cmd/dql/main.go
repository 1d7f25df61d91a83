// Command dql runs ad-hoc DQL queries against a Dgraph cluster.
//
// Usage:
//
//	dql -c dgraph://localhost:9080 -q '{ q(func: has(name)) { uid name } }'
//	dql -c dgraph://localhost:9080 -u groot -q '...'   (prompts for the password)
//	dql -c dgraph://localhost:9080 -version
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/istaridigital/godgraph"
	"github.com/istaridigital/godgraph/logging"
)

type config struct {
	connString string
	user       string
	namespace  uint64
	query      string
	version    bool
	debug      bool
}

func (c *config) loadDefaults() {
	c.connString = "dgraph://127.0.0.1:9080"
}

func parseFlags(cfg *config) {
	flag.StringVar(&cfg.connString, "c", cfg.connString, "dgraph:// connection string")
	flag.StringVar(&cfg.user, "u", cfg.user, "user to log in as (password is prompted)")
	flag.Uint64Var(&cfg.namespace, "n", cfg.namespace, "namespace to log into")
	flag.StringVar(&cfg.query, "q", cfg.query, "DQL query to run (reads stdin when empty)")
	flag.BoolVar(&cfg.version, "version", cfg.version, "print the server version and exit")
	flag.BoolVar(&cfg.debug, "d", cfg.debug, "debug logging")
	flag.Parse()
}

// readPassword is a test seam for term.ReadPassword.
var readPassword = func() ([]byte, error) { return term.ReadPassword(int(syscall.Stdin)) }

func main() {
	cfg := &config{}
	cfg.loadDefaults()
	parseFlags(cfg)

	if err := run(context.Background(), cfg); err != nil {
		fmt.Fprintf(os.Stderr, "dql: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config) error {
	level := slog.LevelWarn
	if cfg.debug {
		level = slog.LevelDebug
	}
	log := logging.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	client, err := godgraph.Open(ctx, cfg.connString, godgraph.WithLogger(log))
	if err != nil {
		return err
	}
	defer client.Close()

	if cfg.user != "" {
		fmt.Fprintf(os.Stderr, "password for %s: ", cfg.user)
		password, err := readPassword()
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return fmt.Errorf("reading password: %w", err)
		}
		if err := client.LoginIntoNamespace(ctx, cfg.user, string(password), cfg.namespace); err != nil {
			return err
		}
	}

	if cfg.version {
		tag, err := client.CheckVersion(ctx)
		if err != nil {
			return err
		}
		fmt.Println(tag)
		return nil
	}

	query := cfg.query
	if query == "" {
		q, err := readAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("reading query from stdin: %w", err)
		}
		query = q
	}
	if strings.TrimSpace(query) == "" {
		return fmt.Errorf("no query given")
	}

	resp, err := client.RunDQL(ctx, query)
	if err != nil {
		return err
	}
	fmt.Println(string(resp.Json))
	return nil
}

func readAll(f *os.File) (string, error) {
	var sb strings.Builder
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		sb.WriteString(scanner.Text())
		sb.WriteByte('\n')
	}
	return sb.String(), scanner.Err()
}
