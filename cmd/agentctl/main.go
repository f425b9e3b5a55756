// Command agentctl inspects what the agent recorded: the hourly journal
// files and the SQLite index.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"

	"github.com/abdel0909/mc-bot/internal/persistence/indexdb"
	"github.com/abdel0909/mc-bot/internal/persistence/journal"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "journal":
			journalCmd(os.Args[2:])
			return
		case "db":
			dbCmd(os.Args[2:])
			return
		}
	}
	fmt.Fprintln(os.Stderr, "usage: agentctl journal|db [flags]")
	os.Exit(2)
}

func journalCmd(args []string) {
	fs := pflag.NewFlagSet("journal", pflag.ExitOnError)
	dataDir := fs.String("data", "./data", "agent data directory")
	stream := fs.String("stream", "sessions", "sessions or commands")
	connID := fs.String("conn", "", "only records of this connection id")
	_ = fs.Parse(args)

	if *stream != "sessions" && *stream != "commands" {
		fmt.Fprintln(os.Stderr, "unknown stream:", *stream)
		os.Exit(2)
	}
	files, err := journal.Files(filepath.Join(*dataDir, "journal"), *stream)
	if err != nil {
		fmt.Fprintln(os.Stderr, "list journal:", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "no journal files for", *stream)
		os.Exit(1)
	}

	var n int
	for _, path := range files {
		err := journal.Scan(path, func(line []byte) error {
			var head struct {
				ConnID string `json:"conn_id"`
			}
			if err := json.Unmarshal(line, &head); err != nil {
				return fmt.Errorf("unmarshal: %w", err)
			}
			if *connID != "" && head.ConnID != *connID {
				return nil
			}
			n++
			_, err := fmt.Fprintln(os.Stdout, string(line))
			return err
		})
		if err != nil {
			fmt.Fprintln(os.Stderr, "read:", err)
			os.Exit(1)
		}
	}
	fmt.Fprintf(os.Stderr, "%d %s records in %d files\n", n, *stream, len(files))
}

func dbCmd(args []string) {
	fs := pflag.NewFlagSet("db", pflag.ExitOnError)
	dataDir := fs.String("data", "./data", "agent data directory")
	dbPath := fs.String("db", "", "sqlite db path (default <data>/index/agent.sqlite)")
	sender := fs.String("sender", "", "sender filter (commands)")
	limit := fs.Int("limit", 20, "result limit (sessions)")
	_ = fs.Parse(args)

	q := "sessions"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}
	path := strings.TrimSpace(*dbPath)
	if path == "" {
		path = filepath.Join(*dataDir, "index", "agent.sqlite")
	}
	idx, err := indexdb.OpenReadOnly(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer idx.Close()

	ctx := context.Background()
	switch q {
	case "sessions":
		rows, err := idx.RecentSessions(ctx, *limit)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		for _, r := range rows {
			printJSON(r)
		}

	case "commands":
		rows, err := idx.CommandCounts(ctx, *sender)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		for _, r := range rows {
			printJSON(struct {
				Command string `json:"command"`
				Outcome string `json:"outcome"`
				N       int    `json:"n"`
			}{r.Command, r.Outcome, r.N})
		}

	default:
		fmt.Fprintln(os.Stderr, "unknown query:", q)
		os.Exit(2)
	}
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
