package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"voxelpush.ai/internal/persistence/indexdb"
)

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	target := fs.String("db", "", "sqlite path or postgres:// url (optional; defaults to <data>/index/index.sqlite)")
	levelID := fs.String("level", "", "level_id filter (records)")
	limit := fs.Int("limit", 20, "result limit")
	_ = fs.Parse(args)

	q := "levels"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}

	path := strings.TrimSpace(*target)
	if path == "" {
		path = filepath.Join(*dataDir, "index", "index.sqlite")
		if _, err := os.Stat(path); err != nil {
			fmt.Fprintln(os.Stderr, "no index at", path)
			os.Exit(2)
		}
	}

	idx, err := indexdb.Open(path, indexdb.WithSession("admin"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer idx.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch q {
	case "levels":
		rows, err := idx.Summaries(ctx)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		for _, r := range rows {
			printJSON(r)
		}

	case "records":
		rows, err := idx.Records(ctx, *levelID, *limit)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		for _, r := range rows {
			printJSON(r)
		}

	default:
		fmt.Fprintln(os.Stderr, "unknown query:", q, "(want levels or records)")
		os.Exit(2)
	}
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
