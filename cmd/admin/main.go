package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"ratscramble.ai/internal/persistence/indexdb"
)

func main() {
	var (
		dbPath = flag.String("db", "logs/index.db", "sqlite index path")
	)
	flag.Parse()

	idx, err := indexdb.OpenSQLite(*dbPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open index:", err)
		os.Exit(1)
	}
	defer idx.Close()
	ctx := context.Background()

	switch flag.Arg(0) {
	case "", "games":
		listGames(ctx, idx)
	case "rounds":
		if flag.Arg(1) == "" {
			fmt.Fprintln(os.Stderr, "usage: admin rounds <game_id>")
			os.Exit(2)
		}
		listRounds(ctx, idx, flag.Arg(1))
	case "events":
		if flag.Arg(1) == "" {
			fmt.Fprintln(os.Stderr, "usage: admin events <game_id>")
			os.Exit(2)
		}
		dumpEvents(ctx, idx, flag.Arg(1))
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q (games, rounds, events)\n", flag.Arg(0))
		os.Exit(2)
	}
}

func listGames(ctx context.Context, idx *indexdb.SQLiteIndex) {
	games, err := idx.ListGames(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "list games:", err)
		os.Exit(1)
	}
	for _, g := range games {
		status := "running"
		if g.EndedMs > 0 {
			status = "ended " + time.UnixMilli(g.EndedMs).UTC().Format(time.RFC3339)
		}
		fmt.Printf("%-10s seed=%-12d rounds=%-2d %s winners=%s\n",
			g.GameID, g.Seed, g.MaxRounds, status, g.Winners)
	}
}

func listRounds(ctx context.Context, idx *indexdb.SQLiteIndex, gameID string) {
	rounds, err := idx.Rounds(ctx, gameID)
	if err != nil {
		fmt.Fprintln(os.Stderr, "rounds:", err)
		os.Exit(1)
	}
	for _, r := range rounds {
		tie := ""
		if r.TieSource != "" {
			tie = " tie=" + r.TieSource
		}
		fmt.Printf("round %-2d passed=%d outcome=%-9s votes=%d effect=%q%s digest=%s\n",
			r.Round, r.Passed, r.Outcome, r.WinningVotes, r.Effect, tie, r.Digest)
	}
}

func dumpEvents(ctx context.Context, idx *indexdb.SQLiteIndex, gameID string) {
	var cursor uint64
	for {
		items, err := idx.EventsSince(ctx, gameID, cursor, 256)
		if err != nil {
			fmt.Fprintln(os.Stderr, "events:", err)
			os.Exit(1)
		}
		if len(items) == 0 {
			return
		}
		for _, item := range items {
			b, _ := json.Marshal(item.Event)
			fmt.Printf("%6d %s\n", item.Cursor, b)
			cursor = item.Cursor
		}
	}
}
