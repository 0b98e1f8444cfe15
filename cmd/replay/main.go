package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	persistlog "ratscramble.ai/internal/persistence/log"
	"ratscramble.ai/internal/sim/game"
	"ratscramble.ai/internal/sim/table"
)

func main() {
	var (
		eventsPath = flag.String("events", "", "path to events.jsonl.zst")
		logRoot    = flag.String("log_root", "logs", "log root (used with -game)")
		gameID     = flag.String("game", "", "game id under the log root")
		configPath = flag.String("config", "", "path to game.yaml (empty: defaults)")
	)
	flag.Parse()

	path := strings.TrimSpace(*eventsPath)
	if path == "" && *gameID != "" {
		path = persistlog.EventLogPath(*logRoot, *gameID)
	}
	if path == "" {
		fmt.Fprintln(os.Stderr, "missing -events or -game")
		os.Exit(2)
	}

	cfg, err := game.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}

	events, err := persistlog.ReadEvents(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read events:", err)
		os.Exit(1)
	}
	fmt.Printf("replaying %d events from %s\n", len(events), path)

	result, err := table.Replay(cfg, events)
	if err != nil {
		fmt.Fprintln(os.Stderr, "replay:", err)
		os.Exit(1)
	}

	fmt.Println("digest checks passed")
	for _, c := range game.CharacterOrder {
		fmt.Printf("  %-12s %d\n", c, result.Scores[c])
	}
	winners := make([]string, 0, len(result.Winners))
	for _, c := range result.Winners {
		winners = append(winners, string(c))
	}
	if len(winners) == 0 {
		fmt.Printf("no player reached the threshold (%d)\n", result.Threshold)
		return
	}
	fmt.Printf("winners: %s (threshold %d)\n", strings.Join(winners, ", "), result.Threshold)
}
