package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"ratscramble.ai/internal/persistence/indexdb"
	persistlog "ratscramble.ai/internal/persistence/log"
	"ratscramble.ai/internal/sim/game"
	"ratscramble.ai/internal/sim/table"
	"ratscramble.ai/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		configPath = flag.String("config", "", "path to game.yaml (empty: defaults)")
		gameID     = flag.String("game", "", "game id (empty: random)")
		seed       = flag.Int64("seed", 0, "override the configured seed (0: keep config)")
		schemaDir  = flag.String("schemas", "./schemas", "json schema directory (empty: skip validation)")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite read model")
		waitSeats  = flag.Duration("wait_players", 30*time.Second, "how long to wait for all four seats before starting")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	cfg, err := game.LoadConfig(*configPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if *seed != 0 {
		cfg.Seed = *seed
	}

	srv, err := ws.NewServer(cfg, strings.TrimSpace(*schemaDir), logger)
	if err != nil {
		logger.Fatalf("transport: %v", err)
	}
	tbl := table.New(cfg, table.Options{
		GameID:  *gameID,
		Agents:  srv.PlayerAgents(),
		Referee: srv.RefereeAgent(),
		Logger:  logger,
	})
	srv.Bind(tbl.GameID(), tbl.Journal())

	gameLog := persistlog.NewGameLogger(cfg.LogRoot, tbl.GameID())
	defer gameLog.Close()
	transcript := persistlog.NewTranscriptLogger(cfg.LogRoot, tbl.GameID())
	defer transcript.Close()

	var idx *indexdb.SQLiteIndex
	if !*disableDB {
		dbPath := cfg.IndexDB
		if dbPath == "" {
			dbPath = filepath.Join(cfg.LogRoot, "index.db")
		}
		idx, err = indexdb.OpenSQLite(dbPath)
		if err != nil {
			logger.Fatalf("open index: %v", err)
		}
		defer idx.Close()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-stop
		logger.Printf("shutting down")
		cancel()
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/ws", srv.Handler())
	httpSrv := &http.Server{Addr: *addr, Handler: mux}
	go func() {
		logger.Printf("game %s listening on %s", tbl.GameID(), *addr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("http: %v", err)
		}
	}()
	defer httpSrv.Close()

	pumpDone := make(chan struct{})
	go func() {
		defer close(pumpDone)
		pumpEvents(ctx, tbl, gameLog, transcript, idx)
	}()

	waitForSeats(ctx, srv, *waitSeats, logger)

	result, err := tbl.Run(ctx)
	cancel()
	<-pumpDone
	if err != nil {
		logger.Fatalf("run: %v", err)
	}
	logger.Printf("final scores %v, winners %v", result.Scores, result.Winners)
}

// waitForSeats holds the start until every character is connected or the
// grace period runs out. An absent player just forfeits its turns.
func waitForSeats(ctx context.Context, srv *ws.Server, grace time.Duration, logger *log.Logger) {
	deadline := time.Now().Add(grace)
	for time.Now().Before(deadline) {
		if ctx.Err() != nil {
			return
		}
		if len(srv.SeatedPlayers()) == len(game.CharacterOrder) {
			logger.Printf("all seats filled")
			return
		}
		time.Sleep(200 * time.Millisecond)
	}
	logger.Printf("starting with seats %v", srv.SeatedPlayers())
}

// pumpEvents copies the journal to the JSONL log and the sqlite index as
// events arrive. On shutdown it drains whatever the table emitted before
// the context was canceled, so the log on disk is always complete.
func pumpEvents(ctx context.Context, tbl *table.Table, gameLog *persistlog.GameLogger, transcript *persistlog.TranscriptLogger, idx *indexdb.SQLiteIndex) {
	j := tbl.Journal()
	var cursor uint64
	copyBatch := func() int {
		items, next := j.Since(cursor, 256)
		for _, item := range items {
			_ = gameLog.WriteEvent(item.Event)
			_ = transcript.WriteEvent(item.Event)
			if idx != nil {
				idx.WriteEvent(tbl.GameID(), item)
			}
		}
		cursor = next
		return len(items)
	}
	for {
		if copyBatch() > 0 {
			continue
		}
		select {
		case <-ctx.Done():
			for copyBatch() > 0 {
			}
			return
		case <-j.Notify():
		case <-time.After(time.Second):
		}
	}
}
