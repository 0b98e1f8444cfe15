package indexdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	_ "modernc.org/sqlite"

	"ratscramble.ai/internal/protocol"
)

// SQLiteIndex is a queryable read model over the event stream. Writes go
// through a single writer goroutine so the table loop never blocks on disk;
// the compressed JSONL log remains the source of truth.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool
}

type req struct {
	gameID string
	item   protocol.EventBatchItem
}

type GameRow struct {
	GameID      string
	Seed        int64
	MaxRounds   int
	StartedMs   int64
	EndedMs     int64
	Winners     string
	ScoresJSON  string
	FinalDigest string
}

type RoundRow struct {
	GameID       string
	Round        int
	Passed       int
	Outcome      string
	WinningVotes int
	Effect       string
	TieSource    string
	Digest       string
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		// Enough headroom for a full game's stream without stalling.
		ch: make(chan req, 16384),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	// WAL is much faster for append-style workloads. NORMAL is a decent
	// durability/perf tradeoff for a secondary index.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS games (
			game_id TEXT PRIMARY KEY,
			seed INTEGER NOT NULL,
			max_rounds INTEGER NOT NULL,
			started_ms INTEGER NOT NULL,
			ended_ms INTEGER,
			winners TEXT,
			scores_json TEXT,
			final_digest TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS rounds (
			game_id TEXT NOT NULL,
			round INTEGER NOT NULL,
			passed INTEGER NOT NULL,
			outcome TEXT NOT NULL,
			winning_votes INTEGER NOT NULL,
			effect TEXT,
			tie_source TEXT,
			digest TEXT NOT NULL,
			raw_json TEXT NOT NULL,
			PRIMARY KEY (game_id, round)
		);`,
		`CREATE TABLE IF NOT EXISTS events (
			game_id TEXT NOT NULL,
			cursor INTEGER NOT NULL,
			type TEXT NOT NULL,
			round INTEGER NOT NULL,
			phase TEXT NOT NULL,
			ts_ms INTEGER NOT NULL,
			raw_json TEXT NOT NULL,
			PRIMARY KEY (game_id, cursor)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_events_type ON events(game_id, type, cursor);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	if _, err := db.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// WriteEvent enqueues one stream entry. If the indexer falls behind the
// entry is dropped; the JSONL log still has it.
func (s *SQLiteIndex) WriteEvent(gameID string, item protocol.EventBatchItem) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- req{gameID: gameID, item: item}:
	default:
	}
}

func (s *SQLiteIndex) loop() {
	insertEvent, _ := s.db.Prepare(`INSERT OR REPLACE INTO events(game_id,cursor,type,round,phase,ts_ms,raw_json) VALUES(?,?,?,?,?,?,?)`)
	insertGame, _ := s.db.Prepare(`INSERT OR REPLACE INTO games(game_id,seed,max_rounds,started_ms) VALUES(?,?,?,?)`)
	endGame, _ := s.db.Prepare(`UPDATE games SET ended_ms=?, winners=?, scores_json=?, final_digest=? WHERE game_id=?`)
	insertRound, _ := s.db.Prepare(`INSERT OR REPLACE INTO rounds(game_id,round,passed,outcome,winning_votes,effect,tie_source,digest,raw_json) VALUES(?,?,?,?,?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertEvent, insertGame, endGame, insertRound} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	for r := range s.ch {
		ev := r.item.Event
		raw, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		typ, _ := ev["type"].(string)
		phase, _ := ev["phase"].(string)
		if insertEvent != nil {
			_, _ = insertEvent.Exec(r.gameID, r.item.Cursor, typ, asInt(ev["round"]), phase, asInt(ev["ts_ms"]), string(raw))
		}

		switch typ {
		case protocol.EventGameStarted:
			if insertGame != nil {
				_, _ = insertGame.Exec(r.gameID, asInt(ev["seed"]), asInt(ev["max_rounds"]), asInt(ev["ts_ms"]))
			}
		case protocol.EventRoundResolved:
			if insertRound != nil {
				outcome, _ := ev["outcome"].(string)
				effect, _ := ev["effect"].(string)
				digest, _ := ev["digest"].(string)
				tieSource, _ := ev["tie_break"].(string)
				_, _ = insertRound.Exec(r.gameID, asInt(ev["round"]), asInt(ev["passed"]),
					outcome, asInt(ev["winning_votes"]), effect, tieSource, digest, string(raw))
			}
		case protocol.EventGameEnded:
			if endGame != nil {
				digest, _ := ev["digest"].(string)
				winners, _ := json.Marshal(ev["winners"])
				scores, _ := json.Marshal(ev["scores"])
				_, _ = endGame.Exec(asInt(ev["ts_ms"]), string(winners), string(scores), digest, r.gameID)
			}
		}
	}
}

func (s *SQLiteIndex) ListGames(ctx context.Context) ([]GameRow, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT game_id, seed, max_rounds, started_ms,
		COALESCE(ended_ms,0), COALESCE(winners,''), COALESCE(scores_json,''), COALESCE(final_digest,'')
		FROM games ORDER BY started_ms`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []GameRow
	for rows.Next() {
		var g GameRow
		if err := rows.Scan(&g.GameID, &g.Seed, &g.MaxRounds, &g.StartedMs, &g.EndedMs,
			&g.Winners, &g.ScoresJSON, &g.FinalDigest); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (s *SQLiteIndex) Rounds(ctx context.Context, gameID string) ([]RoundRow, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT game_id, round, passed, outcome, winning_votes,
		COALESCE(effect,''), COALESCE(tie_source,''), digest
		FROM rounds WHERE game_id=? ORDER BY round`, gameID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []RoundRow
	for rows.Next() {
		var r RoundRow
		if err := rows.Scan(&r.GameID, &r.Round, &r.Passed, &r.Outcome, &r.WinningVotes,
			&r.Effect, &r.TieSource, &r.Digest); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// EventsSince reads back stored events after the given cursor, in order.
func (s *SQLiteIndex) EventsSince(ctx context.Context, gameID string, cursor uint64, limit int) ([]protocol.EventBatchItem, error) {
	if limit <= 0 {
		limit = 256
	}
	rows, err := s.db.QueryContext(ctx, `SELECT cursor, raw_json FROM events
		WHERE game_id=? AND cursor>? ORDER BY cursor LIMIT ?`, gameID, cursor, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []protocol.EventBatchItem
	for rows.Next() {
		var item protocol.EventBatchItem
		var raw string
		if err := rows.Scan(&item.Cursor, &raw); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(raw), &item.Event); err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

func asInt(v any) int64 {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int64:
		return n
	case uint64:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}
