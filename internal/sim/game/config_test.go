package game

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfig_EmptyPathUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.MaxRounds != 10 || cfg.WinThreshold != 15 || cfg.Seed != 42 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.NegotiationWordCap != 500 || cfg.VoteChangeCap != 2 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if len(cfg.RetryBackoffSeconds) != 2 || cfg.RetryBackoffSeconds[0] != 1.0 {
		t.Fatalf("unexpected backoff: %v", cfg.RetryBackoffSeconds)
	}
}

func TestLoadConfig_PartialFileKeepsRest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "game.yaml")
	body := "max_rounds: 3\nseed: 99\nnegotiation_deadlock_seconds: 5\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.MaxRounds != 3 || cfg.Seed != 99 || cfg.NegotiationDeadlockSeconds != 5 {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.WinThreshold != 15 || cfg.RequestRetries != 2 {
		t.Fatalf("defaults lost: %+v", cfg)
	}
}

func TestConfigValidate_RejectsTooManyRounds(t *testing.T) {
	cfg := Defaults()
	cfg.MaxRounds = 11
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for max_rounds > 10")
	}
}

func TestParseCharacter(t *testing.T) {
	for _, raw := range []string{"d'ambrosio", "DAmbrosio", "D'AMBROSIO"} {
		c, ok := ParseCharacter(raw)
		if !ok || c != DAmbrosio {
			t.Fatalf("%q: got %q/%v", raw, c, ok)
		}
	}
	if _, ok := ParseCharacter("nobody"); ok {
		t.Fatal("accepted unknown character")
	}
}

func TestParseSeasons(t *testing.T) {
	seq, err := ParseSeasons("WWP")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(seq) != 3 || seq[0] != SeasonWinter || seq[2] != SeasonSpring {
		t.Fatalf("unexpected sequence %v", seq)
	}
	if SeasonLetters(seq) != "WWP" {
		t.Fatalf("round trip: %s", SeasonLetters(seq))
	}
	if _, err := ParseSeasons("WXP"); err == nil {
		t.Fatal("accepted unknown letter")
	}
}
