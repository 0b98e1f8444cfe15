package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/zstd"

	"ratscramble.ai/internal/protocol"
)

// JSONLZstdWriter appends one JSON document per line to a zstd-compressed
// file. Every write is flushed through the encoder so a crash loses at most
// the entry being written.
type JSONLZstdWriter struct {
	path string

	mu  sync.Mutex
	f   *os.File
	enc *zstd.Encoder
	w   *bufio.Writer
}

func NewJSONLZstdWriter(path string) *JSONLZstdWriter {
	return &JSONLZstdWriter{path: path}
}

func (w *JSONLZstdWriter) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.f == nil {
		if err := w.openLocked(); err != nil {
			return err
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	return w.w.Flush()
}

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *JSONLZstdWriter) openLocked() error {
	if err := os.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 128*1024)
	return nil
}

func (w *JSONLZstdWriter) closeLocked() error {
	var err error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	w.w = nil
	return err
}

// GameLogger writes one game's event stream (compressed JSONL). The stream
// file is the durable source of truth for replay; the sqlite index is a
// secondary read model.
type GameLogger struct{ w *JSONLZstdWriter }

func NewGameLogger(logRoot, gameID string) *GameLogger {
	return &GameLogger{w: NewJSONLZstdWriter(EventLogPath(logRoot, gameID))}
}

func (l *GameLogger) WriteEvent(ev protocol.Event) error { return l.w.Write(ev) }
func (l *GameLogger) Close() error                       { return l.w.Close() }

func EventLogPath(logRoot, gameID string) string {
	return filepath.Join(logRoot, gameID, "events.jsonl.zst")
}

// TranscriptLogger writes the table-talk record: speaks, agreement
// lifecycle, and referee rulings. It is a human-readable companion to the
// event stream, not an input to replay.
type TranscriptLogger struct{ w *JSONLZstdWriter }

func NewTranscriptLogger(logRoot, gameID string) *TranscriptLogger {
	return &TranscriptLogger{w: NewJSONLZstdWriter(TranscriptPath(logRoot, gameID))}
}

var transcriptTypes = map[string]bool{
	protocol.EventSpeak:             true,
	protocol.EventAgreementRecorded: true,
	protocol.EventAgreementAccepted: true,
	protocol.EventAgreementVoided:   true,
	protocol.EventRefereeRuling:     true,
}

// WriteEvent records the event if it belongs in the transcript and ignores
// it otherwise, so callers can feed it the full stream.
func (l *TranscriptLogger) WriteEvent(ev protocol.Event) error {
	typ, _ := ev["type"].(string)
	if !transcriptTypes[typ] {
		return nil
	}
	return l.w.Write(ev)
}

func (l *TranscriptLogger) Close() error { return l.w.Close() }

func TranscriptPath(logRoot, gameID string) string {
	return filepath.Join(logRoot, gameID, "transcript.jsonl.zst")
}

// ReadEvents loads a complete event stream back from disk in append order.
func ReadEvents(path string) ([]protocol.Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	var out []protocol.Event
	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		if len(sc.Bytes()) == 0 {
			continue
		}
		var ev protocol.Event
		if err := json.Unmarshal(sc.Bytes(), &ev); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, ev)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
