package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"ratscramble.ai/internal/protocol"
)

// session is one player or referee connection. Writes are serialized with a
// mutex; replies are routed back to the waiting round trip by req_id.
type session struct {
	conn      *websocket.Conn
	actSchema *jsonschema.Schema

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan json.RawMessage
	closed  chan struct{}
	once    sync.Once
}

func newSession(conn *websocket.Conn, actSchema *jsonschema.Schema) *session {
	return &session{
		conn:      conn,
		actSchema: actSchema,
		pending:   make(map[string]chan json.RawMessage),
		closed:    make(chan struct{}),
	}
}

// roundTrip sends one request and waits for the matching reply, the context
// deadline, or connection loss, whichever comes first.
func (s *session) roundTrip(ctx context.Context, reqID string, req any) (json.RawMessage, error) {
	ch := make(chan json.RawMessage, 1)
	s.mu.Lock()
	s.pending[reqID] = ch
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.pending, reqID)
		s.mu.Unlock()
	}()

	if err := s.writeJSON(req); err != nil {
		return nil, err
	}
	select {
	case raw := <-ch:
		return raw, nil
	case <-s.closed:
		return nil, fmt.Errorf("connection closed waiting for %s", reqID)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// readLoop consumes inbound messages until the connection drops. ACT and
// RULING replies are matched to pending requests; anything unmatched or
// malformed is dropped, never fatal.
func (s *session) readLoop() {
	defer s.close()
	for {
		_ = s.conn.SetReadDeadline(time.Now().Add(10 * time.Minute))
		_, msg, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil || base.ProtocolVersion != protocol.Version {
			continue
		}
		var reqID string
		switch base.Type {
		case protocol.TypeAct:
			if s.actSchema != nil {
				var v any
				if err := json.Unmarshal(msg, &v); err != nil || s.actSchema.Validate(v) != nil {
					continue
				}
			}
			var act protocol.ActMsg
			if err := json.Unmarshal(msg, &act); err != nil {
				continue
			}
			reqID = act.ReqID
		case protocol.TypeRuling:
			var ruling protocol.RulingMsg
			if err := json.Unmarshal(msg, &ruling); err != nil {
				continue
			}
			reqID = ruling.ReqID
		default:
			continue
		}
		s.mu.Lock()
		ch := s.pending[reqID]
		s.mu.Unlock()
		if ch != nil {
			select {
			case ch <- json.RawMessage(append([]byte(nil), msg...)):
			default:
			}
		}
	}
}

func (s *session) writeJSON(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return s.conn.WriteMessage(websocket.TextMessage, b)
}

func (s *session) close() {
	s.once.Do(func() {
		close(s.closed)
		_ = s.conn.Close()
	})
}

func (s *session) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}
