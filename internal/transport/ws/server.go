package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"ratscramble.ai/internal/protocol"
	"ratscramble.ai/internal/sim/game"
	"ratscramble.ai/internal/sim/table"
)

// Server bridges the table to remote agents over WebSocket. Players and the
// referee connect with HELLO, receive WELCOME, then answer the table's
// requests matched by req_id. Observers read the event stream by cursor.
type Server struct {
	cfg game.Config
	log *log.Logger

	upgrader websocket.Upgrader

	helloSchema *jsonschema.Schema
	actSchema   *jsonschema.Schema

	mu      sync.Mutex
	gameID  string
	journal *table.Journal
	players map[game.Character]*session
	referee *session
}

// NewServer builds the transport. schemaDir may be empty, in which case
// inbound messages are decoded without schema validation.
func NewServer(cfg game.Config, schemaDir string, logger *log.Logger) (*Server, error) {
	s := &Server{
		cfg:     cfg,
		log:     logger,
		players: make(map[game.Character]*session),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
	if schemaDir != "" {
		var err error
		if s.helloSchema, err = jsonschema.Compile(filepath.Join(schemaDir, "hello.schema.json")); err != nil {
			return nil, fmt.Errorf("compile hello schema: %w", err)
		}
		if s.actSchema, err = jsonschema.Compile(filepath.Join(schemaDir, "act.schema.json")); err != nil {
			return nil, fmt.Errorf("compile act schema: %w", err)
		}
	}
	return s, nil
}

// Bind attaches the running game's identity and event stream. Connections
// arriving before Bind are welcomed with an empty game id.
func (s *Server) Bind(gameID string, journal *table.Journal) {
	s.mu.Lock()
	s.gameID = gameID
	s.journal = journal
	s.mu.Unlock()
}

// PlayerAgents returns one table agent per character. Each agent resolves
// the live connection at call time, so reconnects are transparent to the
// table: a request simply fails while the seat is empty.
func (s *Server) PlayerAgents() map[game.Character]table.Agent {
	out := make(map[game.Character]table.Agent, len(game.CharacterOrder))
	for _, c := range game.CharacterOrder {
		out[c] = &remoteAgent{s: s, character: c}
	}
	return out
}

func (s *Server) RefereeAgent() table.RefereeAgent {
	return &remoteReferee{s: s}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		hello, ok := s.readHello(conn)
		if !ok {
			return
		}
		switch hello.Role {
		case protocol.RolePlayer:
			s.servePlayer(conn, hello)
		case protocol.RoleReferee:
			s.serveReferee(conn)
		case protocol.RoleObserver:
			s.serveObserver(conn)
		default:
			closePolicy(conn, "unknown role")
		}
	}
}

func (s *Server) readHello(conn *websocket.Conn) (protocol.HelloMsg, bool) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return protocol.HelloMsg{}, false
	}
	if s.helloSchema != nil {
		var v any
		if err := json.Unmarshal(msg, &v); err != nil || s.helloSchema.Validate(v) != nil {
			closePolicy(conn, "malformed HELLO")
			return protocol.HelloMsg{}, false
		}
	}
	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil || hello.Type != protocol.TypeHello {
		closePolicy(conn, "expected HELLO")
		return protocol.HelloMsg{}, false
	}
	if hello.ProtocolVersion != protocol.Version {
		closePolicy(conn, "bad protocol_version")
		return protocol.HelloMsg{}, false
	}
	return hello, true
}

func (s *Server) servePlayer(conn *websocket.Conn, hello protocol.HelloMsg) {
	c, ok := game.ParseCharacter(hello.Character)
	if !ok {
		closePolicy(conn, "unknown character")
		return
	}

	sess := newSession(conn, s.actSchema)
	s.mu.Lock()
	if cur := s.players[c]; cur != nil && !cur.isClosed() {
		s.mu.Unlock()
		closePolicy(conn, "character already seated")
		return
	}
	s.players[c] = sess
	gameID := s.gameID
	s.mu.Unlock()

	if err := sess.writeJSON(s.welcome(gameID, string(c))); err != nil {
		sess.close()
		return
	}
	s.logf("player %s connected (%s)", c, hello.AgentName)
	sess.readLoop()

	s.mu.Lock()
	if s.players[c] == sess {
		delete(s.players, c)
	}
	s.mu.Unlock()
	s.logf("player %s disconnected", c)
}

func (s *Server) serveReferee(conn *websocket.Conn) {
	sess := newSession(conn, nil)
	s.mu.Lock()
	if s.referee != nil && !s.referee.isClosed() {
		s.mu.Unlock()
		closePolicy(conn, "referee already seated")
		return
	}
	s.referee = sess
	gameID := s.gameID
	s.mu.Unlock()

	if err := sess.writeJSON(s.welcome(gameID, "")); err != nil {
		sess.close()
		return
	}
	s.logf("referee connected")
	sess.readLoop()

	s.mu.Lock()
	if s.referee == sess {
		s.referee = nil
	}
	s.mu.Unlock()
	s.logf("referee disconnected")
}

// serveObserver answers cursor reads against the journal. When the cursor is
// at the head the reply waits briefly for new events, so a polling client
// does not spin.
func (s *Server) serveObserver(conn *websocket.Conn) {
	s.mu.Lock()
	journal := s.journal
	gameID := s.gameID
	s.mu.Unlock()

	if err := writeJSON(conn, s.welcome(gameID, "")); err != nil {
		return
	}
	for {
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var req protocol.EventBatchReqMsg
		if err := json.Unmarshal(msg, &req); err != nil || req.Type != protocol.TypeEventBatchReq {
			continue
		}
		var items []protocol.EventBatchItem
		next := req.SinceCursor
		if journal != nil {
			items, next = journal.Since(req.SinceCursor, req.Limit)
			if len(items) == 0 {
				select {
				case <-journal.Notify():
					items, next = journal.Since(req.SinceCursor, req.Limit)
				case <-time.After(10 * time.Second):
				}
			}
		}
		resp := protocol.EventBatchMsg{
			Type:            protocol.TypeEventBatch,
			ProtocolVersion: protocol.Version,
			ReqID:           req.ReqID,
			Events:          items,
			NextCursor:      next,
			GameID:          gameID,
		}
		if err := writeJSON(conn, resp); err != nil {
			return
		}
	}
}

func (s *Server) welcome(gameID, character string) protocol.WelcomeMsg {
	return protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		GameID:          gameID,
		Character:       character,
		ResumeToken:     uuid.NewString(),
		GameParams: protocol.GameParams{
			MaxRounds:           s.cfg.MaxRounds,
			WinThreshold:        s.cfg.WinThreshold,
			NegotiationWordCap:  s.cfg.NegotiationWordCap,
			VoteChangeCapTarget: s.cfg.VoteChangeCap,
			Seed:                s.cfg.Seed,
		},
	}
}

// SeatedPlayers lists the characters with a live connection, in fixed
// player order.
func (s *Server) SeatedPlayers() []game.Character {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []game.Character
	for _, c := range game.CharacterOrder {
		if sess := s.players[c]; sess != nil && !sess.isClosed() {
			out = append(out, c)
		}
	}
	return out
}

func (s *Server) player(c game.Character) *session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.players[c]
}

func (s *Server) logf(format string, args ...interface{}) {
	if s.log != nil {
		s.log.Printf(format, args...)
	}
}

// remoteAgent satisfies the table's agent interface by round-tripping an
// ACTION_REQUEST over the character's live connection.
type remoteAgent struct {
	s         *Server
	character game.Character
}

func (a *remoteAgent) RequestAction(ctx context.Context, req protocol.ActionRequestMsg) (protocol.Action, error) {
	sess := a.s.player(a.character)
	if sess == nil {
		return protocol.Action{}, fmt.Errorf("%s: no connection", a.character)
	}
	raw, err := sess.roundTrip(ctx, req.ReqID, req)
	if err != nil {
		return protocol.Action{}, err
	}
	var act protocol.ActMsg
	if err := json.Unmarshal(raw, &act); err != nil {
		return protocol.Action{}, fmt.Errorf("%s: bad ACT: %w", a.character, err)
	}
	return act.Action, nil
}

type remoteReferee struct {
	s *Server
}

func (r *remoteReferee) RequestRuling(ctx context.Context, req protocol.RulingRequestMsg) ([]string, error) {
	r.s.mu.Lock()
	sess := r.s.referee
	r.s.mu.Unlock()
	if sess == nil {
		return nil, errors.New("referee: no connection")
	}
	raw, err := sess.roundTrip(ctx, req.ReqID, req)
	if err != nil {
		return nil, err
	}
	var ruling protocol.RulingMsg
	if err := json.Unmarshal(raw, &ruling); err != nil {
		return nil, fmt.Errorf("referee: bad RULING: %w", err)
	}
	return ruling.Rulings, nil
}

func closePolicy(conn *websocket.Conn, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason),
		time.Now().Add(time.Second))
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
