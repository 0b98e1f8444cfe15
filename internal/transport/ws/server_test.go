package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"ratscramble.ai/internal/protocol"
	"ratscramble.ai/internal/sim/game"
	"ratscramble.ai/internal/sim/table"
)

func newTestServer(t *testing.T) (*Server, string, func()) {
	t.Helper()
	srv, err := NewServer(game.Defaults(), "", nil)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	hs := httptest.NewServer(srv.Handler())
	url := "ws" + strings.TrimPrefix(hs.URL, "http")
	return srv, url, hs.Close
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func sendHello(t *testing.T, conn *websocket.Conn, role, character string) protocol.WelcomeMsg {
	t.Helper()
	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		Role:            role,
		Character:       character,
		AgentName:       "testbot",
	}
	if err := conn.WriteJSON(hello); err != nil {
		t.Fatalf("write hello: %v", err)
	}
	var welcome protocol.WelcomeMsg
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&welcome); err != nil {
		t.Fatalf("read welcome: %v", err)
	}
	if welcome.Type != protocol.TypeWelcome {
		t.Fatalf("expected WELCOME, got %s", welcome.Type)
	}
	return welcome
}

func TestPlayerActionRoundTrip(t *testing.T) {
	srv, url, stop := newTestServer(t)
	defer stop()

	conn := dial(t, url)
	defer conn.Close()
	welcome := sendHello(t, conn, protocol.RolePlayer, "Quincy")
	if welcome.Character != "Quincy" {
		t.Fatalf("welcome character %q", welcome.Character)
	}

	// Client side: answer the first ACTION_REQUEST with a SPEAK.
	go func() {
		var req protocol.ActionRequestMsg
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		_ = conn.WriteJSON(protocol.ActMsg{
			Type:            protocol.TypeAct,
			ProtocolVersion: protocol.Version,
			ReqID:           req.ReqID,
			Character:       req.Character,
			Action:          protocol.Action{Kind: protocol.ActSpeak, Text: "three bells for winter"},
		})
	}()

	agent := srv.PlayerAgents()[game.Quincy]
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	act, err := agent.RequestAction(ctx, protocol.ActionRequestMsg{
		Type:            protocol.TypeActionRequest,
		ProtocolVersion: protocol.Version,
		ReqID:           "rt-1",
		Character:       "Quincy",
		Phase:           string(game.PhaseNegotiation),
	})
	if err != nil {
		t.Fatalf("request action: %v", err)
	}
	if act.Kind != protocol.ActSpeak || act.Text != "three bells for winter" {
		t.Fatalf("unexpected action %+v", act)
	}
}

func TestRequestWithoutConnectionFails(t *testing.T) {
	srv, _, stop := newTestServer(t)
	defer stop()

	agent := srv.PlayerAgents()[game.Medici]
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if _, err := agent.RequestAction(ctx, protocol.ActionRequestMsg{ReqID: "x"}); err == nil {
		t.Fatal("expected error with no connection")
	}
}

func TestDuplicateSeatRejected(t *testing.T) {
	_, url, stop := newTestServer(t)
	defer stop()

	first := dial(t, url)
	defer first.Close()
	sendHello(t, first, protocol.RolePlayer, "Carmichael")

	second := dial(t, url)
	defer second.Close()
	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		Role:            protocol.RolePlayer,
		Character:       "Carmichael",
	}
	if err := second.WriteJSON(hello); err != nil {
		t.Fatalf("write hello: %v", err)
	}
	_ = second.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, _, err := second.ReadMessage(); err == nil {
		t.Fatal("expected the duplicate seat to be closed")
	}
}

func TestObserverEventBatch(t *testing.T) {
	srv, url, stop := newTestServer(t)
	defer stop()

	journal := table.NewJournal()
	journal.Append(protocol.Event{"type": "game_started", "game_id": "obs1"})
	journal.Append(protocol.Event{"type": "round_started", "round": 1})
	srv.Bind("obs1", journal)

	conn := dial(t, url)
	defer conn.Close()
	sendHello(t, conn, protocol.RoleObserver, "")

	req := protocol.EventBatchReqMsg{
		Type:            protocol.TypeEventBatchReq,
		ProtocolVersion: protocol.Version,
		ReqID:           "b1",
		SinceCursor:     0,
		Limit:           10,
	}
	if err := conn.WriteJSON(req); err != nil {
		t.Fatalf("write batch req: %v", err)
	}
	var resp protocol.EventBatchMsg
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&resp); err != nil {
		t.Fatalf("read batch: %v", err)
	}
	if resp.Type != protocol.TypeEventBatch || resp.GameID != "obs1" {
		t.Fatalf("unexpected batch header %+v", resp)
	}
	if len(resp.Events) != 2 || resp.NextCursor != 2 {
		t.Fatalf("batch contents: %d events, next %d", len(resp.Events), resp.NextCursor)
	}
	if typ, _ := resp.Events[0].Event["type"].(string); typ != "game_started" {
		raw, _ := json.Marshal(resp.Events[0])
		t.Fatalf("first event %s", raw)
	}
}
