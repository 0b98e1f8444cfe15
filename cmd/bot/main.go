package main

import (
	"encoding/json"
	"flag"
	"log"
	"math/rand"
	"os"
	"os/signal"

	"github.com/gorilla/websocket"

	"ratscramble.ai/internal/protocol"
	"ratscramble.ai/internal/sim/game"
)

func main() {
	var (
		url       = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		role      = flag.String("role", "player", "player or referee")
		character = flag.String("character", "", "character to seat (player role)")
		name      = flag.String("name", "bot", "agent name")
		seed      = flag.Int64("seed", 1, "strategy rng seed")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)
	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		Role:            *role,
		Character:       *character,
		AgentName:       *name,
	}
	if err := conn.WriteJSON(hello); err != nil {
		logger.Fatalf("send HELLO: %v", err)
	}

	var welcome protocol.WelcomeMsg
	if err := conn.ReadJSON(&welcome); err != nil {
		logger.Fatalf("read WELCOME: %v", err)
	}
	logger.Printf("joined game %s as %s", welcome.GameID, welcome.Character)

	self, _ := game.ParseCharacter(welcome.Character)
	bot := &strategy{self: self, rng: rand.New(rand.NewSource(*seed))}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	go func() {
		<-stop
		_ = conn.Close()
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		switch base.Type {
		case protocol.TypeActionRequest:
			var req protocol.ActionRequestMsg
			if err := json.Unmarshal(msg, &req); err != nil {
				continue
			}
			act := protocol.ActMsg{
				Type:            protocol.TypeAct,
				ProtocolVersion: protocol.Version,
				ReqID:           req.ReqID,
				Character:       req.Character,
				Action:          bot.decide(req),
			}
			if err := conn.WriteJSON(act); err != nil {
				return
			}
		case protocol.TypeRulingRequest:
			var req protocol.RulingRequestMsg
			if err := json.Unmarshal(msg, &req); err != nil {
				continue
			}
			ruling := protocol.RulingMsg{
				Type:            protocol.TypeRuling,
				ProtocolVersion: protocol.Version,
				ReqID:           req.ReqID,
				Rulings:         nil,
			}
			if err := conn.WriteJSON(ruling); err != nil {
				return
			}
		}
	}
}

// strategy is a baseline scripted player: claim the first legal token and
// vote for the proposal whose majority payout favors its own character.
type strategy struct {
	self game.Character
	rng  *rand.Rand
}

func (b *strategy) decide(req protocol.ActionRequestMsg) protocol.Action {
	if req.Hints.VoteRequired {
		return protocol.Action{Kind: protocol.ActCastVote, Proposal: b.preferredProposal(req.State)}
	}
	if len(req.Hints.ClaimableTokens) > 0 {
		return protocol.Action{Kind: protocol.ActClaimToken, TokenID: req.Hints.ClaimableTokens[0]}
	}
	return protocol.Action{Kind: protocol.ActNoAction}
}

func (b *strategy) preferredProposal(state protocol.StateSnapshot) int {
	if len(state.Proposals) < 2 {
		return b.rng.Intn(2)
	}
	best, bestPay := 0, payout(b.self, state.Proposals[0].Majority)
	if p := payout(b.self, state.Proposals[1].Majority); p > bestPay {
		best = 1
	}
	return best
}

func payout(c game.Character, letters string) int {
	seasons, err := game.ParseSeasons(letters)
	if err != nil {
		return 0
	}
	total := 0
	for _, s := range seasons {
		total += game.Interests[c][s]
	}
	return total
}
