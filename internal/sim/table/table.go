package table

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"ratscramble.ai/internal/protocol"
	"ratscramble.ai/internal/referee"
	"ratscramble.ai/internal/sim/game"
)

// Table is the round orchestrator. It owns the engine outright: every state
// mutation happens on the goroutine running Run, which is the single
// serializing authority for race resolution.
type Table struct {
	cfg     game.Config
	engine  *game.Engine
	gateway *Gateway
	journal *Journal
	agents  map[game.Character]Agent
	ref     RefereeAgent
	rng     *rand.Rand
	logger  *log.Logger

	gameID        string
	reqSeq        int
	roundDeadline time.Time
}

type Options struct {
	GameID  string
	Agents  map[game.Character]Agent
	Referee RefereeAgent
	Logger  *log.Logger
}

func New(cfg game.Config, opts Options) *Table {
	cfg.Normalize()
	id := opts.GameID
	if id == "" {
		id = uuid.NewString()[:8]
	}
	return &Table{
		cfg:     cfg,
		engine:  game.NewEngine(cfg),
		gateway: NewGateway(cfg, opts.Logger),
		journal: NewJournal(),
		agents:  opts.Agents,
		ref:     opts.Referee,
		rng:     rand.New(rand.NewSource(cfg.Seed + 1)),
		logger:  opts.Logger,
		gameID:  id,
	}
}

func (t *Table) GameID() string    { return t.gameID }
func (t *Table) Journal() *Journal { return t.journal }
func (t *Table) Engine() *game.Engine {
	return t.engine
}

// Run drives the full game and returns the final result. It returns early
// only on context cancellation or an invariant violation.
func (t *Table) Run(ctx context.Context) (game.GameResult, error) {
	t.emit(protocol.EventGameStarted, protocol.Event{
		"game_id":    t.gameID,
		"seed":       t.cfg.Seed,
		"max_rounds": t.cfg.MaxRounds,
	})
	for t.engine.State().Phase != game.PhaseComplete {
		if err := ctx.Err(); err != nil {
			return game.GameResult{}, err
		}
		if err := t.engine.StartRound(); err != nil {
			return game.GameResult{}, err
		}
		if t.engine.State().Phase == game.PhaseComplete {
			break
		}
		round := t.engine.State().Round
		t.roundDeadline = time.Now().Add(time.Duration(t.cfg.RoundTimeoutSeconds * float64(time.Second)))
		t.emit(protocol.EventRoundStarted, protocol.Event{"round": round})
		t.logf("round %d started", round)

		if err := t.runNegotiation(ctx); err != nil {
			return game.GameResult{}, err
		}
		t.refereePhase(ctx, "negotiation", "voting")
		t.engine.EnterVoting()
		t.emit(protocol.EventPhaseChange, protocol.Event{"phase": string(game.PhaseVoting)})

		if err := t.runVoting(ctx); err != nil {
			return game.GameResult{}, err
		}
		t.refereePhase(ctx, "voting", "resolution")

		res, err := t.resolve()
		if err != nil {
			return game.GameResult{}, err
		}
		t.emit(protocol.EventRoundResolved, protocol.Event{
			"round":         res.Round,
			"passed":        res.PassedIndex,
			"outcome":       string(res.Outcome),
			"winning_votes": res.WinningVotes,
			"effect":        res.AppliedEffect,
			"tie_break":     res.TieBreak,
			"digest":        t.engine.Digest(),
		})
		t.refereePhase(ctx, "resolution", "next_round")
	}

	result := t.engine.Result()
	scores := map[string]int{}
	for c, s := range result.Scores {
		scores[string(c)] = s
	}
	winners := make([]string, 0, len(result.Winners))
	for _, c := range result.Winners {
		winners = append(winners, string(c))
	}
	t.emit(protocol.EventGameEnded, protocol.Event{
		"game_id":   t.gameID,
		"scores":    scores,
		"winners":   winners,
		"threshold": result.Threshold,
		"digest":    t.engine.Digest(),
	})
	t.logf("game %s complete, winners %v", t.gameID, winners)
	return result, nil
}

// resolve handles the 2-2 split. Referee vote overrides were applied during
// the voting to resolution transition; an active Shotgun toggle then breaks
// any remaining tie with the vote of token 1's holder.
func (t *Table) resolve() (game.RoundResult, error) {
	counts := t.engine.Tally()
	var tie *game.TieDecision
	if counts[0] == counts[1] {
		if side, ok := t.engine.ShotgunAdvisory(); ok {
			tie = &game.TieDecision{Passed: side, Source: "shotgun"}
		}
	}
	return t.engine.ResolveRound(tie)
}

// refereePhase asks the referee for rulings, then applies the structured
// overrides inferred from them. A referee timeout means the phase proceeds
// without rulings; it is never fatal.
func (t *Table) refereePhase(ctx context.Context, from, to string) {
	if t.ref == nil {
		return
	}
	req := protocol.RulingRequestMsg{
		Type:            protocol.TypeRulingRequest,
		ProtocolVersion: protocol.Version,
		ReqID:           t.nextReqID(),
		FromPhase:       from,
		ToPhase:         to,
		State:           t.engine.State().Snapshot(),
		Transcript:      t.transcriptTail(40),
	}
	callCtx, cancel := context.WithTimeout(ctx,
		time.Duration(t.cfg.RequestTimeoutSeconds*float64(time.Second)))
	raw, err := t.ref.RequestRuling(callCtx, req)
	cancel()
	if err != nil {
		t.emit(protocol.EventAgentTimeout, protocol.Event{
			"actor": "Referee",
			"from":  from,
			"to":    to,
			"error": err.Error(),
		})
		t.logf("referee unavailable on %s->%s: %v", from, to, err)
		return
	}
	lines := referee.CleanRulings(raw)
	for _, line := range lines {
		t.emit(protocol.EventRefereeRuling, protocol.Event{"from": from, "to": to, "text": line})
	}
	enforceVotes := from == "voting" && to == "resolution"
	for _, o := range referee.ParseOverrides(lines, enforceVotes) {
		t.applyOverride(o)
	}
}

// applyOverride validates one structured referee override against current
// state. Overrides naming unknown players or agreements are rejected and
// logged, never applied blindly.
func (t *Table) applyOverride(o referee.Override) {
	switch o.Kind {
	case referee.OverrideSetVote:
		prev := t.engine.State().Votes[o.Player]
		if rej := t.engine.ForceVote(o.Player, o.Vote); rej != nil {
			t.emit(protocol.EventActionRejected, protocol.Event{
				"actor":  "Referee",
				"action": string(o.Kind),
				"code":   rej.Code,
				"reason": rej.Reason,
			})
			return
		}
		t.emit(protocol.EventContractEnforce, protocol.Event{
			"action":        "set_vote",
			"player":        string(o.Player),
			"previous_vote": prev,
			"enforced_vote": o.Vote,
			"reason":        o.Reason,
		})
	case referee.OverrideRecordAgreement:
		if _, exists := t.engine.State().Agreements[o.AgreementID]; exists {
			return
		}
		t.engine.RecordAgreement(o.AgreementID, o.Text, o.Parties, true, o.Reason)
		parties := make([]string, 0, len(o.Parties))
		for _, p := range o.Parties {
			parties = append(parties, string(p))
		}
		t.emit(protocol.EventAgreementRecorded, protocol.Event{
			"agreement_id": o.AgreementID,
			"text":         o.Text,
			"parties":      parties,
			"binding":      true,
			"source":       "referee",
		})
	case referee.OverrideVoidAgreement:
		if rej := t.engine.SetAgreementStatus(o.AgreementID, game.AgreementVoid, o.Reason); rej != nil {
			t.emit(protocol.EventActionRejected, protocol.Event{
				"actor":  "Referee",
				"action": string(o.Kind),
				"code":   rej.Code,
				"reason": rej.Reason,
			})
			return
		}
		t.emit(protocol.EventAgreementVoided, protocol.Event{
			"agreement_id": o.AgreementID,
			"source":       "referee",
			"reason":       o.Reason,
		})
	}
}

func (t *Table) emit(eventType string, fields protocol.Event) {
	ev := protocol.Event{
		"type":  eventType,
		"round": t.engine.State().Round,
		"phase": string(t.engine.State().Phase),
		"ts_ms": time.Now().UnixMilli(),
	}
	for k, v := range fields {
		ev[k] = v
	}
	t.journal.Append(ev)
}

func (t *Table) buildActionRequest(p game.Character, hints protocol.LegalHints, deadline time.Time) protocol.ActionRequestMsg {
	return protocol.ActionRequestMsg{
		Type:            protocol.TypeActionRequest,
		ProtocolVersion: protocol.Version,
		ReqID:           t.nextReqID(),
		Character:       string(p),
		Phase:           string(t.engine.State().Phase),
		Round:           t.engine.State().Round,
		State:           t.engine.State().Snapshot(),
		Transcript:      t.transcriptTail(20),
		Hints:           hints,
		DeadlineMillis:  deadline.UnixMilli(),
	}
}

func (t *Table) transcriptTail(n int) []string {
	tr := t.engine.State().Transcript
	if len(tr) <= n {
		return append([]string(nil), tr...)
	}
	return append([]string(nil), tr[len(tr)-n:]...)
}

func (t *Table) nextReqID() string {
	t.reqSeq++
	return fmt.Sprintf("%s-%d", t.gameID, t.reqSeq)
}

func (t *Table) logf(format string, args ...interface{}) {
	if t.logger != nil {
		t.logger.Printf(format, args...)
	}
}
