package table

import (
	"context"
	"time"

	"ratscramble.ai/internal/protocol"
	"ratscramble.ai/internal/sim/game"
)

// runVoting collects the four mandatory votes in strict token order 1..4.
// After each cast vote the other three players get one change window against
// that voter; once all four have voted, the closing manipulation window runs
// for a bounded number of cycles. A forfeited or illegal vote resolves to a
// seeded default rather than stalling the round.
func (t *Table) runVoting(ctx context.Context) error {
	for {
		voter, ok := t.engine.ExpectedVoter()
		if !ok {
			break
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !time.Now().Before(t.roundDeadline) {
			t.castRemainingDefaults()
			break
		}

		voteCtx, cancel := context.WithDeadline(ctx, t.roundDeadline)
		req := t.buildActionRequest(voter, protocol.LegalHints{VoteRequired: true}, t.roundDeadline)
		act, forfeit := t.gateway.Request(voteCtx, t.agents[voter], req)
		cancel()

		reason := ""
		vote := act.Proposal
		if forfeit || act.Kind != protocol.ActCastVote {
			if forfeit {
				t.emit(protocol.EventAgentTimeout, protocol.Event{
					"character": string(voter),
					"action":    "forfeit_vote",
				})
			}
			vote = t.rng.Intn(2)
			reason = "forfeit_default"
		}
		if rej := t.engine.CastVote(voter, vote); rej != nil {
			t.emitRejected(voter, protocol.ActCastVote, rej)
			vote = t.rng.Intn(2)
			reason = "illegal_default"
			if rej := t.engine.CastVote(voter, vote); rej != nil {
				t.emitRejected(voter, protocol.ActCastVote, rej)
				continue
			}
		}
		ev := protocol.Event{
			"character": string(voter),
			"token":     t.engine.State().PlayerToken(voter),
			"vote":      vote,
		}
		if reason != "" {
			ev["reason"] = reason
		}
		t.emit(protocol.EventVoteCast, ev)

		if err := t.runVoteChangeWindow(ctx, voter); err != nil {
			return err
		}
	}

	return t.runManipulationWindow(ctx)
}

// runVoteChangeWindow polls the three players who did not just vote for a
// change attempt against the voter whose ballot is freshest.
func (t *Table) runVoteChangeWindow(ctx context.Context, target game.Character) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !time.Now().Before(t.roundDeadline) {
		return nil
	}
	others := make([]game.Character, 0, 3)
	for _, p := range game.CharacterOrder {
		if p != target {
			others = append(others, p)
		}
	}
	hints := protocol.LegalHints{MaySpeak: true}
	if t.engine.State().VoteChanges[target] < t.cfg.VoteChangeCap {
		hints.ChangeTargets = []string{string(target)}
	}

	winCtx, cancel := context.WithDeadline(ctx, t.roundDeadline)
	arrivals := t.dispatch(winCtx, others, func(p game.Character) protocol.ActionRequestMsg {
		return t.buildActionRequest(p, hints, t.roundDeadline)
	})
	cancel()

	for _, a := range arrivals {
		if a.forfeit {
			t.emit(protocol.EventAgentTimeout, protocol.Event{
				"character": string(a.player),
				"action":    "forfeit_vote_change",
			})
			continue
		}
		if _, err := t.commitManipulationAction(a); err != nil {
			return err
		}
	}
	return nil
}

// castRemainingDefaults fills in seeded votes for everyone still waiting
// when the absolute round cap fires mid-voting.
func (t *Table) castRemainingDefaults() {
	t.emit(protocol.EventAgentTimeout, protocol.Event{
		"action": "auto_cast_remaining_votes",
		"reason": "round_timeout",
	})
	for {
		voter, ok := t.engine.ExpectedVoter()
		if !ok {
			return
		}
		vote := t.rng.Intn(2)
		if rej := t.engine.CastVote(voter, vote); rej != nil {
			t.emitRejected(voter, protocol.ActCastVote, rej)
			return
		}
		t.emit(protocol.EventVoteCast, protocol.Event{
			"character": string(voter),
			"token":     t.engine.State().PlayerToken(voter),
			"vote":      vote,
			"reason":    "round_timeout_default",
		})
	}
}

// runManipulationWindow polls all four players in parallel for vote-change
// attempts, commits arrivals in timestamp order, and repeats until a cycle
// produces no successful change or the configured cycle budget runs out.
func (t *Table) runManipulationWindow(ctx context.Context) error {
	for cycle := 0; cycle < t.cfg.ManipulationCycles; cycle++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !time.Now().Before(t.roundDeadline) {
			return nil
		}
		cycleCtx, cancel := context.WithDeadline(ctx, t.roundDeadline)
		arrivals := t.dispatch(cycleCtx, t.activePlayers(), func(p game.Character) protocol.ActionRequestMsg {
			return t.buildActionRequest(p, t.manipulationHints(p), t.roundDeadline)
		})
		cancel()

		anyChange := false
		for _, a := range arrivals {
			if a.forfeit {
				t.emit(protocol.EventAgentTimeout, protocol.Event{
					"character": string(a.player),
					"action":    "forfeit_vote_change",
				})
				continue
			}
			changed, err := t.commitManipulationAction(a)
			if err != nil {
				return err
			}
			anyChange = anyChange || changed
		}
		if !anyChange {
			return nil
		}
	}
	return nil
}

func (t *Table) activePlayers() []game.Character {
	out := make([]game.Character, len(game.CharacterOrder))
	copy(out, game.CharacterOrder[:])
	return out
}

func (t *Table) manipulationHints(p game.Character) protocol.LegalHints {
	s := t.engine.State()
	hints := protocol.LegalHints{MaySpeak: true}
	for _, target := range game.CharacterOrder {
		if target == p {
			continue
		}
		if _, voted := s.Votes[target]; !voted {
			continue
		}
		if s.VoteChanges[target] >= t.cfg.VoteChangeCap {
			continue
		}
		hints.ChangeTargets = append(hints.ChangeTargets, string(target))
	}
	return hints
}

// commitManipulationAction applies one arrived vote-change attempt. A
// successful change is always public: the vote_changed event names actor,
// target and method, so the target is informed, never silently flipped.
func (t *Table) commitManipulationAction(a arrival) (bool, error) {
	p := a.player
	switch a.action.Kind {
	case protocol.ActSpeak:
		kept, rej := t.engine.Speak(p, a.action.Text)
		if rej == nil && kept != "" {
			t.emit(protocol.EventSpeak, protocol.Event{"character": string(p), "text": kept})
		}
		return false, nil

	case protocol.ActUseTargetToken, protocol.ActForceWithThree:
		target, ok := game.ParseCharacter(a.action.TargetID)
		if !ok {
			t.emitRejected(p, a.action.Kind, &game.Rejection{
				Code: protocol.ErrInvalidTarget, Reason: "unknown target",
			})
			return false, nil
		}
		var rej *game.Rejection
		var err error
		method := "use_target_token"
		amount := 1
		owner := target
		if a.action.Kind == protocol.ActUseTargetToken {
			rej, err = t.engine.ChangeVoteUsingTargetToken(p, target, a.action.Proposal)
		} else {
			rej, err = t.engine.ForceVoteChangeWithThree(p, target, a.action.Proposal)
			method = "force_with_three_tokens"
			amount = 3
			owner = p
		}
		if err != nil {
			return false, err
		}
		if rej != nil {
			t.emitRejected(p, a.action.Kind, rej)
			return false, nil
		}
		t.emit(protocol.EventVoteChanged, protocol.Event{
			"actor":    string(p),
			"target":   string(target),
			"method":   method,
			"new_vote": a.action.Proposal,
			"changes":  t.engine.State().VoteChanges[target],
		})
		t.emit(protocol.EventPromiseTransfer, protocol.Event{
			"method": method,
			"actor":  string(p),
			"target": string(target),
			"owner":  string(owner),
			"amount": amount,
		})
		return true, nil

	case protocol.ActTransferPromise:
		return false, t.commitTransfer(a)

	case protocol.ActNoAction, "":
		return false, nil

	default:
		t.emitRejected(p, a.action.Kind, &game.Rejection{
			Code: protocol.ErrWrongPhase, Reason: "action not available in the manipulation window",
		})
		return false, nil
	}
}
