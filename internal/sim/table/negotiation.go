package table

import (
	"context"
	"sort"
	"sync"
	"time"

	"ratscramble.ai/internal/protocol"
	"ratscramble.ai/internal/sim/game"
)

// arrival is one agent response stamped with its arrival time. Race
// resolution sorts arrivals by timestamp with a fixed player-index
// tie-break before anything commits.
type arrival struct {
	player  game.Character
	action  protocol.Action
	forfeit bool
	at      time.Time
}

// runNegotiation drives concurrent decision cycles until all four players
// hold a vote token, the rolling deadlock timer fires, or the absolute
// round cap is reached. The two timers resolve the same way: forced
// assignment of the remaining tokens.
func (t *Table) runNegotiation(ctx context.Context) error {
	deadlockDur := time.Duration(t.cfg.NegotiationDeadlockSeconds * float64(time.Second))
	lastProgress := time.Now()
	idleStreak := 0

	// Repeated identical illegal claims per player, for autocorrection.
	repeatToken := map[game.Character]int{}
	repeatCount := map[game.Character]int{}

	for !t.engine.AllTokensTaken() {
		if err := ctx.Err(); err != nil {
			return err
		}
		now := time.Now()
		if !now.Before(t.roundDeadline) {
			return t.forceAssign("round_timeout")
		}
		deadlockAt := lastProgress.Add(deadlockDur)
		if !now.Before(deadlockAt) {
			return t.forceAssign("deadlock_no_state_change")
		}

		// Outstanding requests are canceled when either timer fires; a
		// canceled request comes back as a forfeit, never as corruption.
		cutoff := t.roundDeadline
		if deadlockAt.Before(cutoff) {
			cutoff = deadlockAt
		}
		cycleCtx, cancel := context.WithDeadline(ctx, cutoff)
		arrivals := t.dispatch(cycleCtx, t.playersWithoutTokens(), func(p game.Character) protocol.ActionRequestMsg {
			return t.buildActionRequest(p, t.negotiationHints(p), cutoff)
		})
		cancel()

		progress := false
		for _, a := range arrivals {
			if a.forfeit {
				t.emit(protocol.EventAgentTimeout, protocol.Event{
					"character": string(a.player),
					"action":    "no_action",
				})
				continue
			}
			changed, err := t.commitNegotiationAction(a, repeatToken, repeatCount)
			if err != nil {
				return err
			}
			progress = progress || changed
			if t.engine.AllTokensTaken() {
				break
			}
		}
		if progress {
			lastProgress = time.Now()
			idleStreak = 0
			continue
		}
		// Idle cycles back off so four instant no-action agents cannot
		// spin the loop hot while the deadlock timer counts down.
		idleStreak++
		wait := time.Duration(t.cfg.IdleCooldownBaseSeconds * float64(time.Second))
		for i := 1; i < idleStreak && i < 4; i++ {
			wait *= 2
		}
		if max := time.Duration(t.cfg.IdleCooldownMaxSeconds * float64(time.Second)); wait > max {
			wait = max
		}
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// dispatch asks every listed player for an action in parallel and returns
// the arrivals in committed order: earliest timestamp first, exact ties
// broken by fixed player index.
func (t *Table) dispatch(ctx context.Context, players []game.Character, build func(game.Character) protocol.ActionRequestMsg) []arrival {
	out := make([]arrival, len(players))
	var wg sync.WaitGroup
	for i, p := range players {
		wg.Add(1)
		go func(i int, p game.Character) {
			defer wg.Done()
			act, forfeit := t.gateway.Request(ctx, t.agents[p], build(p))
			out[i] = arrival{player: p, action: act, forfeit: forfeit, at: time.Now()}
		}(i, p)
	}
	wg.Wait()
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].at.Equal(out[j].at) {
			return out[i].at.Before(out[j].at)
		}
		return game.CharacterIndex(out[i].player) < game.CharacterIndex(out[j].player)
	})
	return out
}

func (t *Table) playersWithoutTokens() []game.Character {
	var out []game.Character
	for _, c := range game.CharacterOrder {
		if t.engine.State().PlayerToken(c) == 0 {
			out = append(out, c)
		}
	}
	return out
}

func (t *Table) negotiationHints(p game.Character) protocol.LegalHints {
	s := t.engine.State()
	hints := protocol.LegalHints{
		MaySpeak:       !s.Muted[p],
		WordsRemaining: t.cfg.NegotiationWordCap - s.WordCounts[p],
		MayPropose:     s.PlayerToken(p) == 0,
	}
	for _, tok := range s.CenterTokens() {
		if t.engine.CanClaim(p, tok) == nil {
			hints.ClaimableTokens = append(hints.ClaimableTokens, tok)
		}
	}
	return hints
}

// commitNegotiationAction applies one arrived action under the serializing
// authority. The returned bool reports whether round-scoped pool state
// changed (a token granted or a mute newly applied); only those reset the
// deadlock timer.
func (t *Table) commitNegotiationAction(a arrival, repeatToken, repeatCount map[game.Character]int) (bool, error) {
	p := a.player
	switch a.action.Kind {
	case protocol.ActSpeak:
		wasMuted := t.engine.State().Muted[p]
		kept, rej := t.engine.Speak(p, a.action.Text)
		if rej != nil {
			if !wasMuted && t.engine.State().Muted[p] {
				t.emit(protocol.EventMuted, protocol.Event{
					"character": string(p),
					"reason":    "word_cap_reached",
				})
				return true, nil
			}
			t.emitRejected(p, a.action.Kind, rej)
			return false, nil
		}
		if kept != "" {
			t.emit(protocol.EventSpeak, protocol.Event{"character": string(p), "text": kept})
			if t.engine.State().Muted[p] && !wasMuted {
				t.emit(protocol.EventMuted, protocol.Event{
					"character": string(p),
					"reason":    "word_cap_reached",
				})
				return true, nil
			}
		}
		return false, nil

	case protocol.ActClaimToken:
		return t.commitClaim(a, repeatToken, repeatCount)

	case protocol.ActProposeAgreement:
		parties, ok := parseParties(a.action.Parties)
		if !ok {
			t.emitRejected(p, a.action.Kind, &game.Rejection{
				Code: protocol.ErrInvalidTarget, Reason: "unknown party name",
			})
			return false, nil
		}
		id, rej := t.engine.ProposeAgreement(p, a.action.Terms, parties, !a.action.NonBinding)
		if rej != nil {
			t.emitRejected(p, a.action.Kind, rej)
			return false, nil
		}
		t.emit(protocol.EventAgreementRecorded, protocol.Event{
			"agreement_id": id,
			"proposer":     string(p),
			"text":         a.action.Terms,
			"parties":      a.action.Parties,
			"binding":      !a.action.NonBinding,
			"source":       "player",
		})
		return false, nil

	case protocol.ActAcceptAgreement:
		if rej := t.engine.AcceptAgreement(p, a.action.AgreementID); rej != nil {
			t.emitRejected(p, a.action.Kind, rej)
			return false, nil
		}
		t.emit(protocol.EventAgreementAccepted, protocol.Event{
			"agreement_id": a.action.AgreementID,
			"character":    string(p),
		})
		return false, nil

	case protocol.ActVoidAgreement:
		if rej := t.engine.VoidAgreement(p, a.action.AgreementID); rej != nil {
			t.emitRejected(p, a.action.Kind, rej)
			return false, nil
		}
		ag := t.engine.State().Agreements[a.action.AgreementID]
		t.emit(protocol.EventAgreementVoided, protocol.Event{
			"agreement_id": a.action.AgreementID,
			"character":    string(p),
			"final":        ag != nil && ag.Status == game.AgreementVoid,
			"source":       "player",
		})
		return false, nil

	case protocol.ActTransferPromise:
		return false, t.commitTransfer(a)

	case protocol.ActNoAction, "":
		return false, nil

	default:
		t.emitRejected(p, a.action.Kind, &game.Rejection{
			Code: protocol.ErrBadRequest, Reason: "unknown action kind",
		})
		return false, nil
	}
}

func (t *Table) commitClaim(a arrival, repeatToken, repeatCount map[game.Character]int) (bool, error) {
	p := a.player
	token := a.action.TokenID
	rej, err := t.engine.ClaimToken(p, token)
	if err != nil {
		return false, err
	}
	if rej == nil {
		t.emit(protocol.EventTokenGranted, protocol.Event{
			"character": string(p),
			"token":     token,
			"at_ms":     a.at.UnixMilli(),
		})
		delete(repeatToken, p)
		delete(repeatCount, p)
		return true, nil
	}

	t.emit(protocol.EventTokenRejected, protocol.Event{
		"character": string(p),
		"token":     token,
		"code":      rej.Code,
		"reason":    rej.Reason,
	})
	if repeatToken[p] == token {
		repeatCount[p]++
	} else {
		repeatToken[p] = token
		repeatCount[p] = 1
	}
	if repeatCount[p] < t.cfg.AutocorrectThreshold {
		return false, nil
	}
	fallback, ok := t.engine.FirstLegalToken(p)
	if !ok {
		return false, nil
	}
	fbRej, err := t.engine.ClaimToken(p, fallback)
	if err != nil {
		return false, err
	}
	if fbRej != nil {
		return false, nil
	}
	t.emit(protocol.EventTokenAutocorrect, protocol.Event{
		"character":       string(p),
		"requested_token": token,
		"fallback_token":  fallback,
		"repeat_count":    repeatCount[p],
	})
	t.emit(protocol.EventTokenGranted, protocol.Event{
		"character": string(p),
		"token":     fallback,
		"forced":    false,
		"at_ms":     a.at.UnixMilli(),
	})
	delete(repeatToken, p)
	delete(repeatCount, p)
	return true, nil
}

func (t *Table) commitTransfer(a arrival) error {
	to, okTo := game.ParseCharacter(a.action.TargetID)
	owner, okOwner := game.ParseCharacter(a.action.OwnerID)
	if !okTo || !okOwner {
		t.emitRejected(a.player, a.action.Kind, &game.Rejection{
			Code: protocol.ErrInvalidTarget, Reason: "unknown character",
		})
		return nil
	}
	rej, err := t.engine.TransferPromiseToken(a.player, to, owner)
	if err != nil {
		return err
	}
	if rej != nil {
		t.emitRejected(a.player, a.action.Kind, rej)
		return nil
	}
	t.emit(protocol.EventPromiseTransfer, protocol.Event{
		"method": "transfer",
		"actor":  string(a.player),
		"target": string(to),
		"owner":  string(owner),
		"amount": 1,
	})
	return nil
}

// forceAssign breaks a negotiation stall: remaining tokens go to remaining
// players without consent, gate token first, and the round moves on.
// Deadlock is an expected terminal state here, not an error.
func (t *Table) forceAssign(reason string) error {
	assigned, err := t.engine.ForceAssignRemaining()
	if err != nil {
		return err
	}
	pairs := make([]map[string]interface{}, 0, len(assigned))
	for _, fa := range assigned {
		pairs = append(pairs, map[string]interface{}{
			"character": string(fa.Player),
			"token":     fa.Token,
		})
	}
	t.emit(protocol.EventForcedAssignment, protocol.Event{
		"reason":      reason,
		"assignments": pairs,
	})
	for _, fa := range assigned {
		t.emit(protocol.EventTokenGranted, protocol.Event{
			"character": string(fa.Player),
			"token":     fa.Token,
			"forced":    true,
		})
	}
	t.logf("forced assignment (%s): %v", reason, assigned)
	return nil
}

func (t *Table) emitRejected(p game.Character, kind string, rej *game.Rejection) {
	t.emit(protocol.EventActionRejected, protocol.Event{
		"character": string(p),
		"action":    kind,
		"code":      rej.Code,
		"reason":    rej.Reason,
	})
}

func parseParties(raw []string) ([]game.Character, bool) {
	out := make([]game.Character, 0, len(raw))
	for _, name := range raw {
		c, ok := game.ParseCharacter(name)
		if !ok {
			return nil, false
		}
		out = append(out, c)
	}
	return out, true
}
