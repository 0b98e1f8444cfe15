package table

import (
	"fmt"

	"ratscramble.ai/internal/protocol"
	"ratscramble.ai/internal/sim/game"
)

// Replay feeds the committed actions recorded in an event stream into a
// fresh engine and checks every digest recorded at a round boundary. The
// stream is authoritative: a digest mismatch means the log and the engine
// disagree and the replay fails.
func Replay(cfg game.Config, events []protocol.Event) (game.GameResult, error) {
	cfg.Normalize()
	var eng *game.Engine

	for i, ev := range events {
		typ := evStr(ev, "type")
		if eng == nil {
			if typ != protocol.EventGameStarted {
				continue
			}
			if seed, ok := evInt(ev, "seed"); ok {
				cfg.Seed = int64(seed)
			}
			if rounds, ok := evInt(ev, "max_rounds"); ok {
				cfg.MaxRounds = rounds
			}
			eng = game.NewEngine(cfg)
			continue
		}
		if err := applyEvent(eng, typ, ev); err != nil {
			return game.GameResult{}, fmt.Errorf("event %d (%s): %w", i, typ, err)
		}
	}
	if eng == nil {
		return game.GameResult{}, fmt.Errorf("no game_started event in stream")
	}
	return eng.Result(), nil
}

func applyEvent(eng *game.Engine, typ string, ev protocol.Event) error {
	switch typ {
	case protocol.EventRoundStarted:
		return eng.StartRound()

	case protocol.EventPhaseChange:
		if evStr(ev, "phase") == string(game.PhaseVoting) {
			eng.EnterVoting()
		}
		return nil

	case protocol.EventSpeak:
		c, err := evCharacter(ev, "character")
		if err != nil {
			return err
		}
		if _, rej := eng.Speak(c, evStr(ev, "text")); rej != nil {
			return fmt.Errorf("recorded speak rejected: %s", rej.Code)
		}
		return nil

	case protocol.EventMuted:
		c, err := evCharacter(ev, "character")
		if err != nil {
			return err
		}
		eng.State().Muted[c] = true
		return nil

	case protocol.EventTokenGranted:
		c, err := evCharacter(ev, "character")
		if err != nil {
			return err
		}
		token, _ := evInt(ev, "token")
		return eng.ForceGrant(c, token)

	case protocol.EventAgreementRecorded:
		return replayAgreementRecorded(eng, ev)

	case protocol.EventAgreementAccepted:
		c, err := evCharacter(ev, "character")
		if err != nil {
			return err
		}
		if rej := eng.AcceptAgreement(c, evStr(ev, "agreement_id")); rej != nil {
			return fmt.Errorf("recorded accept rejected: %s", rej.Code)
		}
		return nil

	case protocol.EventAgreementVoided:
		id := evStr(ev, "agreement_id")
		if evStr(ev, "source") == "referee" {
			if rej := eng.SetAgreementStatus(id, game.AgreementVoid, evStr(ev, "reason")); rej != nil {
				return fmt.Errorf("recorded void rejected: %s", rej.Code)
			}
			return nil
		}
		c, err := evCharacter(ev, "character")
		if err != nil {
			return err
		}
		if rej := eng.VoidAgreement(c, id); rej != nil {
			return fmt.Errorf("recorded void rejected: %s", rej.Code)
		}
		return nil

	case protocol.EventVoteCast:
		c, err := evCharacter(ev, "character")
		if err != nil {
			return err
		}
		vote, _ := evInt(ev, "vote")
		if rej := eng.CastVote(c, vote); rej != nil {
			return fmt.Errorf("recorded vote rejected: %s", rej.Code)
		}
		return nil

	case protocol.EventVoteChanged:
		return replayVoteChanged(eng, ev)

	case protocol.EventPromiseTransfer:
		if evStr(ev, "method") != "transfer" {
			// Vote-change transfers were already applied by vote_changed.
			return nil
		}
		actor, err := evCharacter(ev, "actor")
		if err != nil {
			return err
		}
		target, err := evCharacter(ev, "target")
		if err != nil {
			return err
		}
		owner, err := evCharacter(ev, "owner")
		if err != nil {
			return err
		}
		rej, err := eng.TransferPromiseToken(actor, target, owner)
		if err != nil {
			return err
		}
		if rej != nil {
			return fmt.Errorf("recorded transfer rejected: %s", rej.Code)
		}
		return nil

	case protocol.EventContractEnforce:
		if evStr(ev, "action") != "set_vote" {
			return nil
		}
		c, err := evCharacter(ev, "player")
		if err != nil {
			return err
		}
		vote, _ := evInt(ev, "enforced_vote")
		if rej := eng.ForceVote(c, vote); rej != nil {
			return fmt.Errorf("recorded enforcement rejected: %s", rej.Code)
		}
		return nil

	case protocol.EventRoundResolved:
		var tie *game.TieDecision
		if src := evStr(ev, "tie_break"); src != "" {
			passed, _ := evInt(ev, "passed")
			tie = &game.TieDecision{Passed: passed, Source: src}
		}
		if _, err := eng.ResolveRound(tie); err != nil {
			return err
		}
		return verifyDigest(eng, ev)

	case protocol.EventGameEnded:
		return verifyDigest(eng, ev)

	default:
		return nil
	}
}

func replayAgreementRecorded(eng *game.Engine, ev protocol.Event) error {
	id := evStr(ev, "agreement_id")
	parties, err := evParties(ev)
	if err != nil {
		return err
	}
	binding := true
	if b, ok := ev["binding"].(bool); ok {
		binding = b
	}
	if evStr(ev, "source") == "player" {
		proposer, err := evCharacter(ev, "proposer")
		if err != nil {
			return err
		}
		gotID, rej := eng.ProposeAgreement(proposer, evStr(ev, "text"), parties, binding)
		if rej != nil {
			return fmt.Errorf("recorded proposal rejected: %s", rej.Code)
		}
		if gotID != id {
			return fmt.Errorf("agreement id drift: replayed %s, recorded %s", gotID, id)
		}
		return nil
	}
	eng.RecordAgreement(id, evStr(ev, "text"), parties, binding, evStr(ev, "source"))
	return nil
}

func replayVoteChanged(eng *game.Engine, ev protocol.Event) error {
	actor, err := evCharacter(ev, "actor")
	if err != nil {
		return err
	}
	target, err := evCharacter(ev, "target")
	if err != nil {
		return err
	}
	vote, _ := evInt(ev, "new_vote")
	var rej *game.Rejection
	if evStr(ev, "method") == "force_with_three_tokens" {
		rej, err = eng.ForceVoteChangeWithThree(actor, target, vote)
	} else {
		rej, err = eng.ChangeVoteUsingTargetToken(actor, target, vote)
	}
	if err != nil {
		return err
	}
	if rej != nil {
		return fmt.Errorf("recorded vote change rejected: %s", rej.Code)
	}
	return nil
}

func verifyDigest(eng *game.Engine, ev protocol.Event) error {
	want := evStr(ev, "digest")
	if want == "" {
		return nil
	}
	if got := eng.Digest(); got != want {
		round, _ := evInt(ev, "round")
		return fmt.Errorf("digest mismatch at round %d: replayed %s, recorded %s", round, got, want)
	}
	return nil
}

func evStr(ev protocol.Event, key string) string {
	s, _ := ev[key].(string)
	return s
}

func evInt(ev protocol.Event, key string) (int, bool) {
	switch v := ev[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case uint64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

func evCharacter(ev protocol.Event, key string) (game.Character, error) {
	c, ok := game.ParseCharacter(evStr(ev, key))
	if !ok {
		return "", fmt.Errorf("unknown character %q in %q", evStr(ev, key), key)
	}
	return c, nil
}

func evParties(ev protocol.Event) ([]game.Character, error) {
	var out []game.Character
	switch raw := ev["parties"].(type) {
	case []string:
		for _, name := range raw {
			c, ok := game.ParseCharacter(name)
			if !ok {
				return nil, fmt.Errorf("unknown party %q", name)
			}
			out = append(out, c)
		}
	case []interface{}:
		for _, item := range raw {
			name, _ := item.(string)
			c, ok := game.ParseCharacter(name)
			if !ok {
				return nil, fmt.Errorf("unknown party %q", name)
			}
			out = append(out, c)
		}
	}
	return out, nil
}
