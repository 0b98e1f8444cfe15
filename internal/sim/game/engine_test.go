package game

import (
	"strings"
	"testing"

	"ratscramble.ai/internal/protocol"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	cfg := Defaults()
	cfg.NegotiationWordCap = 20
	e := NewEngine(cfg)
	if err := e.StartRound(); err != nil {
		t.Fatalf("start round: %v", err)
	}
	return e
}

// claimAll hands out tokens so that order[i] ends up holding token i+1.
func claimAll(t *testing.T, e *Engine, order [4]Character) {
	t.Helper()
	if rej, err := e.ClaimToken(order[2], 3); rej != nil || err != nil {
		t.Fatalf("claim 3: %v %v", rej, err)
	}
	for _, tok := range []int{1, 2, 4} {
		if rej, err := e.ClaimToken(order[tok-1], tok); rej != nil || err != nil {
			t.Fatalf("claim %d: %v %v", tok, rej, err)
		}
	}
	if !e.AllTokensTaken() {
		t.Fatal("expected all tokens taken")
	}
	e.EnterVoting()
}

func TestClaimToken_GateAndDoubleHold(t *testing.T) {
	e := newTestEngine(t)

	rej, err := e.ClaimToken(Carmichael, 1)
	if err != nil {
		t.Fatalf("unexpected invariant error: %v", err)
	}
	if rej == nil || rej.Code != protocol.ErrIllegalToken {
		t.Fatalf("expected %s before token 3 leaves center, got %+v", protocol.ErrIllegalToken, rej)
	}

	if rej, err := e.ClaimToken(Carmichael, 3); rej != nil || err != nil {
		t.Fatalf("claim 3: %v %v", rej, err)
	}
	if rej, _ := e.ClaimToken(Quincy, 3); rej == nil || rej.Code != protocol.ErrAlreadyHeld {
		t.Fatalf("expected %s, got %+v", protocol.ErrAlreadyHeld, rej)
	}
	if rej, _ := e.ClaimToken(Carmichael, 1); rej == nil || rej.Code != protocol.ErrPlayerAlreadyHold {
		t.Fatalf("expected %s, got %+v", protocol.ErrPlayerAlreadyHold, rej)
	}
	if rej, err := e.ClaimToken(Quincy, 1); rej != nil || err != nil {
		t.Fatalf("claim 1 after gate: %v %v", rej, err)
	}
	if rej, _ := e.ClaimToken(Medici, 7); rej == nil || rej.Code != protocol.ErrBadRequest {
		t.Fatalf("expected %s for bad token id, got %+v", protocol.ErrBadRequest, rej)
	}
}

func TestSpeak_WordCapRejectsWholeMessage(t *testing.T) {
	e := newTestEngine(t)

	kept, rej := e.Speak(Medici, strings.Repeat("word ", 19))
	if rej != nil {
		t.Fatalf("within cap: %+v", rej)
	}
	if kept == "" {
		t.Fatal("expected text accepted")
	}

	// 19 used of 20; a 2-word message would cross the cap, so nothing of it
	// lands and the speaker is muted.
	if _, rej := e.Speak(Medici, "two words"); rej == nil || rej.Code != protocol.ErrMuted {
		t.Fatalf("expected %s, got %+v", protocol.ErrMuted, rej)
	}
	if got := e.State().WordCounts[Medici]; got != 19 {
		t.Fatalf("word count changed on rejection: %d", got)
	}
	if _, rej := e.Speak(Medici, "hi"); rej == nil || rej.Code != protocol.ErrMuted {
		t.Fatalf("expected muted speaker to stay muted, got %+v", rej)
	}

	// Exactly reaching the cap is accepted, then mutes.
	if _, rej := e.Speak(Quincy, strings.Repeat("x ", 20)); rej != nil {
		t.Fatalf("exact cap: %+v", rej)
	}
	if !e.State().Muted[Quincy] {
		t.Fatal("expected mute at exactly the cap")
	}
}

func TestVoting_TokenOrderAndManipulation(t *testing.T) {
	e := newTestEngine(t)
	order := [4]Character{Carmichael, Quincy, Medici, DAmbrosio}
	claimAll(t, e, order)

	if rej := e.CastVote(Quincy, 0); rej == nil || rej.Code != protocol.ErrVoteOutOfTurn {
		t.Fatalf("expected %s, got %+v", protocol.ErrVoteOutOfTurn, rej)
	}
	for i, p := range order {
		if rej := e.CastVote(p, i%2); rej != nil {
			t.Fatalf("vote %s: %+v", p, rej)
		}
	}
	if !e.AllVotesCast() {
		t.Fatal("expected all votes cast")
	}

	// Quincy holds no Carmichael tokens yet.
	if rej, _ := e.ChangeVoteUsingTargetToken(Quincy, Carmichael, 1); rej == nil || rej.Code != protocol.ErrWrongOwner {
		t.Fatalf("expected %s, got %+v", protocol.ErrWrongOwner, rej)
	}

	// Pay three own tokens to force a change.
	if rej, err := e.ForceVoteChangeWithThree(Quincy, Carmichael, 1); rej != nil || err != nil {
		t.Fatalf("force change: %v %v", rej, err)
	}
	s := e.State()
	if s.Votes[Carmichael] != 1 || s.VoteChanges[Carmichael] != 1 {
		t.Fatalf("vote not changed: %v %v", s.Votes[Carmichael], s.VoteChanges[Carmichael])
	}
	if s.Holdings[Quincy][Quincy] != 2 || s.Holdings[Carmichael][Quincy] != 3 {
		t.Fatalf("payment not recorded: %v", s.Holdings)
	}

	// Carmichael now holds Quincy tokens and can spend one; it returns home.
	if rej, err := e.ChangeVoteUsingTargetToken(Carmichael, Quincy, 1); rej != nil || err != nil {
		t.Fatalf("target-token change: %v %v", rej, err)
	}
	if s.Holdings[Carmichael][Quincy] != 2 || s.Holdings[Quincy][Quincy] != 3 {
		t.Fatalf("token did not return to owner: %v", s.Holdings)
	}

	// Second change on Carmichael hits the cap on the third attempt.
	if rej, err := e.ForceVoteChangeWithThree(Medici, Carmichael, 0); rej != nil || err != nil {
		t.Fatalf("second change: %v %v", rej, err)
	}
	if rej, _ := e.ForceVoteChangeWithThree(DAmbrosio, Carmichael, 1); rej == nil || rej.Code != protocol.ErrChangeCapExceeded {
		t.Fatalf("expected %s, got %+v", protocol.ErrChangeCapExceeded, rej)
	}

	// Quincy already paid 3 away and cannot afford another force.
	if rej, _ := e.ForceVoteChangeWithThree(Quincy, Medici, 1); rej == nil || rej.Code != protocol.ErrInsufficientTokens {
		t.Fatalf("expected %s, got %+v", protocol.ErrInsufficientTokens, rej)
	}
}

func TestForcedAssignment_GateFirstThenAscending(t *testing.T) {
	e := newTestEngine(t)
	out, err := e.ForceAssignRemaining()
	if err != nil {
		t.Fatalf("force assign: %v", err)
	}
	want := []ForcedAssignment{
		{Carmichael, 3},
		{Quincy, 1},
		{Medici, 2},
		{DAmbrosio, 4},
	}
	if len(out) != len(want) {
		t.Fatalf("got %d assignments", len(out))
	}
	for i := range want {
		if out[i] != want[i] {
			t.Fatalf("assignment %d: got %+v want %+v", i, out[i], want[i])
		}
	}
}

func TestForcedAssignment_PartialAscending(t *testing.T) {
	e := newTestEngine(t)
	if rej, err := e.ClaimToken(Medici, 3); rej != nil || err != nil {
		t.Fatalf("claim 3: %v %v", rej, err)
	}
	if rej, err := e.ClaimToken(DAmbrosio, 1); rej != nil || err != nil {
		t.Fatalf("claim 1: %v %v", rej, err)
	}
	out, err := e.ForceAssignRemaining()
	if err != nil {
		t.Fatalf("force assign: %v", err)
	}
	want := []ForcedAssignment{
		{Carmichael, 2},
		{Quincy, 4},
	}
	if len(out) != 2 || out[0] != want[0] || out[1] != want[1] {
		t.Fatalf("got %+v want %+v", out, want)
	}
}

func TestResolveRound_TieNeedsDecision(t *testing.T) {
	e := newTestEngine(t)
	claimAll(t, e, [4]Character{Carmichael, Quincy, Medici, DAmbrosio})
	for i, p := range [4]Character{Carmichael, Quincy, Medici, DAmbrosio} {
		if rej := e.CastVote(p, i%2); rej != nil {
			t.Fatalf("vote: %+v", rej)
		}
	}

	bellsBefore := map[Season]int{}
	for _, season := range SeasonOrder {
		bellsBefore[season] = e.State().Bells[season]
	}
	res, err := e.ResolveRound(nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.PassedIndex != -1 {
		t.Fatalf("2-2 split without decision passed proposal %d", res.PassedIndex)
	}
	for _, season := range SeasonOrder {
		if e.State().Bells[season] != bellsBefore[season] {
			t.Fatalf("bells changed on a dead tie")
		}
	}
	if e.State().Round != 2 {
		t.Fatalf("round did not advance: %d", e.State().Round)
	}
}

func TestResolveRound_TieDecisionPassesAsMajority(t *testing.T) {
	e := newTestEngine(t)
	claimAll(t, e, [4]Character{Carmichael, Quincy, Medici, DAmbrosio})
	for i, p := range [4]Character{Carmichael, Quincy, Medici, DAmbrosio} {
		if rej := e.CastVote(p, i%2); rej != nil {
			t.Fatalf("vote: %+v", rej)
		}
	}
	card := e.State().CurrentProposals[1]
	res, err := e.ResolveRound(&TieDecision{Passed: 1, Source: "referee"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.PassedIndex != 1 || res.Outcome != OutcomeMajority || res.WinningVotes != 3 || res.TieBreak != "referee" {
		t.Fatalf("unexpected result %+v", res)
	}
	want := map[Season]int{}
	for _, season := range card.Majority {
		want[season]++
	}
	for season, n := range want {
		if e.State().Bells[season] != n {
			t.Fatalf("bells for %s: got %d want %d", season, e.State().Bells[season], n)
		}
	}
}

func TestResolveRound_ConsensusPaysConsensusTrack(t *testing.T) {
	e := newTestEngine(t)
	claimAll(t, e, [4]Character{Carmichael, Quincy, Medici, DAmbrosio})
	for _, p := range [4]Character{Carmichael, Quincy, Medici, DAmbrosio} {
		if rej := e.CastVote(p, 0); rej != nil {
			t.Fatalf("vote: %+v", rej)
		}
	}
	card := e.State().CurrentProposals[0]
	res, err := e.ResolveRound(nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.Outcome != OutcomeConsensus || res.WinningVotes != 4 {
		t.Fatalf("unexpected result %+v", res)
	}
	total := 0
	for _, season := range SeasonOrder {
		total += e.State().Bells[season]
	}
	if total != len(card.Consensus) {
		t.Fatalf("bell total %d, want %d", total, len(card.Consensus))
	}
}

func TestShotgunAdvisory(t *testing.T) {
	e := newTestEngine(t)
	claimAll(t, e, [4]Character{Carmichael, Quincy, Medici, DAmbrosio})
	if _, ok := e.ShotgunAdvisory(); ok {
		t.Fatal("advisory without the toggle")
	}
	e.State().ActiveToggles[EffectShotgun] = true
	if _, ok := e.ShotgunAdvisory(); ok {
		t.Fatal("advisory before token 1 holder voted")
	}
	if rej := e.CastVote(Carmichael, 1); rej != nil {
		t.Fatalf("vote: %+v", rej)
	}
	side, ok := e.ShotgunAdvisory()
	if !ok || side != 1 {
		t.Fatalf("advisory: got %d/%v", side, ok)
	}
}

func TestResolveRound_AppliesOnlyWinningPairEffect(t *testing.T) {
	e := newTestEngine(t)
	claimAll(t, e, [4]Character{Carmichael, Quincy, Medici, DAmbrosio})
	s := e.State()
	s.CurrentEffects[0] = EffectPair{
		Majority:  EffectCard{Name: EffectShotgun, Kind: EffectToggle},
		Consensus: EffectCard{Name: EffectFleaMarket, Kind: EffectToggle},
	}
	s.CurrentEffects[1] = EffectPair{
		Majority:  EffectCard{Name: EffectJubilee, Kind: EffectEvent},
		Consensus: EffectCard{Name: EffectSecretSanta, Kind: EffectEvent},
	}
	// Move one token so a stray Jubilee or Secret Santa would show up.
	if rej, err := e.TransferPromiseToken(Quincy, Carmichael, Quincy); rej != nil || err != nil {
		t.Fatalf("transfer: %v %v", rej, err)
	}
	for i, p := range [4]Character{Carmichael, Quincy, Medici, DAmbrosio} {
		vote := 0
		if i == 3 {
			vote = 1
		}
		if rej := e.CastVote(p, vote); rej != nil {
			t.Fatalf("vote: %+v", rej)
		}
	}

	res, err := e.ResolveRound(nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.Outcome != OutcomeMajority || res.AppliedEffect != EffectShotgun {
		t.Fatalf("unexpected result %+v", res)
	}
	if !s.ActiveToggles[EffectShotgun] {
		t.Fatal("winning majority toggle not active")
	}
	if s.ActiveToggles[EffectFleaMarket] {
		t.Fatal("consensus-side toggle applied on a majority win")
	}
	if s.Holdings[Carmichael][Quincy] != 1 || s.Holdings[Quincy][Quincy] != 4 {
		t.Fatalf("losing-pair event leaked into holdings: %v", s.Holdings)
	}

	// Round 2: consensus pays the consensus-side effect, and drawing the
	// same toggle again flips it off.
	if err := e.StartRound(); err != nil {
		t.Fatalf("round 2: %v", err)
	}
	claimAll(t, e, [4]Character{Carmichael, Quincy, Medici, DAmbrosio})
	s.CurrentEffects[0] = EffectPair{
		Majority:  EffectCard{Name: EffectJubilee, Kind: EffectEvent},
		Consensus: EffectCard{Name: EffectShotgun, Kind: EffectToggle},
	}
	for _, p := range [4]Character{Carmichael, Quincy, Medici, DAmbrosio} {
		if rej := e.CastVote(p, 0); rej != nil {
			t.Fatalf("vote: %+v", rej)
		}
	}
	res, err = e.ResolveRound(nil)
	if err != nil {
		t.Fatalf("resolve 2: %v", err)
	}
	if res.Outcome != OutcomeConsensus || res.AppliedEffect != EffectShotgun {
		t.Fatalf("unexpected result %+v", res)
	}
	if s.ActiveToggles[EffectShotgun] {
		t.Fatal("toggle did not flip off on the second draw")
	}
	if s.Holdings[Carmichael][Quincy] != 1 {
		t.Fatalf("majority-side Jubilee leaked on a consensus win: %v", s.Holdings)
	}
}

func TestHighwayRobbery_SkipsWhenTableIsEmpty(t *testing.T) {
	e := newTestEngine(t)
	s := e.State()
	for _, holder := range CharacterOrder {
		for _, owner := range CharacterOrder {
			s.Holdings[holder][owner] = 0
		}
	}
	e.applyEffect(EffectCard{Name: EffectHighwayRobbery, Kind: EffectEvent})
	for _, holder := range CharacterOrder {
		for _, owner := range CharacterOrder {
			if s.Holdings[holder][owner] != 0 {
				t.Fatalf("tokens appeared from nowhere: %v", s.Holdings)
			}
		}
	}
}

func TestHighwayRobbery_EmptyHandedThiefSkips(t *testing.T) {
	e := newTestEngine(t)
	s := e.State()
	for _, holder := range CharacterOrder {
		for _, owner := range CharacterOrder {
			s.Holdings[holder][owner] = 0
		}
	}
	for _, owner := range CharacterOrder {
		s.Holdings[Carmichael][owner] = 5
	}
	e.applyEffect(EffectCard{Name: EffectHighwayRobbery, Kind: EffectEvent})

	if total := s.promiseTotal(); total != PromiseTokenTotal {
		t.Fatalf("conservation broken: %d", total)
	}
	// Carmichael goes first with everyone else empty-handed, so his steal
	// skips; the other three each take exactly one token.
	carTotal := 0
	for _, n := range s.Holdings[Carmichael] {
		carTotal += n
	}
	if carTotal < 17 || carTotal > 19 {
		t.Fatalf("Carmichael total %d after robbery", carTotal)
	}
}

func TestSecretSanta_EveryoneGivesOneOwnToken(t *testing.T) {
	e := newTestEngine(t)
	s := e.State()
	e.applyEffect(EffectCard{Name: EffectSecretSanta, Kind: EffectEvent})

	if total := s.promiseTotal(); total != PromiseTokenTotal {
		t.Fatalf("conservation broken: %d", total)
	}
	for _, c := range CharacterOrder {
		if s.Holdings[c][c] != 4 {
			t.Fatalf("%s kept %d own tokens, want 4", c, s.Holdings[c][c])
		}
		away := 0
		for _, holder := range CharacterOrder {
			if holder != c {
				away += s.Holdings[holder][c]
			}
		}
		if away != 1 {
			t.Fatalf("%s has %d tokens abroad, want 1", c, away)
		}
	}
}

func TestJubilee_ReturnsEveryTokenHome(t *testing.T) {
	e := newTestEngine(t)
	s := e.State()
	if rej, err := e.TransferPromiseToken(Quincy, Carmichael, Quincy); rej != nil || err != nil {
		t.Fatalf("transfer: %v %v", rej, err)
	}
	e.applyEffect(EffectCard{Name: EffectJubilee, Kind: EffectEvent})

	for _, holder := range CharacterOrder {
		for _, owner := range CharacterOrder {
			want := 0
			if holder == owner {
				want = 5
			}
			if s.Holdings[holder][owner] != want {
				t.Fatalf("holdings[%s][%s] = %d, want %d", holder, owner, s.Holdings[holder][owner], want)
			}
		}
	}
}

func TestConservation_AcrossFullGame(t *testing.T) {
	cfg := Defaults()
	cfg.MaxRounds = 10
	e := NewEngine(cfg)
	order := [4]Character{Carmichael, Quincy, Medici, DAmbrosio}
	for round := 1; round <= cfg.MaxRounds; round++ {
		if err := e.StartRound(); err != nil {
			t.Fatalf("round %d: %v", round, err)
		}
		claimAll(t, e, order)
		for i, p := range order {
			vote := 0
			if i == 3 {
				vote = round % 2
			}
			if rej := e.CastVote(p, vote); rej != nil {
				t.Fatalf("vote round %d: %+v", round, rej)
			}
		}
		if _, err := e.ResolveRound(nil); err != nil {
			t.Fatalf("resolve round %d: %v", round, err)
		}
		if total := e.State().promiseTotal(); total != PromiseTokenTotal {
			t.Fatalf("round %d: promise total %d", round, total)
		}
	}
	if e.State().Phase != PhaseComplete {
		t.Fatalf("expected complete, got %s", e.State().Phase)
	}
}

func TestDeterminism_SameSeedSameDigests(t *testing.T) {
	run := func() []string {
		cfg := Defaults()
		cfg.Seed = 7
		e := NewEngine(cfg)
		order := [4]Character{DAmbrosio, Medici, Quincy, Carmichael}
		var digests []string
		for round := 1; round <= 5; round++ {
			if err := e.StartRound(); err != nil {
				t.Fatalf("round %d: %v", round, err)
			}
			claimAll(t, e, order)
			for i, p := range order {
				if rej := e.CastVote(p, (i+round)%2); rej != nil {
					t.Fatalf("vote: %+v", rej)
				}
			}
			if _, err := e.ResolveRound(nil); err != nil {
				t.Fatalf("resolve: %v", err)
			}
			digests = append(digests, e.Digest())
		}
		return digests
	}
	d1, d2 := run(), run()
	for i := range d1 {
		if d1[i] != d2[i] {
			t.Fatalf("digest mismatch at round %d: %s vs %s", i+1, d1[i], d2[i])
		}
	}
}

func TestScores_WeightedBells(t *testing.T) {
	e := NewEngine(Defaults())
	s := e.State()
	s.Bells[SeasonWinter] = 3
	s.Bells[SeasonSpring] = 2
	s.Bells[SeasonSummer] = 1
	s.Bells[SeasonAutumn] = 4

	scores := e.Scores()
	want := map[Character]int{
		Carmichael: 2*3 + 2 - 1, // winter*2 + spring - summer
		Quincy:     2*4 + 3 - 2, // autumn*2 + winter - spring
		Medici:     2*1 + 4 - 3, // summer*2 + autumn - winter
		DAmbrosio:  2*2 + 1 - 4, // spring*2 + summer - autumn
	}
	for c, w := range want {
		if scores[c] != w {
			t.Fatalf("%s: got %d want %d", c, scores[c], w)
		}
	}
}

func TestAgreements_CommitmentAndMutualVoid(t *testing.T) {
	e := newTestEngine(t)

	id, rej := e.ProposeAgreement(Carmichael, "split winter bells", []Character{Quincy}, true)
	if rej != nil {
		t.Fatalf("propose: %+v", rej)
	}
	a := e.State().Agreements[id]
	if a.FullyAccepted() {
		t.Fatal("accepted before the counterparty consented")
	}
	if rej := e.AcceptAgreement(Quincy, id); rej != nil {
		t.Fatalf("accept: %+v", rej)
	}
	if !a.FullyAccepted() {
		t.Fatal("expected full acceptance")
	}

	// A player who has taken a vote token is committed.
	if rej, err := e.ClaimToken(Medici, 3); rej != nil || err != nil {
		t.Fatalf("claim: %v %v", rej, err)
	}
	if _, rej := e.ProposeAgreement(Medici, "late deal", []Character{Quincy}, true); rej == nil || rej.Code != protocol.ErrAlreadyCommitted {
		t.Fatalf("expected %s, got %+v", protocol.ErrAlreadyCommitted, rej)
	}
	// Non-binding talk stays on the record regardless.
	if _, rej := e.ProposeAgreement(Medici, "informal note", []Character{Quincy}, false); rej != nil {
		t.Fatalf("non-binding propose: %+v", rej)
	}

	if rej := e.VoidAgreement(Carmichael, id); rej != nil {
		t.Fatalf("void consent: %+v", rej)
	}
	if a.Status != AgreementPending {
		t.Fatal("voided on one-sided consent")
	}
	if rej := e.VoidAgreement(Quincy, id); rej != nil {
		t.Fatalf("void consent: %+v", rej)
	}
	if a.Status != AgreementVoid {
		t.Fatalf("expected void, got %s", a.Status)
	}
	if rej := e.VoidAgreement(Medici, id); rej == nil || rej.Code != protocol.ErrInvalidTarget {
		t.Fatalf("expected %s for a non-party, got %+v", protocol.ErrInvalidTarget, rej)
	}
}

func TestTransferPromiseToken(t *testing.T) {
	e := newTestEngine(t)
	s := e.State()

	if rej, err := e.TransferPromiseToken(Carmichael, Quincy, Carmichael); rej != nil || err != nil {
		t.Fatalf("give own token: %v %v", rej, err)
	}
	if s.Holdings[Carmichael][Carmichael] != 4 || s.Holdings[Quincy][Carmichael] != 1 {
		t.Fatalf("transfer not recorded: %v", s.Holdings)
	}

	// Quincy now holds a Carmichael token but cannot pass it on without the
	// Flea Market toggle.
	if rej, _ := e.TransferPromiseToken(Quincy, Medici, Carmichael); rej == nil || rej.Code != protocol.ErrNotOwnerOrHolder {
		t.Fatalf("expected %s, got %+v", protocol.ErrNotOwnerOrHolder, rej)
	}
	s.ActiveToggles[EffectFleaMarket] = true
	if rej, err := e.TransferPromiseToken(Quincy, Medici, Carmichael); rej != nil || err != nil {
		t.Fatalf("flea market transfer: %v %v", rej, err)
	}
	if s.Holdings[Medici][Carmichael] != 1 {
		t.Fatalf("third-party transfer not recorded: %v", s.Holdings)
	}

	if rej, _ := e.TransferPromiseToken(Medici, Medici, Carmichael); rej == nil || rej.Code != protocol.ErrInvalidTarget {
		t.Fatalf("expected %s, got %+v", protocol.ErrInvalidTarget, rej)
	}
	if total := s.promiseTotal(); total != PromiseTokenTotal {
		t.Fatalf("conservation broken: %d", total)
	}
}

func TestRefereeOverrides(t *testing.T) {
	e := newTestEngine(t)
	claimAll(t, e, [4]Character{Carmichael, Quincy, Medici, DAmbrosio})
	if rej := e.ForceVote(Carmichael, 1); rej == nil || rej.Code != protocol.ErrInvalidTarget {
		t.Fatalf("override before the vote exists: %+v", rej)
	}
	if rej := e.CastVote(Carmichael, 0); rej != nil {
		t.Fatalf("vote: %+v", rej)
	}
	if rej := e.ForceVote(Carmichael, 1); rej != nil {
		t.Fatalf("override: %+v", rej)
	}
	if e.State().Votes[Carmichael] != 1 {
		t.Fatal("override not applied")
	}
	if e.State().VoteChanges[Carmichael] != 0 {
		t.Fatal("referee override must not consume the change cap")
	}
}

func TestDeckInvariants(t *testing.T) {
	e := NewEngine(Defaults())
	if len(e.State().ProposalDeck) != 20 {
		t.Fatalf("proposal deck: %d", len(e.State().ProposalDeck))
	}
	if len(e.State().EffectDeckC) != 15 {
		t.Fatalf("effect deck: %d", len(e.State().EffectDeckC))
	}
	if err := e.StartRound(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if len(e.State().ProposalDeck) != 18 {
		t.Fatalf("proposal deck after deal: %d", len(e.State().ProposalDeck))
	}
	if _, err := e.ResolveRound(nil); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	// Full effect deck returns every round.
	if len(e.State().EffectDeckC) != 15 {
		t.Fatalf("effect deck after reshuffle: %d", len(e.State().EffectDeckC))
	}
}
