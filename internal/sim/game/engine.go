package game

import (
	"fmt"
	"math/rand"
	"strings"

	"ratscramble.ai/internal/protocol"
)

// Engine is the pure rules engine. It has no goroutines, no clocks and no
// I/O; every mutation happens through a method called from the table
// goroutine, and identical call sequences from the same seed yield identical
// states.
type Engine struct {
	cfg    Config
	rng    *rand.Rand
	state  *State
	agrSeq int
}

func NewEngine(cfg Config) *Engine {
	cfg.Normalize()
	e := &Engine{
		cfg:   cfg,
		rng:   rand.New(rand.NewSource(cfg.Seed)),
		state: newState(cfg.MaxRounds),
	}
	e.state.ProposalDeck = ProposalDeck()
	e.state.EffectDeckC = EffectDeck()
	e.shuffleProposals()
	e.shuffleEffects()
	return e
}

func (e *Engine) Config() Config { return e.cfg }
func (e *Engine) State() *State  { return e.state }

func (e *Engine) shuffleProposals() {
	deck := e.state.ProposalDeck
	e.rng.Shuffle(len(deck), func(i, j int) { deck[i], deck[j] = deck[j], deck[i] })
}

func (e *Engine) shuffleEffects() {
	deck := e.state.EffectDeckC
	e.rng.Shuffle(len(deck), func(i, j int) { deck[i], deck[j] = deck[j], deck[i] })
}

// StartRound deals two proposals and four face-down effects, then opens
// negotiation. Per-round counters reset; holdings and the ledger carry over.
func (e *Engine) StartRound() error {
	s := e.state
	if s.Round > s.MaxRounds {
		s.Phase = PhaseComplete
		return nil
	}
	if len(s.ProposalDeck) < 2 {
		return fmt.Errorf("proposal deck exhausted at round %d", s.Round)
	}
	s.Phase = PhaseDeal
	s.CurrentProposals[0] = s.ProposalDeck[len(s.ProposalDeck)-1]
	s.CurrentProposals[1] = s.ProposalDeck[len(s.ProposalDeck)-2]
	s.ProposalDeck = s.ProposalDeck[:len(s.ProposalDeck)-2]
	for i := 0; i < 2; i++ {
		s.CurrentEffects[i] = EffectPair{
			Majority:  e.drawEffect(),
			Consensus: e.drawEffect(),
		}
	}
	s.Dealt = true
	s.Phase = PhaseNegotiation
	s.TokenAssignments = map[int]Character{}
	s.Votes = map[Character]int{}
	s.VotingCursor = 0
	for _, c := range CharacterOrder {
		s.VoteChanges[c] = 0
		s.WordCounts[c] = 0
	}
	s.Muted = map[Character]bool{}
	s.log("Round %d begins: %q vs %q", s.Round, s.CurrentProposals[0].Name, s.CurrentProposals[1].Name)
	return nil
}

func (e *Engine) drawEffect() EffectCard {
	s := e.state
	if len(s.EffectDeckC) == 0 {
		s.EffectDeckC = EffectDeck()
		e.shuffleEffects()
	}
	card := s.EffectDeckC[len(s.EffectDeckC)-1]
	s.EffectDeckC = s.EffectDeckC[:len(s.EffectDeckC)-1]
	return card
}

// Speak applies the per-round word cap. A message that would cross the cap
// is refused whole and the speaker is muted for the rest of negotiation.
func (e *Engine) Speak(p Character, text string) (string, *Rejection) {
	s := e.state
	text = strings.TrimSpace(text)
	if text == "" {
		return "", nil
	}
	if s.Phase != PhaseNegotiation {
		s.log("%s: %s", p, text)
		return text, nil
	}
	if s.Muted[p] {
		return "", reject(protocol.ErrMuted, fmt.Sprintf("%s is muted for this round", p))
	}
	words := len(strings.Fields(text))
	if s.WordCounts[p]+words > e.cfg.NegotiationWordCap {
		s.Muted[p] = true
		return "", reject(protocol.ErrMuted,
			fmt.Sprintf("message of %d words would cross the %d-word cap", words, e.cfg.NegotiationWordCap))
	}
	s.WordCounts[p] += words
	if s.WordCounts[p] >= e.cfg.NegotiationWordCap {
		s.Muted[p] = true
	}
	s.log("%s: %s", p, text)
	return text, nil
}

// CanClaim reports whether the claim would succeed, without mutating.
func (e *Engine) CanClaim(p Character, token int) *Rejection {
	s := e.state
	if s.Phase != PhaseNegotiation {
		return reject(protocol.ErrWrongPhase, "vote tokens may only be claimed during negotiation")
	}
	if token < 1 || token > 4 {
		return reject(protocol.ErrBadRequest, fmt.Sprintf("no such vote token %d", token))
	}
	if _, taken := s.TokenAssignments[token]; taken {
		return reject(protocol.ErrAlreadyHeld, fmt.Sprintf("vote token %d is already held", token))
	}
	if t := s.PlayerToken(p); t != 0 {
		return reject(protocol.ErrPlayerAlreadyHold, fmt.Sprintf("%s already holds vote token %d", p, t))
	}
	if token != GateToken {
		if _, gateTaken := s.TokenAssignments[GateToken]; !gateTaken {
			return reject(protocol.ErrIllegalToken, "vote token 3 must leave the center first")
		}
	}
	return nil
}

// ClaimToken grants a vote token. The double-hold checks in CanClaim make a
// conflicting grant impossible unless the caller bypassed them, which is an
// invariant break, not a player error.
func (e *Engine) ClaimToken(p Character, token int) (*Rejection, error) {
	if rej := e.CanClaim(p, token); rej != nil {
		return rej, nil
	}
	return nil, e.grant(p, token)
}

func (e *Engine) grant(p Character, token int) error {
	s := e.state
	if holder, taken := s.TokenAssignments[token]; taken {
		return &InvariantError{
			Msg:  fmt.Sprintf("vote token %d granted twice (held by %s, granted to %s)", token, holder, p),
			Dump: e.dump(),
		}
	}
	s.TokenAssignments[token] = p
	s.log("%s took vote token %d", p, token)
	return nil
}

// ForceGrant assigns a token without claim validation. Forced assignment
// and replay of forced grants go through here; the double-hold invariant is
// still enforced.
func (e *Engine) ForceGrant(p Character, token int) error {
	return e.grant(p, token)
}

// FirstLegalToken is the autocorrect target: token 3 while it is at center,
// otherwise the lowest-numbered center token.
func (e *Engine) FirstLegalToken(p Character) (int, bool) {
	if s := e.state; s.Phase != PhaseNegotiation || s.PlayerToken(p) != 0 {
		return 0, false
	}
	center := e.state.CenterTokens()
	if len(center) == 0 {
		return 0, false
	}
	for _, t := range center {
		if t == GateToken {
			return GateToken, true
		}
	}
	return center[0], true
}

// ForceAssignRemaining hands every center token to a token-less player:
// token 3 first while it is at center, then ascending, players in fixed
// index order. Normal claim validation is bypassed.
func (e *Engine) ForceAssignRemaining() ([]ForcedAssignment, error) {
	s := e.state
	var players []Character
	for _, c := range CharacterOrder {
		if s.PlayerToken(c) == 0 {
			players = append(players, c)
		}
	}
	center := s.CenterTokens()
	tokens := make([]int, 0, len(center))
	for _, t := range center {
		if t == GateToken {
			tokens = append(tokens, t)
		}
	}
	for _, t := range center {
		if t != GateToken {
			tokens = append(tokens, t)
		}
	}
	var out []ForcedAssignment
	for i, t := range tokens {
		if i >= len(players) {
			break
		}
		if err := e.grant(players[i], t); err != nil {
			return out, err
		}
		out = append(out, ForcedAssignment{Player: players[i], Token: t})
	}
	return out, nil
}

func (e *Engine) AllTokensTaken() bool {
	return len(e.state.TokenAssignments) == 4
}

func (e *Engine) EnterVoting() {
	e.state.Phase = PhaseVoting
	e.state.log("Voting phase begins")
}

// ExpectedVoter is whoever holds the next token in 1..4 voting order, until
// all four have voted.
func (e *Engine) ExpectedVoter() (Character, bool) {
	s := e.state
	if s.Phase != PhaseVoting || s.VotingCursor >= 4 {
		return "", false
	}
	c, ok := s.TokenAssignments[VoteTokens[s.VotingCursor]]
	return c, ok
}

func (e *Engine) AllVotesCast() bool { return e.state.VotingCursor >= 4 }

func (e *Engine) CastVote(p Character, proposal int) *Rejection {
	s := e.state
	if s.Phase != PhaseVoting {
		return reject(protocol.ErrWrongPhase, "votes may only be cast during voting")
	}
	if proposal != 0 && proposal != 1 {
		return reject(protocol.ErrBadRequest, fmt.Sprintf("proposal index %d out of range", proposal))
	}
	expected, ok := e.ExpectedVoter()
	if !ok || expected != p {
		return reject(protocol.ErrVoteOutOfTurn, fmt.Sprintf("it is not %s's turn to vote", p))
	}
	s.Votes[p] = proposal
	s.VotingCursor++
	s.log("%s voted for proposal %d", p, proposal)
	return nil
}

// ForceVote is a referee override of an already-cast vote. It does not count
// against the target's change cap.
func (e *Engine) ForceVote(p Character, proposal int) *Rejection {
	s := e.state
	if s.Phase != PhaseVoting {
		return reject(protocol.ErrWrongPhase, "votes may only be overridden during voting")
	}
	if proposal != 0 && proposal != 1 {
		return reject(protocol.ErrBadRequest, fmt.Sprintf("proposal index %d out of range", proposal))
	}
	if _, voted := s.Votes[p]; !voted {
		return reject(protocol.ErrInvalidTarget, fmt.Sprintf("%s has not voted yet", p))
	}
	s.Votes[p] = proposal
	s.log("Referee set %s's vote to proposal %d", p, proposal)
	return nil
}

func (e *Engine) canChangeVote(target Character) *Rejection {
	s := e.state
	if s.Phase != PhaseVoting {
		return reject(protocol.ErrWrongPhase, "vote manipulation is only possible during voting")
	}
	if _, voted := s.Votes[target]; !voted {
		return reject(protocol.ErrInvalidTarget, fmt.Sprintf("%s has not voted yet", target))
	}
	if s.VoteChanges[target] >= e.cfg.VoteChangeCap {
		return reject(protocol.ErrChangeCapExceeded,
			fmt.Sprintf("%s's vote has already been changed %d times", target, s.VoteChanges[target]))
	}
	return nil
}

// ChangeVoteUsingTargetToken spends one of the target's own promise tokens
// held by the actor; the token returns to the target.
func (e *Engine) ChangeVoteUsingTargetToken(actor, target Character, proposal int) (*Rejection, error) {
	s := e.state
	if rej := e.canChangeVote(target); rej != nil {
		return rej, nil
	}
	if proposal != 0 && proposal != 1 {
		return reject(protocol.ErrBadRequest, fmt.Sprintf("proposal index %d out of range", proposal)), nil
	}
	if actor == target {
		return reject(protocol.ErrInvalidTarget, "cannot target yourself"), nil
	}
	if s.Holdings[actor][target] <= 0 {
		return reject(protocol.ErrWrongOwner,
			fmt.Sprintf("%s holds no %s promise tokens", actor, target)), nil
	}
	s.Holdings[actor][target]--
	s.Holdings[target][target]++
	s.Votes[target] = proposal
	s.VoteChanges[target]++
	s.log("%s changed %s's vote using a %s token", actor, target, target)
	return nil, e.checkConservation("change_vote_target_token")
}

// ForceVoteChangeWithThree spends three of the actor's own promise tokens,
// paid to the target.
func (e *Engine) ForceVoteChangeWithThree(actor, target Character, proposal int) (*Rejection, error) {
	s := e.state
	if rej := e.canChangeVote(target); rej != nil {
		return rej, nil
	}
	if proposal != 0 && proposal != 1 {
		return reject(protocol.ErrBadRequest, fmt.Sprintf("proposal index %d out of range", proposal)), nil
	}
	if actor == target {
		return reject(protocol.ErrInvalidTarget, "cannot target yourself"), nil
	}
	if s.Holdings[actor][actor] < 3 {
		return reject(protocol.ErrInsufficientTokens,
			fmt.Sprintf("%s holds only %d own promise tokens", actor, s.Holdings[actor][actor])), nil
	}
	s.Holdings[actor][actor] -= 3
	s.Holdings[target][actor] += 3
	s.Votes[target] = proposal
	s.VoteChanges[target]++
	s.log("%s forced %s's vote change by paying 3 own tokens", actor, target)
	return nil, e.checkConservation("force_vote_change")
}

// TransferPromiseToken hands one promise token from one holder to another.
// A holder may always give away tokens they own; moving a token owned by a
// third player needs the Flea Market toggle.
func (e *Engine) TransferPromiseToken(from, to, owner Character) (*Rejection, error) {
	s := e.state
	if from == to {
		return reject(protocol.ErrInvalidTarget, "cannot transfer to yourself"), nil
	}
	if CharacterIndex(to) < 0 || CharacterIndex(owner) < 0 {
		return reject(protocol.ErrInvalidTarget, "unknown character"), nil
	}
	if s.Holdings[from][owner] <= 0 {
		return reject(protocol.ErrNotOwnerOrHolder,
			fmt.Sprintf("%s holds no %s promise tokens", from, owner)), nil
	}
	if owner != from && !s.ActiveToggles[EffectFleaMarket] {
		return reject(protocol.ErrNotOwnerOrHolder,
			"trading other players' tokens needs the Flea Market toggle"), nil
	}
	s.Holdings[from][owner]--
	s.Holdings[to][owner]++
	s.log("%s gave a %s token to %s", from, owner, to)
	return nil, e.checkConservation("transfer_promise_token")
}

// Tally counts the cast votes per proposal.
func (e *Engine) Tally() [2]int {
	var counts [2]int
	for _, v := range e.state.Votes {
		counts[v]++
	}
	return counts
}

// ShotgunAdvisory reports the tie-break the Shotgun toggle would suggest:
// the vote of token 1's holder. It is advisory; the referee decides.
func (e *Engine) ShotgunAdvisory() (int, bool) {
	s := e.state
	if !s.ActiveToggles[EffectShotgun] {
		return 0, false
	}
	holder, ok := s.TokenAssignments[1]
	if !ok {
		return 0, false
	}
	v, voted := s.Votes[holder]
	return v, voted
}

// ResolveRound tallies, applies bells and the winning effect, reshuffles the
// full effect deck and advances the round. A 2-2 split passes nothing unless
// tie carries a decision.
func (e *Engine) ResolveRound(tie *TieDecision) (RoundResult, error) {
	s := e.state
	s.Phase = PhaseResolution
	counts := e.Tally()

	passed := -1
	var outcome OutcomeType
	winning := 0
	tieBreak := ""
	switch {
	case counts[0] == counts[1]:
		if tie != nil {
			passed = tie.Passed
			outcome = OutcomeMajority
			winning = 3
			tieBreak = tie.Source
		}
	case counts[0] > counts[1]:
		passed, winning = 0, counts[0]
	default:
		passed, winning = 1, counts[1]
	}
	if passed >= 0 && tieBreak == "" {
		if winning == 4 {
			outcome = OutcomeConsensus
		} else {
			outcome = OutcomeMajority
		}
	}

	applied := ""
	if passed >= 0 {
		card := s.CurrentProposals[passed]
		seasons := card.Majority
		effect := s.CurrentEffects[passed].Majority
		if outcome == OutcomeConsensus {
			seasons = card.Consensus
			effect = s.CurrentEffects[passed].Consensus
		}
		for _, season := range seasons {
			s.Bells[season]++
		}
		applied = effect.Name
		e.applyEffect(effect)
		s.log("Round %d: %q passed by %s, effect %q", s.Round, card.Name, outcome, effect.Name)
	} else {
		s.log("Round %d: no proposal passed", s.Round)
	}

	// The full effect deck comes back every round.
	s.EffectDeckC = EffectDeck()
	e.shuffleEffects()

	result := RoundResult{
		Round:         s.Round,
		PassedIndex:   passed,
		Outcome:       outcome,
		WinningVotes:  winning,
		AppliedEffect: applied,
		TieBreak:      tieBreak,
	}
	s.Round++
	s.Dealt = false
	if s.Round > s.MaxRounds {
		s.Phase = PhaseComplete
	}
	return result, e.checkConservation("resolve_round")
}

func (e *Engine) applyEffect(card EffectCard) {
	s := e.state
	switch card.Kind {
	case EffectNull:
		return
	case EffectToggle:
		if s.ActiveToggles[card.Name] {
			delete(s.ActiveToggles, card.Name)
		} else {
			s.ActiveToggles[card.Name] = true
		}
		s.log("Toggle flipped: %s", card.Name)
		return
	}
	switch card.Name {
	case EffectHighwayRobbery:
		e.applyHighwayRobbery()
	case EffectJubilee:
		s.Holdings = freshHoldings()
		s.log("Jubilee: all promise tokens returned to their owners")
	case EffectSecretSanta:
		e.applySecretSanta()
	case EffectTransformation:
		// Transformation would break the conservation invariant, so it
		// resolves without effect.
		s.log("Transformation triggered (no effect)")
	}
}

func (e *Engine) applyHighwayRobbery() {
	s := e.state
	for _, thief := range CharacterOrder {
		var victims []Character
		for _, target := range CharacterOrder {
			if target == thief {
				continue
			}
			total := 0
			for _, n := range s.Holdings[target] {
				total += n
			}
			if total > 0 {
				victims = append(victims, target)
			}
		}
		if len(victims) == 0 {
			continue
		}
		victim := victims[e.rng.Intn(len(victims))]
		var owners []Character
		for _, owner := range CharacterOrder {
			if s.Holdings[victim][owner] > 0 {
				owners = append(owners, owner)
			}
		}
		owner := owners[e.rng.Intn(len(owners))]
		s.Holdings[victim][owner]--
		s.Holdings[thief][owner]++
	}
	s.log("Highway Robbery resolved")
}

func (e *Engine) applySecretSanta() {
	s := e.state
	for _, giver := range CharacterOrder {
		if s.Holdings[giver][giver] <= 0 {
			continue
		}
		var recipients []Character
		for _, p := range CharacterOrder {
			if p != giver {
				recipients = append(recipients, p)
			}
		}
		recipient := recipients[e.rng.Intn(len(recipients))]
		s.Holdings[giver][giver]--
		s.Holdings[recipient][giver]++
	}
	s.log("Secret Santa resolved")
}

// Scores computes every character's weighted bell total.
func (e *Engine) Scores() map[Character]int {
	scores := make(map[Character]int, len(CharacterOrder))
	for _, c := range CharacterOrder {
		total := 0
		for season, weight := range Interests[c] {
			total += weight * e.state.Bells[season]
		}
		scores[c] = total
	}
	return scores
}

// Result lists everyone at or above the win threshold; an empty Winners
// slice means the city won no one over.
func (e *Engine) Result() GameResult {
	scores := e.Scores()
	var winners []Character
	for _, c := range CharacterOrder {
		if scores[c] >= e.cfg.WinThreshold {
			winners = append(winners, c)
		}
	}
	return GameResult{Scores: scores, Winners: winners, Threshold: e.cfg.WinThreshold}
}

func (e *Engine) checkConservation(op string) error {
	if total := e.state.promiseTotal(); total != PromiseTokenTotal {
		return &InvariantError{
			Msg:  fmt.Sprintf("promise token total %d != %d after %s", total, PromiseTokenTotal, op),
			Dump: e.dump(),
		}
	}
	return nil
}

func (e *Engine) dump() map[string]interface{} {
	holdings := map[string]map[string]int{}
	for _, holder := range CharacterOrder {
		row := map[string]int{}
		for _, owner := range CharacterOrder {
			row[string(owner)] = e.state.Holdings[holder][owner]
		}
		holdings[string(holder)] = row
	}
	tokens := map[string]string{}
	for t, holder := range e.state.TokenAssignments {
		tokens[fmt.Sprintf("%d", t)] = string(holder)
	}
	return map[string]interface{}{
		"round":    e.state.Round,
		"phase":    string(e.state.Phase),
		"holdings": holdings,
		"tokens":   tokens,
	}
}
