package game

import (
	"fmt"
	"sort"

	"ratscramble.ai/internal/protocol"
)

// Agreement is one ledger entry. Binding agreements feed referee contract
// enforcement; non-binding ones are table talk on the record.
type Agreement struct {
	ID           string
	Text         string
	Parties      []Character
	Status       AgreementStatus
	CreatedRound int
	Binding      bool
	Notes        string
	Accepted     map[Character]bool
	VoidConsent  map[Character]bool
}

// EffectPair holds the two face-down effect cards dealt for one proposal.
type EffectPair struct {
	Majority  EffectCard
	Consensus EffectCard
}

// State is the authoritative game state. It is only ever touched from the
// table goroutine, so it carries no locks.
type State struct {
	MaxRounds int
	Round     int
	Phase     Phase

	ProposalDeck []ProposalCard
	EffectDeckC  []EffectCard

	CurrentProposals [2]ProposalCard
	CurrentEffects   [2]EffectPair
	Dealt            bool

	Bells map[Season]int

	TokenAssignments map[int]Character
	Votes            map[Character]int
	VoteChanges      map[Character]int
	VotingCursor     int

	WordCounts map[Character]int
	Muted      map[Character]bool
	Forfeited  map[Character]bool

	// Holdings is holder -> owner -> count of promise tokens.
	Holdings map[Character]map[Character]int

	Agreements    map[string]*Agreement
	ActiveToggles map[string]bool

	Transcript []string
}

func newState(maxRounds int) *State {
	s := &State{
		MaxRounds:        maxRounds,
		Round:            1,
		Phase:            PhaseDeal,
		Bells:            map[Season]int{},
		TokenAssignments: map[int]Character{},
		Votes:            map[Character]int{},
		VoteChanges:      map[Character]int{},
		WordCounts:       map[Character]int{},
		Muted:            map[Character]bool{},
		Forfeited:        map[Character]bool{},
		Holdings:         freshHoldings(),
		Agreements:       map[string]*Agreement{},
		ActiveToggles:    map[string]bool{},
	}
	for _, season := range SeasonOrder {
		s.Bells[season] = 0
	}
	for _, c := range CharacterOrder {
		s.VoteChanges[c] = 0
		s.WordCounts[c] = 0
	}
	return s
}

func freshHoldings() map[Character]map[Character]int {
	h := make(map[Character]map[Character]int, len(CharacterOrder))
	for _, holder := range CharacterOrder {
		row := make(map[Character]int, len(CharacterOrder))
		for _, owner := range CharacterOrder {
			if holder == owner {
				row[owner] = 5
			} else {
				row[owner] = 0
			}
		}
		h[holder] = row
	}
	return h
}

// TokenHolder returns who holds the numbered vote token this round.
func (s *State) TokenHolder(token int) (Character, bool) {
	c, ok := s.TokenAssignments[token]
	return c, ok
}

// PlayerToken returns the vote token held by the player, or 0.
func (s *State) PlayerToken(p Character) int {
	for t, holder := range s.TokenAssignments {
		if holder == p {
			return t
		}
	}
	return 0
}

// CenterTokens lists vote tokens still unclaimed, ascending.
func (s *State) CenterTokens() []int {
	out := make([]int, 0, 4)
	for _, t := range VoteTokens {
		if _, taken := s.TokenAssignments[t]; !taken {
			out = append(out, t)
		}
	}
	return out
}

func (s *State) promiseTotal() int {
	total := 0
	for _, row := range s.Holdings {
		for _, n := range row {
			total += n
		}
	}
	return total
}

func (s *State) log(format string, args ...interface{}) {
	s.Transcript = append(s.Transcript, fmt.Sprintf(format, args...))
}

// Snapshot exports the public wire view sent to agents and observers.
func (s *State) Snapshot() protocol.StateSnapshot {
	snap := protocol.StateSnapshot{
		Round:            s.Round,
		Phase:            string(s.Phase),
		Bells:            map[string]int{},
		TokenAssignments: map[string]string{},
		Votes:            map[string]int{},
		VoteChanges:      map[string]int{},
		Holdings:         map[string]map[string]int{},
		WordCounts:       map[string]int{},
		Agreements:       map[string]protocol.AgreementView{},
		Effects:          map[string]protocol.EffectPairView{},
	}
	for _, season := range SeasonOrder {
		snap.Bells[string(season)] = s.Bells[season]
	}
	if s.Dealt {
		for i, p := range s.CurrentProposals {
			snap.Proposals = append(snap.Proposals, protocol.ProposalView{
				Name:      p.Name,
				Majority:  SeasonLetters(p.Majority),
				Consensus: SeasonLetters(p.Consensus),
			})
			snap.Effects[fmt.Sprintf("%d", i)] = protocol.EffectPairView{
				Majority:  s.CurrentEffects[i].Majority.Name,
				Consensus: s.CurrentEffects[i].Consensus.Name,
			}
		}
	}
	for t, holder := range s.TokenAssignments {
		snap.TokenAssignments[fmt.Sprintf("%d", t)] = string(holder)
	}
	for p, v := range s.Votes {
		snap.Votes[string(p)] = v
	}
	for _, c := range CharacterOrder {
		snap.VoteChanges[string(c)] = s.VoteChanges[c]
		snap.WordCounts[string(c)] = s.WordCounts[c]
		row := map[string]int{}
		for _, owner := range CharacterOrder {
			row[string(owner)] = s.Holdings[c][owner]
		}
		snap.Holdings[string(c)] = row
		if s.Muted[c] {
			snap.MutedPlayers = append(snap.MutedPlayers, string(c))
		}
	}
	for name, on := range s.ActiveToggles {
		if on {
			snap.ActiveToggles = append(snap.ActiveToggles, name)
		}
	}
	sort.Strings(snap.ActiveToggles)
	for id, a := range s.Agreements {
		parties := make([]string, 0, len(a.Parties))
		for _, p := range a.Parties {
			parties = append(parties, string(p))
		}
		snap.Agreements[id] = protocol.AgreementView{
			Text:    a.Text,
			Parties: parties,
			Status:  string(a.Status),
			Round:   a.CreatedRound,
			Binding: a.Binding,
			Notes:   a.Notes,
		}
	}
	return snap
}
