package game

import "fmt"

type Phase string

const (
	PhaseDeal        Phase = "deal"
	PhaseNegotiation Phase = "negotiation"
	PhaseVoting      Phase = "voting"
	PhaseResolution  Phase = "resolution"
	PhaseComplete    Phase = "complete"
)

type Season string

const (
	SeasonWinter Season = "winter"
	SeasonSpring Season = "spring"
	SeasonSummer Season = "summer"
	SeasonAutumn Season = "autumn"
)

var SeasonOrder = [4]Season{SeasonWinter, SeasonSpring, SeasonSummer, SeasonAutumn}

var seasonLetters = map[byte]Season{
	'W': SeasonWinter,
	'P': SeasonSpring,
	'S': SeasonSummer,
	'A': SeasonAutumn,
}

var letterBySeason = map[Season]byte{
	SeasonWinter: 'W',
	SeasonSpring: 'P',
	SeasonSummer: 'S',
	SeasonAutumn: 'A',
}

// ParseSeasons decodes a season-letter sequence such as "WWP".
func ParseSeasons(code string) ([]Season, error) {
	out := make([]Season, 0, len(code))
	for i := 0; i < len(code); i++ {
		s, ok := seasonLetters[code[i]]
		if !ok {
			return nil, fmt.Errorf("unknown season letter %q in %q", code[i], code)
		}
		out = append(out, s)
	}
	return out, nil
}

// SeasonLetters encodes a season sequence back into its letter form.
func SeasonLetters(seq []Season) string {
	b := make([]byte, 0, len(seq))
	for _, s := range seq {
		b = append(b, letterBySeason[s])
	}
	return string(b)
}

type Character string

const (
	Carmichael Character = "Carmichael"
	Quincy     Character = "Quincy"
	Medici     Character = "Medici"
	DAmbrosio  Character = "D'Ambrosio"
)

// CharacterOrder is the fixed player-index order used for every deterministic
// tie-break in the game.
var CharacterOrder = [4]Character{Carmichael, Quincy, Medici, DAmbrosio}

// CharacterIndex returns the fixed player index, or -1 for an unknown name.
func CharacterIndex(c Character) int {
	for i, cc := range CharacterOrder {
		if cc == c {
			return i
		}
	}
	return -1
}

// ParseCharacter resolves a character name case-insensitively, tolerating the
// apostrophe in D'Ambrosio.
func ParseCharacter(raw string) (Character, bool) {
	norm := normalizeName(raw)
	for _, c := range CharacterOrder {
		if normalizeName(string(c)) == norm {
			return c, true
		}
	}
	return "", false
}

func normalizeName(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		b := s[i]
		if b == '\'' || b == ' ' {
			continue
		}
		if b >= 'A' && b <= 'Z' {
			b += 'a' - 'A'
		}
		out = append(out, b)
	}
	return string(out)
}

// Interests maps each character to the season weights used for final scoring:
// one season at +2, one at +1, one at -1, the remaining season at 0.
var Interests = map[Character]map[Season]int{
	Carmichael: {SeasonWinter: 2, SeasonSpring: 1, SeasonSummer: -1},
	Quincy:     {SeasonAutumn: 2, SeasonWinter: 1, SeasonSpring: -1},
	Medici:     {SeasonSummer: 2, SeasonAutumn: 1, SeasonWinter: -1},
	DAmbrosio:  {SeasonSpring: 2, SeasonSummer: 1, SeasonAutumn: -1},
}

type OutcomeType string

const (
	OutcomeMajority  OutcomeType = "majority"
	OutcomeConsensus OutcomeType = "consensus"
)

type EffectKind string

const (
	EffectToggle EffectKind = "toggle"
	EffectEvent  EffectKind = "event"
	EffectNull   EffectKind = "null"
)

type AgreementStatus string

const (
	AgreementPending   AgreementStatus = "pending"
	AgreementFulfilled AgreementStatus = "fulfilled"
	AgreementBreached  AgreementStatus = "breached"
	AgreementVoid      AgreementStatus = "void"
)

// VoteTokens are the four numbered tokens. Token 3 gates the others.
var VoteTokens = [4]int{1, 2, 3, 4}

const GateToken = 3

// PromiseTokenTotal is the conserved promise-token count. The doubling
// variant that would break this is disabled.
const PromiseTokenTotal = 20

// Rejection is a non-fatal refusal of a player action. Code is one of the
// protocol error codes; the player may retry next cycle.
type Rejection struct {
	Code   string
	Reason string
}

func reject(code, reason string) *Rejection {
	return &Rejection{Code: code, Reason: reason}
}

// InvariantError indicates a logic defect (conservation broken, double-held
// vote token). It aborts the round and carries a state dump for diagnostics.
type InvariantError struct {
	Msg  string
	Dump map[string]interface{}
}

func (e *InvariantError) Error() string {
	return "invariant violation: " + e.Msg
}

// RoundResult summarizes one resolved round.
type RoundResult struct {
	Round         int         `json:"round"`
	PassedIndex   int         `json:"passed_index"` // -1 when nothing passed
	Outcome       OutcomeType `json:"outcome,omitempty"`
	WinningVotes  int         `json:"winning_votes"`
	AppliedEffect string      `json:"applied_effect,omitempty"`
	TieBreak      string      `json:"tie_break,omitempty"` // "shotgun" or "referee"
}

// GameResult is the final scoring view.
type GameResult struct {
	Scores    map[Character]int `json:"scores"`
	Winners   []Character       `json:"winners"`
	Threshold int               `json:"threshold"`
}

// TieDecision resolves a 2-2 split. Source records who broke the tie.
type TieDecision struct {
	Passed int
	Source string
}

// ForcedAssignment records one token granted by forced assignment.
type ForcedAssignment struct {
	Player Character `json:"player"`
	Token  int       `json:"token"`
}
