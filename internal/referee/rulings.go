package referee

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"regexp"
	"sort"
	"strings"

	"ratscramble.ai/internal/sim/game"
)

// OverrideKind is the closed set of structured enforcement actions the table
// will apply. Ruling text never reaches the rules engine directly.
type OverrideKind string

const (
	OverrideSetVote         OverrideKind = "set_vote"
	OverrideRecordAgreement OverrideKind = "record_agreement"
	OverrideVoidAgreement   OverrideKind = "void_agreement"
)

// Override is one structured enforcement action inferred from a ruling line.
type Override struct {
	Kind        OverrideKind
	Player      game.Character
	Vote        int
	AgreementID string
	Text        string
	Parties     []game.Character
	Reason      string
}

const characterAlt = `(Carmichael|Quincy|Medici|D'Ambrosio|DAmbrosio)`

var (
	setVoteRe = regexp.MustCompile(
		`(?i)\b(?:set|shift(?:ed)?|redirect(?:ed)?)\s+` + characterAlt + `\s+(?:to|toward)\s+proposal\s*([01])`)
	setVoteFallbackRe = regexp.MustCompile(
		`(?i)\b` + characterAlt + `\b.{0,50}\bproposal\s*([01])\b`)
	commitmentRe = regexp.MustCompile(
		`(?i)^(?:\d+[.)]\s*)?` + characterAlt +
			`\s+(?:made\s+)?(?:a\s+)?(?:binding\s+)?(?:commitment|commitments)?\s*(?:to:?\s*|committed to\s+)(.+)$`)
	voidRe = regexp.MustCompile(
		`(?i)\bvoid(?:ed|s)?\s+agreement\s+([A-Za-z0-9_-]+)`)
	fenceRe = regexp.MustCompile("(?s)^```[a-zA-Z]*\n(.*?)\n?```$")
)

// setVoteKeywords gate vote enforcement: a line must assert finality before
// a vote override is inferred from it.
var setVoteKeywords = []string{
	"final vote state",
	"authoritative",
	"binding final vote",
	"final vote position",
}

// CleanRulings normalizes a referee response into plain ruling lines. Code
// fences and JSON {"rulings": [...]} wrappers are unwrapped; long lines are
// clipped.
func CleanRulings(raw []string) []string {
	var out []string
	for _, entry := range raw {
		for _, line := range extractLines(entry) {
			if line != "" {
				out = append(out, line)
			}
		}
	}
	return out
}

func extractLines(text string) []string {
	cleaned := strings.TrimSpace(text)
	if cleaned == "" {
		return nil
	}
	if m := fenceRe.FindStringSubmatch(cleaned); m != nil {
		cleaned = strings.TrimSpace(m[1])
	}
	var wrapper struct {
		Rulings []string `json:"rulings"`
	}
	if err := json.Unmarshal([]byte(cleaned), &wrapper); err == nil && len(wrapper.Rulings) > 0 {
		out := make([]string, 0, len(wrapper.Rulings))
		for _, r := range wrapper.Rulings {
			out = append(out, clipLine(r))
		}
		return out
	}
	if strings.Contains(cleaned, "\n") {
		var out []string
		for _, part := range strings.Split(cleaned, "\n") {
			if strings.TrimSpace(part) != "" {
				out = append(out, clipLine(part))
			}
		}
		if len(out) > 8 {
			out = out[:8]
		}
		return out
	}
	return []string{clipLine(cleaned)}
}

func clipLine(s string) string {
	normalized := strings.Join(strings.Fields(strings.ReplaceAll(s, "`", "")), " ")
	if len(normalized) <= 280 {
		return normalized
	}
	return normalized[:277] + "..."
}

// ParseOverrides infers zero or more structured overrides from cleaned
// ruling lines. Vote enforcement is only derived during the voting to
// resolution transition; the caller passes enforceVotes accordingly.
func ParseOverrides(lines []string, enforceVotes bool) []Override {
	var out []Override
	for _, line := range lines {
		if o, ok := parseVoid(line); ok {
			out = append(out, o)
			continue
		}
		if o, ok := parseCommitment(line); ok {
			out = append(out, o)
			continue
		}
		if enforceVotes {
			if o, ok := parseSetVote(line); ok {
				out = append(out, o)
			}
		}
	}
	return out
}

func parseSetVote(line string) (Override, bool) {
	lowered := strings.ToLower(line)
	gated := false
	for _, kw := range setVoteKeywords {
		if strings.Contains(lowered, kw) {
			gated = true
			break
		}
	}
	if !gated {
		return Override{}, false
	}
	m := setVoteRe.FindStringSubmatch(line)
	if m == nil {
		m = setVoteFallbackRe.FindStringSubmatch(line)
	}
	if m == nil {
		return Override{}, false
	}
	player, ok := game.ParseCharacter(m[1])
	if !ok {
		return Override{}, false
	}
	vote := 0
	if m[2] == "1" {
		vote = 1
	}
	return Override{
		Kind:   OverrideSetVote,
		Player: player,
		Vote:   vote,
		Reason: "inferred from ruling: " + line,
	}, true
}

func parseCommitment(line string) (Override, bool) {
	cleaned := strings.Join(strings.Fields(line), " ")
	if !strings.Contains(strings.ToLower(cleaned), "committed to") {
		return Override{}, false
	}
	m := commitmentRe.FindStringSubmatch(cleaned)
	if m == nil {
		return Override{}, false
	}
	actor, ok := game.ParseCharacter(m[1])
	if !ok {
		return Override{}, false
	}
	clause := strings.Trim(m[2], " .")
	if len(clause) < 18 {
		return Override{}, false
	}
	lowered := strings.ToLower(clause)
	relevant := false
	for _, kw := range []string{"vote", "support", "proposal", "round", "season"} {
		if strings.Contains(lowered, kw) {
			relevant = true
			break
		}
	}
	if !relevant {
		return Override{}, false
	}
	parties := mentionedCharacters(clause)
	parties[actor] = true
	if len(parties) < 2 {
		return Override{}, false
	}
	sorted := make([]game.Character, 0, len(parties))
	for _, c := range game.CharacterOrder {
		if parties[c] {
			sorted = append(sorted, c)
		}
	}
	text := string(actor) + " committed to " + clause
	names := make([]string, 0, len(sorted))
	for _, p := range sorted {
		names = append(names, string(p))
	}
	sort.Strings(names)
	sum := sha1.Sum([]byte(strings.ToLower(text) + "|" + strings.Join(names, "|")))
	return Override{
		Kind:        OverrideRecordAgreement,
		AgreementID: "inferred_" + hex.EncodeToString(sum[:])[:10],
		Text:        text,
		Parties:     sorted,
		Reason:      "inferred from ruling text",
	}, true
}

func parseVoid(line string) (Override, bool) {
	m := voidRe.FindStringSubmatch(line)
	if m == nil {
		return Override{}, false
	}
	return Override{
		Kind:        OverrideVoidAgreement,
		AgreementID: m[1],
		Reason:      "inferred from ruling: " + line,
	}, true
}

func mentionedCharacters(text string) map[game.Character]bool {
	lowered := strings.ToLower(text)
	out := map[game.Character]bool{}
	aliases := map[game.Character][]string{
		game.Carmichael: {"carmichael"},
		game.Quincy:     {"quincy"},
		game.Medici:     {"medici"},
		game.DAmbrosio:  {"d'ambrosio", "dambrosio"},
	}
	for c, names := range aliases {
		for _, name := range names {
			if strings.Contains(lowered, name) {
				out[c] = true
				break
			}
		}
	}
	return out
}
