package referee

import (
	"testing"

	"ratscramble.ai/internal/sim/game"
)

func TestCleanRulings_UnwrapsFencesAndJSON(t *testing.T) {
	raw := []string{
		"```json\n{\"rulings\": [\"Line one stands.\", \"Line two stands.\"]}\n```",
		"plain   ruling with   extra spaces",
	}
	lines := CleanRulings(raw)
	if len(lines) != 3 {
		t.Fatalf("got %d lines: %v", len(lines), lines)
	}
	if lines[0] != "Line one stands." || lines[2] != "plain ruling with extra spaces" {
		t.Fatalf("unexpected lines: %v", lines)
	}
}

func TestParseOverrides_SetVoteNeedsFinalityKeyword(t *testing.T) {
	gated := ParseOverrides([]string{
		"I set Quincy to proposal 1.",
	}, true)
	if len(gated) != 0 {
		t.Fatalf("vote enforced without a finality assertion: %+v", gated)
	}

	out := ParseOverrides([]string{
		"Authoritative: I set Quincy to proposal 1 per the breached pact.",
	}, true)
	if len(out) != 1 {
		t.Fatalf("got %d overrides", len(out))
	}
	o := out[0]
	if o.Kind != OverrideSetVote || o.Player != game.Quincy || o.Vote != 1 {
		t.Fatalf("unexpected override %+v", o)
	}

	if got := ParseOverrides([]string{
		"Authoritative: I set Quincy to proposal 1.",
	}, false); len(got) != 0 {
		t.Fatalf("vote enforced outside the voting transition: %+v", got)
	}
}

func TestParseOverrides_SetVoteFallbackPattern(t *testing.T) {
	out := ParseOverrides([]string{
		"The binding final vote position of Medici is proposal 0.",
	}, true)
	if len(out) != 1 || out[0].Kind != OverrideSetVote || out[0].Player != game.Medici || out[0].Vote != 0 {
		t.Fatalf("unexpected overrides %+v", out)
	}
}

func TestParseOverrides_CommitmentBecomesAgreement(t *testing.T) {
	out := ParseOverrides([]string{
		"Carmichael committed to vote with Quincy on the winter proposal this round.",
	}, false)
	if len(out) != 1 {
		t.Fatalf("got %d overrides", len(out))
	}
	o := out[0]
	if o.Kind != OverrideRecordAgreement {
		t.Fatalf("unexpected kind %s", o.Kind)
	}
	if len(o.Parties) != 2 || o.Parties[0] != game.Carmichael || o.Parties[1] != game.Quincy {
		t.Fatalf("unexpected parties %v", o.Parties)
	}
	if o.AgreementID == "" {
		t.Fatal("missing agreement id")
	}
	// Deterministic id for identical text.
	again := ParseOverrides([]string{
		"Carmichael committed to vote with Quincy on the winter proposal this round.",
	}, false)
	if again[0].AgreementID != o.AgreementID {
		t.Fatalf("id not stable: %s vs %s", again[0].AgreementID, o.AgreementID)
	}
}

func TestParseOverrides_CommitmentFilters(t *testing.T) {
	for _, line := range []string{
		"Medici committed to short",
		"Quincy committed to having a pleasant conversation with everyone at the table today",
		"Somebody committed to vote with Quincy on the winter proposal",
	} {
		if out := ParseOverrides([]string{line}, false); len(out) != 0 {
			t.Fatalf("%q produced %+v", line, out)
		}
	}
}

func TestParseOverrides_Void(t *testing.T) {
	out := ParseOverrides([]string{
		"The referee voids agreement agr-2-1 for fraud.",
	}, false)
	if len(out) != 1 || out[0].Kind != OverrideVoidAgreement || out[0].AgreementID != "agr-2-1" {
		t.Fatalf("unexpected overrides %+v", out)
	}
}
