package protocol

// Action kinds a decision agent may return. Anything else is treated as a
// rejection, never a fatal error.
const (
	ActSpeak            = "SPEAK"
	ActClaimToken       = "CLAIM_TOKEN"
	ActProposeAgreement = "PROPOSE_AGREEMENT"
	ActAcceptAgreement  = "ACCEPT_AGREEMENT"
	ActVoidAgreement    = "VOID_AGREEMENT"
	ActCastVote         = "CAST_VOTE"
	ActUseTargetToken   = "USE_TARGET_TOKEN"
	ActForceWithThree   = "FORCE_WITH_THREE_TOKENS"
	ActTransferPromise  = "TRANSFER_PROMISE"
	ActNoAction         = "NO_ACTION"
)

// Action is the tagged variant produced by a decision agent. Unused fields
// stay zero for a given kind.
type Action struct {
	Kind string `json:"kind"`

	// SPEAK
	Text string `json:"text,omitempty"`

	// CLAIM_TOKEN
	TokenID int `json:"token_id,omitempty"`

	// PROPOSE_AGREEMENT / ACCEPT_AGREEMENT / VOID_AGREEMENT
	Terms       string   `json:"terms,omitempty"`
	Parties     []string `json:"parties,omitempty"`
	AgreementID string   `json:"agreement_id,omitempty"`
	NonBinding  bool     `json:"non_binding,omitempty"`

	// CAST_VOTE / USE_TARGET_TOKEN / FORCE_WITH_THREE_TOKENS / TRANSFER_PROMISE
	Proposal int    `json:"proposal,omitempty"`
	TargetID string `json:"target_id,omitempty"`
	OwnerID  string `json:"owner_id,omitempty"`
}

// LegalHints tells an agent what the table would currently accept. Hints are
// advisory; the engine still validates every action.
type LegalHints struct {
	ClaimableTokens []int    `json:"claimable_tokens,omitempty"`
	MaySpeak        bool     `json:"may_speak"`
	WordsRemaining  int      `json:"words_remaining,omitempty"`
	MayPropose      bool     `json:"may_propose"`
	VoteRequired    bool     `json:"vote_required,omitempty"`
	ChangeTargets   []string `json:"change_targets,omitempty"`
}
