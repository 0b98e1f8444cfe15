package protocol

// Event is one entry of the ordered, append-only observer stream.
type Event map[string]interface{}

// Event type names emitted by the table. The stream is the authoritative
// record: replay reconstructs the game from it.
const (
	EventGameStarted       = "game_started"
	EventRoundStarted      = "round_started"
	EventPhaseChange       = "phase_change"
	EventSpeak             = "speak"
	EventMuted             = "muted"
	EventTokenGranted      = "token_granted"
	EventTokenRejected     = "token_rejected"
	EventTokenAutocorrect  = "token_autocorrected"
	EventForcedAssignment  = "forced_assignment"
	EventAgreementRecorded = "agreement_recorded"
	EventAgreementAccepted = "agreement_accepted"
	EventAgreementVoided   = "agreement_voided"
	EventVoteCast          = "vote_cast"
	EventVoteChanged       = "vote_changed"
	EventPromiseTransfer   = "promise_transfer"
	EventContractEnforce   = "contract_enforcement"
	EventRefereeRuling     = "referee_ruling"
	EventAgentTimeout      = "agent_timeout"
	EventActionRejected    = "action_rejected"
	EventRoundResolved     = "round_resolved"
	EventGameEnded         = "game_ended"
)
