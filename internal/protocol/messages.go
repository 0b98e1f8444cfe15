package protocol

// HELLO (client -> server)
type HelloMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	Role            string     `json:"role"` // "player", "referee", "observer"
	Character       string     `json:"character,omitempty"`
	AgentName       string     `json:"agent_name,omitempty"`
	Auth            *HelloAuth `json:"auth,omitempty"`
}

type HelloAuth struct {
	Token string `json:"token,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	GameID          string     `json:"game_id"`
	Character       string     `json:"character,omitempty"`
	ResumeToken     string     `json:"resume_token,omitempty"`
	GameParams      GameParams `json:"game_params"`
}

type GameParams struct {
	MaxRounds           int   `json:"max_rounds"`
	WinThreshold        int   `json:"win_threshold"`
	NegotiationWordCap  int   `json:"negotiation_word_cap"`
	VoteChangeCapTarget int   `json:"vote_change_cap_per_target"`
	Seed                int64 `json:"seed"`
}

// ACTION_REQUEST (server -> player client): ask for the next action.
type ActionRequestMsg struct {
	Type            string        `json:"type"`
	ProtocolVersion string        `json:"protocol_version"`
	ReqID           string        `json:"req_id"`
	Character       string        `json:"character"`
	Phase           string        `json:"phase"`
	Round           int           `json:"round"`
	State           StateSnapshot `json:"state"`
	Transcript      []string      `json:"transcript,omitempty"`
	Hints           LegalHints    `json:"hints"`
	DeadlineMillis  int64         `json:"deadline_ms,omitempty"`
}

// ACT (player client -> server): the reply to one ACTION_REQUEST.
type ActMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ReqID           string `json:"req_id"`
	Character       string `json:"character"`
	Action          Action `json:"action"`
}

// RULING_REQUEST (server -> referee client)
type RulingRequestMsg struct {
	Type            string        `json:"type"`
	ProtocolVersion string        `json:"protocol_version"`
	ReqID           string        `json:"req_id"`
	FromPhase       string        `json:"from_phase"`
	ToPhase         string        `json:"to_phase"`
	State           StateSnapshot `json:"state"`
	Transcript      []string      `json:"transcript,omitempty"`
}

// RULING (referee client -> server): free-text rulings.
type RulingMsg struct {
	Type            string   `json:"type"`
	ProtocolVersion string   `json:"protocol_version"`
	ReqID           string   `json:"req_id"`
	Rulings         []string `json:"rulings"`
}

// StateSnapshot is the read-only public view handed to agents, the referee
// and observers. It never exposes decks or private scratch state.
type StateSnapshot struct {
	Round            int                       `json:"round"`
	Phase            string                    `json:"phase"`
	Proposals        []ProposalView            `json:"proposals,omitempty"`
	Effects          map[string]EffectPairView `json:"effects,omitempty"`
	Bells            map[string]int            `json:"bells"`
	TokenAssignments map[string]string         `json:"token_assignments"`
	Votes            map[string]int            `json:"votes,omitempty"`
	VoteChanges      map[string]int            `json:"vote_changes,omitempty"`
	Holdings         map[string]map[string]int `json:"holdings"`
	ActiveToggles    []string                  `json:"active_toggles,omitempty"`
	WordCounts       map[string]int            `json:"word_counts"`
	MutedPlayers     []string                  `json:"muted_players,omitempty"`
	Agreements       map[string]AgreementView  `json:"agreements,omitempty"`
}

type ProposalView struct {
	Name      string `json:"name"`
	Majority  string `json:"majority"`  // season letters, e.g. "WWP"
	Consensus string `json:"consensus"` // season letters, e.g. "WWWW"
}

type EffectPairView struct {
	Majority  string `json:"majority"`
	Consensus string `json:"consensus"`
}

type AgreementView struct {
	Text    string   `json:"text"`
	Parties []string `json:"parties"`
	Status  string   `json:"status"`
	Round   int      `json:"round"`
	Binding bool     `json:"binding"`
	Notes   string   `json:"notes,omitempty"`
}
