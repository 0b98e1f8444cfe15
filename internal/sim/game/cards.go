package game

// ProposalCard names a proposal and the bell payouts it grants when passed.
// Majority pays on a 3-1 vote, Consensus on 4-0.
type ProposalCard struct {
	Name      string
	Majority  []Season
	Consensus []Season
}

// EffectCard is drawn face-down alongside each proposal/outcome pair and
// applied only if that exact pair wins.
type EffectCard struct {
	Name        string
	Kind        EffectKind
	Description string
}

func mustSeq(code string) []Season {
	seq, err := ParseSeasons(code)
	if err != nil {
		panic(err)
	}
	return seq
}

var proposalCards = []ProposalCard{
	{"Winter Solstice", mustSeq("WWP"), mustSeq("WWWW")},
	{"Winter Awake", mustSeq("WWP"), mustSeq("WPSS")},
	{"Winter in Chorus", mustSeq("WPS"), mustSeq("WWWA")},
	{"Winter All-Aglow", mustSeq("WWW"), mustSeq("PPAA")},
	{"Winter in Harmony", mustSeq("WPS"), mustSeq("WWPP")},
	{"Spring Equinox", mustSeq("PPS"), mustSeq("PPPP")},
	{"Spring-At-The-Door", mustSeq("PPS"), mustSeq("PSWW")},
	{"Spring In Quiet", mustSeq("PPP"), mustSeq("SSWW")},
	{"Spring Overflowing", mustSeq("PSA"), mustSeq("PPSS")},
	{"Spring In Bloom", mustSeq("PSA"), mustSeq("PPPW")},
	{"Autumn Equinox", mustSeq("AAW"), mustSeq("AAAA")},
	{"Autumn In Flight", mustSeq("AAA"), mustSeq("WWPP")},
	{"Autumn In Memory", mustSeq("AWP"), mustSeq("AAWW")},
	{"Autumn In Mourning", mustSeq("AAW"), mustSeq("AWPP")},
	{"Autumn In Vain", mustSeq("AWP"), mustSeq("AAAW")},
	{"Summer Solstice", mustSeq("SSA"), mustSeq("SSSS")},
	{"Summer Singing", mustSeq("SAW"), mustSeq("SSAA")},
	{"Summer Bursting", mustSeq("SSS"), mustSeq("AAPP")},
	{"Summer Waking", mustSeq("SAW"), mustSeq("SSSP")},
	{"Summer in Glory", mustSeq("SSA"), mustSeq("SAWW")},
}

const (
	EffectClairvoyant    = "Clairvoyant"
	EffectShotgun        = "Shotgun"
	EffectFleaMarket     = "Flea Market"
	EffectHighwayRobbery = "Highway Robbery"
	EffectJubilee        = "Jubilee"
	EffectSecretSanta    = "Secret Santa"
	EffectTransformation = "Transformation"
)

var effectCards = []EffectCard{
	{EffectClairvoyant, EffectToggle, "Proposal deck is face-up and visible to all players."},
	{EffectShotgun, EffectToggle, "Token 1 player can break ties."},
	{EffectFleaMarket, EffectToggle, "Players can trade other players' promise tokens."},
	{EffectHighwayRobbery, EffectEvent, "Each player takes 1 promise token from another player."},
	{EffectJubilee, EffectEvent, "All promise tokens return to their owners."},
	{EffectSecretSanta, EffectEvent, "Each player gives 1 promise token to another player."},
	{EffectTransformation, EffectEvent, "Players may transform promise tokens into tokens from different players."},
	{"Null 1", EffectNull, "No effect."},
	{"Null 2", EffectNull, "No effect."},
	{"Null 3", EffectNull, "No effect."},
	{"Null 4", EffectNull, "No effect."},
	{"Null 5", EffectNull, "No effect."},
	{"Null 6", EffectNull, "No effect."},
	{"Null 7", EffectNull, "No effect."},
	{"Null 8", EffectNull, "No effect."},
}

// ProposalDeck returns a fresh copy of the 20-card proposal deck.
func ProposalDeck() []ProposalCard {
	out := make([]ProposalCard, len(proposalCards))
	copy(out, proposalCards)
	return out
}

// EffectDeck returns a fresh copy of the 15-card effect deck.
func EffectDeck() []EffectCard {
	out := make([]EffectCard, len(effectCards))
	copy(out, effectCards)
	return out
}

// ProposalByName looks a card up by its printed name.
func ProposalByName(name string) (ProposalCard, bool) {
	for _, c := range proposalCards {
		if c.Name == name {
			return c, true
		}
	}
	return ProposalCard{}, false
}
