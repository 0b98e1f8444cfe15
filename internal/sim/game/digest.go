package game

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"
	"sort"
)

// Digest hashes the full authoritative state in a fixed field order, so two
// runs that applied the same committed actions from the same seed produce
// identical digests at every round boundary.
func (e *Engine) Digest() string {
	h := sha256.New()
	var tmp [8]byte
	s := e.state

	digestInt(h, &tmp, s.Round)
	digestStr(h, string(s.Phase))
	for _, season := range SeasonOrder {
		digestInt(h, &tmp, s.Bells[season])
	}
	for _, t := range VoteTokens {
		digestStr(h, string(s.TokenAssignments[t]))
	}
	digestInt(h, &tmp, s.VotingCursor)
	for _, c := range CharacterOrder {
		v, voted := s.Votes[c]
		if !voted {
			v = -1
		}
		digestInt(h, &tmp, v)
		digestInt(h, &tmp, s.VoteChanges[c])
		digestInt(h, &tmp, s.WordCounts[c])
		h.Write([]byte{boolByte(s.Muted[c]), boolByte(s.Forfeited[c])})
		for _, owner := range CharacterOrder {
			digestInt(h, &tmp, s.Holdings[c][owner])
		}
	}

	toggles := make([]string, 0, len(s.ActiveToggles))
	for name, on := range s.ActiveToggles {
		if on {
			toggles = append(toggles, name)
		}
	}
	sort.Strings(toggles)
	digestInt(h, &tmp, len(toggles))
	for _, name := range toggles {
		digestStr(h, name)
	}

	digestInt(h, &tmp, len(s.ProposalDeck))
	for _, card := range s.ProposalDeck {
		digestStr(h, card.Name)
	}
	digestInt(h, &tmp, len(s.EffectDeckC))
	for _, card := range s.EffectDeckC {
		digestStr(h, card.Name)
	}
	if s.Dealt {
		for i := 0; i < 2; i++ {
			digestStr(h, s.CurrentProposals[i].Name)
			digestStr(h, s.CurrentEffects[i].Majority.Name)
			digestStr(h, s.CurrentEffects[i].Consensus.Name)
		}
	}

	ids := make([]string, 0, len(s.Agreements))
	for id := range s.Agreements {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	digestInt(h, &tmp, len(ids))
	for _, id := range ids {
		a := s.Agreements[id]
		digestStr(h, id)
		digestStr(h, a.Text)
		digestStr(h, string(a.Status))
		digestInt(h, &tmp, a.CreatedRound)
		h.Write([]byte{boolByte(a.Binding)})
		digestInt(h, &tmp, len(a.Parties))
		for _, p := range a.Parties {
			digestStr(h, string(p))
			h.Write([]byte{boolByte(a.Accepted[p]), boolByte(a.VoidConsent[p])})
		}
	}

	return hex.EncodeToString(h.Sum(nil))
}

func digestInt(h hash.Hash, tmp *[8]byte, v int) {
	binary.LittleEndian.PutUint64(tmp[:], uint64(int64(v)))
	h.Write(tmp[:])
}

func digestStr(h hash.Hash, s string) {
	var tmp [8]byte
	digestInt(h, &tmp, len(s))
	h.Write([]byte(s))
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
