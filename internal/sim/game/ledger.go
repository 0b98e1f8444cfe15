package game

import (
	"fmt"

	"ratscramble.ai/internal/protocol"
)

// FullyAccepted reports whether every party has consented to the agreement.
func (a *Agreement) FullyAccepted() bool {
	for _, p := range a.Parties {
		if !a.Accepted[p] {
			return false
		}
	}
	return true
}

// IsParty reports whether p is named in the agreement.
func (a *Agreement) IsParty(p Character) bool {
	for _, q := range a.Parties {
		if q == p {
			return true
		}
	}
	return false
}

// ProposeAgreement opens a ledger entry with the proposer's consent already
// recorded. A player who has taken a vote token is committed and may not
// open new binding agreements.
func (e *Engine) ProposeAgreement(proposer Character, text string, parties []Character, binding bool) (string, *Rejection) {
	s := e.state
	if s.Phase != PhaseNegotiation {
		return "", reject(protocol.ErrWrongPhase, "agreements are proposed during negotiation")
	}
	if binding && s.PlayerToken(proposer) != 0 {
		return "", reject(protocol.ErrAlreadyCommitted,
			fmt.Sprintf("%s has taken a vote token and may not open new binding agreements", proposer))
	}
	seen := map[Character]bool{proposer: true}
	all := []Character{proposer}
	for _, p := range parties {
		if CharacterIndex(p) < 0 {
			return "", reject(protocol.ErrInvalidTarget, fmt.Sprintf("unknown party %q", p))
		}
		if !seen[p] {
			seen[p] = true
			all = append(all, p)
		}
	}
	if len(all) < 2 {
		return "", reject(protocol.ErrBadRequest, "an agreement needs at least two parties")
	}
	e.agrSeq++
	id := fmt.Sprintf("agr-%d-%d", s.Round, e.agrSeq)
	s.Agreements[id] = &Agreement{
		ID:           id,
		Text:         text,
		Parties:      all,
		Status:       AgreementPending,
		CreatedRound: s.Round,
		Binding:      binding,
		Accepted:     map[Character]bool{proposer: true},
		VoidConsent:  map[Character]bool{},
	}
	s.log("%s proposed agreement %s: %s", proposer, id, text)
	return id, nil
}

// AcceptAgreement records a party's consent.
func (e *Engine) AcceptAgreement(p Character, id string) *Rejection {
	a, ok := e.state.Agreements[id]
	if !ok {
		return reject(protocol.ErrInvalidTarget, fmt.Sprintf("no agreement %q", id))
	}
	if !a.IsParty(p) {
		return reject(protocol.ErrInvalidTarget, fmt.Sprintf("%s is not a party to %s", p, id))
	}
	if a.Status != AgreementPending {
		return reject(protocol.ErrBadRequest, fmt.Sprintf("agreement %s is %s", id, a.Status))
	}
	a.Accepted[p] = true
	e.state.log("%s accepted agreement %s", p, id)
	return nil
}

// VoidAgreement records a party's consent to void; the entry goes void only
// once every party has consented. A referee ruling can void unilaterally.
func (e *Engine) VoidAgreement(p Character, id string) *Rejection {
	a, ok := e.state.Agreements[id]
	if !ok {
		return reject(protocol.ErrInvalidTarget, fmt.Sprintf("no agreement %q", id))
	}
	if !a.IsParty(p) {
		return reject(protocol.ErrInvalidTarget, fmt.Sprintf("%s is not a party to %s", p, id))
	}
	if a.Status != AgreementPending {
		return reject(protocol.ErrBadRequest, fmt.Sprintf("agreement %s is %s", id, a.Status))
	}
	a.VoidConsent[p] = true
	for _, q := range a.Parties {
		if !a.VoidConsent[q] {
			e.state.log("%s consented to void agreement %s", p, id)
			return nil
		}
	}
	a.Status = AgreementVoid
	a.Notes = "voided by mutual consent"
	e.state.log("Agreement %s voided by mutual consent", id)
	return nil
}

// RecordAgreement upserts a ledger entry under an explicit id. Referee
// rulings and replay go through this path; all parties count as accepted.
func (e *Engine) RecordAgreement(id, text string, parties []Character, binding bool, notes string) {
	accepted := map[Character]bool{}
	for _, p := range parties {
		accepted[p] = true
	}
	e.state.Agreements[id] = &Agreement{
		ID:           id,
		Text:         text,
		Parties:      parties,
		Status:       AgreementPending,
		CreatedRound: e.state.Round,
		Binding:      binding,
		Notes:        notes,
		Accepted:     accepted,
		VoidConsent:  map[Character]bool{},
	}
	e.state.log("Agreement %s recorded: %s", id, text)
}

// SetAgreementStatus applies a referee judgment (fulfilled, breached, void).
func (e *Engine) SetAgreementStatus(id string, status AgreementStatus, notes string) *Rejection {
	a, ok := e.state.Agreements[id]
	if !ok {
		return reject(protocol.ErrInvalidTarget, fmt.Sprintf("no agreement %q", id))
	}
	a.Status = status
	if notes != "" {
		a.Notes = notes
	}
	e.state.log("Agreement %s marked %s", id, status)
	return nil
}
