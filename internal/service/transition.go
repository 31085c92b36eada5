package service

import "github.com/unidesk/english-proficiency-api/internal/models"

// Verdict tags the outcome of consulting the review transition table.
type Verdict int

const (
	// VerdictAllowed means the decision may proceed.
	VerdictAllowed Verdict = iota
	// VerdictForbidden means the edge exists but the actor's role may not take it.
	VerdictForbidden
	// VerdictInvalidTransition means no edge connects the current and requested states.
	VerdictInvalidTransition
)

// transitionRule describes one legal edge of the review state machine.
type transitionRule struct {
	adminOnly bool
	// document upload is mandatory when the applicant chose email postage
	requiresDocumentForEmailPostage bool
	// rejection clears any processed document already attached
	clearsDocument bool
}

// transitionTable is the closed set of legal review transitions. States
// absent as keys (APPROVED, REJECTED) are terminal; requested states absent
// under a key are unlisted edges. Officers can triage, only admins ratify.
var transitionTable = map[models.ReviewStatus]map[models.ReviewStatus]transitionRule{
	models.ReviewStatusPending: {
		models.ReviewStatusPreApproved: {requiresDocumentForEmailPostage: true},
		models.ReviewStatusApproved:    {adminOnly: true},
		models.ReviewStatusRejected:    {clearsDocument: true},
	},
	models.ReviewStatusPreApproved: {
		models.ReviewStatusApproved: {adminOnly: true},
		models.ReviewStatusRejected: {clearsDocument: true},
	},
}

// EvaluateTransition resolves (current, requested, role) against the table.
// The result is total and deterministic for every input combination.
func EvaluateTransition(current, requested models.ReviewStatus, role models.UserRole) Verdict {
	edges, ok := transitionTable[current]
	if !ok {
		return VerdictInvalidTransition
	}
	rule, ok := edges[requested]
	if !ok {
		return VerdictInvalidTransition
	}
	if rule.adminOnly && role != models.RoleAdmin {
		return VerdictForbidden
	}
	return VerdictAllowed
}

// DocumentRequired reports whether a processed document upload must
// accompany the requested transition for this applicant.
func DocumentRequired(current, requested models.ReviewStatus, postage models.PostageMode) bool {
	rule, ok := transitionTable[current][requested]
	if !ok {
		return false
	}
	return rule.requiresDocumentForEmailPostage && postage == models.PostageEmail
}

// ClearsDocument reports whether the transition discards an attached
// processed document.
func ClearsDocument(current, requested models.ReviewStatus) bool {
	rule, ok := transitionTable[current][requested]
	if !ok {
		return false
	}
	return rule.clearsDocument
}
