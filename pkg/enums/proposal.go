package enums

import "fmt"

// ProposalStatus maps to the proposal_status enum in Postgres.
type ProposalStatus string

const (
	ProposalStatusDraft     ProposalStatus = "draft"
	ProposalStatusSubmitted ProposalStatus = "submitted"
	ProposalStatusApproved  ProposalStatus = "approved"
	ProposalStatusRejected  ProposalStatus = "rejected"
)

var validProposalStatuses = []ProposalStatus{
	ProposalStatusDraft,
	ProposalStatusSubmitted,
	ProposalStatusApproved,
	ProposalStatusRejected,
}

// IsValid checks whether the given status matches the canonical enum.
func (s ProposalStatus) IsValid() bool {
	for _, candidate := range validProposalStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseProposalStatus converts raw strings into ProposalStatus.
func ParseProposalStatus(value string) (ProposalStatus, error) {
	for _, candidate := range validProposalStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid proposal status %q", value)
}

// CanTransitionTo enforces the draft -> submitted -> approved/rejected flow.
func (s ProposalStatus) CanTransitionTo(next ProposalStatus) bool {
	switch s {
	case ProposalStatusDraft:
		return next == ProposalStatusSubmitted
	case ProposalStatusSubmitted:
		return next == ProposalStatusApproved || next == ProposalStatusRejected
	default:
		return false
	}
}
