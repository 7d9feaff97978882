// Package loanapp holds the loan application aggregate and its review ledger.
package loanapp

import "time"

// Status is the lifecycle state of a loan application.
type Status string

const (
	StatusPending           Status = "pending"
	StatusUnderReview       Status = "under_review"
	StatusApproved          Status = "approved"
	StatusRejected          Status = "rejected"
	StatusPartiallyApproved Status = "partially_approved"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusUnderReview, StatusApproved, StatusRejected, StatusPartiallyApproved:
		return true
	}
	return false
}

// Terminal reports whether s ends the review workflow.
func (s Status) Terminal() bool {
	switch s {
	case StatusApproved, StatusRejected, StatusPartiallyApproved:
		return true
	}
	return false
}

// Verdict is a single reviewer's decision on an application.
type Verdict string

const (
	VerdictPending  Verdict = "pending"
	VerdictApproved Verdict = "approved"
	VerdictRejected Verdict = "rejected"
)

// RiskLevel grades the risk assessment attached to a review.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Assignment bounds shared by validation and storage.
const (
	MinReviewers = 1
	MaxReviewers = 5
	MinThreshold = 1
	MaxThreshold = 5
)

// Credit score bounds for risk assessments.
const (
	MinCreditScore = 300
	MaxCreditScore = 900
)

// RiskAssessment is the optional risk block a reviewer submits with a
// verdict.
type RiskAssessment struct {
	CreditScore     int       `json:"credit_score,omitempty"`
	RiskLevel       RiskLevel `json:"risk_level"`
	Recommendations []string  `json:"recommendations,omitempty"`
}

// Review is one reviewer's record on an application. At most one exists per
// assigned reviewer; resubmission overwrites in place.
type Review struct {
	ReviewerID        string          `json:"reviewer_id"`
	Verdict           Verdict         `json:"verdict"`
	Comments          string          `json:"comments,omitempty"`
	DocumentsReviewed []string        `json:"documents_reviewed,omitempty"`
	Risk              *RiskAssessment `json:"risk_assessment,omitempty"`
	ReviewedAt        time.Time       `json:"reviewed_at,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// StatusChange records one transition in the application timeline.
type StatusChange struct {
	From    Status    `json:"from"`
	To      Status    `json:"to"`
	ActorID string    `json:"actor_id"`
	At      time.Time `json:"at"`
}

// Application is the aggregate the whole workflow operates on. It is never
// deleted, only status-transitioned.
type Application struct {
	ID                string         `json:"id"`
	OwnerID           string         `json:"owner_id"`
	Amount            float64        `json:"amount"`
	Purpose           string         `json:"purpose"`
	TermMonths        int            `json:"term_months"`
	Status            Status         `json:"status"`
	AssignedReviewers []string       `json:"assigned_reviewers,omitempty"`
	ApprovalThreshold int            `json:"approval_threshold,omitempty"`
	PrimaryReviewer   string         `json:"primary_reviewer,omitempty"`
	Reviews           []Review       `json:"reviews,omitempty"`
	AssignedAt        time.Time      `json:"assigned_at,omitempty"`
	StatusHistory     []StatusChange `json:"status_history,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// IsAssigned reports whether reviewerID is in the current assigned set.
func (a Application) IsAssigned(reviewerID string) bool {
	for _, id := range a.AssignedReviewers {
		if id == reviewerID {
			return true
		}
	}
	return false
}

// ReviewFor returns the review for reviewerID, if one exists.
func (a Application) ReviewFor(reviewerID string) (Review, bool) {
	for _, rev := range a.Reviews {
		if rev.ReviewerID == reviewerID {
			return rev, true
		}
	}
	return Review{}, false
}

// Counts aggregates the ledger by verdict.
type Counts struct {
	Approved int `json:"approved"`
	Rejected int `json:"rejected"`
	Pending  int `json:"pending"`
}

// CountVerdicts classifies every review in the ledger.
func (a Application) CountVerdicts() Counts {
	var c Counts
	for _, rev := range a.Reviews {
		switch rev.Verdict {
		case VerdictApproved:
			c.Approved++
		case VerdictRejected:
			c.Rejected++
		default:
			c.Pending++
		}
	}
	return c
}

// CanSelectReviewer reports whether the owner may pick a primary reviewer:
// review activity has started (under review) or at least one approval exists.
func (a Application) CanSelectReviewer() bool {
	return a.CountVerdicts().Approved > 0 || a.Status == StatusUnderReview
}
