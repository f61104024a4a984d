package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen         TicketStatus = "open"
	TicketStatusTriaged      TicketStatus = "triaged"
	TicketStatusWaitingHuman TicketStatus = "waiting_human"
	TicketStatusResolved     TicketStatus = "resolved"
	TicketStatusClosed       TicketStatus = "closed"
)

// TicketCategory is the closed set of support categories.
type TicketCategory string

const (
	CategoryBilling  TicketCategory = "billing"
	CategoryTech     TicketCategory = "tech"
	CategoryShipping TicketCategory = "shipping"
	CategoryOther    TicketCategory = "other"
)

// Categories lists every valid category.
var Categories = []TicketCategory{CategoryBilling, CategoryTech, CategoryShipping, CategoryOther}

// ValidCategory reports whether c is a known category.
func ValidCategory(c TicketCategory) bool {
	for _, known := range Categories {
		if known == c {
			return true
		}
	}
	return false
}

// TicketPriority enumerates SLA urgency.
type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "low"
	TicketPriorityMedium TicketPriority = "medium"
	TicketPriorityHigh   TicketPriority = "high"
	TicketPriorityUrgent TicketPriority = "urgent"
)

// Reply is a message on a ticket. System-authored replies carry no author.
type Reply struct {
	ID        string
	TicketID  string
	AuthorID  *string
	Content   string
	IsAgent   bool
	CreatedAt time.Time
}

// Ticket is the aggregate for support requests. Version guards against
// lost updates between a triage worker and a concurrent human action.
type Ticket struct {
	ID                string
	ExternalKey       string
	Title             string
	Description       string
	Category          TicketCategory
	Status            TicketStatus
	Priority          TicketPriority
	CreatedBy         string
	Assignee          *string
	AgentSuggestionID *string
	Replies           []Reply
	AttachmentURLs    []string
	Version           int
	CreatedAt         time.Time
	UpdatedAt         time.Time
	ClosedAt          *time.Time
}

// allowedTransitions defines every legal status edge. Automated triage only
// moves open -> triaged -> {resolved, waiting_human}; the remaining edges are
// human-driven. A status appearing in its own target set marks re-entry
// (re-triage, repeated human assignment).
var allowedTransitions = map[TicketStatus][]TicketStatus{
	TicketStatusOpen:         {TicketStatusTriaged},
	TicketStatusTriaged:      {TicketStatusTriaged, TicketStatusResolved, TicketStatusWaitingHuman, TicketStatusClosed},
	TicketStatusWaitingHuman: {TicketStatusTriaged, TicketStatusResolved, TicketStatusWaitingHuman, TicketStatusClosed},
	TicketStatusResolved:     {TicketStatusClosed},
	TicketStatusClosed:       {},
}

// CanTransition reports whether moving from current to next is legal.
func CanTransition(current, next TicketStatus) bool {
	for _, candidate := range allowedTransitions[current] {
		if candidate == next {
			return true
		}
	}
	return false
}

// CanTriage reports whether a ticket in the given status may enter (or
// re-enter) triage. Resolved and closed tickets are final for the pipeline.
func CanTriage(status TicketStatus) bool {
	switch status {
	case TicketStatusOpen, TicketStatusTriaged, TicketStatusWaitingHuman:
		return true
	}
	return false
}
