package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/ticket-triage/internal/domain"
	"github.com/spec-kit/ticket-triage/internal/events"
	"github.com/spec-kit/ticket-triage/internal/repository"
	"github.com/spec-kit/ticket-triage/internal/triage"
	apperrors "github.com/spec-kit/ticket-triage/pkg/util"
)

// TriageEnqueuer accepts new triage jobs.
type TriageEnqueuer interface {
	Enqueue(ctx context.Context, ticketID, traceID string) (*triage.JobHandle, error)
}

// AuditRecorder mirrors triage.AuditRecorder for the human-facing flows.
type AuditRecorder interface {
	Record(ctx context.Context, ticketID, traceID string, actor domain.AuditActor, action domain.AuditAction, meta any)
}

// TicketService coordinates ticket workflows around the triage pipeline.
type TicketService struct {
	tickets     repository.TicketRepository
	suggestions repository.SuggestionRepository
	queue       TriageEnqueuer
	audit       AuditRecorder
	dispatcher  events.Dispatcher
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	TicketRepo     repository.TicketRepository
	SuggestionRepo repository.SuggestionRepository
	Queue          TriageEnqueuer
	Audit          AuditRecorder
	Dispatcher     events.Dispatcher
}

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	Title          string
	Description    string
	Category       domain.TicketCategory
	Priority       domain.TicketPriority
	AttachmentURLs []string
}

// TicketListFilter describes listing filters.
type TicketListFilter struct {
	Statuses  []domain.TicketStatus
	MyTickets bool
	Limit     int
	Offset    int
}

// ReplyInput describes an agent reply.
type ReplyInput struct {
	Content      string
	ChangeStatus *domain.TicketStatus
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	return &TicketService{
		tickets:     deps.TicketRepo,
		suggestions: deps.SuggestionRepo,
		queue:       deps.Queue,
		audit:       deps.Audit,
		dispatcher:  deps.Dispatcher,
	}
}

// CreateTicket persists a new ticket and enqueues its triage job. A queue
// rejection surfaces to the caller; the ticket itself remains created.
func (s *TicketService) CreateTicket(ctx context.Context, user *domain.User, input TicketCreateInput) (*domain.Ticket, error) {
	title := strings.TrimSpace(input.Title)
	description := strings.TrimSpace(input.Description)
	if len(title) < 5 {
		return nil, apperrors.NewValidationError("title must be at least 5 characters", nil)
	}
	if len(description) < 10 {
		return nil, apperrors.NewValidationError("description must be at least 10 characters", nil)
	}
	category := input.Category
	if category == "" {
		category = domain.CategoryOther
	}
	if !domain.ValidCategory(category) {
		return nil, apperrors.NewValidationError("unknown category", map[string]any{"category": category})
	}

	ticket := &domain.Ticket{
		ExternalKey:    generateTicketKey(),
		Title:          title,
		Description:    description,
		Category:       category,
		Status:         domain.TicketStatusOpen,
		Priority:       input.Priority,
		CreatedBy:      user.ID,
		AttachmentURLs: input.AttachmentURLs,
	}
	if ticket.Priority == "" {
		ticket.Priority = domain.TicketPriorityMedium
	}

	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, apperrors.NewPersistenceError(err)
	}

	traceID := uuid.NewString()
	s.audit.Record(ctx, ticket.ID, traceID, domain.ActorUser, domain.ActionTicketCreated,
		domain.TicketCreatedMeta{UserID: user.ID, Title: ticket.Title})

	if _, err := s.queue.Enqueue(ctx, ticket.ID, traceID); err != nil {
		return nil, err
	}

	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketCreated,
		TicketID: ticket.ID,
		TraceID:  traceID,
		Payload: events.TicketCreatedPayload{
			Title:    ticket.Title,
			Category: ticket.Category,
			Priority: ticket.Priority,
			UserID:   user.ID,
		},
	})
	return ticket, nil
}

// ListTickets returns tickets visible to the caller. End-users only ever see
// their own; agents see everything, or their assignments with MyTickets.
func (s *TicketService) ListTickets(ctx context.Context, user *domain.User, filter TicketListFilter) ([]domain.Ticket, error) {
	repoFilter := repository.TicketFilter{
		Statuses: filter.Statuses,
		Limit:    filter.Limit,
		Offset:   filter.Offset,
	}
	if !user.IsStaff() {
		repoFilter.CreatedBy = &user.ID
	} else if filter.MyTickets {
		repoFilter.Assignee = &user.ID
	}
	return s.tickets.ListWithFilter(ctx, repoFilter)
}

// GetTicket fetches a ticket plus its latest suggestion, enforcing ownership
// for end-users.
func (s *TicketService) GetTicket(ctx context.Context, user *domain.User, ticketID string) (*domain.Ticket, *domain.AgentSuggestion, error) {
	ticket, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return nil, nil, err
	}
	if !user.IsStaff() && ticket.CreatedBy != user.ID {
		return nil, nil, apperrors.NewForbidden("access denied")
	}

	var suggestion *domain.AgentSuggestion
	if ticket.AgentSuggestionID != nil {
		suggestion, err = s.suggestions.GetByID(ctx, *ticket.AgentSuggestionID)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, apperrors.NewPersistenceError(err)
		}
	}
	return ticket, suggestion, nil
}

// AddReply appends an agent reply, optionally transitioning the ticket.
func (s *TicketService) AddReply(ctx context.Context, agent *domain.User, ticketID string, input ReplyInput) (*domain.Ticket, error) {
	if !agent.IsStaff() {
		return nil, apperrors.NewForbidden("only agents can reply")
	}
	content := strings.TrimSpace(input.Content)
	if len(content) < 5 {
		return nil, apperrors.NewValidationError("content must be at least 5 characters", nil)
	}

	ticket, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	oldStatus := ticket.Status
	if input.ChangeStatus != nil && *input.ChangeStatus != oldStatus {
		if !domain.CanTransition(oldStatus, *input.ChangeStatus) {
			return nil, apperrors.NewInvalidTransition(string(oldStatus), string(*input.ChangeStatus))
		}
		ticket.Status = *input.ChangeStatus
		if ticket.Status == domain.TicketStatusClosed || ticket.Status == domain.TicketStatusResolved {
			now := time.Now()
			ticket.ClosedAt = &now
		}
	}

	reply := &domain.Reply{
		TicketID: ticket.ID,
		AuthorID: &agent.ID,
		Content:  content,
		IsAgent:  true,
	}
	if err := s.tickets.AddReply(ctx, reply); err != nil {
		return nil, apperrors.NewPersistenceError(err)
	}
	ticket.Replies = append(ticket.Replies, *reply)

	if ticket.Status != oldStatus {
		if err := s.tickets.Update(ctx, ticket); err != nil {
			return nil, apperrors.NewPersistenceError(err)
		}
	}

	traceID := uuid.NewString()
	s.audit.Record(ctx, ticket.ID, traceID, domain.ActorAgent, domain.ActionReplySent,
		domain.ReplySentMeta{AgentID: agent.ID, ContentLength: len(content), NewStatus: ticket.Status})
	if ticket.Status != oldStatus {
		s.audit.Record(ctx, ticket.ID, traceID, domain.ActorAgent, domain.ActionStatusChanged,
			domain.StatusChangedMeta{OldStatus: oldStatus, NewStatus: ticket.Status})
	}

	s.publishEvent(ctx, events.Event{
		Type:     events.EventReplyAdded,
		TicketID: ticket.ID,
		TraceID:  traceID,
		Payload: events.ReplyAddedPayload{
			AuthorID:    &agent.ID,
			IsAgent:     true,
			BodyPreview: stringPreview(content, 120),
			NewStatus:   ticket.Status,
		},
	})
	return ticket, nil
}

// AssignTicket sets the assignee and moves the ticket into the human lane.
func (s *TicketService) AssignTicket(ctx context.Context, agent *domain.User, ticketID, assigneeID string) (*domain.Ticket, error) {
	if !agent.IsStaff() {
		return nil, apperrors.NewForbidden("only agents can assign tickets")
	}
	if assigneeID == "" {
		assigneeID = agent.ID
	}

	ticket, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	ticket.Assignee = &assigneeID
	if ticket.Status != domain.TicketStatusWaitingHuman &&
		domain.CanTransition(ticket.Status, domain.TicketStatusWaitingHuman) {
		ticket.Status = domain.TicketStatusWaitingHuman
	}
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, apperrors.NewPersistenceError(err)
	}

	traceID := uuid.NewString()
	s.audit.Record(ctx, ticket.ID, traceID, domain.ActorAgent, domain.ActionTicketAssigned,
		domain.TicketAssignedMeta{AssignerID: agent.ID, AssigneeID: assigneeID})
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketAssigned,
		TicketID: ticket.ID,
		TraceID:  traceID,
		Payload:  events.TicketAssignedPayload{AssignerID: agent.ID, AssigneeID: assigneeID},
	})
	return ticket, nil
}

// RequeueTriage re-runs triage for a ticket that has not been finalized.
// Re-triage of a resolved or closed ticket is rejected.
func (s *TicketService) RequeueTriage(ctx context.Context, agent *domain.User, ticketID string) (*triage.JobHandle, error) {
	if !agent.IsStaff() {
		return nil, apperrors.NewForbidden("only agents can re-triage tickets")
	}

	ticket, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if !domain.CanTriage(ticket.Status) {
		return nil, apperrors.NewInvalidTransition(string(ticket.Status), string(domain.TicketStatusTriaged))
	}

	traceID := uuid.NewString()
	return s.queue.Enqueue(ctx, ticket.ID, traceID)
}

func (s *TicketService) getTicket(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, apperrors.NewPersistenceError(err)
	}
	return ticket, nil
}

func (s *TicketService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	_ = s.dispatcher.Publish(ctx, event)
}

func generateTicketKey() string {
	return "TCK-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

func stringPreview(body string, max int) string {
	body = strings.TrimSpace(body)
	if len(body) <= max {
		return body
	}
	if max <= 3 {
		return body[:max]
	}
	return body[:max-3] + "..."
}
