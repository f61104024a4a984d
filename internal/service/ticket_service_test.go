package service_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/ticket-triage/internal/domain"
	"github.com/spec-kit/ticket-triage/internal/repository"
	"github.com/spec-kit/ticket-triage/internal/service"
	"github.com/spec-kit/ticket-triage/internal/triage"
	apperrors "github.com/spec-kit/ticket-triage/pkg/util"
)

type memTicketRepo struct {
	mu      sync.Mutex
	nextID  int
	tickets map[string]*domain.Ticket
	replies []domain.Reply
}

func newMemTicketRepo(tickets ...*domain.Ticket) *memTicketRepo {
	repo := &memTicketRepo{tickets: make(map[string]*domain.Ticket)}
	for _, ticket := range tickets {
		copied := *ticket
		repo.tickets[ticket.ID] = &copied
	}
	return repo
}

func (r *memTicketRepo) Create(ctx context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	ticket.ID = fmt.Sprintf("ticket-%d", r.nextID)
	ticket.Version = 1
	copied := *ticket
	r.tickets[ticket.ID] = &copied
	return nil
}

func (r *memTicketRepo) Update(ctx context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.tickets[ticket.ID]
	if !ok {
		return pgx.ErrNoRows
	}
	if stored.Version != ticket.Version {
		return repository.ErrVersionConflict
	}
	copied := *ticket
	copied.Version++
	r.tickets[ticket.ID] = &copied
	ticket.Version++
	return nil
}

func (r *memTicketRepo) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *stored
	return &copied, nil
}

func (r *memTicketRepo) ListWithFilter(ctx context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Ticket
	for _, ticket := range r.tickets {
		if filter.CreatedBy != nil && ticket.CreatedBy != *filter.CreatedBy {
			continue
		}
		if filter.Assignee != nil && (ticket.Assignee == nil || *ticket.Assignee != *filter.Assignee) {
			continue
		}
		out = append(out, *ticket)
	}
	return out, nil
}

func (r *memTicketRepo) AddReply(ctx context.Context, reply *domain.Reply) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	reply.ID = "reply-1"
	r.replies = append(r.replies, *reply)
	return nil
}

func (r *memTicketRepo) stored(id string) domain.Ticket {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.tickets[id]
}

type memSuggestionRepo struct{}

func (memSuggestionRepo) Create(ctx context.Context, suggestion *domain.AgentSuggestion) error {
	return nil
}

func (memSuggestionRepo) GetByID(ctx context.Context, id string) (*domain.AgentSuggestion, error) {
	return nil, pgx.ErrNoRows
}

func (memSuggestionRepo) ListByTicket(ctx context.Context, ticketID string) ([]domain.AgentSuggestion, error) {
	return nil, nil
}

type enqueueCall struct {
	TicketID string
	TraceID  string
}

type recordingEnqueuer struct {
	mu    sync.Mutex
	calls []enqueueCall
	err   error
}

func (q *recordingEnqueuer) Enqueue(ctx context.Context, ticketID, traceID string) (*triage.JobHandle, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return nil, q.err
	}
	q.calls = append(q.calls, enqueueCall{TicketID: ticketID, TraceID: traceID})
	return &triage.JobHandle{TicketID: ticketID, TraceID: traceID}, nil
}

type auditCall struct {
	TicketID string
	TraceID  string
	Actor    domain.AuditActor
	Action   domain.AuditAction
	Meta     any
}

type memAudit struct {
	mu    sync.Mutex
	calls []auditCall
}

func (a *memAudit) Record(ctx context.Context, ticketID, traceID string, actor domain.AuditActor, action domain.AuditAction, meta any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, auditCall{TicketID: ticketID, TraceID: traceID, Actor: actor, Action: action, Meta: meta})
}

func (a *memAudit) find(action domain.AuditAction) []auditCall {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []auditCall
	for _, call := range a.calls {
		if call.Action == action {
			out = append(out, call)
		}
	}
	return out
}

func endUser() *domain.User {
	return &domain.User{ID: "user-1", Name: "Sam", Role: domain.RoleUser}
}

func agentUser() *domain.User {
	return &domain.User{ID: "agent-1", Name: "Alex", Role: domain.RoleAgent}
}

func newTicketService(tickets *memTicketRepo, queue *recordingEnqueuer, audit *memAudit) *service.TicketService {
	return service.NewTicketService(service.TicketDependencies{
		TicketRepo:     tickets,
		SuggestionRepo: memSuggestionRepo{},
		Queue:          queue,
		Audit:          audit,
	})
}

func TestCreateTicketEnqueuesTriage(t *testing.T) {
	tickets := newMemTicketRepo()
	queue := &recordingEnqueuer{}
	audit := &memAudit{}
	svc := newTicketService(tickets, queue, audit)

	ticket, err := svc.CreateTicket(context.Background(), endUser(), service.TicketCreateInput{
		Title:       "Charged twice",
		Description: "My card shows two identical charges.",
	})
	require.NoError(t, err)
	require.NotEmpty(t, ticket.ID)
	require.True(t, strings.HasPrefix(ticket.ExternalKey, "TCK-"))
	require.Equal(t, domain.TicketStatusOpen, ticket.Status)
	require.Equal(t, domain.CategoryOther, ticket.Category)
	require.Equal(t, domain.TicketPriorityMedium, ticket.Priority)
	require.Equal(t, "user-1", ticket.CreatedBy)

	require.Len(t, queue.calls, 1)
	require.Equal(t, ticket.ID, queue.calls[0].TicketID)
	require.NotEmpty(t, queue.calls[0].TraceID)

	created := audit.find(domain.ActionTicketCreated)
	require.Len(t, created, 1)
	require.Equal(t, domain.ActorUser, created[0].Actor)
	require.Equal(t, queue.calls[0].TraceID, created[0].TraceID, "audit and job share the trace id")
}

func TestCreateTicketValidation(t *testing.T) {
	svc := newTicketService(newMemTicketRepo(), &recordingEnqueuer{}, &memAudit{})
	ctx := context.Background()

	_, err := svc.CreateTicket(ctx, endUser(), service.TicketCreateInput{Title: "hi", Description: "long enough text"})
	require.Equal(t, apperrors.CodeValidationFailed, apperrors.CodeOf(err))

	_, err = svc.CreateTicket(ctx, endUser(), service.TicketCreateInput{Title: "Charged twice", Description: "short"})
	require.Equal(t, apperrors.CodeValidationFailed, apperrors.CodeOf(err))

	_, err = svc.CreateTicket(ctx, endUser(), service.TicketCreateInput{
		Title: "Charged twice", Description: "My card shows two identical charges.", Category: "spam",
	})
	require.Equal(t, apperrors.CodeValidationFailed, apperrors.CodeOf(err))
}

func TestCreateTicketSurfacesQueueOutage(t *testing.T) {
	tickets := newMemTicketRepo()
	queue := &recordingEnqueuer{err: apperrors.NewQueueUnavailable(errors.New("redis down"))}
	svc := newTicketService(tickets, queue, &memAudit{})

	_, err := svc.CreateTicket(context.Background(), endUser(), service.TicketCreateInput{
		Title:       "Charged twice",
		Description: "My card shows two identical charges.",
	})
	require.Error(t, err)
	require.Equal(t, apperrors.CodeQueueUnavailable, apperrors.CodeOf(err))
	require.Len(t, tickets.tickets, 1, "ticket survives a failed enqueue")
}

func TestListTicketsScopesByRole(t *testing.T) {
	agentID := "agent-1"
	tickets := newMemTicketRepo(
		&domain.Ticket{ID: "t1", CreatedBy: "user-1", Status: domain.TicketStatusOpen},
		&domain.Ticket{ID: "t2", CreatedBy: "user-2", Status: domain.TicketStatusOpen},
		&domain.Ticket{ID: "t3", CreatedBy: "user-2", Assignee: &agentID, Status: domain.TicketStatusWaitingHuman},
	)
	svc := newTicketService(tickets, &recordingEnqueuer{}, &memAudit{})
	ctx := context.Background()

	mine, err := svc.ListTickets(ctx, endUser(), service.TicketListFilter{})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	require.Equal(t, "t1", mine[0].ID)

	all, err := svc.ListTickets(ctx, agentUser(), service.TicketListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)

	assigned, err := svc.ListTickets(ctx, agentUser(), service.TicketListFilter{MyTickets: true})
	require.NoError(t, err)
	require.Len(t, assigned, 1)
	require.Equal(t, "t3", assigned[0].ID)
}

func TestGetTicketDeniesForeignUser(t *testing.T) {
	tickets := newMemTicketRepo(&domain.Ticket{ID: "t1", CreatedBy: "user-2", Status: domain.TicketStatusOpen})
	svc := newTicketService(tickets, &recordingEnqueuer{}, &memAudit{})

	_, _, err := svc.GetTicket(context.Background(), endUser(), "t1")
	require.Equal(t, apperrors.CodeForbidden, apperrors.CodeOf(err))

	ticket, _, err := svc.GetTicket(context.Background(), agentUser(), "t1")
	require.NoError(t, err)
	require.Equal(t, "t1", ticket.ID)
}

func TestAddReplyWithStatusChange(t *testing.T) {
	tickets := newMemTicketRepo(&domain.Ticket{ID: "t1", CreatedBy: "user-1", Status: domain.TicketStatusWaitingHuman, Version: 1})
	audit := &memAudit{}
	svc := newTicketService(tickets, &recordingEnqueuer{}, audit)

	resolved := domain.TicketStatusResolved
	ticket, err := svc.AddReply(context.Background(), agentUser(), "t1", service.ReplyInput{
		Content:      "Refund issued, closing this out.",
		ChangeStatus: &resolved,
	})
	require.NoError(t, err)
	require.Equal(t, domain.TicketStatusResolved, ticket.Status)
	require.NotNil(t, ticket.ClosedAt)
	require.Equal(t, domain.TicketStatusResolved, tickets.stored("t1").Status)

	require.Len(t, tickets.replies, 1)
	require.True(t, tickets.replies[0].IsAgent)
	require.Equal(t, "agent-1", *tickets.replies[0].AuthorID)

	require.Len(t, audit.find(domain.ActionReplySent), 1)
	changed := audit.find(domain.ActionStatusChanged)
	require.Len(t, changed, 1)
	meta := changed[0].Meta.(domain.StatusChangedMeta)
	require.Equal(t, domain.TicketStatusWaitingHuman, meta.OldStatus)
	require.Equal(t, domain.TicketStatusResolved, meta.NewStatus)
}

func TestAddReplyRejectsIllegalTransition(t *testing.T) {
	tickets := newMemTicketRepo(&domain.Ticket{ID: "t1", CreatedBy: "user-1", Status: domain.TicketStatusOpen, Version: 1})
	svc := newTicketService(tickets, &recordingEnqueuer{}, &memAudit{})

	closed := domain.TicketStatusClosed
	_, err := svc.AddReply(context.Background(), agentUser(), "t1", service.ReplyInput{
		Content:      "Closing without triage.",
		ChangeStatus: &closed,
	})
	require.Equal(t, apperrors.CodeInvalidTransition, apperrors.CodeOf(err))
	require.Empty(t, tickets.replies)
}

func TestAddReplyRequiresStaff(t *testing.T) {
	tickets := newMemTicketRepo(&domain.Ticket{ID: "t1", CreatedBy: "user-1", Status: domain.TicketStatusWaitingHuman, Version: 1})
	svc := newTicketService(tickets, &recordingEnqueuer{}, &memAudit{})

	_, err := svc.AddReply(context.Background(), endUser(), "t1", service.ReplyInput{Content: "hello there"})
	require.Equal(t, apperrors.CodeForbidden, apperrors.CodeOf(err))
}

func TestAssignTicketMovesToHumanLane(t *testing.T) {
	tickets := newMemTicketRepo(&domain.Ticket{ID: "t1", CreatedBy: "user-1", Status: domain.TicketStatusTriaged, Version: 1})
	audit := &memAudit{}
	svc := newTicketService(tickets, &recordingEnqueuer{}, audit)

	ticket, err := svc.AssignTicket(context.Background(), agentUser(), "t1", "agent-2")
	require.NoError(t, err)
	require.Equal(t, domain.TicketStatusWaitingHuman, ticket.Status)
	require.Equal(t, "agent-2", *ticket.Assignee)

	assigned := audit.find(domain.ActionTicketAssigned)
	require.Len(t, assigned, 1)
	meta := assigned[0].Meta.(domain.TicketAssignedMeta)
	require.Equal(t, "agent-1", meta.AssignerID)
	require.Equal(t, "agent-2", meta.AssigneeID)
}

func TestRequeueTriage(t *testing.T) {
	tickets := newMemTicketRepo(
		&domain.Ticket{ID: "t1", CreatedBy: "user-1", Status: domain.TicketStatusWaitingHuman, Version: 1},
		&domain.Ticket{ID: "t2", CreatedBy: "user-1", Status: domain.TicketStatusClosed, Version: 1},
	)
	queue := &recordingEnqueuer{}
	svc := newTicketService(tickets, queue, &memAudit{})
	ctx := context.Background()

	handle, err := svc.RequeueTriage(ctx, agentUser(), "t1")
	require.NoError(t, err)
	require.Equal(t, "t1", handle.TicketID)
	require.NotEmpty(t, handle.TraceID)

	_, err = svc.RequeueTriage(ctx, agentUser(), "t2")
	require.Equal(t, apperrors.CodeInvalidTransition, apperrors.CodeOf(err))

	_, err = svc.RequeueTriage(ctx, endUser(), "t1")
	require.Equal(t, apperrors.CodeForbidden, apperrors.CodeOf(err))
}
