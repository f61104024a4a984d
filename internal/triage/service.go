package triage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-triage/internal/classifier"
	"github.com/spec-kit/ticket-triage/internal/domain"
	"github.com/spec-kit/ticket-triage/internal/events"
	"github.com/spec-kit/ticket-triage/internal/observability"
	"github.com/spec-kit/ticket-triage/internal/repository"
	apperrors "github.com/spec-kit/ticket-triage/pkg/util"
)

// Classifier abstracts the external classification call.
type Classifier interface {
	Classify(ctx context.Context, ticket *domain.Ticket, traceID string) (*classifier.Result, error)
}

// AuditRecorder is the best-effort audit side channel. Record never returns
// an error; failures are logged and counted by the implementation.
type AuditRecorder interface {
	Record(ctx context.Context, ticketID, traceID string, actor domain.AuditActor, action domain.AuditAction, meta any)
}

// Service runs one triage attempt per job and fences tickets on permanent
// failure.
type Service struct {
	tickets     repository.TicketRepository
	suggestions repository.SuggestionRepository
	policies    repository.PolicyRepository
	classifier  Classifier
	audit       AuditRecorder
	dispatcher  events.Dispatcher
	logger      *zap.Logger
	metrics     *observability.Metrics
}

// Dependencies bundles collaborators for the triage service.
type Dependencies struct {
	TicketRepo     repository.TicketRepository
	SuggestionRepo repository.SuggestionRepository
	PolicyRepo     repository.PolicyRepository
	Classifier     Classifier
	Audit          AuditRecorder
	Dispatcher     events.Dispatcher
	Logger         *zap.Logger
	Metrics        *observability.Metrics
}

// NewService constructs the triage service.
func NewService(deps Dependencies) *Service {
	return &Service{
		tickets:     deps.TicketRepo,
		suggestions: deps.SuggestionRepo,
		policies:    deps.PolicyRepo,
		classifier:  deps.Classifier,
		audit:       deps.Audit,
		dispatcher:  deps.Dispatcher,
		logger:      deps.Logger,
		metrics:     deps.Metrics,
	}
}

// Process handles one job attempt: classify, persist the suggestion, decide
// against the current policy, and transition the ticket. Retryable errors
// bubble up to the queue's backoff loop.
func (s *Service) Process(ctx context.Context, job Job) error {
	logger := s.logger.With(
		zap.String("ticket_id", job.TicketID),
		zap.String("trace_id", job.TraceID),
		zap.Int("attempt", job.Attempt),
	)
	logger.Info("processing triage job")

	ticket, err := s.tickets.GetByID(ctx, job.TicketID)
	if err != nil {
		// Includes pgx.ErrNoRows: the creating transaction may not be
		// visible yet, so a missing ticket is retried like any store fault.
		return apperrors.NewPersistenceError(err)
	}

	// A human may have resolved or closed the ticket while the job sat in
	// the queue. That is a deliberate state, not a failure to retry.
	if !domain.CanTriage(ticket.Status) {
		return apperrors.NewInvalidTransition(string(ticket.Status), string(domain.TicketStatusTriaged))
	}

	s.audit.Record(ctx, ticket.ID, job.TraceID, domain.ActorSystem, domain.ActionTriageStarted,
		domain.TriageStartedMeta{TicketTitle: ticket.Title, Attempt: job.Attempt})

	result, err := s.classifier.Classify(ctx, ticket, job.TraceID)
	if err != nil {
		return err
	}

	s.audit.Record(ctx, ticket.ID, job.TraceID, domain.ActorAgent, domain.ActionCategoryClassified,
		domain.CategoryClassifiedMeta{PredictedCategory: result.PredictedCategory, Confidence: result.Confidence})
	s.audit.Record(ctx, ticket.ID, job.TraceID, domain.ActorAgent, domain.ActionKBRetrieved,
		domain.KBRetrievedMeta{ArticleIDs: result.ArticleIDs, Count: len(result.ArticleIDs)})
	s.audit.Record(ctx, ticket.ID, job.TraceID, domain.ActorAgent, domain.ActionDraftGenerated,
		domain.DraftGeneratedMeta{DraftLength: len(result.DraftReply)})

	// Policy is loaded fresh per job so threshold changes apply immediately.
	policy, err := s.policies.Get(ctx)
	if err != nil {
		return apperrors.NewPersistenceError(err)
	}
	decision := Decide(result, policy)

	suggestion := &domain.AgentSuggestion{
		TicketID:          ticket.ID,
		PredictedCategory: result.PredictedCategory,
		ArticleIDs:        result.ArticleIDs,
		DraftReply:        result.DraftReply,
		Confidence:        result.Confidence,
		AutoClosed:        decision.Disposition == DispositionAutoClose,
		ModelInfo:         result.ModelInfo,
	}
	if err := s.suggestions.Create(ctx, suggestion); err != nil {
		return apperrors.NewPersistenceError(err)
	}

	ticket.AgentSuggestionID = &suggestion.ID
	ticket.Status = domain.TicketStatusTriaged

	switch decision.Disposition {
	case DispositionAutoClose:
		if err := s.autoClose(ctx, ticket, suggestion, decision, job.TraceID); err != nil {
			return err
		}
	default:
		if err := s.assignToHuman(ctx, ticket, decision, job.TraceID); err != nil {
			return err
		}
	}

	s.metrics.Decision(string(decision.Disposition))
	logger.Info("triage completed",
		zap.String("disposition", string(decision.Disposition)),
		zap.Float64("confidence", decision.Confidence),
		zap.Float64("threshold", decision.Threshold),
	)
	return nil
}

// OnPermanentFailure fences the ticket after retry exhaustion so it is never
// left stuck: the end user sees a human-assignable ticket with an audit
// trail explaining why. Non-retryable failures leave ticket state alone.
func (s *Service) OnPermanentFailure(ctx context.Context, job Job, cause error) {
	attempts := job.Attempt + 1
	s.audit.Record(ctx, job.TicketID, job.TraceID, domain.ActorSystem, domain.ActionTriageFailed,
		domain.TriageFailedMeta{Error: cause.Error(), Code: apperrors.CodeOf(cause), Attempts: attempts})

	if !apperrors.IsRetryable(cause) {
		return
	}

	ticket, err := s.tickets.GetByID(ctx, job.TicketID)
	if err != nil {
		s.logger.Error("cannot fence ticket after triage failure",
			zap.String("ticket_id", job.TicketID), zap.Error(err))
		return
	}
	// The fence deliberately bypasses the transition table: a ticket stuck
	// in open because classification never succeeded must still land in a
	// human-actionable state. Only deliberately final states are left alone.
	if ticket.Status == domain.TicketStatusResolved || ticket.Status == domain.TicketStatusClosed {
		return
	}
	ticket.Status = domain.TicketStatusWaitingHuman
	if err := s.tickets.Update(ctx, ticket); err != nil {
		s.logger.Error("cannot fence ticket after triage failure",
			zap.String("ticket_id", job.TicketID), zap.Error(err))
		return
	}

	s.publishEvent(ctx, events.Event{
		Type:     events.EventTriageFailed,
		TicketID: job.TicketID,
		TraceID:  job.TraceID,
		Payload:  events.TriageFailedPayload{Error: cause.Error(), Attempts: attempts},
	})
}

func (s *Service) autoClose(ctx context.Context, ticket *domain.Ticket, suggestion *domain.AgentSuggestion, decision Decision, traceID string) error {
	now := time.Now()
	ticket.Status = domain.TicketStatusResolved
	ticket.ClosedAt = &now
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return apperrors.NewPersistenceError(err)
	}

	reply := &domain.Reply{
		TicketID: ticket.ID,
		Content:  suggestion.DraftReply,
		IsAgent:  true,
	}
	if err := s.tickets.AddReply(ctx, reply); err != nil {
		return apperrors.NewPersistenceError(err)
	}
	ticket.Replies = append(ticket.Replies, *reply)

	s.audit.Record(ctx, ticket.ID, traceID, domain.ActorSystem, domain.ActionAutoClosed,
		domain.AutoClosedMeta{
			Confidence:   decision.Confidence,
			Threshold:    decision.Threshold,
			SuggestionID: suggestion.ID,
		})
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketAutoClosed,
		TicketID: ticket.ID,
		TraceID:  traceID,
		Payload: events.TicketAutoClosedPayload{
			SuggestionID: suggestion.ID,
			Confidence:   decision.Confidence,
			Threshold:    decision.Threshold,
		},
	})
	return nil
}

func (s *Service) assignToHuman(ctx context.Context, ticket *domain.Ticket, decision Decision, traceID string) error {
	ticket.Status = domain.TicketStatusWaitingHuman
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return apperrors.NewPersistenceError(err)
	}

	s.audit.Record(ctx, ticket.ID, traceID, domain.ActorSystem, domain.ActionAssignedToHuman,
		domain.AssignedToHumanMeta{
			Confidence: decision.Confidence,
			Threshold:  decision.Threshold,
			Reason:     decision.Reason,
		})
	s.publishEvent(ctx, events.Event{
		Type:     events.EventAssignedToHuman,
		TicketID: ticket.ID,
		TraceID:  traceID,
		Payload: events.AssignedToHumanPayload{
			Confidence: decision.Confidence,
			Threshold:  decision.Threshold,
			Reason:     decision.Reason,
		},
	})
	return nil
}

func (s *Service) publishEvent(ctx context.Context, event events.Event) {
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
