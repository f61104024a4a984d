package triage_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-triage/internal/classifier"
	"github.com/spec-kit/ticket-triage/internal/domain"
	"github.com/spec-kit/ticket-triage/internal/triage"
	apperrors "github.com/spec-kit/ticket-triage/pkg/util"
)

// startPipeline wires a real queue over the memory broker to the triage
// service, mirroring the production composition in miniature.
func startPipeline(t *testing.T, svc *triage.Service) (*triage.Queue, func()) {
	t.Helper()
	broker := triage.NewMemoryBroker(16)
	queue := triage.NewQueue(triage.QueueOptions{
		Broker:    broker,
		Handler:   svc.Process,
		OnFailure: svc.OnPermanentFailure,
		Retry:     fastRetry(3),
		Workers:   2,
		Logger:    zap.NewNop(),
	})
	ctx, cancel := context.WithCancel(context.Background())
	queue.Start(ctx)
	return queue, func() {
		cancel()
		_ = broker.Close()
		queue.Wait()
	}
}

func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestPipelineAutoClose(t *testing.T) {
	tickets := newFakeTicketRepo(openTicket())
	suggestions := &fakeSuggestionRepo{}
	audit := &recordingAudit{}
	svc := newTriageService(tickets, suggestions, domain.DefaultPolicy(), &stubClassifier{result: &classifier.Result{
		PredictedCategory: domain.CategoryBilling,
		Confidence:        0.92,
		DraftReply:        "A refund is on the way.",
	}}, audit)

	queue, stop := startPipeline(t, svc)
	defer stop()

	_, err := queue.Enqueue(context.Background(), "ticket-1", "trace-1")
	require.NoError(t, err)

	waitUntil(t, "job completion", func() bool { return len(queue.RecentCompleted()) == 1 })
	require.Equal(t, domain.TicketStatusResolved, tickets.stored("ticket-1").Status)
	require.Len(t, audit.find(domain.ActionAutoClosed), 1)
	require.Len(t, tickets.replies, 1)
}

func TestPipelineAssignToHuman(t *testing.T) {
	tickets := newFakeTicketRepo(openTicket())
	audit := &recordingAudit{}
	svc := newTriageService(tickets, &fakeSuggestionRepo{}, domain.DefaultPolicy(), &stubClassifier{result: &classifier.Result{
		PredictedCategory: domain.CategoryBilling,
		Confidence:        0.60,
		DraftReply:        "draft",
	}}, audit)

	queue, stop := startPipeline(t, svc)
	defer stop()

	_, err := queue.Enqueue(context.Background(), "ticket-1", "trace-1")
	require.NoError(t, err)

	waitUntil(t, "job completion", func() bool { return len(queue.RecentCompleted()) == 1 })
	require.Equal(t, domain.TicketStatusWaitingHuman, tickets.stored("ticket-1").Status)
	require.Len(t, audit.find(domain.ActionAssignedToHuman), 1)
	require.Empty(t, tickets.replies)
	require.Empty(t, audit.find(domain.ActionTriageFailed))
}

func TestPipelineExhaustionFencesTicket(t *testing.T) {
	tickets := newFakeTicketRepo(openTicket())
	audit := &recordingAudit{}
	svc := newTriageService(tickets, &fakeSuggestionRepo{}, domain.DefaultPolicy(),
		&stubClassifier{err: apperrors.NewClassificationTimeout(errors.New("deadline"))}, audit)

	queue, stop := startPipeline(t, svc)
	defer stop()

	_, err := queue.Enqueue(context.Background(), "ticket-1", "trace-1")
	require.NoError(t, err)

	// The fence is the last step of permanent failure handling, so the
	// audit trail and failed history are settled once it lands.
	waitUntil(t, "ticket fence", func() bool {
		return tickets.stored("ticket-1").Status == domain.TicketStatusWaitingHuman
	})

	failures := audit.find(domain.ActionTriageFailed)
	require.Len(t, failures, 1)
	require.Equal(t, 3, failures[0].Meta.(domain.TriageFailedMeta).Attempts)
	// One TRIAGE_STARTED per attempt, all on the same trace.
	started := audit.find(domain.ActionTriageStarted)
	require.Len(t, started, 3)
	for _, record := range started {
		require.Equal(t, "trace-1", record.TraceID)
	}
	require.Len(t, queue.RecentFailed(), 1)
}
