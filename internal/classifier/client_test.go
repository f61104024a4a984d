package classifier_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-triage/internal/classifier"
	"github.com/spec-kit/ticket-triage/internal/domain"
	apperrors "github.com/spec-kit/ticket-triage/pkg/util"
)

func sampleTicket() *domain.Ticket {
	return &domain.Ticket{
		ID:          "ticket-1",
		Title:       "Charged twice this month",
		Description: "My card shows two identical charges.",
		Category:    domain.CategoryOther,
	}
}

func TestClassifySuccess(t *testing.T) {
	var gotTrace string
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/triage", r.URL.Path)
		gotTrace = r.Header.Get("X-Trace-ID")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"suggestion": {
				"predictedCategory": "billing",
				"articleIds": ["kb-1", "kb-2"],
				"draftReply": "A refund is on the way.",
				"confidence": 0.92,
				"modelInfo": {"provider": "gemini", "model": "gemini-pro", "promptVersion": "v1.0"}
			},
			"processingTimeMs": 1200
		}`))
	}))
	defer server.Close()

	client := classifier.NewClient(server.URL, time.Second, zap.NewNop(), nil)
	result, err := client.Classify(context.Background(), sampleTicket(), "trace-1")
	require.NoError(t, err)

	require.Equal(t, "trace-1", gotTrace)
	require.Equal(t, "trace-1", gotBody["traceId"])
	ticketBody := gotBody["ticket"].(map[string]any)
	require.Equal(t, "ticket-1", ticketBody["id"])

	require.Equal(t, domain.CategoryBilling, result.PredictedCategory)
	require.InDelta(t, 0.92, result.Confidence, 1e-9)
	require.Equal(t, []string{"kb-1", "kb-2"}, result.ArticleIDs)
	require.Equal(t, "A refund is on the way.", result.DraftReply)
	require.Equal(t, "gemini", result.ModelInfo.Provider)
	require.Equal(t, int64(1200), result.ProcessingTimeMs)
}

func TestClassifyTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))
	defer server.Close()

	client := classifier.NewClient(server.URL, 50*time.Millisecond, zap.NewNop(), nil)
	_, err := client.Classify(context.Background(), sampleTicket(), "trace-1")
	require.Error(t, err)
	require.Equal(t, apperrors.CodeClassificationTimeout, apperrors.CodeOf(err))
	require.True(t, apperrors.IsRetryable(err))
}

func TestClassifyServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model unavailable", http.StatusBadGateway)
	}))
	defer server.Close()

	client := classifier.NewClient(server.URL, time.Second, zap.NewNop(), nil)
	_, err := client.Classify(context.Background(), sampleTicket(), "trace-1")
	require.Error(t, err)
	require.Equal(t, apperrors.CodeClassificationError, apperrors.CodeOf(err))
}

func TestClassifyRejectsUnknownCategory(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"suggestion": {"predictedCategory": "spam", "confidence": 0.9}}`))
	}))
	defer server.Close()

	client := classifier.NewClient(server.URL, time.Second, zap.NewNop(), nil)
	_, err := client.Classify(context.Background(), sampleTicket(), "trace-1")
	require.Error(t, err)
	require.Equal(t, apperrors.CodeClassificationError, apperrors.CodeOf(err))
}

func TestClassifyRejectsOutOfRangeConfidence(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"suggestion": {"predictedCategory": "billing", "confidence": 1.7}}`))
	}))
	defer server.Close()

	client := classifier.NewClient(server.URL, time.Second, zap.NewNop(), nil)
	_, err := client.Classify(context.Background(), sampleTicket(), "trace-1")
	require.Error(t, err)
	require.Equal(t, apperrors.CodeClassificationError, apperrors.CodeOf(err))
}
