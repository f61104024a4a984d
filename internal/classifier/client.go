package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-triage/internal/domain"
	"github.com/spec-kit/ticket-triage/internal/observability"
	apperrors "github.com/spec-kit/ticket-triage/pkg/util"
)

// Result is a successful classification outcome.
type Result struct {
	PredictedCategory domain.TicketCategory
	Confidence        float64
	ArticleIDs        []string
	DraftReply        string
	ModelInfo         domain.ModelInfo
	ProcessingTimeMs  int64
}

// Client calls the external classification service. It performs no retries;
// attempt counting and backoff belong to the triage queue so they stay
// centralized and auditable.
type Client struct {
	baseURL string
	httpc   *http.Client
	timeout time.Duration
	logger  *zap.Logger
	metrics *observability.Metrics
}

// NewClient builds a classification client with a bounded per-call timeout.
func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger, metrics *observability.Metrics) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: timeout},
		timeout: timeout,
		logger:  logger,
		metrics: metrics,
	}
}

type triageRequest struct {
	Ticket  ticketPayload `json:"ticket"`
	TraceID string        `json:"traceId"`
}

type ticketPayload struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

type triageResponse struct {
	Suggestion struct {
		PredictedCategory domain.TicketCategory `json:"predictedCategory"`
		ArticleIDs        []string              `json:"articleIds"`
		DraftReply        string                `json:"draftReply"`
		Confidence        float64               `json:"confidence"`
		ModelInfo         struct {
			Provider      string `json:"provider"`
			Model         string `json:"model"`
			PromptVersion string `json:"promptVersion"`
		} `json:"modelInfo"`
	} `json:"suggestion"`
	ProcessingTimeMs int64 `json:"processingTimeMs"`
}

// Classify sends the ticket to the external service and maps the response.
func (c *Client) Classify(ctx context.Context, ticket *domain.Ticket, traceID string) (*Result, error) {
	body, err := json.Marshal(triageRequest{
		Ticket: ticketPayload{
			ID:          ticket.ID,
			Title:       ticket.Title,
			Description: ticket.Description,
			Category:    string(ticket.Category),
		},
		TraceID: traceID,
	})
	if err != nil {
		return nil, apperrors.NewClassificationError("encode triage request", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/triage", bytes.NewReader(body))
	if err != nil {
		return nil, apperrors.NewClassificationError("build triage request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Trace-ID", traceID)

	start := time.Now()
	resp, err := c.httpc.Do(req)
	latency := time.Since(start)
	if c.metrics != nil {
		c.metrics.ClassifyLatency(latency)
	}
	if err != nil {
		if isTimeout(err) {
			return nil, apperrors.NewClassificationTimeout(err)
		}
		return nil, apperrors.NewClassificationError("classification request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, apperrors.NewClassificationError(
			fmt.Sprintf("classification service returned %d", resp.StatusCode),
			errors.New(strings.TrimSpace(string(snippet))),
		)
	}

	var parsed triageResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, apperrors.NewClassificationError("decode triage response", err)
	}
	if !domain.ValidCategory(parsed.Suggestion.PredictedCategory) {
		return nil, apperrors.NewClassificationError(
			fmt.Sprintf("unknown predicted category %q", parsed.Suggestion.PredictedCategory), nil)
	}
	if parsed.Suggestion.Confidence < 0 || parsed.Suggestion.Confidence > 1 {
		return nil, apperrors.NewClassificationError(
			fmt.Sprintf("confidence %f out of range", parsed.Suggestion.Confidence), nil)
	}

	c.logger.Debug("classification completed",
		zap.String("trace_id", traceID),
		zap.String("category", string(parsed.Suggestion.PredictedCategory)),
		zap.Float64("confidence", parsed.Suggestion.Confidence),
		zap.Duration("latency", latency),
	)

	return &Result{
		PredictedCategory: parsed.Suggestion.PredictedCategory,
		Confidence:        parsed.Suggestion.Confidence,
		ArticleIDs:        parsed.Suggestion.ArticleIDs,
		DraftReply:        parsed.Suggestion.DraftReply,
		ModelInfo: domain.ModelInfo{
			Provider:      parsed.Suggestion.ModelInfo.Provider,
			Model:         parsed.Suggestion.ModelInfo.Model,
			PromptVersion: parsed.Suggestion.ModelInfo.PromptVersion,
			LatencyMs:     latency.Milliseconds(),
		},
		ProcessingTimeMs: parsed.ProcessingTimeMs,
	}, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
