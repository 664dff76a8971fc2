package server

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sopdeskhq/sopdesk/internal/kb"
	"github.com/sopdeskhq/sopdesk/internal/telemetry"
)

// queryRetriever abstracts the hybrid retriever.
type queryRetriever interface {
	Retrieve(ctx context.Context, query string, k int, minSimilarity float64) []kb.Evidence
}

// answerGenerator abstracts answer generation over retrieved evidence.
type answerGenerator interface {
	Answer(ctx context.Context, query string, evidence []kb.Evidence) kb.AnswerResult
}

// auditor records audit rows; failures on the query path are non-fatal.
type auditor interface {
	LogAction(ctx context.Context, actor, action string, details map[string]interface{}) error
}

// dispatcher delivers reply messages to the outbound webhook.
type dispatcher interface {
	Enabled() bool
	Post(ctx context.Context, payload map[string]interface{}) error
}

// AskHandler serves direct policy questions.
type AskHandler struct {
	retriever     queryRetriever
	answerer      answerGenerator
	audit         auditor
	outbound      dispatcher
	cache         *AnswerCache
	policy        kb.TierPolicy
	topK          int
	minSimilarity float64
	logger        *log.Logger
}

// NewAskHandler wires the ask endpoint. audit, outbound and cache may be
// nil.
func NewAskHandler(retriever queryRetriever, answerer answerGenerator, audit auditor, outbound dispatcher, cache *AnswerCache, topK int, minSimilarity float64, logger *log.Logger) (*AskHandler, error) {
	policy, err := kb.PolicyByName(kb.PolicyDirectQuestion)
	if err != nil {
		return nil, err
	}
	if topK <= 0 {
		topK = kb.DefaultTopK
	}
	if minSimilarity < 0 {
		minSimilarity = kb.DefaultMinSimilarity
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[ASK] ", log.LstdFlags)
	}
	return &AskHandler{
		retriever:     retriever,
		answerer:      answerer,
		audit:         audit,
		outbound:      outbound,
		cache:         cache,
		policy:        policy,
		topK:          topK,
		minSimilarity: minSimilarity,
		logger:        logger,
	}, nil
}

// Register mounts the handler.
func (h *AskHandler) Register(e *echo.Echo) {
	e.POST("/ask", h.ask)
}

func (h *AskHandler) ask(c echo.Context) error {
	var req AskRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Query) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query is required")
	}

	ctx := c.Request().Context()
	start := time.Now()
	resp, cached := h.cache.Get(ctx, req.Query)
	if !cached {
		resp = h.answerQuery(ctx, req.Query)
		h.cache.Set(ctx, req.Query, resp)
	}
	telemetry.QueryDuration.Observe(time.Since(start).Seconds())
	telemetry.QueriesTotal.WithLabelValues("ask", string(resp.Tier)).Inc()

	if h.audit != nil {
		if err := h.audit.LogAction(ctx, "ai:rag", "rag_answered", map[string]interface{}{
			"confidence": resp.Confidence,
			"tier":       resp.Tier,
			"user_id":    req.UserID,
			"cached":     cached,
		}); err != nil {
			h.logger.Printf("audit failed: %v", err)
		}
	}

	if h.outbound != nil && h.outbound.Enabled() {
		if req.SourceChannel != "" && req.ThreadID != "" {
			h.dispatch(ctx, map[string]interface{}{
				"action":    "send_slack_message",
				"channel":   req.SourceChannel,
				"thread_id": req.ThreadID,
				"text":      resp.Answer,
			})
		}
		if req.UserID != "" {
			h.dispatch(ctx, map[string]interface{}{
				"action":  "send_slack_dm",
				"user_id": req.UserID,
				"text":    resp.Answer,
			})
		}
	}

	return c.JSON(http.StatusOK, resp)
}

// answerQuery runs the full pipeline: retrieval, generation, tier
// classification and answer formatting.
func (h *AskHandler) answerQuery(ctx context.Context, query string) AskResponse {
	evidence := h.retriever.Retrieve(ctx, query, h.topK, h.minSimilarity)
	telemetry.EvidenceRetrieved.Observe(float64(len(evidence)))

	result := h.answerer.Answer(ctx, query, evidence)
	if result.Answer == kb.GenerationFallbackText {
		telemetry.GenerationFallbacks.Inc()
	}

	title, bullets, source := formatAnswer(result.Answer)
	return AskResponse{
		Answer:        result.Answer,
		AnswerTitle:   title,
		AnswerBullets: bullets,
		AnswerSource:  source,
		Citations:     result.Citations,
		Confidence:    result.Confidence,
		Tier:          h.policy.Classify(result.Confidence),
	}
}

func (h *AskHandler) dispatch(ctx context.Context, payload map[string]interface{}) {
	if err := h.outbound.Post(ctx, payload); err != nil {
		h.logger.Printf("outbound dispatch failed: %v", err)
		return
	}
	if h.audit != nil {
		if err := h.audit.LogAction(ctx, "system", "outbound_sent", map[string]interface{}{
			"action":  payload["action"],
			"channel": payload["channel"],
		}); err != nil {
			h.logger.Printf("audit failed: %v", err)
		}
	}
}

// formatAnswer parses a generated answer into title, bullet and source
// parts: first non-empty line is the title, "- " lines are bullets and a
// line starting with "Source:" is the source attribution.
func formatAnswer(answer string) (title string, bullets []string, source string) {
	var lines []string
	for _, line := range strings.Split(answer, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			lines = append(lines, trimmed)
		}
	}
	if len(lines) == 0 {
		return "", nil, ""
	}
	title = lines[0]
	for _, line := range lines[1:] {
		if strings.HasPrefix(strings.ToLower(line), "source:") {
			source = line
			continue
		}
		if strings.HasPrefix(line, "- ") {
			bullets = append(bullets, strings.TrimPrefix(line, "- "))
		}
	}
	return title, bullets, source
}
