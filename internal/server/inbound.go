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

// channelPipelines maps chat channels to intake pipelines. Only the
// sop_qa pipeline is handled here; task-creation pipelines belong to the
// tracker integration.
var channelPipelines = map[string]string{
	"expenses":        "expense",
	"travel":          "travel",
	"vendor-requests": "vendor",
	"maintenance":     "maintenance",
	"ask-policy":      "sop_qa",
}

// routePipeline resolves the pipeline for a source channel. Unknown or
// empty channels fall back to the general pipeline.
func routePipeline(channel string) string {
	if channel == "" {
		return "general"
	}
	if pipeline, ok := channelPipelines[strings.ToLower(strings.TrimSpace(channel))]; ok {
		return pipeline
	}
	return "general"
}

// InboundHandler triages messages arriving from chat channels. Policy
// questions are answered under the inbound-triage threshold policy, which
// prefixes replies according to confidence.
type InboundHandler struct {
	retriever     queryRetriever
	answerer      answerGenerator
	audit         auditor
	outbound      dispatcher
	policy        kb.TierPolicy
	topK          int
	minSimilarity float64
	logger        *log.Logger
}

// NewInboundHandler wires the inbound endpoint. audit and outbound may be
// nil.
func NewInboundHandler(retriever queryRetriever, answerer answerGenerator, audit auditor, outbound dispatcher, topK int, minSimilarity float64, logger *log.Logger) (*InboundHandler, error) {
	policy, err := kb.PolicyByName(kb.PolicyInboundTriage)
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
		logger = log.New(log.Writer(), "[INBOUND] ", log.LstdFlags)
	}
	return &InboundHandler{
		retriever:     retriever,
		answerer:      answerer,
		audit:         audit,
		outbound:      outbound,
		policy:        policy,
		topK:          topK,
		minSimilarity: minSimilarity,
		logger:        logger,
	}, nil
}

// Register mounts the handler.
func (h *InboundHandler) Register(e *echo.Echo) {
	e.POST("/inbound", h.inbound)
}

func (h *InboundHandler) inbound(c echo.Context) error {
	var event InboundEvent
	if err := c.Bind(&event); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(event.Text) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "text is required")
	}

	ctx := c.Request().Context()
	pipeline := routePipeline(event.SourceChannel)

	if h.audit != nil {
		actor := "system"
		if user := firstNonEmpty(event.SenderUser, event.SourceUser); user != "" {
			actor = "user:" + user
		}
		if err := h.audit.LogAction(ctx, actor, "inbound_received", map[string]interface{}{
			"pipeline": pipeline,
			"source":   event.Source,
		}); err != nil {
			h.logger.Printf("audit failed: %v", err)
		}
	}

	if pipeline != "sop_qa" {
		return echo.NewHTTPError(http.StatusNotImplemented, "pipeline not handled: "+pipeline)
	}

	start := time.Now()
	evidence := h.retriever.Retrieve(ctx, event.Text, h.topK, h.minSimilarity)
	telemetry.EvidenceRetrieved.Observe(float64(len(evidence)))
	result := h.answerer.Answer(ctx, event.Text, evidence)
	if result.Answer == kb.GenerationFallbackText {
		telemetry.GenerationFallbacks.Inc()
	}

	tier := h.policy.Classify(result.Confidence)
	message := h.policy.Prefix(tier) + result.Answer
	telemetry.QueryDuration.Observe(time.Since(start).Seconds())
	telemetry.QueriesTotal.WithLabelValues("inbound", string(tier)).Inc()

	h.reply(ctx, event, message)

	if h.audit != nil {
		if err := h.audit.LogAction(ctx, "ai:rag", "rag_answered", map[string]interface{}{
			"confidence": result.Confidence,
			"tier":       tier,
		}); err != nil {
			h.logger.Printf("audit failed: %v", err)
		}
	}

	return c.JSON(http.StatusOK, InboundResponse{Status: "answered", Pipeline: pipeline, Message: message})
}

func (h *InboundHandler) reply(ctx context.Context, event InboundEvent, message string) {
	if h.outbound == nil || !h.outbound.Enabled() {
		return
	}
	payload := map[string]interface{}{
		"action":        "send_slack_message",
		"channel":       event.SourceChannel,
		"thread_id":     event.ThreadID,
		"text":          message,
		"sender_user":   event.SenderUser,
		"receiver_user": event.ReceiverUser,
	}
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

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
