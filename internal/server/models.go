package server

import "github.com/sopdeskhq/sopdesk/internal/kb"

// AskRequest is the body of POST /ask.
type AskRequest struct {
	Query         string `json:"query"`
	UserID        string `json:"user_id,omitempty"`
	SourceChannel string `json:"source_channel,omitempty"`
	ThreadID      string `json:"thread_id,omitempty"`
}

// AskResponse is the reply of POST /ask. AnswerTitle, AnswerBullets and
// AnswerSource are a structural parse of the answer text for callers that
// render it.
type AskResponse struct {
	Answer        string        `json:"answer"`
	AnswerTitle   string        `json:"answer_title,omitempty"`
	AnswerBullets []string      `json:"answer_bullets"`
	AnswerSource  string        `json:"answer_source,omitempty"`
	Citations     []kb.Citation `json:"citations"`
	Confidence    float64       `json:"confidence"`
	Tier          kb.Tier       `json:"tier"`
}

// InboundEvent is the body of POST /inbound, one message arriving from a
// chat channel.
type InboundEvent struct {
	Source        string `json:"source"`
	SourceChannel string `json:"source_channel,omitempty"`
	SourceUser    string `json:"source_user,omitempty"`
	SenderUser    string `json:"sender_user,omitempty"`
	ReceiverUser  string `json:"receiver_user,omitempty"`
	ThreadID      string `json:"thread_id,omitempty"`
	Text          string `json:"text"`
}

// InboundResponse is the reply of POST /inbound.
type InboundResponse struct {
	Status   string `json:"status"`
	Pipeline string `json:"pipeline"`
	Message  string `json:"message"`
}
