package dirgate

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// AuditEvent is one structured record of an authentication or gated-action
// outcome. Before and After carry redacted state snapshots for mutations;
// credential material never appears in either.
type AuditEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	Action    string            `json:"action"`
	Actor     string            `json:"actor,omitempty"`
	ActorRole string            `json:"actor_role,omitempty"`
	Target    string            `json:"target,omitempty"`
	Success   bool              `json:"success"`
	Error     string            `json:"error,omitempty"`
	Before    string            `json:"before,omitempty"`
	After     string            `json:"after,omitempty"`
	IP        string            `json:"ip,omitempty"`
	UserAgent string            `json:"user_agent,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// AuditSink receives [AuditEvent] values from the engine's audit
// dispatcher. Emission is best-effort: a failing sink never fails the
// operation that produced the event.
type AuditSink interface {
	Emit(ctx context.Context, event AuditEvent)
}

// NoOpSink is an [AuditSink] that silently discards all events.
type NoOpSink struct{}

// Emit describes the emit operation and its observable behavior.
func (NoOpSink) Emit(context.Context, AuditEvent) {}

// ChannelSink is a buffered channel-based [AuditSink].
type ChannelSink struct {
	events chan AuditEvent
}

// NewChannelSink creates a [ChannelSink] with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{
		events: make(chan AuditEvent, buffer),
	}
}

// Emit describes the emit operation and its observable behavior.
func (s *ChannelSink) Emit(ctx context.Context, event AuditEvent) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

// Events describes the events operation and its observable behavior.
func (s *ChannelSink) Events() <-chan AuditEvent {
	return s.events
}

// JSONWriterSink writes one JSON object per line to an [io.Writer].
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

// NewJSONWriterSink creates a [JSONWriterSink] that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{
		writer: w,
	}
}

// Emit describes the emit operation and its observable behavior.
func (s *JSONWriterSink) Emit(ctx context.Context, event AuditEvent) {
	if s == nil || s.writer == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, _ = s.writer.Write(data)
	_, _ = s.writer.Write([]byte("\n"))
}

// Audit action names emitted by the engine.
const (
	auditActionLogin          = "auth.login"
	auditActionChallenge      = "auth.otp_challenge"
	auditActionOTPSetup       = "auth.otp_setup"
	auditActionOTPRebind      = "auth.otp_rebind"
	auditActionOTPVerify      = "auth.otp_verify"
	auditActionLogout         = "auth.logout"
	auditActionStepUpConfirm  = "stepup.confirm"
	auditActionStepUpDenied   = "stepup.denied"
	auditActionPasswordReset  = "admin.password_reset"
	auditActionUserStatus     = "admin.user_status"
	auditActionUserCreate     = "admin.user_create"
	auditActionUserUpdate     = "admin.user_update"
	auditActionUserDelete     = "admin.user_delete"
	auditActionUserMove       = "admin.user_move"
	auditActionOUCreate       = "admin.ou_create"
	auditActionOUUpdate       = "admin.ou_update"
	auditActionOUDelete       = "admin.ou_delete"
	auditActionConfigWrite    = "admin.config_write"
	auditActionConfigRollback = "admin.config_rollback"
)
