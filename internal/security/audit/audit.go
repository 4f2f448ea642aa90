package audit

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/notarydesk/authcore/internal/observability/requestid"
)

// Actions recorded in the audit trail.
const (
	ActionLogin           = "login"
	ActionRegister        = "register"
	ActionPasswordChanged = "password_change"
	ActionProfileUpdated  = "profile_update"
	ActionDeactivated     = "deactivate"
	ActionAccessDenied    = "access_denied"
	ActionBootstrap       = "bootstrap"
	ActionAdminRequest    = "admin_request"
)

type Logger struct {
	logger *slog.Logger
	now    func() time.Time
}

func NewLogger(logger *slog.Logger) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logger{logger: logger.With(slog.String("component", "audit")), now: time.Now}
}

// LogAction writes one audit record. actor is the acting user id, 0 when the
// caller is anonymous. Never pass credentials in details.
func (al *Logger) LogAction(ctx context.Context, actor int64, action, resource, resourceID, status, details string) {
	if al == nil {
		return
	}
	al.logger.Info("audit",
		slog.String("action", action),
		slog.String("resource", resource),
		slog.String("resource_id", resourceID),
		slog.Int64("actor_id", actor),
		slog.String("status", status),
		slog.String("details", details),
		slog.String("request_id", requestid.FromContext(ctx)),
		slog.Time("timestamp", al.now()),
	)
}

func (al *Logger) LogLogin(ctx context.Context, userID int64, username, status string) {
	al.LogAction(ctx, userID, ActionLogin, "session", username, status, "")
}

func (al *Logger) LogUserChange(ctx context.Context, actor int64, action string, targetID int64, status string) {
	al.LogAction(ctx, actor, action, "user", strconv.FormatInt(targetID, 10), status, "")
}

func (al *Logger) LogDenied(ctx context.Context, actor int64, reason string) {
	al.LogAction(ctx, actor, ActionAccessDenied, "api", "", "denied", reason)
}
