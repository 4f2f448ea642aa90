package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/notarydesk/authcore/internal/observability/requestid"
)

func TestLogDeniedRecordsActorAndRequestID(t *testing.T) {
	var buf bytes.Buffer
	al := NewLogger(slog.New(slog.NewJSONHandler(&buf, nil)))

	ctx := requestid.With(context.Background(), "req-1")
	al.LogDenied(ctx, 42, "role user not in admin|superadmin")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("audit output is not json: %v (%s)", err, buf.String())
	}
	if rec["action"] != ActionAccessDenied || rec["status"] != "denied" {
		t.Fatalf("unexpected record: %v", rec)
	}
	if rec["actor_id"] != float64(42) || rec["request_id"] != "req-1" {
		t.Fatalf("missing actor or request id: %v", rec)
	}
}

func TestNilLoggerIsNoop(t *testing.T) {
	var al *Logger
	al.LogLogin(context.Background(), 1, "alice", "success")
}
