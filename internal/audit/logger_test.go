package audit

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"blueprint-auth/internal/audit/domain"
)

// mockAuditRepo implements the audit repository interface for tests.
type mockAuditRepo struct {
	mu        sync.Mutex
	entries   []*domain.Event
	createErr error
}

func (m *mockAuditRepo) Create(_ context.Context, e *domain.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	m.entries = append(m.entries, e)
	return nil
}

func (m *mockAuditRepo) ListBySubject(context.Context, string, int32, int32) ([]*domain.Event, error) {
	return nil, nil
}

func (m *mockAuditRepo) DeleteOlderThan(context.Context, time.Time) (int64, error) {
	return 0, nil
}

type chanEmitter chan *domain.Event

func (c chanEmitter) Emit(_ context.Context, e *domain.Event) error {
	c <- e
	return nil
}

func quietLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewTextHandler(buf, nil))
}

func TestLogger_LogEvent_Success(t *testing.T) {
	repo := &mockAuditRepo{}
	emitted := make(chanEmitter, 1)
	var buf bytes.Buffer
	logger := NewLogger(repo, emitted, quietLogger(&buf), func(context.Context) string { return "192.168.1.1" })
	fixed := time.Date(2026, 4, 1, 8, 0, 0, 0, time.FixedZone("X", 3600))
	logger.now = func() time.Time { return fixed }

	logger.LogEvent(context.Background(), "user-1", domain.ActionLoginSuccess, domain.ResourceAuthentication,
		map[string]string{"method": "password"})

	if len(repo.entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(repo.entries))
	}
	entry := repo.entries[0]
	if entry.SubjectID != "user-1" {
		t.Errorf("subject_id = %q, want %q", entry.SubjectID, "user-1")
	}
	if entry.Action != domain.ActionLoginSuccess || entry.Resource != domain.ResourceAuthentication {
		t.Errorf("action/resource = %q/%q", entry.Action, entry.Resource)
	}
	if entry.IP != "192.168.1.1" {
		t.Errorf("ip = %q, want %q", entry.IP, "192.168.1.1")
	}
	if entry.Metadata["method"] != "password" {
		t.Errorf("metadata = %v", entry.Metadata)
	}
	if entry.ID == "" {
		t.Error("entry ID should be set")
	}
	if !entry.CreatedAt.Equal(fixed) || entry.CreatedAt.Location() != time.UTC {
		t.Errorf("created_at = %v, want %v in UTC", entry.CreatedAt, fixed)
	}

	select {
	case got := <-emitted:
		if got != entry {
			t.Errorf("emitted event differs from persisted one")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("event was not emitted")
	}
	if !strings.Contains(buf.String(), "action=login_success") {
		t.Errorf("slog output missing action: %s", buf.String())
	}
}

func TestLogger_LogEvent_RedactsSensitiveMetadata(t *testing.T) {
	repo := &mockAuditRepo{}
	var buf bytes.Buffer
	logger := NewLogger(repo, nil, quietLogger(&buf), nil)

	logger.LogEvent(context.Background(), "", domain.ActionLoginFailure, domain.ResourceAuthentication,
		map[string]string{"identifier": "a@b.com", "password": "hunter2", "refresh_token": "x"})

	meta := repo.entries[0].Metadata
	if meta["identifier"] != "a@b.com" {
		t.Errorf("identifier = %q", meta["identifier"])
	}
	if meta["password"] != "[redacted]" || meta["refresh_token"] != "[redacted]" {
		t.Errorf("sensitive metadata not redacted: %v", meta)
	}
	if !strings.Contains(buf.String(), "level=WARN") {
		t.Errorf("login failure should log at warn: %s", buf.String())
	}
}

func TestLogger_LogEvent_IPFromContext(t *testing.T) {
	repo := &mockAuditRepo{}
	logger := NewLogger(repo, nil, quietLogger(&bytes.Buffer{}), nil)

	logger.LogEvent(WithClientIP(context.Background(), "10.1.2.3"), "u", domain.ActionLogout, domain.ResourceSession, nil)
	logger.LogEvent(context.Background(), "u", domain.ActionLogout, domain.ResourceSession, nil)

	if repo.entries[0].IP != "10.1.2.3" {
		t.Errorf("ip = %q, want 10.1.2.3", repo.entries[0].IP)
	}
	if repo.entries[1].IP != "unknown" {
		t.Errorf("ip = %q, want unknown", repo.entries[1].IP)
	}
	if repo.entries[0].Metadata != nil {
		t.Errorf("empty metadata should stay nil, got %v", repo.entries[0].Metadata)
	}
}

func TestLogger_LogEvent_RepositoryError(t *testing.T) {
	repo := &mockAuditRepo{createErr: errors.New("db down")}
	var buf bytes.Buffer
	logger := NewLogger(repo, nil, quietLogger(&buf), nil)

	// Should not panic; error is logged.
	logger.LogEvent(context.Background(), "u", domain.ActionLogout, domain.ResourceSession, nil)
	if !strings.Contains(buf.String(), "failed to persist") {
		t.Errorf("expected persist failure in log output: %s", buf.String())
	}
}

func TestLogger_LogEvent_NilRepoAndNilLogger(t *testing.T) {
	logger := NewLogger(nil, nil, nil, nil)
	logger.LogEvent(context.Background(), "u", domain.ActionLogout, domain.ResourceSession, nil)

	var nilLogger *Logger
	nilLogger.LogEvent(context.Background(), "u", domain.ActionLogout, domain.ResourceSession, nil)
}
