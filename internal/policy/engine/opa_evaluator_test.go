package engine

import (
	"context"
	"errors"
	"testing"

	policydomain "blueprint-auth/internal/policy/domain"
	userdomain "blueprint-auth/internal/user/domain"
)

type mockUsers map[string]*userdomain.User

func (m mockUsers) GetByID(_ context.Context, id string) (*userdomain.User, error) {
	if u, ok := m[id]; ok {
		return u, nil
	}
	return nil, nil
}

type failingUsers struct{}

func (failingUsers) GetByID(context.Context, string) (*userdomain.User, error) {
	return nil, errors.New("db down")
}

// mockPolicyRepo implements PolicySource for tests.
type mockPolicyRepo struct {
	policies []*policydomain.Policy
	err      error
}

func (m *mockPolicyRepo) ListEnabled(context.Context) ([]*policydomain.Policy, error) {
	return m.policies, m.err
}

var testUsers = mockUsers{
	"active":   {ID: "active", Email: "a@corp.example", Status: userdomain.UserStatusActive, Role: userdomain.RoleUser},
	"disabled": {ID: "disabled", Email: "d@corp.example", Status: userdomain.UserStatusDisabled, Role: userdomain.RoleUser},
	"outsider": {ID: "outsider", Email: "o@other.example", Status: userdomain.UserStatusActive, Role: userdomain.RoleUser},
}

func newEvaluator(t *testing.T, policies PolicySource) *OPAEvaluator {
	t.Helper()
	e, err := NewOPAEvaluator(context.Background(), testUsers, policies, nil)
	if err != nil {
		t.Fatalf("NewOPAEvaluator: %v", err)
	}
	return e
}

func TestOPAEvaluator_HealthCheck(t *testing.T) {
	if err := newEvaluator(t, nil).HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck: %v", err)
	}
}

func TestOPAEvaluator_DefaultPolicy(t *testing.T) {
	e := newEvaluator(t, nil)
	tests := []struct {
		subject string
		want    bool
	}{
		{"active", true},
		{"disabled", false},
		{"missing", false},
	}
	for _, tt := range tests {
		t.Run(tt.subject, func(t *testing.T) {
			got, err := e.CanIssueTokens(context.Background(), tt.subject)
			if err != nil {
				t.Fatalf("CanIssueTokens: %v", err)
			}
			if got != tt.want {
				t.Errorf("CanIssueTokens(%q) = %v, want %v", tt.subject, got, tt.want)
			}
		})
	}
}

const corpOnlyPolicy = `package blueprint.issuance

default allow := false

allow if {
	input.user.exists
	input.user.email_domain == "corp.example"
}
`

func TestOPAEvaluator_CustomPolicy(t *testing.T) {
	e := newEvaluator(t, &mockPolicyRepo{policies: []*policydomain.Policy{
		{ID: "p1", Name: "corp-only", Rules: corpOnlyPolicy, Enabled: true},
		{ID: "p2", Name: "blank", Rules: "  ", Enabled: true},
	}})

	got, err := e.CanIssueTokens(context.Background(), "active")
	if err != nil || !got {
		t.Errorf("corp user: got %v, %v; want true", got, err)
	}
	got, err = e.CanIssueTokens(context.Background(), "outsider")
	if err != nil || got {
		t.Errorf("outsider: got %v, %v; want false", got, err)
	}
}

func TestOPAEvaluator_PolicyRepoErrorFallsBackToDefault(t *testing.T) {
	e := newEvaluator(t, &mockPolicyRepo{err: errors.New("db down")})
	got, err := e.CanIssueTokens(context.Background(), "outsider")
	if err != nil || !got {
		t.Errorf("got %v, %v; want default allow", got, err)
	}
}

func TestOPAEvaluator_InvalidPolicyFailsClosed(t *testing.T) {
	e := newEvaluator(t, &mockPolicyRepo{policies: []*policydomain.Policy{
		{ID: "p1", Name: "broken", Rules: "package blueprint.issuance\nallow if {", Enabled: true},
	}})
	got, err := e.CanIssueTokens(context.Background(), "active")
	if err == nil {
		t.Fatal("expected compile error")
	}
	if got {
		t.Error("broken policy must not allow issuance")
	}
}

func TestOPAEvaluator_UserLookupError(t *testing.T) {
	e, err := NewOPAEvaluator(context.Background(), failingUsers{}, nil, nil)
	if err != nil {
		t.Fatalf("NewOPAEvaluator: %v", err)
	}
	if _, err := e.CanIssueTokens(context.Background(), "active"); err == nil {
		t.Fatal("expected lookup error")
	}
}

func TestBuildInput(t *testing.T) {
	in := buildInput("active", testUsers["active"])
	u := in["user"].(map[string]any)
	if u["email_domain"] != "corp.example" || u["status"] != "active" || u["exists"] != true {
		t.Errorf("input = %v", u)
	}
	missing := buildInput("x", nil)["user"].(map[string]any)
	if missing["exists"] != false {
		t.Errorf("missing user input = %v", missing)
	}
}
