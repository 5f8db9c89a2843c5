// Package engine decides whether a subject may be issued tokens, using OPA Rego policies.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"

	policydomain "blueprint-auth/internal/policy/domain"
	userdomain "blueprint-auth/internal/user/domain"
)

const allowQuery = "data.blueprint.issuance.allow"

// DefaultRegoPolicy allows issuance to existing users that are not disabled.
const DefaultRegoPolicy = `package blueprint.issuance

default allow := false

allow if {
	input.user.exists
	input.user.status != "disabled"
}
`

// UserLookup loads the subject being issued tokens. Returns (nil, nil) when absent.
type UserLookup interface {
	GetByID(ctx context.Context, id string) (*userdomain.User, error)
}

// PolicySource lists operator policies. Optional.
type PolicySource interface {
	ListEnabled(ctx context.Context) ([]*policydomain.Policy, error)
}

// OPAEvaluator evaluates issuance policies. Operator modules share the
// blueprint.issuance package, so their allow rules are OR'ed.
type OPAEvaluator struct {
	users    UserLookup
	policies PolicySource
	logger   *slog.Logger
	fallback rego.PreparedEvalQuery
}

// NewOPAEvaluator compiles the default policy and returns an evaluator. policies may be nil.
func NewOPAEvaluator(ctx context.Context, users UserLookup, policies PolicySource, logger *slog.Logger) (*OPAEvaluator, error) {
	if logger == nil {
		logger = slog.Default()
	}
	fallback, err := prepare(ctx, []string{DefaultRegoPolicy})
	if err != nil {
		return nil, fmt.Errorf("compile default policy: %w", err)
	}
	return &OPAEvaluator{users: users, policies: policies, logger: logger, fallback: fallback}, nil
}

// HealthCheck verifies that the in-process Rego engine can evaluate the default policy.
func (e *OPAEvaluator) HealthCheck(ctx context.Context) error {
	_, err := evalAllow(ctx, e.fallback, buildInput("health", nil))
	return err
}

// CanIssueTokens reports whether subject may receive a new token pair. Operator
// policies replace the default when any are enabled; if they cannot be loaded the
// default applies. Evaluation errors are returned so issuance fails closed.
func (e *OPAEvaluator) CanIssueTokens(ctx context.Context, subject string) (bool, error) {
	user, err := e.users.GetByID(ctx, subject)
	if err != nil {
		return false, err
	}
	query := e.fallback
	if modules := e.loadModules(ctx); len(modules) > 0 {
		if query, err = prepare(ctx, modules); err != nil {
			return false, fmt.Errorf("compile issuance policies: %w", err)
		}
	}
	return evalAllow(ctx, query, buildInput(subject, user))
}

func (e *OPAEvaluator) loadModules(ctx context.Context) []string {
	if e.policies == nil {
		return nil
	}
	list, err := e.policies.ListEnabled(ctx)
	if err != nil {
		e.logger.WarnContext(ctx, "policy: failed to load issuance policies, using default", "error", err)
		return nil
	}
	var modules []string
	for _, p := range list {
		if p.Enabled && strings.TrimSpace(p.Rules) != "" {
			modules = append(modules, p.Rules)
		}
	}
	return modules
}

func buildInput(subject string, user *userdomain.User) map[string]any {
	u := map[string]any{
		"id":     subject,
		"exists": user != nil,
	}
	if user != nil {
		u["status"] = string(user.Status)
		u["role"] = string(user.Role)
		u["email_domain"] = ""
		if at := strings.LastIndex(user.Email, "@"); at >= 0 {
			u["email_domain"] = user.Email[at+1:]
		}
		u["has_phone"] = user.Phone != ""
	}
	return map[string]any{"user": u}
}

func prepare(ctx context.Context, policies []string) (rego.PreparedEvalQuery, error) {
	modules := make(map[string]string, len(policies))
	for i, p := range policies {
		modules[fmt.Sprintf("policy_%d.rego", i)] = p
	}
	compiler, err := ast.CompileModules(modules)
	if err != nil {
		return rego.PreparedEvalQuery{}, err
	}
	return rego.New(rego.Query(allowQuery), rego.Compiler(compiler)).PrepareForEval(ctx)
}

func evalAllow(ctx context.Context, query rego.PreparedEvalQuery, input map[string]any) (bool, error) {
	rs, err := query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return false, fmt.Errorf("evaluate issuance policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return false, nil
	}
	allow, _ := rs[0].Expressions[0].Value.(bool)
	return allow, nil
}
