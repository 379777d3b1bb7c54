package engine

import (
	"context"
	"fmt"
	"os"

	"github.com/open-policy-agent/opa/v1/rego"
	"go.uber.org/zap"

	"auth-gateway/internal/logger"
)

const mergeQuery = "data.gateway.merge.allow"

// Default merge policy: link only in the joined model, only when enabled, and
// only on an email the provider asserts it verified.
const defaultRegoPolicy = `package gateway.merge

default allow := false

allow if {
	input.model == "joined"
	input.merge_by_email
	input.profile.email_verified
	input.profile.email != ""
}
`

// OPAMergePolicy evaluates the merge decision with an OPA Rego module
// prepared once at construction.
type OPAMergePolicy struct {
	query  rego.PreparedEvalQuery
	logger *zap.Logger
}

// LoadPolicyFile reads a Rego module from path. An empty path yields the built-in policy.
func LoadPolicyFile(path string) (string, error) {
	if path == "" {
		return defaultRegoPolicy, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read merge policy: %w", err)
	}
	return string(b), nil
}

// NewOPAMergePolicy compiles module (the built-in policy when empty). The
// module must define data.gateway.merge.allow.
func NewOPAMergePolicy(ctx context.Context, module string, log *zap.Logger) (*OPAMergePolicy, error) {
	if module == "" {
		module = defaultRegoPolicy
	}
	q, err := rego.New(
		rego.Query(mergeQuery),
		rego.Module("merge.rego", module),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile merge policy: %w", err)
	}
	return &OPAMergePolicy{query: q, logger: logger.OrNop(log)}, nil
}

func buildInput(in MergeInput) map[string]any {
	return map[string]any{
		"model":          string(in.Model),
		"merge_by_email": in.MergeByEmail,
		"provider":       in.Provider,
		"profile": map[string]any{
			"email":          in.Email,
			"email_verified": in.EmailVerified,
		},
	}
}

// AllowMerge evaluates the policy. An evaluation failure denies the merge and is returned.
func (e *OPAMergePolicy) AllowMerge(ctx context.Context, in MergeInput) (bool, error) {
	rs, err := e.query.Eval(ctx, rego.EvalInput(buildInput(in)))
	if err != nil {
		e.logger.Warn("policy: merge evaluation failed, denying", zap.Error(err))
		return false, fmt.Errorf("eval merge policy: %w", err)
	}
	return rs.Allowed(), nil
}

// HealthCheck evaluates the prepared policy against a minimal input.
func (e *OPAMergePolicy) HealthCheck(ctx context.Context) error {
	rs, err := e.query.Eval(ctx, rego.EvalInput(buildInput(MergeInput{})))
	if err != nil {
		return fmt.Errorf("eval merge policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return fmt.Errorf("policy query returned no result")
	}
	return nil
}
