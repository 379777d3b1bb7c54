package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"auth-gateway/internal/identity/domain"
)

func TestOPAMergePolicy_HealthCheck(t *testing.T) {
	e, err := NewOPAMergePolicy(context.Background(), "", nil)
	if err != nil {
		t.Fatalf("NewOPAMergePolicy: %v", err)
	}
	if err := e.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck: %v", err)
	}
}

func TestOPAMergePolicy_DefaultPolicy(t *testing.T) {
	e, err := NewOPAMergePolicy(context.Background(), "", nil)
	if err != nil {
		t.Fatalf("NewOPAMergePolicy: %v", err)
	}
	allowed := MergeInput{Model: domain.ModelJoined, MergeByEmail: true, Provider: "github", Email: "a@x.io", EmailVerified: true}
	tests := []struct {
		name   string
		mutate func(*MergeInput)
		want   bool
	}{
		{"verified email in joined model", func(*MergeInput) {}, true},
		{"unverified email", func(in *MergeInput) { in.EmailVerified = false }, false},
		{"merge disabled", func(in *MergeInput) { in.MergeByEmail = false }, false},
		{"partitioned model", func(in *MergeInput) { in.Model = domain.ModelPartitioned }, false},
		{"empty email", func(in *MergeInput) { in.Email = "" }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := allowed
			tt.mutate(&in)
			got, err := e.AllowMerge(context.Background(), in)
			if err != nil {
				t.Fatalf("AllowMerge: %v", err)
			}
			if got != tt.want {
				t.Errorf("AllowMerge = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestOPAMergePolicy_CustomModule(t *testing.T) {
	module := `package gateway.merge

default allow := false

allow if input.provider == "corp-sso"
`
	path := filepath.Join(t.TempDir(), "merge.rego")
	if err := os.WriteFile(path, []byte(module), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	src, err := LoadPolicyFile(path)
	if err != nil {
		t.Fatalf("LoadPolicyFile: %v", err)
	}
	e, err := NewOPAMergePolicy(context.Background(), src, nil)
	if err != nil {
		t.Fatalf("NewOPAMergePolicy: %v", err)
	}
	if ok, _ := e.AllowMerge(context.Background(), MergeInput{Provider: "corp-sso"}); !ok {
		t.Error("custom policy should allow corp-sso")
	}
	if ok, _ := e.AllowMerge(context.Background(), MergeInput{Provider: "github", EmailVerified: true}); ok {
		t.Error("custom policy should deny github")
	}
}

func TestNewOPAMergePolicy_InvalidModule(t *testing.T) {
	if _, err := NewOPAMergePolicy(context.Background(), "package broken\n\nallow if {", nil); err == nil {
		t.Fatal("invalid Rego should fail to compile")
	}
}

func TestLoadPolicyFile(t *testing.T) {
	src, err := LoadPolicyFile("")
	if err != nil || src != defaultRegoPolicy {
		t.Errorf("empty path should load the built-in policy")
	}
	if _, err := LoadPolicyFile(filepath.Join(t.TempDir(), "missing.rego")); err == nil {
		t.Error("missing file should fail")
	}
}

func TestStaticMergePolicy(t *testing.T) {
	if ok, _ := StaticMergePolicy(true).AllowMerge(context.Background(), MergeInput{}); !ok {
		t.Error("StaticMergePolicy(true) should allow")
	}
}
