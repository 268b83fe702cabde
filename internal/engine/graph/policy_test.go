package graph

import (
	"testing"

	"snapgraph/internal/core/errors"
)

func TestPolicyRegistry_Defaults(t *testing.T) {
	r := DefaultPolicies()
	want := map[PolicyKind]Policy{
		PolicyAddExistingVertex:  PolicyError,
		PolicyAddExistingEdge:    PolicyError,
		PolicyInvalidChange:      PolicyError,
		PolicyRequiredConversion: PolicyConvert,
	}
	for kind, p := range want {
		if got := r.Get(kind); got != p {
			t.Errorf("%s: want %s, got %s", kind, p, got)
		}
	}

	var zero PolicyRegistry
	if zero.Get(PolicyRequiredConversion) != PolicyConvert {
		t.Error("zero registry should report defaults")
	}
}

func TestPolicyRegistry_Set(t *testing.T) {
	r := DefaultPolicies()
	if err := r.Set(PolicyAddExistingVertex, "Overwrite"); err != nil {
		t.Fatalf("set overwrite: %v", err)
	}
	if r.Get(PolicyAddExistingVertex) != PolicyOverwrite {
		t.Fatalf("expected overwrite, got %s", r.Get(PolicyAddExistingVertex))
	}

	err := r.Set(PolicyInvalidChange, "overwrite")
	if !errors.IsCode(err, errors.CodeInvalidOption) {
		t.Fatalf("overwrite is not an invalid_change option, got %v", err)
	}
	if v, ok := errors.ContextValue(err, errors.CtxPolicyKind); !ok || v != string(PolicyInvalidChange) {
		t.Errorf("expected policy_kind context, got %v", v)
	}
	if r.Get(PolicyInvalidChange) != PolicyError {
		t.Error("failed Set must not change the registry")
	}

	if err := r.Set("on_fire", "error"); !errors.IsCode(err, errors.CodeInvalidOption) {
		t.Fatalf("expected INVALID_OPTION for unknown kind, got %v", err)
	}
}

func TestPolicyRegistry_CloneIsIndependent(t *testing.T) {
	a := DefaultPolicies()
	b := a.Clone()
	if err := b.Set(PolicyRequiredConversion, "error"); err != nil {
		t.Fatal(err)
	}
	if a.Get(PolicyRequiredConversion) != PolicyConvert {
		t.Fatal("clone shares state with original")
	}
}

func TestOptions(t *testing.T) {
	if got := len(Options(PolicyAddExistingEdge)); got != 5 {
		t.Errorf("expected 5 add_existing_edge options, got %d", got)
	}
	if got := len(Options(PolicyRequiredConversion)); got != 4 {
		t.Errorf("expected 4 required_conversion options, got %d", got)
	}
	if Options("nope") != nil {
		t.Error("expected nil options for unknown kind")
	}
}
