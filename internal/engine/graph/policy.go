// # internal/engine/graph/policy.go
package graph

import (
	"strings"

	"snapgraph/internal/core/errors"
)

// PolicyKind names a class of conflict resolved at build time.
type PolicyKind string

const (
	PolicyAddExistingVertex  PolicyKind = "add_existing_vertex"
	PolicyAddExistingEdge    PolicyKind = "add_existing_edge"
	PolicyInvalidChange      PolicyKind = "invalid_change"
	PolicyRequiredConversion PolicyKind = "required_conversion"
)

// Policy is one option of a PolicyKind.
type Policy string

const (
	PolicyError             Policy = "error"
	PolicyOverwrite         Policy = "overwrite"
	PolicyIgnore            Policy = "ignore"
	PolicyIgnoreAndLog      Policy = "ignore_and_log"
	PolicyIgnoreAndLogOnce  Policy = "ignore_and_log_once"
	PolicyConvert           Policy = "convert"
	PolicyConvertAndLog     Policy = "convert_and_log"
	PolicyConvertAndLogOnce Policy = "convert_and_log_once"
)

var policyKinds = []PolicyKind{
	PolicyAddExistingVertex,
	PolicyAddExistingEdge,
	PolicyInvalidChange,
	PolicyRequiredConversion,
}

var policyOptions = map[PolicyKind][]Policy{
	PolicyAddExistingVertex:  {PolicyError, PolicyOverwrite, PolicyIgnore, PolicyIgnoreAndLog, PolicyIgnoreAndLogOnce},
	PolicyAddExistingEdge:    {PolicyError, PolicyOverwrite, PolicyIgnore, PolicyIgnoreAndLog, PolicyIgnoreAndLogOnce},
	PolicyInvalidChange:      {PolicyError, PolicyIgnore, PolicyIgnoreAndLog, PolicyIgnoreAndLogOnce},
	PolicyRequiredConversion: {PolicyError, PolicyConvert, PolicyConvertAndLog, PolicyConvertAndLogOnce},
}

var policyDefaults = map[PolicyKind]Policy{
	PolicyAddExistingVertex:  PolicyError,
	PolicyAddExistingEdge:    PolicyError,
	PolicyInvalidChange:      PolicyError,
	PolicyRequiredConversion: PolicyConvert,
}

// PolicyKinds lists every kind in a stable order.
func PolicyKinds() []PolicyKind {
	return append([]PolicyKind(nil), policyKinds...)
}

// Options returns the closed option set of kind, or nil for an unknown kind.
func Options(kind PolicyKind) []string {
	opts := policyOptions[kind]
	if opts == nil {
		return nil
	}
	names := make([]string, len(opts))
	for i, p := range opts {
		names[i] = string(p)
	}
	return names
}

// ParsePolicy validates name against the options of kind.
func ParsePolicy(kind PolicyKind, name string) (Policy, error) {
	opts, ok := policyOptions[kind]
	if !ok {
		return "", errors.Newf(errors.CodeInvalidOption, "unknown policy kind %q", string(kind)).
			WithContext(errors.CtxPolicyKind, string(kind))
	}
	normalized := Policy(strings.ToLower(strings.TrimSpace(name)))
	for _, p := range opts {
		if p == normalized {
			return p, nil
		}
	}
	return "", errors.Newf(errors.CodeInvalidOption, "unknown policy %q for %s (options: %s)",
		name, kind, strings.Join(Options(kind), ", ")).
		WithContext(errors.CtxPolicyKind, string(kind)).
		WithContext(errors.CtxPolicy, name)
}

// PolicyRegistry holds the active policy of every kind.
type PolicyRegistry struct {
	values map[PolicyKind]Policy
}

func DefaultPolicies() PolicyRegistry {
	values := make(map[PolicyKind]Policy, len(policyDefaults))
	for k, v := range policyDefaults {
		values[k] = v
	}
	return PolicyRegistry{values: values}
}

// Set fails with INVALID_OPTION when name is not an option of kind.
func (r *PolicyRegistry) Set(kind PolicyKind, name string) error {
	p, err := ParsePolicy(kind, name)
	if err != nil {
		return err
	}
	if r.values == nil {
		*r = DefaultPolicies()
	}
	r.values[kind] = p
	return nil
}

func (r PolicyRegistry) Get(kind PolicyKind) Policy {
	if p, ok := r.values[kind]; ok {
		return p
	}
	return policyDefaults[kind]
}

func (r PolicyRegistry) Options(kind PolicyKind) []string { return Options(kind) }

func (r PolicyRegistry) Clone() PolicyRegistry {
	out := DefaultPolicies()
	for k, v := range r.values {
		out.values[k] = v
	}
	return out
}

// Map returns kind -> policy name for every kind.
func (r PolicyRegistry) Map() map[string]string {
	out := make(map[string]string, len(policyKinds))
	for _, k := range policyKinds {
		out[string(k)] = string(r.Get(k))
	}
	return out
}

// logs reports whether the policy emits a warning when it fires.
func (p Policy) logs() bool {
	switch p {
	case PolicyIgnoreAndLog, PolicyIgnoreAndLogOnce, PolicyConvertAndLog, PolicyConvertAndLogOnce:
		return true
	}
	return false
}

func (p Policy) once() bool {
	return p == PolicyIgnoreAndLogOnce || p == PolicyConvertAndLogOnce
}

func (p Policy) ignores() bool {
	return p == PolicyIgnore || p == PolicyIgnoreAndLog || p == PolicyIgnoreAndLogOnce
}
