package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestDomainError(t *testing.T) {
	t.Run("New", func(t *testing.T) {
		err := New(CodeNotFound, "resource not found")
		if err.Error() != "[NOT_FOUND] resource not found" {
			t.Errorf("expected [NOT_FOUND] resource not found, got %s", err.Error())
		}
	})

	t.Run("Wrap", func(t *testing.T) {
		original := errors.New("original error")
		err := Wrap(original, CodeInternal, "internal failure")
		expected := "[INTERNAL_ERROR] internal failure: original error"
		if err.Error() != expected {
			t.Errorf("expected %s, got %s", expected, err.Error())
		}
	})

	t.Run("ContextIsSortedInMessage", func(t *testing.T) {
		err := Newf(CodePolicyViolation, "vertex %d already exists", 5).
			WithContext(CtxPolicyKind, "add_existing_vertex").
			WithContext(CtxElementID, 5)
		expected := "[POLICY_VIOLATION] vertex 5 already exists {element_id=5 policy_kind=add_existing_vertex}"
		if err.Error() != expected {
			t.Errorf("expected %s, got %s", expected, err.Error())
		}
	})

	t.Run("IsCode", func(t *testing.T) {
		err := New(CodeValidationError, "invalid input")
		if !IsCode(err, CodeValidationError) {
			t.Error("expected IsCode to return true for CodeValidationError")
		}
		if IsCode(err, CodeNotFound) {
			t.Error("expected IsCode to return false for CodeNotFound")
		}
	})

	t.Run("IsCodeWithWrapped", func(t *testing.T) {
		original := errors.New("original error")
		err := Wrap(original, CodeInternal, "internal failure")
		if !IsCode(err, CodeInternal) {
			t.Error("expected IsCode to return true for wrapped CodeInternal")
		}
	})

	t.Run("IsCodeWalksNestedDomainErrors", func(t *testing.T) {
		inner := New(CodeDuplicateElement, "vertex exists")
		outer := fmt.Errorf("build: %w", Wrap(inner, CodePolicyViolation, "add_existing_vertex=error"))
		if !IsCode(outer, CodePolicyViolation) {
			t.Error("expected outer code to match")
		}
		if !IsCode(outer, CodeDuplicateElement) {
			t.Error("expected inner code to match")
		}
		if CodeOf(outer) != CodePolicyViolation {
			t.Errorf("expected CodeOf to report outermost code, got %s", CodeOf(outer))
		}
	})

	t.Run("AddContextOnPlainError", func(t *testing.T) {
		err := AddContext(errors.New("boom"), CtxOperation, "build")
		if !IsCode(err, CodeInternal) {
			t.Error("expected plain errors to be wrapped as internal")
		}
		v, ok := ContextValue(err, CtxOperation)
		if !ok || v != "build" {
			t.Errorf("expected operation context, got %v (%v)", v, ok)
		}
	})

	t.Run("ContextValueSearchesChain", func(t *testing.T) {
		inner := Newf(CodeDuplicateElement, "exists").WithContext(CtxElementID, "a")
		outer := Wrap(inner, CodePolicyViolation, "violation")
		v, ok := ContextValue(outer, CtxElementID)
		if !ok || v != "a" {
			t.Errorf("expected element id from inner error, got %v (%v)", v, ok)
		}
	})
}
