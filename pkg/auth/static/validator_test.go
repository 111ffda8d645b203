package static

import (
	"encoding/json"
	"testing"

	"github.com/osvaldoandrade/elqbulk/pkg/auth"
)

func TestStaticValidator(t *testing.T) {
	raw := json.RawMessage(`{"token":"t-1","subject":"s-1","email":"e@local","scopes":["elqbulk:submit"]}`)
	v, err := NewValidatorFromJSON(raw)
	if err != nil {
		t.Fatalf("NewValidatorFromJSON: %v", err)
	}

	claims, err := v.Validate("t-1")
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if claims.Subject != "s-1" {
		t.Fatalf("expected subject s-1, got %q", claims.Subject)
	}
	if claims.Email != "e@local" {
		t.Fatalf("expected email e@local, got %q", claims.Email)
	}
	if !claims.HasScope("elqbulk:submit") {
		t.Fatalf("expected scope present")
	}

	if _, err := v.Validate("wrong"); err == nil {
		t.Fatalf("expected validation error for wrong token")
	}
}

func TestStaticValidator_StringConfig(t *testing.T) {
	v, err := NewValidatorFromJSON(json.RawMessage(`"t-2"`))
	if err != nil {
		t.Fatalf("NewValidatorFromJSON: %v", err)
	}
	claims, err := v.Validate(" t-2 ")
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if claims.Subject != "static" {
		t.Fatalf("default subject = %q", claims.Subject)
	}
}

func TestStaticValidator_Errors(t *testing.T) {
	for _, raw := range []string{``, `{}`, `{"token":"  "}`, `{"token":`} {
		if _, err := NewValidatorFromJSON(json.RawMessage(raw)); err == nil {
			t.Errorf("expected error for config %q", raw)
		}
	}
}

func TestStaticRegister(t *testing.T) {
	reg := auth.NewRegistry()
	Register(reg)
	v, err := reg.New(auth.ProviderConfig{Type: "static", Config: map[string]any{"token": "abc"}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := v.Validate("abc"); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}
