package auth

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
)

type mockValidator struct {
	want string
}

func (m *mockValidator) Validate(token string) (*Claims, error) {
	if token == m.want {
		return &Claims{Subject: "test-user"}, nil
	}
	return nil, errors.New("invalid token")
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	reg.Register("mock", func(config json.RawMessage) (Validator, error) {
		var cfg struct {
			Token string `json:"token"`
		}
		if err := json.Unmarshal(config, &cfg); err != nil {
			return nil, err
		}
		return &mockValidator{want: cfg.Token}, nil
	})

	if got := reg.Providers(); !reflect.DeepEqual(got, []string{"mock"}) {
		t.Fatalf("Providers() = %v", got)
	}

	validator, err := reg.New(ProviderConfig{Type: "mock", Config: map[string]any{"token": "valid"}})
	if err != nil {
		t.Fatalf("failed to create validator: %v", err)
	}

	claims, err := validator.Validate("valid")
	if err != nil {
		t.Fatalf("expected valid token: %v", err)
	}
	if claims.Principal() != "test-user" {
		t.Errorf("expected principal 'test-user', got '%s'", claims.Principal())
	}

	if _, err = validator.Validate("invalid"); err == nil {
		t.Error("expected error for invalid token")
	}
}

func TestRegistryUnknownProvider(t *testing.T) {
	if _, err := NewRegistry().New(ProviderConfig{Type: "unknown"}); err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestProviderConfigEnabled(t *testing.T) {
	cases := map[string]bool{"": false, "none": false, "static": true, "jwks": true}
	for typ, want := range cases {
		if got := (ProviderConfig{Type: typ}).Enabled(); got != want {
			t.Errorf("Enabled(%q) = %v, want %v", typ, got, want)
		}
	}
}

func TestClaimsPrincipal(t *testing.T) {
	var nilClaims *Claims
	if nilClaims.Principal() != "" || nilClaims.HasScope("x") {
		t.Fatalf("nil claims must be empty")
	}
	c := &Claims{Subject: "sub", Email: "ops@example.com", Scopes: []string{"elqbulk:submit"}}
	if c.Principal() != "ops@example.com" {
		t.Errorf("Principal() = %q", c.Principal())
	}
	if !c.HasScope("elqbulk:submit") || c.HasScope("elqbulk:admin") {
		t.Errorf("HasScope mismatch for %v", c.Scopes)
	}
}
