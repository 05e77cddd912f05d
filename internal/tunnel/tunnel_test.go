package tunnel

import (
	"context"
	"os"
	"testing"
)

func TestNewFallsBackToEnvVar(t *testing.T) {
	os.Setenv(AuthEnvVar, "env-token")
	defer os.Unsetenv(AuthEnvVar)

	b := New("", nil)
	if b.authToken != "env-token" {
		t.Fatalf("expected token from env var, got %q", b.authToken)
	}
}

func TestNewPrefersExplicitToken(t *testing.T) {
	os.Setenv(AuthEnvVar, "env-token")
	defer os.Unsetenv(AuthEnvVar)

	b := New("explicit-token", nil)
	if b.authToken != "explicit-token" {
		t.Fatalf("expected explicit token, got %q", b.authToken)
	}
}

func TestOpenFailsWithoutAuthToken(t *testing.T) {
	os.Unsetenv(AuthEnvVar)
	b := New("", nil)
	if _, err := b.Open(context.Background(), 8080); err == nil {
		t.Fatal("expected error when no auth token is configured")
	}
}

func TestCloseUntrackedURL(t *testing.T) {
	b := New("token", nil)
	if err := b.Close("https://nope.ngrok.io"); err == nil {
		t.Fatal("expected error closing an untracked URL")
	}
}

func TestCheckReportsTrackedState(t *testing.T) {
	b := New("token", nil)
	if b.Check("https://anything.ngrok.io") {
		t.Fatal("expected false for an unopened tunnel")
	}
}
