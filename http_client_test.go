package main

import (
	"testing"
	"time"
)

func TestConfigureExternalHTTPClient(t *testing.T) {
	original := externalHTTPClient.Timeout
	t.Cleanup(func() { externalHTTPClient.Timeout = original })

	if got := ConfigureExternalHTTPClient(0); got != defaultExternalHTTPTimeout {
		t.Fatalf("zero seconds should keep the default, got %s", got)
	}
	if got := ConfigureExternalHTTPClient(30); got != 30*time.Second {
		t.Fatalf("timeout = %s, want 30s", got)
	}
	if externalHTTPClient.Timeout != 30*time.Second {
		t.Fatalf("client timeout = %s, want 30s", externalHTTPClient.Timeout)
	}
}
