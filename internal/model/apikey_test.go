package model

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestExpired(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	tests := []struct {
		name      string
		expiresAt *time.Time
		want      bool
	}{
		{"no expiry", nil, false},
		{"future expiry", &future, false},
		{"past expiry", &past, true},
	}
	for _, tt := range tests {
		k := APIKey{ExpiresAt: tt.expiresAt}
		if got := k.Expired(now); got != tt.want {
			t.Errorf("%s: Expired = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestUnrestricted(t *testing.T) {
	if !(&APIKey{AllowedEndpoints: EndpointsAll}).Unrestricted() {
		t.Error("wildcard scope should be unrestricted")
	}
	if (&APIKey{AllowedEndpoints: "/generate"}).Unrestricted() {
		t.Error("scoped key should not be unrestricted")
	}
}

// The hash must never appear in serialized credential metadata.
func TestKeyHashExcludedFromJSON(t *testing.T) {
	k := APIKey{
		KeyHash:   "deadbeef",
		KeyPrefix: "ai_abcdefghi",
		Name:      "serialized",
	}
	data, err := json.Marshal(k)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.Contains(string(data), "deadbeef") {
		t.Errorf("key hash leaked into JSON: %s", data)
	}
	if !strings.Contains(string(data), "ai_abcdefghi") {
		t.Errorf("prefix missing from JSON: %s", data)
	}
}
