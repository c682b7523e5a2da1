package postgres

import (
	"context"
	"testing"
	"time"
)

func TestNewStoreRequiresDSN(t *testing.T) {
	if _, err := NewStore(context.Background(), ""); err == nil {
		t.Fatalf("expected error for empty dsn")
	}
}

func TestColumnHelpers(t *testing.T) {
	if got := numeric(""); got != "0" {
		t.Fatalf("numeric empty = %q", got)
	}
	if got := numeric("-42"); got != "-42" {
		t.Fatalf("numeric = %q", got)
	}
	if nullable("") != nil {
		t.Fatalf("empty string should be NULL")
	}
	if v := nullable("settling"); v == nil || *v != "settling" {
		t.Fatalf("nullable lost value")
	}

	want := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if got := parseTime("2024-01-01T00:00:00Z"); !got.Equal(want) {
		t.Fatalf("parseTime = %v", got)
	}
}
