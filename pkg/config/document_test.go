// Copyright 2024-2026 Aiku AI

package config

import (
	"reflect"
	"testing"
)

func TestDocumentGetMissing(t *testing.T) {
	t.Parallel()
	doc := NewDocument()

	if got := doc.Get("a.b.c", "fallback"); got != "fallback" {
		t.Errorf("Get on empty document = %v, want fallback", got)
	}
	if doc.Has("a.b.c") {
		t.Error("Has on empty document should be false")
	}
}

func TestDocumentSetGet(t *testing.T) {
	t.Parallel()
	doc := NewDocument()

	doc.Set("homeserver.address", "https://example.com")
	if got := doc.GetString("homeserver.address", ""); got != "https://example.com" {
		t.Errorf("GetString = %q", got)
	}
	// Intermediate maps are materialized, so siblings land under the same
	// parent.
	doc.Set("homeserver.domain", "example.com")
	m := doc.GetMap("homeserver")
	if len(m) != 2 {
		t.Errorf("homeserver map = %v, want 2 entries", m)
	}
}

func TestDocumentSetReplacesScalarIntermediate(t *testing.T) {
	t.Parallel()
	doc := NewDocument()

	doc.Set("a", "scalar")
	doc.Set("a.b", 1)
	if got := doc.Get("a.b", nil); got != 1 {
		t.Errorf("a.b = %v, want 1", got)
	}
}

func TestDocumentDelete(t *testing.T) {
	t.Parallel()
	doc := NewDocument()

	doc.Set("bridge.message_formats.m_text", "$message")
	doc.Delete("bridge.message_formats")
	if doc.Has("bridge.message_formats") {
		t.Error("subtree should be gone after Delete")
	}
	if !doc.Has("bridge") {
		t.Error("parent should survive a child Delete")
	}
	// Deleting through a missing path is a no-op.
	doc.Delete("no.such.path")
}

func TestParseDocumentRoundTrip(t *testing.T) {
	t.Parallel()
	doc, err := ParseDocument([]byte("homeserver:\n  domain: example.com\n  verify_ssl: true\nlist:\n- a\n- b\n"))
	if err != nil {
		t.Fatalf("ParseDocument: %v", err)
	}
	if got := doc.GetString("homeserver.domain", ""); got != "example.com" {
		t.Errorf("domain = %q", got)
	}
	if !doc.GetBool("homeserver.verify_ssl", false) {
		t.Error("verify_ssl should parse as true")
	}
	if got := doc.GetStringList("list"); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("list = %v", got)
	}

	raw, err := doc.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	doc2, err := ParseDocument(raw)
	if err != nil {
		t.Fatalf("reparse: %v", err)
	}
	if got := doc2.GetString("homeserver.domain", ""); got != "example.com" {
		t.Errorf("domain after round trip = %q", got)
	}
}

func TestParseDocumentEmpty(t *testing.T) {
	t.Parallel()
	doc, err := ParseDocument(nil)
	if err != nil {
		t.Fatalf("ParseDocument(nil): %v", err)
	}
	if got := doc.Get("anything", "def"); got != "def" {
		t.Errorf("Get on empty input = %v", got)
	}
	doc.Set("x", 1)
}

func TestDocumentTypedGettersIgnoreWrongTypes(t *testing.T) {
	t.Parallel()
	doc := NewDocument()
	doc.Set("num", 42)

	if got := doc.GetString("num", "def"); got != "def" {
		t.Errorf("GetString on int = %q, want def", got)
	}
	if got := doc.GetBool("num", true); !got {
		t.Error("GetBool on int should return the default")
	}
	if got := doc.GetStringList("num"); got != nil {
		t.Errorf("GetStringList on int = %v, want nil", got)
	}
	if got := doc.GetMap("num"); got != nil {
		t.Errorf("GetMap on int = %v, want nil", got)
	}
}
