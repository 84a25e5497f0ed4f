package util

import (
	"strings"
	"testing"
)

func TestRenderTemplate(t *testing.T) {
	got := RenderTemplate("Hi {name}! {name} turns {age} today.", map[string]string{
		"name": "Ann",
		"age":  "30",
	})
	if got != "Hi Ann! Ann turns 30 today." {
		t.Fatalf("render = %q", got)
	}
}

func TestRenderTemplateNoPlaceholders(t *testing.T) {
	body := "Just a plain message."
	if got := RenderTemplate(body, map[string]string{"name": "Ann"}); got != body {
		t.Fatalf("render = %q", got)
	}
}

func TestIDPrefixes(t *testing.T) {
	if id := NewSubscriberID(); !strings.HasPrefix(id, "sub_") {
		t.Fatalf("subscriber id = %q", id)
	}
	if id := NewTestMessageID(); !strings.HasPrefix(id, "test_") {
		t.Fatalf("test message id = %q", id)
	}
	if NewSubscriberID() == NewSubscriberID() {
		t.Fatalf("expected unique ids")
	}
}
