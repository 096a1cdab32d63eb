package spill

import (
	"strings"
	"testing"
)

func TestApplyNoOpBelowThreshold(t *testing.T) {
	s := &Spiller{Threshold: 15000}
	in := map[string]any{"msg": "hello"}
	out, err := s.Apply(in)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	m, ok := out.(map[string]any)
	if !ok || m["msg"] != "hello" {
		t.Fatalf("expected unchanged value, got %#v", out)
	}
}

func TestApplySpillsOverThreshold(t *testing.T) {
	s := &Spiller{Threshold: 100}
	big := strings.Repeat("a", 500)
	in := map[string]any{"msg": big}

	out, err := s.Apply(in)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	m := out.(map[string]any)
	msg, ok := m["msg"].(string)
	if !ok {
		t.Fatalf("expected string, got %#v", m["msg"])
	}
	if !strings.Contains(msg, "<content_written_to_file:") {
		t.Fatalf("expected file reference in preview, got %q", msg)
	}
	if len(msg) >= len(big) {
		t.Fatalf("expected preview shorter than original")
	}
}

func TestApplyIsIdempotent(t *testing.T) {
	s := &Spiller{Threshold: 100}
	big := strings.Repeat("b", 500)
	in := map[string]any{"msg": big}

	once, err := s.Apply(in)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	twice, err := s.Apply(once)
	if err != nil {
		t.Fatalf("Apply (second pass): %v", err)
	}

	onceMsg := once.(map[string]any)["msg"].(string)
	twiceMsg := twice.(map[string]any)["msg"].(string)
	if onceMsg != twiceMsg {
		t.Fatalf("spill(spill(x)) != spill(x):\n%q\nvs\n%q", onceMsg, twiceMsg)
	}
}

func TestApplyRecursesIntoLists(t *testing.T) {
	s := &Spiller{Threshold: 10}
	in := map[string]any{
		"items": []any{"short", strings.Repeat("c", 50)},
	}
	out, err := s.Apply(in)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	items := out.(map[string]any)["items"].([]any)
	if items[0] != "short" {
		t.Fatalf("expected untouched short string, got %v", items[0])
	}
	if !strings.Contains(items[1].(string), "<content_written_to_file:") {
		t.Fatalf("expected spilled long string in list, got %v", items[1])
	}
}
