package mcp

import "testing"

func TestSplitNamespacedNameInjective(t *testing.T) {
	cases := []struct{ server, tool string }{
		{"srv", "echo"},
		{"weather", "lookup"},
		{"a", "b"},
	}
	for _, c := range cases {
		full := c.server + "_" + c.tool
		gotServer, gotTool, ok := SplitNamespacedName(full)
		if !ok {
			t.Fatalf("SplitNamespacedName(%q): expected ok", full)
		}
		if gotServer != c.server || gotTool != c.tool {
			t.Fatalf("SplitNamespacedName(%q) = (%q,%q), want (%q,%q)", full, gotServer, gotTool, c.server, c.tool)
		}
	}
}

func TestSplitNamespacedNameNoUnderscore(t *testing.T) {
	if _, _, ok := SplitNamespacedName("noUnderscoreHere"); ok {
		t.Fatalf("expected ok=false for a name with no underscore")
	}
}

func TestServerConfigValidateRejectsUnderscoreNames(t *testing.T) {
	cfg := &ServerConfig{Name: "weird_name", Command: "echo"}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for server name containing underscore")
	}
}

func TestServerConfigResolveTransportAmbiguous(t *testing.T) {
	cfg := &ServerConfig{Name: "srv", Command: "echo", URL: "http://localhost"}
	if _, err := cfg.ResolveTransport(); err == nil {
		t.Fatalf("expected error when both command and url are set without explicit transport")
	}
}

func TestServerConfigResolveTransportInfersStdio(t *testing.T) {
	cfg := &ServerConfig{Name: "srv", Command: "echo"}
	kind, err := cfg.ResolveTransport()
	if err != nil {
		t.Fatalf("ResolveTransport: %v", err)
	}
	if kind != TransportStdio {
		t.Fatalf("expected stdio, got %v", kind)
	}
}
