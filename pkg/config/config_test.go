package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/trustmesh/trustmesh/pkg/graphstore"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trustmesh.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadEmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Errorf("Addr = %q", cfg.Server.Addr)
	}
	if cfg.Engine.MaxDepth != 5 {
		t.Errorf("MaxDepth = %d", cfg.Engine.MaxDepth)
	}
	if cfg.Cache.Backend != "file" {
		t.Errorf("Cache.Backend = %q", cfg.Cache.Backend)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
[server]
addr = ":9090"

[engine]
max_depth = 2
fetch_timeout = "3s"
edge_kinds = ["depends_on", "contains"]

[graphstore]
url = "http://guac.internal:8085"

[[feeds]]
kind = "osv"
cache_ttl = "1h"

[[feeds]]
kind = "snyk"
token = "secret"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":9090" {
		t.Errorf("Addr = %q", cfg.Server.Addr)
	}
	if cfg.Engine.MaxDepth != 2 {
		t.Errorf("MaxDepth = %d", cfg.Engine.MaxDepth)
	}
	if cfg.Engine.FetchTimeout.Duration != 3*time.Second {
		t.Errorf("FetchTimeout = %v", cfg.Engine.FetchTimeout)
	}
	if len(cfg.Feeds) != 2 {
		t.Fatalf("feeds = %d", len(cfg.Feeds))
	}
	if cfg.Feeds[0].CacheTTL.Duration != time.Hour {
		t.Errorf("CacheTTL = %v", cfg.Feeds[0].CacheTTL)
	}

	opts := cfg.EngineOptions()
	if opts.MaxDepth != 2 {
		t.Errorf("opts.MaxDepth = %d", opts.MaxDepth)
	}
	want := []graphstore.EdgeKind{graphstore.EdgeKindDependsOn, graphstore.EdgeKindContains}
	if len(opts.EdgeKinds) != 2 || opts.EdgeKinds[0] != want[0] || opts.EdgeKinds[1] != want[1] {
		t.Errorf("EdgeKinds = %v", opts.EdgeKinds)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad store url", "[graphstore]\nurl = \"ftp://x\"\n"},
		{"unknown feed", "[[feeds]]\nkind = \"nvd\"\n"},
		{"snyk without token", "[[feeds]]\nkind = \"snyk\"\n"},
		{"unknown cache backend", "[cache]\nbackend = \"memcached\"\n"},
		{"redis without addr", "[cache]\nbackend = \"redis\"\n"},
		{"mongo without uri", "[sbom]\nbackend = \"mongo\"\n"},
		{"negative depth", "[engine]\nmax_depth = -1\n"},
		{"bad duration", "[engine]\nfetch_timeout = \"soon\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tt.content)); err == nil {
				t.Error("Load should reject this config")
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/trustmesh.toml"); err == nil {
		t.Error("Load should fail for a missing file")
	}
}
