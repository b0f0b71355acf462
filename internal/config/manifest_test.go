package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeManifest(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "engine.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	return path
}

func TestLoadEngineManifest(t *testing.T) {
	path := writeManifest(t, `
command: dct-mcp-server
args: ["--stdio", "--verbose"]
env:
  DCT_API_KEY: secret
dir: /opt/engine
auto_initialize: true
`)
	m, err := LoadEngineManifest(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if m.Command != "dct-mcp-server" || len(m.Args) != 2 || m.Dir != "/opt/engine" {
		t.Fatalf("unexpected manifest %+v", m)
	}
	if m.AutoInitialize == nil || !*m.AutoInitialize {
		t.Fatal("auto_initialize not parsed")
	}

	var cfg Config
	cfg.EngineConfigPath = path
	if err := cfg.Finalize(); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if cfg.EngineCommand != "dct-mcp-server" || !cfg.AutoInitialize {
		t.Fatalf("manifest not applied: %+v", cfg)
	}
	if len(cfg.EngineEnv) != 1 || cfg.EngineEnv[0] != "DCT_API_KEY=secret" {
		t.Fatalf("env not applied: %v", cfg.EngineEnv)
	}
}

func TestLoadEngineManifestRequiresCommand(t *testing.T) {
	path := writeManifest(t, "args: [x]\n")
	if _, err := LoadEngineManifest(path); err == nil {
		t.Fatal("manifest without command accepted")
	}
}

func TestFinalizeSplitsRawLists(t *testing.T) {
	cfg := Config{
		engineArgsRaw:     "--stdio --log debug",
		engineEnvRaw:      "A=1, B=2",
		allowedOriginsRaw: "https://a.example,https://b.example",
	}
	if err := cfg.Finalize(); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if len(cfg.EngineArgs) != 3 || cfg.EngineArgs[0] != "--stdio" {
		t.Fatalf("args split wrong: %v", cfg.EngineArgs)
	}
	if len(cfg.EngineEnv) != 2 || cfg.EngineEnv[1] != "B=2" {
		t.Fatalf("env split wrong: %v", cfg.EngineEnv)
	}
	if len(cfg.AllowedOrigins) != 2 {
		t.Fatalf("origins split wrong: %v", cfg.AllowedOrigins)
	}
}
