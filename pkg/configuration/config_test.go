package configuration

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseInto(t *testing.T) {
	settings := make(map[string]map[string]string)
	input := `
; comment
# another comment
orphan = ignored

[Interpreter]
max_steps = 500
strict_blocks=true

[ Server ]
listen_address = 127.0.0.1:9000 = odd
`
	if err := parseInto(settings, strings.NewReader(input)); err != nil {
		t.Fatalf("parseInto failed: %v", err)
	}

	if got := settings["Interpreter"]["max_steps"]; got != "500" {
		t.Errorf("max_steps = %q, want 500", got)
	}
	if got := settings["Interpreter"]["strict_blocks"]; got != "true" {
		t.Errorf("strict_blocks = %q, want true", got)
	}
	if got := settings["Server"]["listen_address"]; got != "127.0.0.1:9000 = odd" {
		t.Errorf("listen_address = %q", got)
	}
	if _, exists := settings[""]; exists {
		t.Error("keys before the first section should be ignored")
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stuck.cfg")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got := cfg.settings["Storage"]["database_path"]; got != "stuck.db" {
		t.Errorf("database_path = %q, want stuck.db", got)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("Load should not create the configuration file")
	}
}

func TestLoadLocalOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stuck.cfg")
	if err := os.WriteFile(path, []byte("[Interpreter]\nmax_steps = 100\nmax_call_depth = 8\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, localFile), []byte("[Interpreter]\nmax_steps = 200\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got := cfg.settings["Interpreter"]["max_steps"]; got != "200" {
		t.Errorf("max_steps = %q, want the local value 200", got)
	}
	if got := cfg.settings["Interpreter"]["max_call_depth"]; got != "8" {
		t.Errorf("max_call_depth = %q, want 8", got)
	}
	if got := cfg.settings["Interpreter"]["strict_blocks"]; got != "false" {
		t.Errorf("strict_blocks = %q, want the default false", got)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "stuck.cfg")
	cfg := defaults(path)
	cfg.settings["Custom"] = map[string]string{"key": "value"}

	if err := cfg.saveToFile(); err != nil {
		t.Fatalf("saveToFile failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	text := string(data)
	if strings.Index(text, "[Interpreter]") > strings.Index(text, "[Debug]") {
		t.Error("sections should be written in their fixed order")
	}
	if strings.Index(text, "[Debug]") > strings.Index(text, "[Custom]") {
		t.Error("unknown sections should follow the known ones")
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got := loaded.settings["Custom"]["key"]; got != "value" {
		t.Errorf("Custom.key = %q, want value", got)
	}
}

func TestGlobalAccessors(t *testing.T) {
	SetString("Test", "count", "42")
	SetString("Test", "ratio", "0.5")
	SetString("Test", "flag", "yes-ish")
	SetString("Test", "wait", "1500ms")
	SetString("Test", "origins", " http://a , ,http://b ")

	if got := GetInt("Test", "count", 0); got != 42 {
		t.Errorf("GetInt = %d, want 42", got)
	}
	if got := GetInt64("Test", "count", 0); got != 42 {
		t.Errorf("GetInt64 = %d, want 42", got)
	}
	if got := GetFloat("Test", "ratio", 0); got != 0.5 {
		t.Errorf("GetFloat = %v, want 0.5", got)
	}
	if got := GetBool("Test", "flag", true); got != true {
		t.Error("malformed bool should return the default")
	}
	if got := GetDuration("Test", "wait", 0); got != 1500*time.Millisecond {
		t.Errorf("GetDuration = %v, want 1.5s", got)
	}
	if got := GetList("Test", "origins"); len(got) != 2 || got[0] != "http://a" || got[1] != "http://b" {
		t.Errorf("GetList = %v", got)
	}
	if got := GetString("Test", "missing", "fallback"); got != "fallback" {
		t.Errorf("GetString = %q, want fallback", got)
	}

	section := GetSection("Test")
	section["count"] = "changed"
	if GetString("Test", "count", "") != "42" {
		t.Error("GetSection should return a copy")
	}
}
