package loader

import (
	"errors"
	"io/fs"
	"strings"
	"testing"
)

// MemFS is an in-memory file system for testing.
type MemFS struct {
	files map[string][]byte
}

func NewMemFS() *MemFS {
	return &MemFS{files: make(map[string][]byte)}
}

func (m *MemFS) AddFile(path, content string) {
	m.files[path] = []byte(content)
}

func (m *MemFS) ReadFile(path string) ([]byte, error) {
	data, ok := m.files[path]
	if !ok {
		return nil, fs.ErrNotExist
	}
	return data, nil
}

func TestFormatFor(t *testing.T) {
	tests := []struct {
		path string
		want Format
	}{
		{"/etc/notepad.toml", FormatTOML},
		{"notepad.yaml", FormatYAML},
		{"notepad.YML", FormatYAML},
		{"noext", FormatTOML},
	}
	for _, tt := range tests {
		if got := FormatFor(tt.path); got != tt.want {
			t.Errorf("FormatFor(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestFileLoader_TOML(t *testing.T) {
	memfs := NewMemFS()
	memfs.AddFile("/notepad.toml", `
[history]
maxEntries = 80
quietPeriod = "250ms"

[editor]
theme = "light"
`)

	config, err := NewFileLoaderWithFS(memfs, "/notepad.toml").Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	history, ok := config["history"].(map[string]any)
	if !ok {
		t.Fatal("expected history to be a map")
	}
	if history["maxEntries"] != int64(80) {
		t.Errorf("maxEntries = %v (%T), want 80", history["maxEntries"], history["maxEntries"])
	}
	if history["quietPeriod"] != "250ms" {
		t.Errorf("quietPeriod = %v, want 250ms", history["quietPeriod"])
	}
}

func TestFileLoader_YAML(t *testing.T) {
	memfs := NewMemFS()
	memfs.AddFile("/notepad.yaml", `
store:
  driver: postgres
  dsn: "postgres://localhost/notepad"
editor:
  fontSize: lg
`)

	config, err := NewFileLoaderWithFS(memfs, "/notepad.yaml").Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	store, ok := config["store"].(map[string]any)
	if !ok {
		t.Fatalf("expected store to be a map, got %T", config["store"])
	}
	if store["driver"] != "postgres" {
		t.Errorf("driver = %v, want postgres", store["driver"])
	}
}

func TestFileLoader_Missing(t *testing.T) {
	config, err := NewFileLoaderWithFS(NewMemFS(), "/missing.toml").Load()
	if err != nil {
		t.Fatalf("expected no error for missing file, got %v", err)
	}
	if config != nil {
		t.Error("expected nil config for missing file")
	}
}

func TestFileLoader_Invalid(t *testing.T) {
	memfs := NewMemFS()
	memfs.AddFile("/bad.toml", "[history\nmaxEntries = 1\n")
	memfs.AddFile("/bad.yaml", "store: [unclosed\n")

	for _, path := range []string{"/bad.toml", "/bad.yaml"} {
		_, err := NewFileLoaderWithFS(memfs, path).Load()
		var perr *ParseError
		if !errors.As(err, &perr) {
			t.Fatalf("%s: err = %v, want *ParseError", path, err)
		}
		if perr.Path != path {
			t.Errorf("Path = %q, want %q", perr.Path, path)
		}
	}
}

func TestLoadFromReader_Empty(t *testing.T) {
	config, err := LoadFromReader(strings.NewReader(""), FormatYAML)
	if err != nil {
		t.Fatalf("LoadFromReader failed: %v", err)
	}
	if config == nil || len(config) != 0 {
		t.Errorf("config = %v, want empty map", config)
	}
}

func TestDeepMerge(t *testing.T) {
	dst := map[string]any{
		"history": map[string]any{"maxEntries": 100, "quietPeriod": "500ms"},
		"server":  map[string]any{"addr": ":1"},
	}
	src := map[string]any{
		"history": map[string]any{"maxEntries": 20},
		"server":  "replaced",
	}

	out := DeepMerge(dst, src)

	history := out["history"].(map[string]any)
	if history["maxEntries"] != 20 || history["quietPeriod"] != "500ms" {
		t.Errorf("history = %v", history)
	}
	if out["server"] != "replaced" {
		t.Errorf("server = %v", out["server"])
	}
	if got := DeepMerge(nil, nil); got == nil {
		t.Error("DeepMerge(nil, nil) returned nil")
	}
}

func TestEnvLoader_Load(t *testing.T) {
	l := NewEnvLoader("NOTEPAD_")
	l.environ = func() []string {
		return []string{
			"NOTEPAD_LOG_LEVEL=debug",
			"NOTEPAD_THEME=light",
			"NOTEPAD_STORE_DRIVER=postgres",
			"NOTEPAD_HISTORY_TAB_MAX_ENTRIES=30",
			"NOTEPAD_QUIET_PERIOD=1s",
			"HOME=/root",
		}
	}

	config, err := l.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	checks := map[string]any{
		"logging.level":         "debug",
		"editor.theme":          "light",
		"store.driver":          "postgres",
		"history.tabMaxEntries": int64(30),
		"history.quietPeriod":   "1s",
	}
	for path, want := range checks {
		got, ok := getByPath(config, path)
		if !ok || got != want {
			t.Errorf("%s = %v (%T), want %v", path, got, got, want)
		}
	}
	if _, ok := config["home"]; ok {
		t.Error("unprefixed variable leaked into config")
	}
}

func TestEnvLoader_envToPath(t *testing.T) {
	l := NewEnvLoader("NOTEPAD_")
	tests := []struct {
		env  string
		want string
	}{
		{"NOTEPAD_STORE_DSN", "store.dsn"},
		{"NOTEPAD_SERVER_ADDR", "server.addr"},
		{"NOTEPAD_HISTORY_TAB_MAX_ENTRIES", "history.tabMaxEntries"},
		{"NOTEPAD_SIMPLE", "simple"},
		{"NOTEPAD_", ""},
	}
	for _, tt := range tests {
		if got := l.envToPath(tt.env); got != tt.want {
			t.Errorf("envToPath(%q) = %q, want %q", tt.env, got, tt.want)
		}
	}
}

func TestEnvLoader_LoadLike(t *testing.T) {
	l := NewEnvLoader("NOTEPAD_")
	l.environ = func() []string {
		return []string{
			"NOTEPAD_DB=1234",
			"NOTEPAD_HISTORY_MAX=7",
			"NOTEPAD_SERVER_SECURE=yes",
			"NOTEPAD_SERVER_DEBUG=no",
			"NOTEPAD_EXTRA_COUNT=3",
		}
	}
	base := map[string]any{
		"store":   map[string]any{"dsn": "notepad.db"},
		"history": map[string]any{"tabMaxEntries": float64(50)},
		"server":  map[string]any{"secure": false, "debug": "verbose"},
	}

	config, err := l.LoadLike(base)
	if err != nil {
		t.Fatalf("LoadLike failed: %v", err)
	}

	checks := map[string]any{
		"store.dsn":             "1234",
		"history.tabMaxEntries": int64(7),
		"server.secure":         true,
		"server.debug":          "no",
		"extra.count":           int64(3),
	}
	for path, want := range checks {
		got, ok := getByPath(config, path)
		if !ok || got != want {
			t.Errorf("%s = %v (%T), want %v (%T)", path, got, got, want, want)
		}
	}
}

func TestParseValue(t *testing.T) {
	tests := []struct {
		in   string
		want any
	}{
		{"42", int64(42)},
		{"true", true},
		{"off", false},
		{"500ms", "500ms"},
		{"dark", "dark"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := parseValue(tt.in); got != tt.want {
			t.Errorf("parseValue(%q) = %v (%T), want %v", tt.in, got, got, tt.want)
		}
	}
}
