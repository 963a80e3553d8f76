package loader

import (
	"os"
	"strconv"
	"strings"
)

// EnvLoader loads configuration from environment variables.
type EnvLoader struct {
	prefix  string
	mapping map[string]string
	environ func() []string
}

// NewEnvLoader creates a loader for variables starting with prefix, which
// should include the trailing underscore (e.g. "NOTEPAD_").
func NewEnvLoader(prefix string) *EnvLoader {
	return &EnvLoader{
		prefix:  prefix,
		mapping: DefaultEnvMapping(),
		environ: os.Environ,
	}
}

// DefaultEnvMapping returns the shorthand variables and their config paths.
func DefaultEnvMapping() map[string]string {
	return map[string]string{
		"NOTEPAD_LOG_LEVEL":    "logging.level",
		"NOTEPAD_ADDR":         "server.addr",
		"NOTEPAD_DB":           "store.dsn",
		"NOTEPAD_THEME":        "editor.theme",
		"NOTEPAD_FONT_SIZE":    "editor.fontSize",
		"NOTEPAD_FONT_FAMILY":  "editor.fontFamily",
		"NOTEPAD_HISTORY_MAX":  "history.tabMaxEntries",
		"NOTEPAD_QUIET_PERIOD": "history.quietPeriod",
	}
}

// AddMapping maps an environment variable to a config path.
func (l *EnvLoader) AddMapping(env, path string) {
	if l.mapping == nil {
		l.mapping = make(map[string]string)
	}
	l.mapping[env] = path
}

// Load reads prefixed variables. Mapped names go to their mapped path;
// other names are converted, e.g. NOTEPAD_STORE_DRIVER to store.driver.
func (l *EnvLoader) Load() (map[string]any, error) {
	return l.LoadLike(nil)
}

// LoadLike is Load with each value converted to the type base holds at the
// same path, so a numeric-looking value for a string setting stays a
// string. Paths absent from base fall back to guessing the type.
func (l *EnvLoader) LoadLike(base map[string]any) (map[string]any, error) {
	config := make(map[string]any)

	for _, kv := range l.environ() {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, l.prefix) {
			continue
		}
		path, mapped := l.mapping[name]
		if !mapped {
			path = l.envToPath(name)
		}
		if path == "" {
			continue
		}
		like, _ := getByPath(base, path)
		setByPath(config, path, parseValueLike(value, like))
	}

	return config, nil
}

// envToPath converts NOTEPAD_HISTORY_TAB_MAX_ENTRIES to history.tabMaxEntries.
func (l *EnvLoader) envToPath(env string) string {
	name := strings.TrimPrefix(env, l.prefix)
	parts := strings.Split(strings.ToLower(name), "_")
	if len(parts) == 0 || parts[0] == "" {
		return ""
	}
	if len(parts) == 1 {
		return parts[0]
	}

	setting := parts[1]
	for _, p := range parts[2:] {
		if p != "" {
			setting += strings.ToUpper(p[:1]) + p[1:]
		}
	}
	return parts[0] + "." + setting
}

// parseValue converts integers and booleans; everything else, durations
// included, stays a string.
func parseValue(s string) any {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if b, ok := parseBool(s); ok {
		return b
	}
	return s
}

// parseValueLike converts s to the kind of value like is. Values that do
// not parse are left as strings for the decoder to reject.
func parseValueLike(s string, like any) any {
	switch like.(type) {
	case string:
		return s
	case float64, int, int64:
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
		return s
	case bool:
		if b, ok := parseBool(s); ok {
			return b
		}
		return s
	default:
		return parseValue(s)
	}
}

func parseBool(s string) (value, ok bool) {
	switch strings.ToLower(s) {
	case "true", "yes", "on":
		return true, true
	case "false", "no", "off":
		return false, true
	}
	return false, false
}

func getByPath(data map[string]any, path string) (any, bool) {
	current := data
	parts := strings.Split(path, ".")
	for i, part := range parts {
		v, ok := current[part]
		if !ok {
			return nil, false
		}
		if i == len(parts)-1 {
			return v, true
		}
		if current, ok = v.(map[string]any); !ok {
			return nil, false
		}
	}
	return nil, false
}

func setByPath(data map[string]any, path string, value any) {
	parts := strings.Split(path, ".")
	current := data
	for _, part := range parts[:len(parts)-1] {
		next, ok := current[part].(map[string]any)
		if !ok {
			next = make(map[string]any)
			current[part] = next
		}
		current = next
	}
	current[parts[len(parts)-1]] = value
}
