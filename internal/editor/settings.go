package editor

import (
	"fmt"
	"sort"
)

// Themes.
const (
	ThemeDark  = "dark"
	ThemeLight = "light"
)

var fontSizes = map[string]string{
	"xs":  "12px",
	"sm":  "14px",
	"md":  "16px",
	"lg":  "18px",
	"xl":  "20px",
	"xxl": "24px",
}

var fontFamilies = map[string]string{
	"system":    `-apple-system, BlinkMacSystemFont, "Segoe UI", "Roboto", "Oxygen", "Ubuntu", "Cantarell", sans-serif`,
	"monospace": `"Courier New", Courier, monospace`,
	"georgia":   "Georgia, serif",
	"arial":     "Arial, Helvetica, sans-serif",
	"verdana":   "Verdana, Geneva, sans-serif",
	"comic":     `"Comic Sans MS", cursive`,
	"times":     `"Times New Roman", Times, serif`,
}

var fontWeights = map[string]string{
	"light":    "300",
	"normal":   "400",
	"medium":   "500",
	"semibold": "600",
	"bold":     "700",
}

var lineHeights = map[string]string{
	"compact": "1.2",
	"normal":  "1.5",
	"relaxed": "1.8",
	"loose":   "2.0",
}

// Settings are the display preferences shared by every tab.
type Settings struct {
	Theme      string `json:"theme" toml:"theme" yaml:"theme"`
	FontSize   string `json:"fontSize" toml:"fontSize" yaml:"fontSize"`
	FontFamily string `json:"fontFamily" toml:"fontFamily" yaml:"fontFamily"`
	FontWeight string `json:"fontWeight" toml:"fontWeight" yaml:"fontWeight"`
	LineHeight string `json:"lineHeight" toml:"lineHeight" yaml:"lineHeight"`
}

// DefaultSettings returns the settings a fresh install starts with.
func DefaultSettings() Settings {
	return Settings{
		Theme:      ThemeDark,
		FontSize:   "md",
		FontFamily: "system",
		FontWeight: "normal",
		LineHeight: "normal",
	}
}

// SettingError reports an unknown value for a setting.
type SettingError struct {
	Setting string
	Value   string
	Allowed []string
}

func (e *SettingError) Error() string {
	return fmt.Sprintf("invalid %s %q (allowed: %v)", e.Setting, e.Value, e.Allowed)
}

// Validate checks every field against its allowed values.
func (s Settings) Validate() error {
	if s.Theme != ThemeDark && s.Theme != ThemeLight {
		return &SettingError{Setting: "theme", Value: s.Theme, Allowed: []string{ThemeDark, ThemeLight}}
	}
	checks := []struct {
		name  string
		value string
		table map[string]string
	}{
		{"fontSize", s.FontSize, fontSizes},
		{"fontFamily", s.FontFamily, fontFamilies},
		{"fontWeight", s.FontWeight, fontWeights},
		{"lineHeight", s.LineHeight, lineHeights},
	}
	for _, c := range checks {
		if _, ok := c.table[c.value]; !ok {
			return &SettingError{Setting: c.name, Value: c.value, Allowed: keys(c.table)}
		}
	}
	return nil
}

// Merge returns s with every non-empty field of o applied.
func (s Settings) Merge(o Settings) Settings {
	if o.Theme != "" {
		s.Theme = o.Theme
	}
	if o.FontSize != "" {
		s.FontSize = o.FontSize
	}
	if o.FontFamily != "" {
		s.FontFamily = o.FontFamily
	}
	if o.FontWeight != "" {
		s.FontWeight = o.FontWeight
	}
	if o.LineHeight != "" {
		s.LineHeight = o.LineHeight
	}
	return s
}

// CSS resolves the settings to CSS property values.
func (s Settings) CSS() map[string]string {
	return map[string]string{
		"font-size":   fontSizes[s.FontSize],
		"font-family": fontFamilies[s.FontFamily],
		"font-weight": fontWeights[s.FontWeight],
		"line-height": lineHeights[s.LineHeight],
	}
}

func keys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
