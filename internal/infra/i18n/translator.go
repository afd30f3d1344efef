package i18n

import (
	"embed"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed locales
var LocalesFS embed.FS

const defaultLang = "en"

// Translator holds string tables for every bundled locale and picks the
// table matching a user's Telegram language_code, falling back to English.
type Translator struct {
	tables map[string]map[string]string
}

// NewTranslator loads every locales/<lang>.yaml found in fsys.
func NewTranslator(fsys fs.FS) (*Translator, error) {
	entries, err := fs.ReadDir(fsys, "locales")
	if err != nil {
		return nil, fmt.Errorf("read locales dir: %w", err)
	}

	tables := make(map[string]map[string]string, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".yaml") {
			continue
		}
		data, err := fs.ReadFile(fsys, filepath.Join("locales", name))
		if err != nil {
			return nil, fmt.Errorf("read translation file %s: %w", name, err)
		}
		var table map[string]string
		if err := yaml.Unmarshal(data, &table); err != nil {
			return nil, fmt.Errorf("parse translation file %s: %w", name, err)
		}
		tables[strings.TrimSuffix(name, ".yaml")] = table
	}

	if _, ok := tables[defaultLang]; !ok {
		return nil, fmt.Errorf("missing base locale %q", defaultLang)
	}
	return &Translator{tables: tables}, nil
}

// T translates key for lang, formatting args if present. Unknown languages
// fall back to English; unknown keys come back verbatim so they show up in
// chat instead of silently disappearing.
func (t *Translator) T(lang, key string, args ...interface{}) string {
	table, ok := t.tables[normalizeLang(lang)]
	if !ok {
		table = t.tables[defaultLang]
	}
	format, ok := table[key]
	if !ok {
		format, ok = t.tables[defaultLang][key]
		if !ok {
			return key
		}
	}
	if len(args) > 0 {
		return fmt.Sprintf(format, args...)
	}
	return format
}

// Languages lists the loaded locale codes.
func (t *Translator) Languages() []string {
	out := make([]string, 0, len(t.tables))
	for lang := range t.tables {
		out = append(out, lang)
	}
	return out
}

func normalizeLang(lang string) string {
	lang = strings.ToLower(lang)
	// Telegram may send region-tagged codes such as "en-US".
	if i := strings.IndexByte(lang, '-'); i > 0 {
		lang = lang[:i]
	}
	return lang
}
