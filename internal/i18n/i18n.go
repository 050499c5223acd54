// Package i18n holds the user-facing string table. Translations live in
// embedded JSON files, one flat key/value map per language, with
// {placeholder} substitution.
package i18n

import (
	"embed"
	"encoding/json"
	"fmt"
	"strings"
)

//go:embed locales/*.json
var localeFS embed.FS

// MissingPrefix marks a key absent from both the requested language and the
// default language. Callers can detect it but normally just display it.
const MissingPrefix = "TR_MISSING:"

// Table is an immutable translation table loaded once at startup.
type Table struct {
	defaultLang  string
	translations map[string]map[string]string
}

// Load parses the embedded locale files for the given languages. The default
// language must be among them.
func Load(defaultLang string, langs []string) (*Table, error) {
	t := &Table{
		defaultLang:  defaultLang,
		translations: make(map[string]map[string]string, len(langs)),
	}
	for _, lang := range langs {
		data, err := localeFS.ReadFile("locales/" + lang + ".json")
		if err != nil {
			return nil, fmt.Errorf("missing locale file for %q: %w", lang, err)
		}
		table := map[string]string{}
		if err := json.Unmarshal(data, &table); err != nil {
			return nil, fmt.Errorf("failed to parse locale %q: %w", lang, err)
		}
		t.translations[lang] = table
	}
	if _, ok := t.translations[defaultLang]; !ok {
		return nil, fmt.Errorf("default language %q has no locale file", defaultLang)
	}
	return t, nil
}

// Translate renders the string for key in the given language, falling back to
// the default language and then to the MissingPrefix sentinel. Params are
// substituted into {name} placeholders.
func (t *Table) Translate(key, lang string, params map[string]string) string {
	text, ok := t.lookup(key, lang)
	if !ok {
		return MissingPrefix + key
	}
	for name, value := range params {
		text = strings.ReplaceAll(text, "{"+name+"}", value)
	}
	return text
}

// Has reports whether the key exists for the language or the default.
func (t *Table) Has(key, lang string) bool {
	_, ok := t.lookup(key, lang)
	return ok
}

func (t *Table) lookup(key, lang string) (string, bool) {
	if table, ok := t.translations[lang]; ok {
		if text, ok := table[key]; ok {
			return text, true
		}
	}
	if lang != t.defaultLang {
		if text, ok := t.translations[t.defaultLang][key]; ok {
			return text, true
		}
	}
	return "", false
}
