package i18n

import (
	"strings"
	"testing"
)

func testTable(t *testing.T) *Table {
	t.Helper()
	tbl, err := Load("en", []string{"en", "id", "ru"})
	if err != nil {
		t.Fatal(err)
	}
	return tbl
}

func TestTranslate_Basic(t *testing.T) {
	tbl := testTable(t)
	got := tbl.Translate("gemini_processing", "en", nil)
	if got == "" || strings.HasPrefix(got, MissingPrefix) {
		t.Fatalf("unexpected translation: %q", got)
	}
}

func TestTranslate_Params(t *testing.T) {
	tbl := testTable(t)
	got := tbl.Translate("chat_limit_reached", "en", map[string]string{"limit_count": "20"})
	if !strings.Contains(got, "20") {
		t.Fatalf("expected substituted limit, got %q", got)
	}
	if strings.Contains(got, "{limit_count}") {
		t.Fatalf("placeholder left unsubstituted: %q", got)
	}
}

func TestTranslate_FallsBackToDefaultLanguage(t *testing.T) {
	tbl, err := Load("en", []string{"en", "id"})
	if err != nil {
		t.Fatal(err)
	}
	// Unknown language falls through to the default table.
	got := tbl.Translate("welcome_message", "xx", nil)
	want := tbl.Translate("welcome_message", "en", nil)
	if got != want {
		t.Fatalf("expected default-language fallback, got %q", got)
	}
}

func TestTranslate_MissingKeySentinel(t *testing.T) {
	tbl := testTable(t)
	got := tbl.Translate("no_such_key", "en", nil)
	if got != MissingPrefix+"no_such_key" {
		t.Fatalf("expected sentinel, got %q", got)
	}
}

func TestLoad_AllLanguagesShareKeys(t *testing.T) {
	tbl := testTable(t)
	for key := range tbl.translations["en"] {
		for _, lang := range []string{"id", "ru"} {
			if _, ok := tbl.translations[lang][key]; !ok {
				t.Errorf("key %q missing from %s locale", key, lang)
			}
		}
	}
}

func TestLoad_UnknownDefaultLanguage(t *testing.T) {
	if _, err := Load("xx", []string{"en"}); err == nil {
		t.Fatal("expected error for unknown default language")
	}
}
