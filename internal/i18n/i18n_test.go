// Copyright (c) 2025 FieldOps
// fieldaudit - field audit and school activation service
// This source code is licensed under the MIT license found in the LICENSE file.
package i18n

import (
	"testing"
)

func TestInitAndAvailableLocales(t *testing.T) {
	Init("en")
	if GetLang() != "en" {
		t.Fatalf("expected lang 'en', got %q", GetLang())
	}
	av := GetAvailableLocales()
	for _, k := range []string{"en", "hi"} {
		if _, ok := av[k]; !ok {
			t.Fatalf("expected available locale %q, got %v", k, av)
		}
	}
	if av["hi"] != "Hindi" {
		t.Fatalf("unexpected display name for hi: %q", av["hi"])
	}
}

func TestT_TemplateDataAndFallback(t *testing.T) {
	Init("en")

	if got := T("auth.invalid_email"); got != "Invalid email" {
		t.Fatalf("unexpected translation %q", got)
	}
	got := T("attendance.evaluation_missing_field", map[string]any{"Index": 2, "Field": "storeCode"})
	if got != "Evaluation 2 is missing required field: storeCode" {
		t.Fatalf("unexpected templated translation %q", got)
	}
	if got := T("no.such.message"); got != "no.such.message" {
		t.Fatalf("unknown ids should be returned as-is, got %q", got)
	}
}

func TestTranslator_FallsBackToEnglish(t *testing.T) {
	Init("en")
	tr := For("hi")

	if got := tr.T("auth.invalid_email"); got != "अमान्य ईमेल" {
		t.Fatalf("expected hindi text, got %q", got)
	}
	// Not translated in hi.yaml.
	if got := tr.T("assignment.trainer_not_found"); got != "Trainer not found" {
		t.Fatalf("expected english fallback, got %q", got)
	}
}

func TestMatch(t *testing.T) {
	Init("en")
	cases := map[string]string{
		"hi-IN,hi;q=0.9,en;q=0.8": "hi",
		"en-GB":                   "en",
		"":                        "en",
		"fr-FR":                   "en",
	}
	for header, want := range cases {
		if got := Match(header); got != want {
			t.Fatalf("Match(%q) = %q, want %q", header, got, want)
		}
	}
}
