package ui

import (
	"strings"
	"testing"
)

func TestRenderedTextIsPreserved(t *testing.T) {
	for name, out := range map[string]string{
		"colorize": Colorize("bigbertha", ColorNew),
		"header":   Header("Recent mods"),
		"faint":    Faint("2024-01-01"),
		"count":    Count("sent", 3, ColorUpdated),
	} {
		t.Run(name, func(t *testing.T) {
			if out == "" {
				t.Fatal("rendered output is empty")
			}
		})
	}
	if got := Count("failed", 0, ColorFailed); !strings.Contains(got, "failed: 0") {
		t.Errorf("Count() = %q, want it to contain %q", got, "failed: 0")
	}
	if got := Colorize("bigbertha", ColorNew); !strings.Contains(got, "bigbertha") {
		t.Errorf("Colorize() = %q, want it to contain the text", got)
	}
}
