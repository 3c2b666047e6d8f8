package cmd

import (
	"bytes"
	"strings"
	"testing"

	"github.com/mattn/go-runewidth"

	"github.com/nextlevelbuilder/autoreply/internal/rules"
)

func TestCellWidth(t *testing.T) {
	tests := []struct {
		in    string
		width int
	}{
		{"short", 10},
		{"a much longer keyword list than fits", 10},
		{"こんにちは世界こんにちは", 9},
		{"multi\nline  text", 12},
	}
	for _, tt := range tests {
		got := cell(tt.in, tt.width)
		if w := runewidth.StringWidth(got); w != tt.width {
			t.Errorf("cell(%q, %d) width = %d, want %d (%q)", tt.in, tt.width, w, tt.width, got)
		}
		if strings.Contains(got, "\n") {
			t.Errorf("cell(%q) kept a newline", tt.in)
		}
	}
}

func TestPrintRuleTable(t *testing.T) {
	var buf bytes.Buffer
	printRuleTable(&buf, rules.FlavorOwner, []rules.Record{
		{Number: 1, Type: rules.TypeExact, Name: "status", Keywords: "status", Template: "ok"},
	})
	out := buf.String()
	if !strings.Contains(out, "O1") || !strings.Contains(out, "status") {
		t.Errorf("table missing rule row:\n%s", out)
	}

	buf.Reset()
	printRuleTable(&buf, rules.FlavorNormal, nil)
	if !strings.Contains(buf.String(), "(none)") {
		t.Errorf("empty table = %q", buf.String())
	}
}
