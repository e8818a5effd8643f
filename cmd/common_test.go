package cmd

import (
	"errors"
	"testing"
)

func TestParseID(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"139826837536096256", 139826837536096256, false},
		{" 42 ", 42, false},
		{"0", 0, true},
		{"-5", 0, true},
		{"general", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseID(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseID(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("parseID(%q) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseOptionalID(t *testing.T) {
	id, err := parseOptionalID("None")
	if err != nil || id != nil {
		t.Fatalf(`parseOptionalID("None") = %v, %v; want nil, nil`, id, err)
	}
	id, err = parseOptionalID("77")
	if err != nil || id == nil || *id != 77 {
		t.Fatalf(`parseOptionalID("77") = %v, %v; want 77`, id, err)
	}
	if _, err := parseOptionalID("x"); err == nil {
		t.Fatal("expected an error for a non-numeric id")
	}
}

func TestParseToggle(t *testing.T) {
	for in, want := range map[string]bool{"on": true, "ON": true, "yes": true, "true": true, "off": false, "no": false, "false": false} {
		got, err := parseToggle(in)
		if err != nil {
			t.Fatalf("parseToggle(%q) unexpected error: %v", in, err)
		}
		if got != want {
			t.Errorf("parseToggle(%q) = %v, want %v", in, got, want)
		}
	}
	if _, err := parseToggle("maybe"); !errors.Is(err, errToggle) {
		t.Errorf("parseToggle(maybe) error = %v, want errToggle", err)
	}
}
