package execsafe

import (
	"testing"
)

func TestValidateExecutable(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  error
	}{
		{"empty", "", ErrEmptyValue},
		{"whitespace only", "   ", ErrEmptyValue},
		{"bare name", "dcg", nil},
		{"name with dots", "node.exe", nil},
		{"absolute path", "/usr/local/bin/br", nil},
		{"relative path", "./bin/bv", nil},
		{"home path", "~/tools/slb", nil},
		{"null byte", "dcg\x00", ErrNullByte},
		{"newline", "dcg\nrm", ErrControlChar},
		{"semicolon", "dcg;rm", ErrShellMetachar},
		{"pipe", "dcg|cat", ErrShellMetachar},
		{"backtick", "dcg`id`", ErrShellMetachar},
		{"quote", `dcg"x"`, ErrQuoteChar},
		{"option injection", "--version", ErrOptionInjection},
		{"invalid chars", "dcg tool", ErrInvalidBareName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateExecutable(tt.value)
			if tt.want == nil && err != nil {
				t.Errorf("ValidateExecutable(%q) = %v, want nil", tt.value, err)
			}
			if tt.want != nil && err != tt.want {
				t.Errorf("ValidateExecutable(%q) = %v, want %v", tt.value, err, tt.want)
			}
		})
	}
}

func TestValidateArgument(t *testing.T) {
	tests := []struct {
		name string
		arg  string
		ok   bool
	}{
		{"flag", "--version", true},
		{"quoted value", `--name="x"`, true},
		{"plain", "install", true},
		{"empty", "", false},
		{"null byte", "a\x00b", false},
		{"newline", "a\nb", false},
		{"metachar", "a;b", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateArgument(tt.arg)
			if tt.ok && err != nil {
				t.Errorf("ValidateArgument(%q) = %v, want nil", tt.arg, err)
			}
			if !tt.ok && err == nil {
				t.Errorf("ValidateArgument(%q) = nil, want error", tt.arg)
			}
		})
	}
}

func TestValidateCommand(t *testing.T) {
	if err := ValidateCommand([]string{"claude", "--version"}); err != nil {
		t.Errorf("ValidateCommand(claude --version) = %v, want nil", err)
	}
	if err := ValidateCommand(nil); err == nil {
		t.Error("ValidateCommand(nil) = nil, want error")
	}
	if err := ValidateCommand([]string{"dcg;rm", "--version"}); err == nil {
		t.Error("ValidateCommand with metachar executable should fail")
	}
	if err := ValidateCommand([]string{"dcg", "a|b"}); err == nil {
		t.Error("ValidateCommand with metachar argument should fail")
	}
}
