// Package execsafe validates executable names and arguments before the
// gateway spawns probed CLIs. Probe commands come from the manifest, which
// operators can edit, so every command passes through these checks first.
package execsafe

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	// shellMetachars matches characters that could enable command injection.
	shellMetachars = regexp.MustCompile(`[;&|` + "`" + `$<>]`)

	// controlChars matches newlines and carriage returns.
	controlChars = regexp.MustCompile(`[\r\n]`)

	// quoteChars matches quote characters that could enable argument injection.
	quoteChars = regexp.MustCompile(`["']`)

	// bareNamePattern matches safe bare executable names without paths.
	bareNamePattern = regexp.MustCompile(`^[A-Za-z0-9._+-]+$`)

	// windowsDriveLetter matches Windows drive letter paths (e.g., C:\).
	windowsDriveLetter = regexp.MustCompile(`^[A-Za-z]:[\\/]`)
)

// Validation errors.
var (
	ErrEmptyValue      = errors.New("executable value is empty")
	ErrNullByte        = errors.New("value contains null byte")
	ErrControlChar     = errors.New("value contains control characters")
	ErrShellMetachar   = errors.New("value contains shell metacharacters")
	ErrQuoteChar       = errors.New("value contains quote characters")
	ErrOptionInjection = errors.New("executable value starts with dash")
	ErrInvalidBareName = errors.New("executable value contains invalid characters")
)

// IsLikelyPath reports whether the value looks like a file path rather than
// a bare executable name.
func IsLikelyPath(value string) bool {
	if value == "" {
		return false
	}
	if strings.HasPrefix(value, ".") || strings.HasPrefix(value, "~") {
		return true
	}
	if strings.Contains(value, "/") || strings.Contains(value, "\\") {
		return true
	}
	return windowsDriveLetter.MatchString(value)
}

// ValidateExecutable checks that an executable name or path from the
// manifest is safe to hand to the process spawner.
func ValidateExecutable(value string) error {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ErrEmptyValue
	}
	if strings.Contains(trimmed, "\x00") {
		return ErrNullByte
	}
	if controlChars.MatchString(trimmed) {
		return ErrControlChar
	}
	if shellMetachars.MatchString(trimmed) {
		return ErrShellMetachar
	}
	if quoteChars.MatchString(trimmed) {
		return ErrQuoteChar
	}
	if IsLikelyPath(trimmed) {
		return nil
	}
	if strings.HasPrefix(trimmed, "-") {
		return ErrOptionInjection
	}
	if !bareNamePattern.MatchString(trimmed) {
		return ErrInvalidBareName
	}
	return nil
}

// ValidateArgument checks a single command argument. Arguments may start
// with a dash and contain quotes; injection vectors are still rejected.
func ValidateArgument(arg string) error {
	if arg == "" {
		return ErrEmptyValue
	}
	if strings.Contains(arg, "\x00") {
		return ErrNullByte
	}
	if controlChars.MatchString(arg) {
		return ErrControlChar
	}
	if shellMetachars.MatchString(arg) {
		return ErrShellMetachar
	}
	return nil
}

// ValidateCommand checks an executable plus its arguments in one pass.
func ValidateCommand(command []string) error {
	if len(command) == 0 {
		return ErrEmptyValue
	}
	if err := ValidateExecutable(command[0]); err != nil {
		return fmt.Errorf("executable %q: %w", command[0], err)
	}
	for i, arg := range command[1:] {
		if err := ValidateArgument(arg); err != nil {
			return fmt.Errorf("argument %d (%q): %w", i+1, arg, err)
		}
	}
	return nil
}
