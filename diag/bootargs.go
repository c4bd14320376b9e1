package diag

import (
	"strings"

	"github.com/google/shlex"

	"github.com/calint/uefi-os/kernel/kfmt"
)

// ParseBootArgs splits a raw boot command line into key=value diagnostic
// toggles (e.g. "consoleLogo=off"), the same key=value tokens the
// teacher's hal.go scans by hand. shlex is used here instead so quoting
// and whitespace rules match a real shell lexer rather than a bespoke
// scanner.
func ParseBootArgs(cmdline string) map[string]string {
	tokens, err := shlex.Split(cmdline)
	if err != nil {
		kfmt.Taggedf("[diag] ", "malformed boot arguments: %s\n", err.Error())
		return nil
	}

	args := make(map[string]string, len(tokens))
	for _, tok := range tokens {
		key, value, found := strings.Cut(tok, "=")
		if !found {
			args[key] = ""
			continue
		}
		args[key] = value
	}
	return args
}
