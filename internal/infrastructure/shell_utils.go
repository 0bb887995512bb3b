package infrastructure

import "strings"

// shellSpecial holds the characters a POSIX shell would interpret.
const shellSpecial = " \t\n\r'\"$`\\!*?[](){}|;<>&~#%"

// ShellQuote quotes s for display in a copy-pasteable command line
func ShellQuote(s string) string {
	if s == "" {
		return "''"
	}
	if !strings.ContainsAny(s, shellSpecial) {
		return s
	}
	// Close the quote, emit a double-quoted ', reopen.
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}

// CommandLine renders an engine invocation for logs. It is never executed.
func CommandLine(binary string, args ...string) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, ShellQuote(binary))
	for _, arg := range args {
		parts = append(parts, ShellQuote(arg))
	}
	return strings.Join(parts, " ")
}
