package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// promptForToken asks for a bearer token on stdin when no token was
// resolved from a flag, token file, or environment variable. It only
// prompts when stdin is an interactive terminal; a non-interactive run
// (CI, piped input) proceeds with an empty token instead of hanging.
func promptForToken(cmd *cobra.Command) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", nil
	}

	fmt.Fprint(cmd.ErrOrStderr(), "Endpoint token: ")
	raw, err := term.ReadPassword(fd)
	fmt.Fprintln(cmd.ErrOrStderr())
	if err != nil {
		return "", fmt.Errorf("read token: %w", err)
	}
	return string(raw), nil
}
