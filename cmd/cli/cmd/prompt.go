package cmd

import (
	"fmt"
	"os"

	"golang.org/x/term"
)

// confirm asks a yes/no question on the terminal and reads a single key.
// Without a terminal it refuses.
func confirm(question string) (bool, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return false, fmt.Errorf("%s Rerun with --overwrite to confirm", question)
	}

	fmt.Printf("%s [y/N] ", question)
	state, err := term.MakeRaw(fd)
	if err != nil {
		return false, fmt.Errorf("failed to read answer: %w", err)
	}
	buf := make([]byte, 1)
	_, readErr := os.Stdin.Read(buf)
	term.Restore(fd, state)
	fmt.Println()

	if readErr != nil {
		return false, fmt.Errorf("failed to read answer: %w", readErr)
	}
	return buf[0] == 'y' || buf[0] == 'Y', nil
}
