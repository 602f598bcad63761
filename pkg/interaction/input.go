// Package interaction holds the terminal prompts: plain input, hidden
// secrets, confirmations, and the conflict-resolution frontend. Everything
// here reads stdin and writes stdout; nothing else in the module does.
package interaction

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"syscall"

	cerr "github.com/cockroachdb/errors"
	"golang.org/x/term"
)

// PromptInput displays a prompt and reads one line, returning defaultVal
// when the answer is empty.
func PromptInput(prompt, defaultVal string) string {
	reader := bufio.NewReader(os.Stdin)
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", prompt, defaultVal)
	} else {
		fmt.Printf("%s: ", prompt)
	}
	input, _ := reader.ReadString('\n')
	input = strings.TrimSpace(input)
	if input == "" {
		return defaultVal
	}
	return input
}

// PromptSecret reads a line without echoing it, for tokens and passwords.
func PromptSecret(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	fmt.Print(prompt)
	raw, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", cerr.Wrap(err, "reading hidden input")
	}
	return strings.TrimSpace(string(raw)), nil
}

// PromptYesNo asks a yes/no question; empty input takes defaultYes.
func PromptYesNo(prompt string, defaultYes bool) bool {
	suffix := "[y/N]"
	if defaultYes {
		suffix = "[Y/n]"
	}
	answer := strings.ToLower(PromptInput(fmt.Sprintf("%s %s", prompt, suffix), ""))
	if answer == "" {
		return defaultYes
	}
	return answer == "y" || answer == "yes"
}

// PromptSelect shows a numbered menu and returns the chosen option.
func PromptSelect(prompt string, options []string) (int, error) {
	fmt.Println(prompt)
	for i, opt := range options {
		fmt.Printf("  %d) %s\n", i+1, opt)
	}

	reader := bufio.NewReader(os.Stdin)
	for {
		fmt.Printf("Choice [1-%d]: ", len(options))
		line, err := reader.ReadString('\n')
		if err != nil {
			return 0, cerr.Wrap(err, "reading selection")
		}
		var choice int
		if _, err := fmt.Sscanf(strings.TrimSpace(line), "%d", &choice); err == nil {
			if choice >= 1 && choice <= len(options) {
				return choice - 1, nil
			}
		}
		fmt.Println("Invalid choice, try again.")
	}
}
