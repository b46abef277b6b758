package cli

import (
	"errors"
	"strings"

	"github.com/manifoldco/promptui"
)

// Prompter asks the user for input.
type Prompter interface {
	Input(label, def string) (string, error)
	Password(label string) (string, error)
	Confirm(label string) (bool, error)
	Select(label string, items []string) (int, error)
}

// TerminalPrompter prompts on the terminal with promptui.
type TerminalPrompter struct{}

func (TerminalPrompter) Input(label, def string) (string, error) {
	p := promptui.Prompt{Label: label, Default: def}
	return p.Run()
}

func (TerminalPrompter) Password(label string) (string, error) {
	p := promptui.Prompt{
		Label: label,
		Mask:  '*',
		Validate: func(s string) error {
			if strings.TrimSpace(s) == "" {
				return errors.New("password is required")
			}
			return nil
		},
	}
	return p.Run()
}

// Confirm returns false, not an error, when the user answers no.
func (TerminalPrompter) Confirm(label string) (bool, error) {
	p := promptui.Prompt{Label: label, IsConfirm: true}
	_, err := p.Run()
	switch {
	case errors.Is(err, promptui.ErrAbort):
		return false, nil
	case err != nil:
		return false, err
	}
	return true, nil
}

func (TerminalPrompter) Select(label string, items []string) (int, error) {
	s := promptui.Select{Label: label, Items: items, Size: 10}
	i, _, err := s.Run()
	return i, err
}

// quit reports whether err means the user left an interactive prompt.
func quit(err error) bool {
	return errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF)
}
