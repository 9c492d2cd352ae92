// Package setup asks for credentials before the interactive session starts.
package setup

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/pkg/errors"
)

var (
	subtle    = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#383838"}
	highlight = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Background(highlight).
			Padding(1, 2).
			Bold(true).
			MarginBottom(1)
)

const (
	ActionLogin    = "login"
	ActionRegister = "register"
)

// Credentials collected by the wizard.
type Credentials struct {
	Action   string
	Username string
	Password string
}

// Command renders the credentials as a login or register command line.
func (c Credentials) Command() string {
	return strings.Join([]string{c.Action, quote(c.Username), quote(c.Password)}, " ")
}

// Validate checks the collected values.
func (c Credentials) Validate() error {
	if c.Action != ActionLogin && c.Action != ActionRegister {
		return errors.Errorf("unknown action %q", c.Action)
	}
	if err := validateField(c.Username); err != nil {
		return errors.Wrap(err, "username")
	}
	if err := validateField(c.Password); err != nil {
		return errors.Wrap(err, "password")
	}
	return nil
}

// RunTUI launches the credentials wizard.
func RunTUI() (Credentials, error) {
	creds := Credentials{Action: ActionLogin}

	fmt.Println(headerStyle.Render("CRYPTO WALLET"))
	fmt.Println(lipgloss.NewStyle().Foreground(subtle).Render("Sign in or create an account.\n"))

	err := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("What do you want to do?").
				Options(
					huh.NewOption("Log in", ActionLogin),
					huh.NewOption("Register", ActionRegister),
				).
				Value(&creds.Action),
			huh.NewInput().
				Title("Username").
				Value(&creds.Username).
				Validate(validateField),
			huh.NewInput().
				Title("Password").
				EchoMode(huh.EchoModePassword).
				Value(&creds.Password).
				Validate(validateField),
		),
	).Run()
	if err != nil {
		return Credentials{}, errors.Wrap(err, "credentials form")
	}

	return creds, creds.Validate()
}

// validateField rejects values the server would reject or the tokenizer would split wrongly.
func validateField(s string) error {
	if strings.TrimSpace(s) == "" {
		return errors.New("cannot be empty")
	}
	if strings.ContainsAny(s, "\"\r\n") {
		return errors.New("cannot contain quotes or line breaks")
	}
	return nil
}

func quote(s string) string {
	if strings.Contains(s, " ") {
		return `"` + s + `"`
	}
	return s
}
