// Package ui renders authctl prompts and results.
package ui

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/redmonkez12/payflow-auth/internal/user"
)

// PasswordPolicy describes what IsStrongPassword accepts
const PasswordPolicy = "password must be 8-64 characters with upper and lower case letters, a digit and one of @$!%*?&"

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("63")).
			MarginBottom(1)

	successStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("42"))

	errorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("196"))
)

// PromptPassword asks for a new password twice with input hidden
func PromptPassword(email string) (string, error) {
	var password, confirm string

	fmt.Println(titleStyle.Render("Set password for " + email))

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("New password").
				EchoMode(huh.EchoModePassword).
				Value(&password).
				Validate(func(s string) error {
					if !user.IsStrongPassword(s) {
						return errors.New(PasswordPolicy)
					}
					return nil
				}),

			huh.NewInput().
				Title("Confirm password").
				EchoMode(huh.EchoModePassword).
				Value(&confirm).
				Validate(func(s string) error {
					if s != password {
						return errors.New("passwords do not match")
					}
					return nil
				}),
		),
	).WithTheme(huh.ThemeCatppuccin())

	if err := form.Run(); err != nil {
		return "", fmt.Errorf("prompt cancelled: %w", err)
	}

	return password, nil
}

// PrintSuccess prints a success message.
func PrintSuccess(msg string) {
	fmt.Println(successStyle.Render(msg))
}

// PrintError prints an error message.
func PrintError(msg string) {
	fmt.Println(errorStyle.Render("Error: " + msg))
}
