package user

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"

	"github.com/redmonkez12/payflow-auth/internal/apperror"
)

const passwordSpecials = "@$!%*?&"

var personNamePattern = regexp.MustCompile(`^[a-zA-Z\s'-]+$`)

// v is shared by every caller. Custom tags are registered once at package load.
var v = newValidator()

var labels = map[string]string{
	"name":            "Full Name",
	"email":           "Email",
	"password":        "Password",
	"confirmPassword": "Confirm Password",
	"otp":             "OTP",
	"currentPassword": "Current Password",
	"newPassword":     "New Password",
	"passwordHash":    "Password hash",
}

func newValidator() *validator.Validate {
	validate := validator.New(validator.WithRequiredStructEnabled())

	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	if err := validate.RegisterValidation("personname", func(fl validator.FieldLevel) bool {
		return personNamePattern.MatchString(fl.Field().String())
	}); err != nil {
		panic(err)
	}
	if err := validate.RegisterValidation("strongpassword", func(fl validator.FieldLevel) bool {
		return IsStrongPassword(fl.Field().String())
	}); err != nil {
		panic(err)
	}

	return validate
}

// CanonicalEmail returns the comparable form of an email address
func CanonicalEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// IsStrongPassword reports whether password is 8 to 64 characters drawn only
// from letters, digits and @$!%*?&, with at least one of each class.
func IsStrongPassword(password string) bool {
	if len(password) < 8 || len(password) > 64 {
		return false
	}

	var lower, upper, digit, special bool
	for _, r := range password {
		switch {
		case r > unicode.MaxASCII:
			return false
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		case strings.ContainsRune(passwordSpecials, r):
			special = true
		default:
			return false
		}
	}

	return lower && upper && digit && special
}

// Validate checks s against its validate tags. Failures are returned as a
// validation error carrying one message per offending field.
func Validate(s any) error {
	err := v.Struct(s)
	if err == nil {
		return nil
	}

	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return fmt.Errorf("validate: %w", err)
	}

	fields := make(map[string]string, len(ve))
	for _, fe := range ve {
		if _, seen := fields[fe.Field()]; !seen {
			fields[fe.Field()] = fieldMessage(fe)
		}
	}

	return apperror.Validation(apperror.CodeValidationFailed, "Validation error", fields)
}

func fieldMessage(fe validator.FieldError) string {
	label := labelFor(fe.Field())

	switch fe.Tag() {
	case "required":
		return label + " is required"
	case "email":
		return "Please enter a valid email"
	case "personname":
		return label + " can only contain letters, spaces, hyphens, and apostrophes"
	case "strongpassword":
		return label + " must include uppercase, lowercase, number and special character"
	case "eqfield":
		return labelFor(lowerFirst(fe.Param())) + " and " + label + " do not match"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", label, fe.Param())
	case "max":
		if fe.Field() == "email" {
			return "Email is too long"
		}
		return fmt.Sprintf("%s must be at most %s characters", label, fe.Param())
	case "len":
		return fmt.Sprintf("%s must be exactly %s characters", label, fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", label)
	}
}

func labelFor(field string) string {
	if label, ok := labels[field]; ok {
		return label
	}
	return field
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
