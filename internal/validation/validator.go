package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"spesa/internal/core"

	"github.com/go-playground/validator/v10"
)

// Validator wraps go-playground/validator with the expense rules and turns
// failures into *core.ValidationError.
type Validator struct {
	validate *validator.Validate
}

var (
	instance *Validator
	once     sync.Once

	usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_.@+-]{3,150}$`)
)

// Default returns the shared validator instance.
func Default() *Validator {
	once.Do(func() { instance = New() })
	return instance
}

// New creates a validator with the custom rules registered.
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	_ = v.RegisterValidation("amount", validateAmount)
	_ = v.RegisterValidation("isodate", validateISODate)
	_ = v.RegisterValidation("username", validateUsername)
	_ = v.RegisterValidation("notblank", validateNotBlank)

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return &Validator{validate: v}
}

// Struct validates s and reports the first failing field.
func (v *Validator) Struct(s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Errorf("validate: %w", err)
	}
	fe := verrs[0]
	return core.NewValidationError(fe.Field(), message(fe))
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "notblank":
		return "this field is required"
	case "amount":
		return "enter a non-negative amount with at most two decimal places"
	case "isodate":
		return "enter a date as YYYY-MM-DD"
	case "username":
		return "use 3-150 letters, digits or @.+-_"
	case "email":
		return "enter a valid email address"
	case "max":
		return fmt.Sprintf("at most %s characters", fe.Param())
	case "min":
		return fmt.Sprintf("at least %s characters", fe.Param())
	case "numeric", "gt":
		return "select a valid choice"
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}

func validateAmount(fl validator.FieldLevel) bool {
	_, err := core.ParseAmount(fl.Field().String())
	return err == nil
}

func validateISODate(fl validator.FieldLevel) bool {
	_, err := core.ParseDate(fl.Field().String())
	return err == nil
}

func validateUsername(fl validator.FieldLevel) bool {
	return usernamePattern.MatchString(fl.Field().String())
}

func validateNotBlank(fl validator.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}
