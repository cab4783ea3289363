package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"dayplanner/internal/apperr"
	"dayplanner/internal/calendar"
)

// MaxTextLength matches the text column size.
const MaxTextLength = 500

var validate = validator.New()

type textInput struct {
	Text string `validate:"required,max=500"`
}

type positionInput struct {
	Position int `validate:"min=1"`
}

type timezoneInput struct {
	Timezone string `validate:"required,timezone"`
}

type emailInput struct {
	Email string `validate:"required,email,max=255"`
}

// cleanText trims text and checks it is usable as task or pattern text.
func cleanText(text string) (string, error) {
	text = strings.TrimSpace(text)
	if err := check(textInput{Text: text}); err != nil {
		return "", err
	}
	return text, nil
}

func checkDate(field string, d calendar.Date) error {
	if d.IsZero() {
		return apperr.Invalidf("%s is required", field)
	}
	return nil
}

// check runs struct validation and turns the first failure into an Invalid
// error naming the field.
func check(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return apperr.Wrap(apperr.Invalid, "invalid input", err)
	}
	fe := verrs[0]
	field := strings.ToLower(fe.Field())
	var msg string
	switch fe.Tag() {
	case "required":
		msg = field + " is required"
	case "max":
		msg = fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "min":
		msg = fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "timezone":
		msg = fmt.Sprintf("unknown timezone %q", fe.Value())
	case "email":
		msg = "email is not valid"
	default:
		msg = field + " is not valid"
	}
	return apperr.New(apperr.Invalid, msg)
}
