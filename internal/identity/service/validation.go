package service

import (
	"errors"
	"regexp"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
)

var (
	hasLetter = regexp.MustCompile(`\pL`)
	hasDigit  = regexp.MustCompile(`\pN`)
)

// passwordRule requires 8 to 128 characters including a letter and a digit.
var passwordRule = validation.By(func(value any) error {
	s, _ := value.(string)
	if len(s) < 8 || len(s) > 128 {
		return errors.New("must be between 8 and 128 characters")
	}
	if !hasLetter.MatchString(s) || !hasDigit.MatchString(s) {
		return errors.New("must contain a letter and a digit")
	}
	return nil
})

var emailRules = []validation.Rule{validation.Required, validation.Length(3, 254), is.Email}

// Validate checks the registration input.
func (in RegisterInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Email, emailRules...),
		validation.Field(&in.Password, validation.Required, passwordRule),
		validation.Field(&in.Name, validation.Length(0, 200)),
	)
}

func validateEmail(email string) error {
	return validation.Validate(strings.TrimSpace(email), emailRules...)
}
