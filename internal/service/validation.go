package service

import (
	"fmt"
	"net/mail"
	"unicode"
	"unicode/utf8"

	passwordvalidator "github.com/wagslane/go-password-validator"
)

const (
	maxEmailLen = 255
	minNameLen  = 2
	maxNameLen  = 50
	minPassLen  = 6
	// bcrypt refuses longer input.
	maxPassBytes = 72
)

func validateEmail(email string) error {
	if email == "" {
		return validationError("email is required")
	}
	if len(email) > maxEmailLen {
		return validationError("email is too long")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return validationError("email is not a valid address")
	}
	return nil
}

func validateName(field, v string) error {
	n := utf8.RuneCountInString(v)
	if n < minNameLen || n > maxNameLen {
		return validationError(fmt.Sprintf("%s must be between %d and %d characters", field, minNameLen, maxNameLen))
	}
	for _, r := range v {
		if !unicode.IsLetter(r) && !unicode.IsSpace(r) {
			return validationError(field + " may only contain letters and spaces")
		}
	}
	return nil
}

func validatePassword(pw string, minEntropy float64) error {
	if utf8.RuneCountInString(pw) < minPassLen {
		return validationError(fmt.Sprintf("password must be at least %d characters", minPassLen))
	}
	if len(pw) > maxPassBytes {
		return validationError(fmt.Sprintf("password must be at most %d bytes", maxPassBytes))
	}
	if err := passwordvalidator.Validate(pw, minEntropy); err != nil {
		return &Error{Kind: KindValidation, Code: CodeValidation, Msg: "password is too weak", Err: err}
	}
	return nil
}

func validateRegister(req RegisterRequest, minEntropy float64) error {
	if err := validateEmail(req.Email); err != nil {
		return err
	}
	if err := validateName("first_name", req.FirstName); err != nil {
		return err
	}
	if err := validateName("last_name", req.LastName); err != nil {
		return err
	}
	if req.Password == "" {
		return validationError("password is required")
	}
	return validatePassword(req.Password, minEntropy)
}
