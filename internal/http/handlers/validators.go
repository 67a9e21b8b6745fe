package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"sync"
	"unicode"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

const (
	passwordMinBytes = 8
	// bcrypt ignores everything past 72 bytes
	passwordMaxBytes = 72
	codeDigits       = 6
)

var registerOnce sync.Once

// RegisterValidators installs the "password" and "code" rules on gin's
// validator. Safe to call more than once.
func RegisterValidators() error {
	var err error

	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			err = fmt.Errorf("unexpected validator engine %T", binding.Validator.Engine())
			return
		}

		if err = v.RegisterValidation("password", validatePassword); err != nil {
			return
		}
		err = v.RegisterValidation("code", validateCode)
	})

	return err
}

func validatePassword(fl validator.FieldLevel) bool {
	return IsStrongPassword(fl.Field().String())
}

func IsStrongPassword(pw string) bool {
	if len(pw) < passwordMinBytes || len(pw) > passwordMaxBytes {
		return false
	}

	var upper, lower, digit bool
	for _, r := range pw {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		}
	}

	return upper && lower && digit
}

func validateCode(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if len(s) != codeDigits {
		return false
	}

	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}

	return true
}

// Code accepts a submitted verification code as either a JSON string or a
// JSON number. It is always compared as text.
type Code string

func (c *Code) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)

	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*c = Code(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return &json.UnmarshalTypeError{Value: string(b), Type: codeType}
	}
	*c = Code(n.String())

	return nil
}

var codeType = reflect.TypeOf(Code(""))
