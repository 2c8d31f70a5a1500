package validator

import (
	"regexp"

	"github.com/go-playground/validator/v10"
)

var (
	// doc ids and batch ids travel through queue payloads and storage
	// paths, so keep them to a safe character set.
	identifierValidRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]*$`)
	fileTypeValidRegex   = regexp.MustCompile(`^\.?[a-zA-Z0-9]+$`)
)

func identifierValidator(fl validator.FieldLevel) bool {
	val, ok := fl.Field().Interface().(string)
	if !ok {
		return false
	}
	return identifierValidRegex.MatchString(val)
}

func optionalIdentifierValidator(fl validator.FieldLevel) bool {
	val, ok := fl.Field().Interface().(string)
	if !ok {
		return false
	}
	if val == "" {
		return true
	}
	return identifierValidRegex.MatchString(val)
}

func fileTypeValidator(fl validator.FieldLevel) bool {
	val, ok := fl.Field().Interface().(string)
	if !ok {
		return false
	}
	if val == "" {
		return true
	}
	return fileTypeValidRegex.MatchString(val)
}
