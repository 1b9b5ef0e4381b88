// Package validation содержит проверку входных данных HTTP-запросов.
package validation

import "github.com/go-playground/validator/v10"

var validate = validator.New(validator.WithRequiredStructEnabled())

// Struct проверяет структуру запроса по тегам validate.
func Struct(s any) error {
	return validate.Struct(s)
}
