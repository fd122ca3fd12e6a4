package handlers

import (
	"strings"

	"github.com/go-playground/validator/v10"
)

// ValidationError represents a single validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ParseValidationErrors converts validator errors to user-friendly format.
// Errors that are not validation errors (malformed JSON, bad query types)
// yield a single entry without a field.
func ParseValidationErrors(err error) []ValidationError {
	var errors []ValidationError

	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		for _, fieldError := range validationErrors {
			errors = append(errors, ValidationError{
				Field:   fieldName(fieldError),
				Message: getErrorMessage(fieldError),
			})
		}
		return errors
	}

	if err != nil {
		errors = append(errors, ValidationError{Message: "Solicitud mal formada"})
	}
	return errors
}

func fieldName(fe validator.FieldError) string {
	return strings.ToLower(fe.Field())
}

func getErrorMessage(fe validator.FieldError) string {
	field := fieldName(fe)
	switch fe.Tag() {
	case "required":
		return field + " es obligatorio"
	case "email":
		return "Formato de correo inválido"
	case "min":
		if fe.Kind().String() == "string" {
			return field + " debe tener al menos " + fe.Param() + " caracteres"
		}
		return field + " debe ser al menos " + fe.Param()
	case "max":
		if fe.Kind().String() == "string" {
			return field + " no debe superar " + fe.Param() + " caracteres"
		}
		return field + " no debe superar " + fe.Param()
	case "oneof":
		return field + " debe ser uno de: " + fe.Param()
	default:
		return field + " no es válido"
	}
}
