package validator

import (
	"fmt"
	"regexp"
)

var teamNameRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

// ValidationError представляет ошибку валидации
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors список ошибок валидации
type ValidationErrors []*ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	msg := "validation errors:"
	for _, err := range e {
		msg += fmt.Sprintf("\n  - %s", err.Error())
	}
	return msg
}

// HasErrors проверяет наличие ошибок
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Add добавляет ошибку валидации
func (e *ValidationErrors) Add(field, message string) {
	*e = append(*e, &ValidationError{
		Field:   field,
		Message: message,
	})
}

// ValidateTeamName проверяет имя команды, используемое в качестве TEAM_1/TEAM_2.
func ValidateTeamName(name string) error {
	if name == "" {
		return &ValidationError{Field: "team_name", Message: "team_name is required"}
	}
	if len(name) > 64 {
		return &ValidationError{Field: "team_name", Message: "team_name is too long (max 64 characters)"}
	}
	if !teamNameRegex.MatchString(name) {
		return &ValidationError{Field: "team_name", Message: "team_name can only contain letters, numbers, underscore and hyphen"}
	}
	return nil
}

// ValidateRequired проверяет обязательное поле
func ValidateRequired(field, value string) error {
	if value == "" {
		return &ValidationError{Field: field, Message: fmt.Sprintf("%s is required", field)}
	}
	return nil
}

// ValidateLength проверяет длину строки
func ValidateLength(field, value string, min, max int) error {
	length := len(value)
	if length < min {
		return &ValidationError{
			Field:   field,
			Message: fmt.Sprintf("%s must be at least %d characters", field, min),
		}
	}
	if max > 0 && length > max {
		return &ValidationError{
			Field:   field,
			Message: fmt.Sprintf("%s is too long (max %d characters)", field, max),
		}
	}
	return nil
}

// ValidateRange проверяет числовой диапазон
func ValidateRange(field string, value, min, max int) error {
	if value < min {
		return &ValidationError{
			Field:   field,
			Message: fmt.Sprintf("%s must be at least %d", field, min),
		}
	}
	if max > 0 && value > max {
		return &ValidationError{
			Field:   field,
			Message: fmt.Sprintf("%s must be at most %d", field, max),
		}
	}
	return nil
}

// ValidateEnum проверяет значение из списка
func ValidateEnum(field, value string, allowedValues []string) error {
	for _, allowed := range allowedValues {
		if value == allowed {
			return nil
		}
	}
	return &ValidationError{
		Field:   field,
		Message: fmt.Sprintf("%s must be one of: %v", field, allowedValues),
	}
}
