package handlers

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	appErrors "github.com/charlesng35/runmate/pkg/errors"
	"github.com/charlesng35/runmate/pkg/response"
	appValidator "github.com/charlesng35/runmate/pkg/validator"
)

// listFields are the request fields holding lists; min and max count items
// there and characters elsewhere.
var listFields = map[string]bool{"recipients": true}

// bindAndValidate binds the JSON payload into dest and runs struct validation rules.
// When validation fails, an error response is automatically written and false is returned.
func bindAndValidate[T any](c *gin.Context, dest *T) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		response.Error(c, appErrors.NewBadRequest("invalid JSON payload"))
		return false
	}
	if err := appValidator.ValidateStruct(dest); err != nil {
		response.Error(c, appErrors.NewBadRequest(formatValidationError(err)))
		return false
	}
	return true
}

func formatValidationError(err error) string {
	var failures appValidator.ValidationErrors
	if !errors.As(err, &failures) || len(failures) == 0 {
		return "invalid request payload"
	}

	messages := make([]string, 0, len(failures))
	for _, failure := range failures {
		messages = append(messages, describeFailure(failure))
	}
	return strings.Join(messages, "; ")
}

func describeFailure(failure appValidator.ValidationError) string {
	field := strings.ToLower(strings.ReplaceAll(failure.Field, "_", " "))
	if field == "" {
		field = "field"
	}
	unit := "characters"
	if listFields[failure.Field] {
		unit = "items"
	}

	switch failure.Tag {
	case "required":
		return field + " is required"
	case "min":
		return fmt.Sprintf("%s must have at least %s %s", field, failure.Param, unit)
	case "max":
		return fmt.Sprintf("%s must have at most %s %s", field, failure.Param, unit)
	case notificationTypeTag:
		return field + " must be a known notification type"
	case "":
		return field + " is invalid"
	}
	if failure.Param != "" {
		return fmt.Sprintf("%s failed validation: %s=%s", field, failure.Tag, failure.Param)
	}
	return fmt.Sprintf("%s failed validation: %s", field, failure.Tag)
}

// parseIntQuery reads a non-negative integer query value, falling back on
// anything else.
func parseIntQuery(c *gin.Context, key string, fallback int) int {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed < 0 {
		return fallback
	}
	return parsed
}
