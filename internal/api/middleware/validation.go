package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/riftworks/taskqueue/internal/models"
)

// ValidationMiddleware handles request validation
type ValidationMiddleware struct {
	validator *validator.Validate
	logger    *slog.Logger
}

// NewValidationMiddleware creates a new validation middleware
func NewValidationMiddleware(logger *slog.Logger) *ValidationMiddleware {
	v := validator.New()

	// Register custom validators
	_ = v.RegisterValidation("task_name", validateTaskName)

	return &ValidationMiddleware{
		validator: v,
		logger:    logger,
	}
}

// ValidateJSON validates JSON request body against struct tags
func (vm *ValidationMiddleware) ValidateJSON(modelType interface{}) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Create new instance of the model type
		model := reflect.New(reflect.TypeOf(modelType)).Interface()

		// Bind JSON to model
		if err := c.ShouldBindJSON(model); err != nil {
			vm.logger.Warn("JSON binding failed", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "Invalid request format",
				"details": err.Error(),
			})
			c.Abort()
			return
		}

		// Validate the model
		if err := vm.validator.Struct(model); err != nil {
			vm.logger.Warn("validation failed", "error", err)

			// Format validation errors nicely
			validationErrors := vm.formatValidationErrors(err)
			c.JSON(http.StatusBadRequest, gin.H{
				"error":             "Validation failed",
				"validation_errors": validationErrors,
			})
			c.Abort()
			return
		}

		// Store validated model in context
		c.Set("validated_body", model)
		c.Next()
	}
}

// ValidateTaskEnqueue validates task submission requests
func (vm *ValidationMiddleware) ValidateTaskEnqueue() gin.HandlerFunc {
	return vm.ValidateJSON(models.EnqueueTaskRequest{})
}

// ValidateRequestSize validates request body size
func (vm *ValidationMiddleware) ValidateRequestSize(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check Content-Length header
		if c.Request.ContentLength > maxSize {
			vm.logger.Warn("request body too large",
				"content_length", c.Request.ContentLength,
				"max_size", maxSize,
			)
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{
				"error": fmt.Sprintf("Request body too large. Maximum size: %d bytes", maxSize),
			})
			c.Abort()
			return
		}

		// Limit the request body reader
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)

		c.Next()
	}
}

// formatValidationErrors formats validator errors into a user-friendly format
func (vm *ValidationMiddleware) formatValidationErrors(err error) []map[string]string {
	var errors []map[string]string

	for _, err := range err.(validator.ValidationErrors) {
		fieldError := map[string]string{
			"field":   err.Field(),
			"value":   fmt.Sprintf("%v", err.Value()),
			"tag":     err.Tag(),
			"message": vm.getValidationMessage(err),
		}
		errors = append(errors, fieldError)
	}

	return errors
}

// getValidationMessage returns a user-friendly validation message
func (vm *ValidationMiddleware) getValidationMessage(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", err.Field())
	case "min":
		return fmt.Sprintf("%s must be at least %s", err.Field(), err.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", err.Field(), err.Param())
	case "email":
		return fmt.Sprintf("%s must be a valid email address", err.Field())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", err.Field(), err.Param())
	case "task_name":
		return "Task name contains invalid characters or is too long"
	default:
		return fmt.Sprintf("%s failed validation: %s", err.Field(), err.Tag())
	}
}

// validateTaskName validates task name
func validateTaskName(fl validator.FieldLevel) bool {
	name := strings.TrimSpace(fl.Field().String())

	if name == "" || len(name) > 255 {
		return false
	}

	// Check for invalid characters
	invalidChars := []string{
		"<", ">", "\"", "'", "&", ";", "|", "`", "$",
		"\\", "\n", "\r", "\t",
	}

	for _, char := range invalidChars {
		if strings.Contains(name, char) {
			return false
		}
	}

	return true
}

// RequestSizeLimit returns middleware that limits request body size to 1MB
func RequestSizeLimit(logger *slog.Logger) gin.HandlerFunc {
	vm := NewValidationMiddleware(logger)
	return vm.ValidateRequestSize(1024 * 1024) // 1MB limit
}
