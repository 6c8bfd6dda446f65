package config

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

const dateLayout = "2006-01-02"

var filterOperators = map[string]bool{
	">": true, ">=": true, "<": true, "<=": true, "==": true, "!=": true,
}

// CustomValidator wraps the validator with custom validation rules
type CustomValidator struct {
	validator *validator.Validate
}

// NewValidator creates a new validator with custom validation functions
func NewValidator() *CustomValidator {
	v := validator.New()

	_ = v.RegisterValidation("environment", validateEnvironment)
	_ = v.RegisterValidation("loglevel", validateLogLevel)
	_ = v.RegisterValidation("dateonly", validateDateOnly)
	_ = v.RegisterValidation("filterop", validateFilterSpec)

	return &CustomValidator{validator: v}
}

// Validate validates the entire configuration
func Validate(cfg *Config) error {
	return NewValidator().Validate(cfg)
}

// Validate validates the configuration using registered validation rules
func (cv *CustomValidator) Validate(cfg *Config) error {
	if err := cv.validator.Struct(cfg); err != nil {
		if validationErrors, ok := err.(validator.ValidationErrors); ok {
			return formatValidationErrors(validationErrors)
		}
		return fmt.Errorf("validation failed: %w", err)
	}

	return validateCrossField(cfg)
}

func validateEnvironment(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "development", "staging", "production":
		return true
	default:
		return false
	}
}

func validateLogLevel(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "debug", "info", "warn", "error":
		return true
	default:
		return false
	}
}

func validateDateOnly(fl validator.FieldLevel) bool {
	_, err := time.Parse(dateLayout, fl.Field().String())
	return err == nil
}

// validateFilterSpec checks one filters entry: [operator, numeric threshold].
func validateFilterSpec(fl validator.FieldLevel) bool {
	field := fl.Field()
	if field.Kind() == reflect.Interface {
		field = field.Elem()
	}
	if field.Kind() != reflect.Slice || field.Len() != 2 {
		return false
	}
	op, ok := field.Index(0).Interface().(string)
	if !ok || !filterOperators[op] {
		return false
	}
	switch field.Index(1).Interface().(type) {
	case int, int32, int64, float32, float64, uint, uint32, uint64:
		return true
	default:
		return false
	}
}

// validateCrossField performs cross-field validations
func validateCrossField(cfg *Config) error {
	if len(cfg.Strategy.Indicators) != len(cfg.Strategy.Weights) {
		return fmt.Errorf("strategy has %d indicators but %d weights",
			len(cfg.Strategy.Indicators), len(cfg.Strategy.Weights))
	}
	for i, w := range cfg.Strategy.Weights {
		if w == 0 {
			return fmt.Errorf("strategy weight for %s must be non-zero", cfg.Strategy.Indicators[i])
		}
	}

	if err := validateDateRange("strategy", cfg.Strategy.StartDate, cfg.Strategy.EndDate); err != nil {
		return err
	}
	if err := validateDateRange("sweep", cfg.Sweep.StartDate, cfg.Sweep.EndDate); err != nil {
		return err
	}

	if cfg.Sweep.Enabled && strings.TrimSpace(cfg.Sweep.Schedule) == "" {
		return fmt.Errorf("sweep schedule is required when the sweep is enabled")
	}

	if cfg.IsProduction() && cfg.Database.Enabled && cfg.Database.SSLMode == "disable" {
		return fmt.Errorf("production environment requires SSL mode to be 'require' or 'verify-full'")
	}

	return nil
}

func validateDateRange(section, start, end string) error {
	if start == "" || end == "" {
		return nil
	}
	startDate, err := time.Parse(dateLayout, start)
	if err != nil {
		return fmt.Errorf("invalid %s start_date format: %w", section, err)
	}
	endDate, err := time.Parse(dateLayout, end)
	if err != nil {
		return fmt.Errorf("invalid %s end_date format: %w", section, err)
	}
	if endDate.Before(startDate) {
		return fmt.Errorf("%s start_date must not be after end_date", section)
	}
	return nil
}

// formatValidationErrors formats validation errors into a readable string
func formatValidationErrors(validationErrors validator.ValidationErrors) error {
	var errMsg strings.Builder
	for _, fieldError := range validationErrors {
		field := fieldError.StructField()
		tag := fieldError.Tag()
		value := fieldError.Value()

		switch tag {
		case "required", "required_if":
			fmt.Fprintf(&errMsg, "- Field '%s' is required\n", field)
		case "min", "max":
			fmt.Fprintf(&errMsg, "- Field '%s' validation failed: %s constraint violated\n", field, tag)
		case "gt", "gte", "lt", "lte":
			fmt.Fprintf(&errMsg, "- Field '%s' validation failed: numeric constraint %s violated\n", field, tag)
		case "environment":
			fmt.Fprintf(&errMsg, "- Field '%s' must be one of: development, staging, production\n", field)
		case "loglevel":
			fmt.Fprintf(&errMsg, "- Field '%s' must be one of: debug, info, warn, error\n", field)
		case "dateonly":
			fmt.Fprintf(&errMsg, "- Field '%s' must be a YYYY-MM-DD date, got '%v'\n", field, value)
		case "filterop":
			fmt.Fprintf(&errMsg, "- Field '%s' must be [operator, threshold] with operator one of > >= < <= == !=, got %v\n", fieldError.Namespace(), value)
		case "oneof":
			fmt.Fprintf(&errMsg, "- Field '%s' has invalid value '%v'\n", field, value)
		default:
			fmt.Fprintf(&errMsg, "- Field '%s' failed validation: %s\n", field, tag)
		}
	}
	return fmt.Errorf("configuration validation failed:\n%s", errMsg.String())
}

// ValidateEnvironment validates environment-specific requirements
func ValidateEnvironment(cfg *Config) error {
	if cfg.IsProduction() && cfg.Database.Enabled {
		if cfg.Database.SSLMode == "disable" {
			return fmt.Errorf("production environment requires database SSL mode to be 'require' or 'verify-full'")
		}
		if isTestCredential(cfg.Database.User) {
			return fmt.Errorf("production environment should not use test database credentials")
		}
	}
	return nil
}

var testCredentialPattern = regexp.MustCompile(`(?i)(test|demo|example|placeholder|YOUR_)`)

func isTestCredential(credential string) bool {
	return testCredentialPattern.MatchString(credential)
}
