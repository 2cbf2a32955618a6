package validator

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"wasteops/pkg/logger"
	"wasteops/pkg/model"

	"github.com/go-playground/validator/v10"
)

const dateLayout = "2006-01-02"

var scopeLabelRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (v ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", v.Field, v.Message)
}

type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return ""
	}
	var messages []string
	for _, err := range v {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %d error(s): [%s]", len(v), strings.Join(messages, "; "))
}

// Fields maps each failing JSON field to its message.
func (v ValidationErrors) Fields() map[string]any {
	out := make(map[string]any, len(v))
	for _, err := range v {
		out[err.Field] = err.Message
	}
	return out
}

type LockValidator struct {
	validate *validator.Validate
	logger   *logger.Logger
}

func NewLockValidator(log *logger.Logger) *LockValidator {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	if err := v.RegisterValidation("scope_label", validateScopeLabel); err != nil {
		log.Fatal("Failed to register 'scope_label' validator", "error", err)
	}

	log.Debug("Lock validator initialized successfully")

	return &LockValidator{
		validate: v,
		logger:   log,
	}
}

func validateScopeLabel(fl validator.FieldLevel) bool {
	return scopeLabelRegex.MatchString(fl.Field().String())
}

func (v *LockValidator) Validate(req *model.LockRequest) error {
	if err := v.validate.Struct(req); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			return v.translateValidationErrors(validationErrs)
		}
		return err
	}
	return nil
}

func (v *LockValidator) ValidateDate(date string) error {
	if err := v.validate.Var(date, "required,datetime="+dateLayout); err != nil {
		return ValidationErrors{
			ValidationError{Field: "date", Message: "date must be in YYYY-MM-DD format"},
		}
	}
	return nil
}

func (v *LockValidator) translateValidationErrors(errs validator.ValidationErrors) ValidationErrors {
	var validationErrors ValidationErrors

	for _, err := range errs {
		message := err.Error()

		switch err.Tag() {
		case "required":
			message = fmt.Sprintf("%s is required", err.Field())
		case "datetime":
			message = fmt.Sprintf("%s must be in YYYY-MM-DD format", err.Field())
		case "oneof":
			message = fmt.Sprintf("%s must be one of: %s", err.Field(), err.Param())
		case "gt":
			message = fmt.Sprintf("%s must be greater than %s", err.Field(), err.Param())
		case "max":
			message = fmt.Sprintf("%s must be at most %s characters", err.Field(), err.Param())
		case "scope_label":
			message = fmt.Sprintf("%s may only contain letters, digits, '.', '_' and '-'", err.Field())
		}

		validationErrors = append(validationErrors, ValidationError{
			Field:   err.Field(),
			Message: message,
		})
	}

	return validationErrors
}
