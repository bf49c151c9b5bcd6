package middleware

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/mealtracker/backend/internal/domain/catalog"
	"github.com/mealtracker/backend/internal/interfaces/http/dto"
)

// ProductCategoryTag validates a string as a catalog category in any letter case
const ProductCategoryTag = "product_category"

// SetupValidator configures gin's validator: errors name fields by their JSON
// tag and the product_category tag is registered.
func SetupValidator() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return errors.New("unexpected gin validator engine")
	}

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			name = strings.SplitN(fld.Tag.Get("form"), ",", 2)[0]
		}
		return name
	})
	return v.RegisterValidation(ProductCategoryTag, func(fl validator.FieldLevel) bool {
		_, err := catalog.ParseCategory(fl.Field().String())
		return err == nil
	})
}

// FormatValidationErrors builds the 400 body for a failed binding.
// Each detail message reads "field: message".
func FormatValidationErrors(err error, requestID string) dto.Response {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return dto.NewErrorResponseWithRequestID(dto.ErrCodeBadRequest, "Malformed request body", requestID)
	}

	details := make([]dto.ValidationDetail, 0, len(validationErrors))
	messages := make([]string, 0, len(validationErrors))
	for _, e := range validationErrors {
		msg := fmt.Sprintf("%s: %s", e.Field(), validationMessage(e))
		details = append(details, dto.ValidationDetail{Field: e.Field(), Message: msg})
		messages = append(messages, msg)
	}
	return dto.NewValidationErrorResponse(strings.Join(messages, "; "), requestID, details)
}

func validationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "must not be blank"
	case "min":
		if e.Kind() == reflect.String {
			return "must be at least " + e.Param() + " characters"
		}
		return "must be greater than or equal to " + e.Param()
	case "max":
		if e.Kind() == reflect.String {
			return "must be at most " + e.Param() + " characters"
		}
		return "must be less than or equal to " + e.Param()
	case "uuid":
		return "must be a valid UUID"
	case ProductCategoryTag:
		names := make([]string, 0, len(catalog.Categories()))
		for _, c := range catalog.Categories() {
			names = append(names, c.String())
		}
		return "must be one of " + strings.Join(names, ", ")
	default:
		return "is invalid"
	}
}
