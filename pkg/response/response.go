package response

import (
	"errors"

	"github.com/go-playground/validator/v10"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

var EmptyRequestBodyResponse = Response{
	Status:  StatusError,
	Error:   "Empty Request Body",
	Message: "Request body is empty. Please provide necessary data.",
}

var BadRequestResponse = Response{
	Status:  StatusError,
	Error:   "Bad Request",
	Message: "The request couldn't be processed. Please check your input.",
}

var ResourceNotFoundResponse = Response{
	Status:  StatusError,
	Error:   "Resource Not Found",
	Message: "The requested resource was not found.",
}

var ValidationCooldownResponse = Response{
	Status:  StatusError,
	Error:   "Validation Cooldown",
	Message: "The link was validated recently. Please try again later.",
}

var ServerErrorResponse = Response{
	Status:  StatusError,
	Error:   "Server Error",
	Message: "An internal server error occurred. Please try again later.",
}

type Response struct {
	Status  string `json:"status"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message"`
	Details []any  `json:"details,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func SuccessResponse(msg string, data ...any) Response {
	resp := Response{
		Status:  StatusSuccess,
		Message: msg,
	}

	if len(data) > 0 && data[0] != nil {
		resp.Data = data[0]
	}

	return resp
}

type validationError struct {
	Field string `json:"field"`
	Value string `json:"value"`
	Issue string `json:"issue"`
}

func getValidationErrors(err error) []validationError {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return nil
	}

	errs := make([]validationError, 0, len(validationErrs))
	for _, fieldErr := range validationErrs {
		issue := "Invalid value."

		switch fieldErr.Tag() {
		case "required":
			issue = "This field is required."
		case "url":
			issue = "Invalid url."
		}

		value, _ := fieldErr.Value().(string)

		errs = append(errs, validationError{
			Field: fieldErr.Field(),
			Value: value,
			Issue: issue,
		})
	}

	return errs
}

func ValidationErrorResponse(err error) Response {
	resp := Response{
		Status:  StatusError,
		Error:   "Validation Error",
		Message: "The request contains invalid data. Please check your input.",
	}

	for _, validationErr := range getValidationErrors(err) {
		resp.Details = append(resp.Details, validationErr)
	}

	return resp
}
