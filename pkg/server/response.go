package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// apiError is an error with the HTTP status and code it should be reported with
type apiError struct {
	Status int
	Code   string
	Err    error
}

func (e *apiError) Error() string {
	return e.Err.Error()
}

func (e *apiError) Unwrap() error {
	return e.Err
}

func badRequest(format string, args ...interface{}) *apiError {
	return &apiError{Status: http.StatusBadRequest, Code: "bad_request", Err: fmt.Errorf(format, args...)}
}

func notFound(msg string) *apiError {
	return &apiError{Status: http.StatusNotFound, Code: "not_found", Err: errors.New(msg)}
}

func unauthorized() *apiError {
	return &apiError{Status: http.StatusUnauthorized, Code: "unauthorized", Err: errUnauthorized}
}

func internal(msg string, err error) *apiError {
	return &apiError{Status: http.StatusInternalServerError, Code: "internal", Err: fmt.Errorf("%s: %w", msg, err)}
}

type errorBody struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

// respondError writes the error envelope. Internal errors are logged with
// their cause and reported to the client by their summary only.
func respondError(c *gin.Context, err error) {
	var apiErr *apiError
	if !errors.As(err, &apiErr) {
		apiErr = internal("Internal server error", err)
	}

	msg := apiErr.Error()
	if apiErr.Status >= http.StatusInternalServerError {
		_ = c.Error(err)
		msg, _, _ = strings.Cut(msg, ":")
	}
	c.JSON(apiErr.Status, errorEnvelope{Error: errorBody{Message: msg, Code: apiErr.Code}})
}

// validationMessage turns binding failures into the message for the first
// failing field
func validationMessage(err error, messages map[string]string) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "Invalid request body"
	}
	e := verrs[0]
	if msg, ok := messages[e.Field()+"."+e.Tag()]; ok {
		return msg
	}
	if msg, ok := messages[e.Tag()]; ok {
		return msg
	}
	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", e.Field())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", e.Field(), e.Param())
	default:
		return fmt.Sprintf("%s is invalid", e.Field())
	}
}
