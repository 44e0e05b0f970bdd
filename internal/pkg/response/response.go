package response

import (
	"net/http"
	"reflect"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shareloom/core/internal/pkg/apperr"
)

// Pagination metadata returned with paginated responses.
type Pagination struct {
	Total       int64 `json:"total"`
	CurrentPage int   `json:"current_page"`
	TotalPage   int   `json:"total_page"`
	Size        int   `json:"size"`
	HasNextPage bool  `json:"has_next_page"`
}

// pagedResponse is the envelope for paginated list responses.
type pagedResponse struct {
	Data       interface{} `json:"data"`
	Pagination Pagination  `json:"pagination"`
}

// OK sends a 200 response. Arrays/slices are wrapped in {data: [...]}.
func OK(c *gin.Context, data interface{}) {
	if data != nil {
		v := reflect.ValueOf(data)
		if v.Kind() == reflect.Slice {
			c.JSON(http.StatusOK, gin.H{"data": data})
			return
		}
	}
	c.JSON(http.StatusOK, data)
}

// Paged sends a paginated response.
func Paged(c *gin.Context, data interface{}, pagination Pagination) {
	c.JSON(http.StatusOK, pagedResponse{
		Data:       data,
		Pagination: pagination,
	})
}

// Created sends a 201 response.
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, data)
}

// NoContent sends a 204 response.
func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// Accepted sends a 202 response for work that continues asynchronously.
func Accepted(c *gin.Context, data interface{}) {
	c.JSON(http.StatusAccepted, data)
}

func fail(c *gin.Context, status int, code apperr.Code, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"ok":      0,
		"code":    code,
		"message": message,
	})
}

// BadRequest sends a 400 error response.
func BadRequest(c *gin.Context, message string) {
	fail(c, http.StatusBadRequest, apperr.CodeValidation, message)
}

// Unauthorized sends a 401 error response.
func Unauthorized(c *gin.Context) {
	fail(c, http.StatusUnauthorized, apperr.CodeForbidden, "authentication required")
}

// Forbidden sends a 403 error response.
func Forbidden(c *gin.Context, message string) {
	fail(c, http.StatusForbidden, apperr.CodeForbidden, message)
}

// NotFound sends a 404 error response.
func NotFound(c *gin.Context, what string) {
	fail(c, http.StatusNotFound, apperr.CodeNotFound, what+" not found")
}

// MethodNotAllowed sends a 405 error response.
func MethodNotAllowed(c *gin.Context) {
	fail(c, http.StatusMethodNotAllowed, apperr.CodeValidation, "method not allowed")
}

// TooManyRequests sends a 429 error response with a Retry-After header.
func TooManyRequests(c *gin.Context, retryAfterSeconds int, message string) {
	c.Header("Retry-After", strconv.Itoa(retryAfterSeconds))
	fail(c, http.StatusTooManyRequests, apperr.CodeRateLimited, message)
}

// InternalError sends a 500 error response.
func InternalError(c *gin.Context, err error) {
	fail(c, http.StatusInternalServerError, apperr.CodeDependency, err.Error())
}

// Error renders a typed application error with the matching HTTP status.
// Untyped errors fall through to 500.
func Error(c *gin.Context, err error) {
	e := apperr.AsError(err)
	if e == nil {
		InternalError(c, err)
		return
	}

	switch e.Code {
	case apperr.CodeValidation:
		fail(c, http.StatusBadRequest, e.Code, e.Message)
	case apperr.CodeNotFound:
		fail(c, http.StatusNotFound, e.Code, e.Message)
	case apperr.CodeConflict, apperr.CodeDuplicateContent:
		fail(c, http.StatusConflict, e.Code, e.Message)
	case apperr.CodeRateLimited:
		if !e.RetryAfter.IsZero() {
			c.Header("Retry-After", e.RetryAfter.UTC().Format(http.TimeFormat))
		}
		fail(c, http.StatusTooManyRequests, e.Code, e.Message)
	case apperr.CodeForbidden:
		fail(c, http.StatusForbidden, e.Code, e.Message)
	case apperr.CodeTerminalJob:
		fail(c, http.StatusUnprocessableEntity, e.Code, e.Message)
	default:
		fail(c, http.StatusInternalServerError, e.Code, e.Message)
	}
}
