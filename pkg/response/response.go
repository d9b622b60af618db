package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ErrorBody is the error envelope returned by every failing endpoint
type ErrorBody struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

// OK writes a 200 response with the given payload
func OK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, data)
}

// Created writes a 201 response with the given payload
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, data)
}

// NoContent writes a 204 response
func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// Error writes an error envelope with the given status
func Error(c *gin.Context, status int, code, message string) {
	c.JSON(status, ErrorBody{
		Error:   http.StatusText(status),
		Code:    code,
		Message: message,
	})
}

// BadRequest writes a 400 validation error
func BadRequest(c *gin.Context, code, message string) {
	Error(c, http.StatusBadRequest, code, message)
}

// NotFound writes a 404 error
func NotFound(c *gin.Context, code, message string) {
	Error(c, http.StatusNotFound, code, message)
}

// Conflict writes a 409 error
func Conflict(c *gin.Context, code, message string) {
	Error(c, http.StatusConflict, code, message)
}

// Gone writes a 410 error
func Gone(c *gin.Context, code, message string) {
	Error(c, http.StatusGone, code, message)
}

// Unauthorized writes a 401 error
func Unauthorized(c *gin.Context, message string) {
	Error(c, http.StatusUnauthorized, "UNAUTHORIZED", message)
}

// ServiceUnavailable writes a 503 error
func ServiceUnavailable(c *gin.Context, code, message string) {
	Error(c, http.StatusServiceUnavailable, code, message)
}

// InternalError writes a 500 error
func InternalError(c *gin.Context) {
	Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
}
