package response

import (
	"net/http"

	"pvjudge/pkg/errors"
	"pvjudge/pkg/utils/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Response represents a standard API response
type Response struct {
	Code    errors.ErrorCode `json:"code"`               // Error code
	Message string           `json:"message"`            // Error message
	Data    interface{}      `json:"data,omitempty"`     // Response data (omit if nil)
	Details interface{}      `json:"details,omitempty"`  // Additional details (omit if nil)
	TraceID string           `json:"trace_id,omitempty"` // Request trace ID
}

// Success sends a successful response with data
func Success(c *gin.Context, data interface{}) {
	resp := Response{
		Code:    errors.Success,
		Message: "Success",
		Data:    data,
		TraceID: getTraceID(c),
	}
	c.JSON(http.StatusOK, resp)
}

// Error sends an error response
// It automatically extracts error code and message from the error
func Error(c *gin.Context, err error) {
	customErr := errors.GetError(err)

	fields := []zap.Field{
		zap.Any("details", customErr.Details),
		zap.String("stack", customErr.Stack),
	}
	if runID := errors.RunID(err); runID != "" {
		fields = append(fields, zap.String("failed_run_id", runID))
	}
	logRequestError(c, customErr.Code, customErr.Error(), fields...)

	resp := Response{
		Code:    customErr.Code,
		Message: customErr.Error(),
		Details: customErr.Details,
		TraceID: getTraceID(c),
	}

	c.JSON(customErr.Code.HTTPStatus(), resp)
}

// ErrorWithCode sends an error response with specific error code
func ErrorWithCode(c *gin.Context, code errors.ErrorCode, message string) {
	if message == "" {
		message = code.Message()
	}

	logRequestError(c, code, message)

	resp := Response{
		Code:    code,
		Message: message,
		TraceID: getTraceID(c),
	}

	c.JSON(code.HTTPStatus(), resp)
}

// BadRequest sends a 400 bad request error
func BadRequest(c *gin.Context, message string) {
	ErrorWithCode(c, errors.InvalidParams, message)
}

// NotFound sends a 404 not found error
func NotFound(c *gin.Context, message string) {
	if message == "" {
		message = errors.NotFound.Message()
	}
	ErrorWithCode(c, errors.NotFound, message)
}

// List wraps a slice with its length
type List struct {
	Items interface{} `json:"items"`
	Total int         `json:"total"`
}

// SuccessWithList sends a successful response with a list of items
func SuccessWithList(c *gin.Context, items interface{}, total int) {
	Success(c, List{Items: items, Total: total})
}

// logRequestError logs caller errors at warn level and judge failures at error level.
func logRequestError(c *gin.Context, code errors.ErrorCode, message string, fields ...zap.Field) {
	fields = append([]zap.Field{zap.Int("code", int(code)), zap.String("message", message)}, fields...)
	if code.HTTPStatus() < http.StatusInternalServerError {
		logger.Warn(c.Request.Context(), "request rejected", fields...)
		return
	}
	logger.Error(c.Request.Context(), "request error", fields...)
}

// getTraceID extracts trace ID from context
func getTraceID(c *gin.Context) string {
	if traceID, exists := c.Get("trace_id"); exists {
		if s, ok := traceID.(string); ok {
			return s
		}
	}
	return ""
}

// AbortWithError aborts the request and sends error response
func AbortWithError(c *gin.Context, err error) {
	Error(c, err)
	c.Abort()
}

// AbortWithErrorCode aborts the request with error code
func AbortWithErrorCode(c *gin.Context, code errors.ErrorCode, message string) {
	ErrorWithCode(c, code, message)
	c.Abort()
}
