// Package response writes the JSON envelopes every capture API route returns.
package response

import (
	"encoding/json"
	"net/http"

	"github.com/labstack/echo/v4"
)

// APIResponse wraps a successful payload.
type APIResponse struct {
	Data    any    `json:"data"`
	Status  int    `json:"status"`
	Message string `json:"message,omitempty"`
	Path    string `json:"path"`
}

// APIError wraps a failure. Error carries the detail, Message the summary.
type APIError struct {
	Message string `json:"message"`
	Error   string `json:"error"`
	Path    string `json:"path"`
	Status  int    `json:"status"`
}

// ListPayload is the data of a list response: the items under a named key and
// how many there are.
type ListPayload[T any] struct {
	Items []T
	Key   string
	Count int
}

// MarshalJSON flattens the payload to {"<key>": [...], "count": n}.
func (p ListPayload[T]) MarshalJSON() ([]byte, error) {
	items := p.Items
	if items == nil {
		items = []T{}
	}
	return json.Marshal(map[string]any{
		p.Key:   items,
		"count": p.Count,
	})
}

func requestPath(c echo.Context) string {
	if c == nil || c.Request() == nil {
		return ""
	}
	return c.Request().URL.Path
}

func OK(c echo.Context, data any, message string) error {
	return c.JSON(http.StatusOK, APIResponse{
		Data:    data,
		Status:  http.StatusOK,
		Message: message,
		Path:    requestPath(c),
	})
}

// List sends a 200 with items under key, e.g. {"records": [...], "count": 3}.
// A nil slice is sent as [].
func List[T any](c echo.Context, key string, items []T, message string) error {
	return OK(c, ListPayload[T]{Items: items, Key: key, Count: len(items)}, message)
}

func Created(c echo.Context, data any, message string) error {
	return c.JSON(http.StatusCreated, APIResponse{
		Data:    data,
		Status:  http.StatusCreated,
		Message: message,
		Path:    requestPath(c),
	})
}

func Error(c echo.Context, status int, message, errDetail string) error {
	return c.JSON(status, APIError{
		Message: message,
		Error:   errDetail,
		Path:    requestPath(c),
		Status:  status,
	})
}

func BadRequest(c echo.Context, message, errDetail string) error {
	return Error(c, http.StatusBadRequest, message, errDetail)
}

func NotFound(c echo.Context, message, errDetail string) error {
	return Error(c, http.StatusNotFound, message, errDetail)
}

// Unavailable sends 503 for routes whose backing component (O3, the
// forwarder) is not configured in this process.
func Unavailable(c echo.Context, message, errDetail string) error {
	return Error(c, http.StatusServiceUnavailable, message, errDetail)
}

func InternalError(c echo.Context, message, errDetail string) error {
	return Error(c, http.StatusInternalServerError, message, errDetail)
}
