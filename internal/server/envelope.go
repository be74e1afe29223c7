package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/loykin/interpctl/internal/interpreter"
	"github.com/loykin/interpctl/internal/lifecycle"
	"github.com/loykin/interpctl/internal/project"
)

// Envelope wraps every API response body.
type Envelope struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Body    any    `json:"body"`
}

var statusNames = map[int]string{
	http.StatusOK:                  "OK",
	http.StatusCreated:             "CREATED",
	http.StatusBadRequest:          "BAD_REQUEST",
	http.StatusNotFound:            "NOT_FOUND",
	http.StatusInternalServerError: "INTERNAL_SERVER_ERROR",
	http.StatusGatewayTimeout:      "GATEWAY_TIMEOUT",
}

// StatusName returns the envelope status for an HTTP code.
func StatusName(code int) string {
	if n, ok := statusNames[code]; ok {
		return n
	}
	return http.StatusText(code)
}

func respond(c *gin.Context, code int, message string, body any) {
	c.JSON(code, Envelope{Status: StatusName(code), Message: message, Body: body})
}

func ok(c *gin.Context, body any) { respond(c, http.StatusOK, "", body) }

// errorStatus is the single place errors become HTTP codes.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, lifecycle.ErrTimeout):
		return http.StatusGatewayTimeout, lifecycle.ErrTimeout.Error()
	case errors.Is(err, lifecycle.ErrProjectNotFound),
		errors.Is(err, project.ErrNotFound),
		errors.Is(err, lifecycle.ErrSettingNotFound),
		errors.Is(err, interpreter.ErrSettingNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, lifecycle.ErrRestartRejected),
		errors.Is(err, interpreter.ErrUnknownGroup):
		return http.StatusBadRequest, err.Error()
	}
	return http.StatusInternalServerError, err.Error()
}

func (r *Router) fail(c *gin.Context, err error) {
	code, msg := errorStatus(err)
	if code >= http.StatusInternalServerError {
		r.log.Error("request failed", "method", c.Request.Method, "path", c.FullPath(), "status", code, "error", err)
	}
	respond(c, code, msg, nil)
}

func badRequest(c *gin.Context, msg string) {
	respond(c, http.StatusBadRequest, msg, nil)
}
