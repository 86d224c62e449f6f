package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/loykin/nexus/internal/auth"
	"github.com/loykin/nexus/internal/kernel"
	"github.com/loykin/nexus/internal/memory"
	"github.com/loykin/nexus/internal/vfs"
)

type errorResp struct {
	Error string `json:"error"`
	PID   int    `json:"pid,omitempty"`
}

type okResp struct {
	OK bool `json:"ok"`
}

func sanitizeBase(bp string) string {
	bp = strings.TrimSpace(bp)
	if bp == "" || bp == "/" {
		return ""
	}
	if !strings.HasPrefix(bp, "/") {
		bp = "/" + bp
	}
	return strings.TrimRight(bp, "/")
}

func writeJSON(c *gin.Context, code int, v any) {
	c.Header("Content-Type", "application/json")
	c.Status(code)
	_ = json.NewEncoder(c.Writer).Encode(v)
}

func writeError(c *gin.Context, err error) {
	writeJSON(c, statusFor(err), errorResp{Error: err.Error()})
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, kernel.ErrNotFound), errors.Is(err, vfs.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, kernel.ErrInvalidArgument),
		errors.Is(err, memory.ErrInvalidSize),
		errors.Is(err, vfs.ErrBadName),
		errors.Is(err, vfs.ErrNotDir),
		errors.Is(err, auth.ErrInvalidUser):
		return http.StatusBadRequest
	case errors.Is(err, memory.ErrInsufficientMemory), errors.Is(err, kernel.ErrProcessTerminated):
		return http.StatusConflict
	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func pidParam(c *gin.Context) (int, bool) {
	pid, err := strconv.Atoi(c.Param("pid"))
	if err != nil || pid <= 0 {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid pid: " + c.Param("pid")})
		return 0, false
	}
	return pid, true
}

// intQuery reads a positive integer query parameter, falling back to def.
func intQuery(c *gin.Context, key string, def int) (int, bool) {
	s := c.Query(key)
	if s == "" {
		return def, true
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid " + key + ": " + s})
		return 0, false
	}
	return n, true
}
