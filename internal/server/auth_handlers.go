package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/loykin/nexus/internal/auth"
)

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type CreateFileRequest struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

type FileContent struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

func (r *Router) handleLogin(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	sess, err := r.k.Auth().Authenticate(req.Username, req.Password)
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, sess)
}

func (r *Router) handleLogout(c *gin.Context) {
	writeJSON(c, http.StatusOK, okResp{OK: r.k.Auth().Logout(auth.SessionID(c.Request))})
}

func (r *Router) handleListFiles(c *gin.Context) {
	entries, err := r.k.FS().List(c.DefaultQuery("dir", "/"))
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, entries)
}

func (r *Router) handleReadFile(c *gin.Context) {
	path := c.Query("path")
	if path == "" {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "path required"})
		return
	}
	content, err := r.k.FS().Read(path)
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, FileContent{Path: path, Content: content})
}

func (r *Router) handleCreateFile(c *gin.Context) {
	var req CreateFileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	p, err := r.k.FS().CreateFile(req.Name, req.Content)
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, FileContent{Path: p, Content: req.Content})
}
