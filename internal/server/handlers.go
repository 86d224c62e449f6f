package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/loykin/nexus/internal/process"
)

// maxTicksPerRequest bounds POST /tick?n=.
const maxTicksPerRequest = 1000

type SpawnRequest struct {
	Name     string `json:"name"`
	Priority int    `json:"priority"`
	Memory   int    `json:"memory"`
	Allocate bool   `json:"allocate"`
}

type SpawnResponse struct {
	PID   int   `json:"pid"`
	Pages []int `json:"pages,omitempty"`
}

type ProcessInfo struct {
	process.Process `yaml:",inline"`
	Pages           []int `json:"pages" yaml:"pages"`
}

type AllocateRequest struct {
	Size int `json:"size"`
}

type MemoryResponse struct {
	PID   int   `json:"pid"`
	Pages []int `json:"pages,omitempty"`
	Freed int   `json:"freed"`
}

func (r *Router) handleSpawn(c *gin.Context) {
	// omitted fields keep these defaults, explicit zeros are honoured
	req := SpawnRequest{Priority: process.DefaultPriority, Memory: process.DefaultMemoryRequired}
	if err := c.ShouldBindJSON(&req); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	ctx := c.Request.Context()
	if !req.Allocate {
		pid, err := r.k.Spawn(ctx, req.Name, req.Priority, req.Memory)
		if err != nil {
			writeError(c, err)
			return
		}
		writeJSON(c, http.StatusCreated, SpawnResponse{PID: pid})
		return
	}
	pid, pages, err := r.k.SpawnAndAllocate(ctx, req.Name, req.Priority, req.Memory)
	if err != nil {
		// the process exists even when its memory could not be reserved
		writeJSON(c, statusFor(err), errorResp{Error: err.Error(), PID: pid})
		return
	}
	writeJSON(c, http.StatusCreated, SpawnResponse{PID: pid, Pages: pages})
}

func (r *Router) handleListProcesses(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.k.Processes())
}

func (r *Router) handleGetProcess(c *gin.Context) {
	pid, ok := pidParam(c)
	if !ok {
		return
	}
	p, err := r.k.Process(pid)
	if err != nil {
		writeError(c, err)
		return
	}
	pages := r.k.Pages(pid)
	if pages == nil {
		pages = []int{}
	}
	writeJSON(c, http.StatusOK, ProcessInfo{Process: p, Pages: pages})
}

// handleKill never reports unknown pids; termination is idempotent.
func (r *Router) handleKill(c *gin.Context) {
	pid, ok := pidParam(c)
	if !ok {
		return
	}
	reclaim, _ := strconv.ParseBool(c.DefaultQuery("reclaim", "false"))
	freed := r.k.Kill(c.Request.Context(), pid, reclaim)
	writeJSON(c, http.StatusOK, MemoryResponse{PID: pid, Freed: freed})
}

func (r *Router) handleAllocate(c *gin.Context) {
	pid, ok := pidParam(c)
	if !ok {
		return
	}
	var req AllocateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	pages, err := r.k.Allocate(c.Request.Context(), pid, req.Size)
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, MemoryResponse{PID: pid, Pages: pages})
}

func (r *Router) handleFree(c *gin.Context) {
	pid, ok := pidParam(c)
	if !ok {
		return
	}
	if _, err := r.k.Process(pid); err != nil {
		writeError(c, err)
		return
	}
	freed := r.k.Free(c.Request.Context(), pid)
	writeJSON(c, http.StatusOK, MemoryResponse{PID: pid, Freed: freed})
}

func (r *Router) handleTick(c *gin.Context) {
	n, ok := intQuery(c, "n", 1)
	if !ok {
		return
	}
	if n > maxTicksPerRequest {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "n must be <= " + strconv.Itoa(maxTicksPerRequest)})
		return
	}
	writeJSON(c, http.StatusOK, r.k.TickN(c.Request.Context(), n))
}

func (r *Router) handleScheduler(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.k.SchedulerView())
}

func (r *Router) handleMemory(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.k.Memory())
}

func (r *Router) handleStats(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.k.Stats())
}

func (r *Router) handleEvents(c *gin.Context) {
	limit, ok := intQuery(c, "limit", 50)
	if !ok {
		return
	}
	writeJSON(c, http.StatusOK, r.k.Events(limit))
}
