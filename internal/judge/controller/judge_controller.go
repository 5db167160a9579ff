package controller

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"pvjudge/internal/judge/model"
	appErr "pvjudge/pkg/errors"
	"pvjudge/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

const (
	defaultRecentLimit = 20
	maxRecentLimit     = 200
)

// RunService judges a request and stores its verdicts.
type RunService interface {
	Run(ctx context.Context, req model.JudgeRequest) (model.RunResponse, error)
}

// VerdictReader reads stored verdicts.
type VerdictReader interface {
	Get(ctx context.Context, runID string) (model.VerdictRecord, error)
	Recent(ctx context.Context, limit int64) ([]model.VerdictRecord, error)
}

// SuiteWriter uploads reference suites.
type SuiteWriter interface {
	Put(ctx context.Context, key string, data []byte) error
}

// JudgeController handles judge run requests.
type JudgeController struct {
	runs     RunService
	verdicts VerdictReader
	suites   SuiteWriter
	maxSuite int64
}

// NewJudgeController creates a new controller. suites may be nil, which
// disables suite uploads.
func NewJudgeController(runs RunService, verdicts VerdictReader, suites SuiteWriter, maxSuiteBytes int64) *JudgeController {
	return &JudgeController{runs: runs, verdicts: verdicts, suites: suites, maxSuite: maxSuiteBytes}
}

// Guards are middleware mounted in front of the judge routes. Auth runs
// on every route; nil entries are skipped.
type Guards struct {
	Auth       gin.HandlerFunc
	RunLimit   gin.HandlerFunc
	SuiteAdmin gin.HandlerFunc
	SuiteLimit gin.HandlerFunc
}

// RegisterRoutes mounts the judge API under r.
func (h *JudgeController) RegisterRoutes(r gin.IRouter, guards Guards) {
	g := r.Group("/api/v1/judge", handlers(guards.Auth)...)
	g.POST("/runs", handlers(guards.RunLimit, h.CreateRun)...)
	g.GET("/runs", h.ListRuns)
	g.GET("/runs/:id", h.GetRun)
	g.PUT("/suites/*key", handlers(guards.SuiteAdmin, guards.SuiteLimit, h.PutSuite)...)
}

func handlers(fns ...gin.HandlerFunc) []gin.HandlerFunc {
	out := make([]gin.HandlerFunc, 0, len(fns))
	for _, fn := range fns {
		if fn != nil {
			out = append(out, fn)
		}
	}
	return out
}

// CreateRun judges synchronously and returns every verdict.
func (h *JudgeController) CreateRun(c *gin.Context) {
	var req model.JudgeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body: "+err.Error())
		return
	}
	resp, err := h.runs.Run(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, resp)
}

// GetRun returns the stored verdict of one run.
func (h *JudgeController) GetRun(c *gin.Context) {
	runID := strings.TrimSpace(c.Param("id"))
	if runID == "" {
		response.BadRequest(c, "Invalid run id")
		return
	}
	rec, err := h.verdicts.Get(c.Request.Context(), runID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, rec)
}

// ListRuns returns the most recent verdicts.
func (h *JudgeController) ListRuns(c *gin.Context) {
	limit := defaultRecentLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			response.BadRequest(c, "Invalid limit")
			return
		}
		limit = min(n, maxRecentLimit)
	}
	records, err := h.verdicts.Recent(c.Request.Context(), int64(limit))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithList(c, records, len(records))
}

// PutSuite stores the request body as a suite under the given key.
func (h *JudgeController) PutSuite(c *gin.Context) {
	if h.suites == nil {
		response.Error(c, appErr.New(appErr.ServiceUnavailable).WithMessage("suite storage is not configured"))
		return
	}
	key := strings.TrimPrefix(c.Param("key"), "/")
	if key == "" {
		response.BadRequest(c, "Invalid suite key")
		return
	}
	body := io.Reader(c.Request.Body)
	if h.maxSuite > 0 {
		body = io.LimitReader(body, h.maxSuite+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		response.BadRequest(c, "Read suite body failed")
		return
	}
	if h.maxSuite > 0 && int64(len(data)) > h.maxSuite {
		response.ErrorWithCode(c, appErr.SuiteTooLarge, fmt.Sprintf("suite exceeds %d bytes", h.maxSuite))
		return
	}
	if err := h.suites.Put(c.Request.Context(), key, data); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"suite_key": key, "size": len(data)})
}
