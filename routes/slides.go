package routes

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"teacher-dashboard-api/internal/config"
	"teacher-dashboard-api/internal/logger"
	"teacher-dashboard-api/internal/queue"
	"teacher-dashboard-api/middleware"
	"teacher-dashboard-api/models"
	"teacher-dashboard-api/services"
	"teacher-dashboard-api/utils"
)

// SlideAPI is what the handlers need from services.SlideService.
type SlideAPI interface {
	Upload(ctx context.Context, req services.UploadRequest) ([]models.SlideInDB, error)
	Search(ctx context.Context, req services.SearchRequest) ([]models.SlideInDB, error)
	List(ctx context.Context, req services.ListRequest) (*models.SlideList, error)
	Get(ctx context.Context, id string) (*models.SlideInDB, error)
}

// JobQueue accepts uploads for background ingestion. Nil disables ?async=true.
type JobQueue interface {
	Enqueue(ctx context.Context, p queue.IngestPayload) (string, error)
	Status(ctx context.Context, taskID string) (*models.IngestJob, error)
}

type slideHandler struct {
	slides      SlideAPI
	jobs        JobQueue
	uploadDir   string
	maxFileSize int64
}

func SetupSlideRoutes(router *gin.Engine, cfg *config.Config, slides SlideAPI, jobs JobQueue) {
	h := &slideHandler{
		slides:      slides,
		jobs:        jobs,
		uploadDir:   filepath.Join(cfg.FileStorageDir, "uploads"),
		maxFileSize: cfg.MaxFileSize,
	}

	uploadChain := []gin.HandlerFunc{}
	if cfg.JWTSecret != "" {
		uploadChain = append(uploadChain,
			middleware.RequireAuth(cfg.JWTSecret),
			middleware.RequireRole(middleware.RoleTeacher, middleware.RoleAdmin))
	}
	uploadChain = append(uploadChain, middleware.RequestSizeLimit(cfg.MaxFileSize), h.upload)

	group := router.Group("/slides")
	group.POST("/", uploadChain...)
	group.GET("/", h.list)
	group.GET("/search", h.search)
	group.GET("/search/", h.search)
	group.GET("/jobs/:task_id", h.jobStatus)
	group.GET("/:slide_id", h.get)
}

func (h *slideHandler) upload(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			utils.RespondWithAPIError(c, utils.FileTooLarge(maxErr.Limit, h.maxFileSize))
			return
		}
		utils.RespondWithError(c, http.StatusBadRequest, "no_file", "A file must be uploaded in the 'file' field", nil)
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		utils.RespondWithInternalError(c, "Failed to read uploaded file", nil)
		return
	}
	defer file.Close()

	// Reading one byte past the cap detects oversized files without buffering them.
	data, err := io.ReadAll(io.LimitReader(file, h.maxFileSize+1))
	if err != nil {
		utils.RespondWithInternalError(c, "Failed to read uploaded file", nil)
		return
	}
	if int64(len(data)) > h.maxFileSize {
		utils.RespondWithAPIError(c, utils.FileTooLarge(fileHeader.Size, h.maxFileSize))
		return
	}

	req := services.UploadRequest{
		SlideName:   c.PostForm("slide_name"),
		CourseName:  c.PostForm("course_name"),
		SubjectName: c.PostForm("subject_name"),
		Description: c.PostForm("description"),
		FileName:    filepath.Base(fileHeader.Filename),
		ContentType: fileHeader.Header.Get("Content-Type"),
		Data:        data,
	}

	if async, _ := strconv.ParseBool(c.DefaultQuery("async", "false")); async {
		h.enqueue(c, req)
		return
	}

	ctx, cancel := utils.WithLongTimeout(c.Request.Context())
	defer cancel()
	slides, err := h.slides.Upload(ctx, req)
	if err != nil {
		utils.RespondWithAPIError(c, err)
		return
	}
	c.JSON(http.StatusOK, slides)
}

func (h *slideHandler) enqueue(c *gin.Context, req services.UploadRequest) {
	if h.jobs == nil {
		utils.RespondWithError(c, http.StatusServiceUnavailable, "async_unavailable",
			"Background ingestion is not configured", nil)
		return
	}
	if strings.TrimSpace(req.SlideName) == "" || strings.TrimSpace(req.CourseName) == "" || strings.TrimSpace(req.SubjectName) == "" {
		utils.RespondWithAPIError(c, utils.BadRequest("validation_error", "Slide name, course name, and subject name are required"))
		return
	}
	if len(req.Data) == 0 {
		utils.RespondWithAPIError(c, utils.BadRequest("empty_file", "File is empty"))
		return
	}

	if err := os.MkdirAll(h.uploadDir, 0o755); err != nil {
		utils.RespondWithInternalError(c, "Failed to create upload directory", nil)
		return
	}
	// Stored framed so the worker can tell how (or whether) it was compressed.
	framed, err := utils.Frame(req.Data, utils.GetBestCompression(req.Data))
	if err != nil {
		utils.RespondWithInternalError(c, "Failed to save file", nil)
		return
	}
	slideID := uuid.NewString()
	path := filepath.Join(h.uploadDir, slideID+strings.ToLower(filepath.Ext(req.FileName)))
	if err := os.WriteFile(path, framed, 0o600); err != nil {
		utils.RespondWithInternalError(c, "Failed to save file", nil)
		return
	}

	taskID, err := h.jobs.Enqueue(c.Request.Context(), queue.IngestPayload{
		SlideID:     slideID,
		FilePath:    path,
		FileName:    req.FileName,
		ContentType: req.ContentType,
		SlideName:   req.SlideName,
		CourseName:  req.CourseName,
		SubjectName: req.SubjectName,
		Description: req.Description,
	})
	if err != nil {
		os.Remove(path)
		logger.Error("failed to enqueue upload", "file_name", req.FileName, "error", err)
		utils.RespondWithInternalError(c, "Failed to enqueue processing task", nil)
		return
	}

	c.JSON(http.StatusAccepted, models.UploadAccepted{
		Message:  "Upload accepted for processing",
		TaskID:   taskID,
		SlideID:  slideID,
		Status:   "pending",
		FileName: req.FileName,
		Size:     int64(len(req.Data)),
	})
}

func (h *slideHandler) list(c *gin.Context) {
	limit, ok := intQuery(c, "limit", 0)
	if !ok {
		return
	}
	offset, ok := intQuery(c, "offset", 0)
	if !ok {
		return
	}

	page, err := h.slides.List(c.Request.Context(), services.ListRequest{
		Course:  c.Query("course_name"),
		Subject: c.Query("subject_name"),
		Limit:   limit,
		Offset:  offset,
	})
	if err != nil {
		utils.RespondWithAPIError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *slideHandler) search(c *gin.Context) {
	limit, ok := intQuery(c, "limit", 0)
	if !ok {
		return
	}
	results, err := h.slides.Search(c.Request.Context(), services.SearchRequest{
		Query:   c.Query("query"),
		Limit:   limit,
		Course:  c.Query("course_name"),
		Subject: c.Query("subject_name"),
	})
	if err != nil {
		utils.RespondWithAPIError(c, err)
		return
	}
	c.JSON(http.StatusOK, results)
}

func (h *slideHandler) get(c *gin.Context) {
	slide, err := h.slides.Get(c.Request.Context(), c.Param("slide_id"))
	if err != nil {
		utils.RespondWithAPIError(c, err)
		return
	}
	c.JSON(http.StatusOK, slide)
}

func (h *slideHandler) jobStatus(c *gin.Context) {
	if h.jobs == nil {
		utils.RespondWithNotFound(c, "Job not found")
		return
	}
	job, err := h.jobs.Status(c.Request.Context(), c.Param("task_id"))
	if err != nil {
		if errors.Is(err, queue.ErrJobNotFound) {
			utils.RespondWithNotFound(c, "Job not found")
			return
		}
		logger.Error("failed to inspect job", "task_id", c.Param("task_id"), "error", err)
		utils.RespondWithInternalError(c, "Failed to retrieve job status", nil)
		return
	}
	c.JSON(http.StatusOK, job)
}

// intQuery parses a non-negative integer query parameter, answering 400 itself
// when the value is malformed.
func intQuery(c *gin.Context, name string, def int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		utils.RespondWithBadRequest(c, fmt.Sprintf("Query parameter %q must be a non-negative integer", name), gin.H{"value": raw})
		return 0, false
	}
	return n, true
}
