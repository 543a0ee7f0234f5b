package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mcsh-server/apperr"
	"mcsh-server/auth"
	"mcsh-server/ingestion"
	"mcsh-server/models"
)

const (
	recentLimit   = 5
	errorLogLimit = 200
	maxBundleSize = 1 << 20
)

// AdminStore is the read side the admin pages need.
type AdminStore interface {
	DashboardStats(ctx context.Context) (models.DashboardStats, error)
	RecentAdminEvents(ctx context.Context, limit int) ([]models.AdminEvent, error)
	RecentErrorLogs(ctx context.Context, source string, limit int) ([]models.ErrorLog, error)
	QuestionStats(ctx context.Context, search string, examID *int64) ([]models.QuestionStats, error)
}

// AdminDashboard renders the admin dashboard with counters and recent activity.
// GET /admin/dashboard
func AdminDashboard(store AdminStore, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		stats, err := store.DashboardStats(ctx)
		if err != nil {
			log.Error("dashboard stats", zap.Error(err))
			c.HTML(http.StatusInternalServerError, "admin_dashboard", gin.H{"Title": "Dashboard", "Error": "Failed to load dashboard"})
			return
		}
		events, err := store.RecentAdminEvents(ctx, recentLimit)
		if err != nil {
			// the counters are still worth showing
			log.Error("recent admin events", zap.Error(err))
		}
		c.HTML(http.StatusOK, "admin_dashboard", gin.H{
			"Title":        "Dashboard",
			"Stats":        stats,
			"RecentEvents": events,
			"CallerID":     auth.CallerFrom(ctx).ID,
		})
	}
}

// AdminQuestionStats renders per-question answer outcomes.
// GET /admin/question_stats?search=&exam_id=
func AdminQuestionStats(store AdminStore, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		search := c.Query("search")
		var examID *int64
		if raw := c.Query("exam_id"); raw != "" {
			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || id <= 0 {
				c.HTML(http.StatusBadRequest, "admin_question_stats", gin.H{"Title": "Question Statistics", "Error": "exam_id must be a positive integer"})
				return
			}
			examID = &id
		}
		stats, err := store.QuestionStats(c.Request.Context(), search, examID)
		if err != nil {
			log.Error("question stats", zap.Error(err))
			c.HTML(http.StatusInternalServerError, "admin_question_stats", gin.H{"Title": "Question Statistics", "Error": "Failed to retrieve question stats"})
			return
		}
		c.HTML(http.StatusOK, "admin_question_stats", gin.H{
			"Title":       "Question Statistics",
			"Stats":       stats,
			"SearchQuery": search,
			"CallerID":    auth.CallerFrom(c.Request.Context()).ID,
		})
	}
}

// AdminErrorLogs lists recorded validation failures, newest first.
// GET /admin/error_logs?source=
func AdminErrorLogs(store AdminStore, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		logs, err := store.RecentErrorLogs(c.Request.Context(), c.Query("source"), errorLogLimit)
		if err != nil {
			log.Error("error logs", zap.Error(err))
			c.JSON(http.StatusInternalServerError, errorBody(apperr.InternalError(err)))
			return
		}
		if logs == nil {
			logs = []models.ErrorLog{}
		}
		c.JSON(http.StatusOK, gin.H{"error_logs": logs})
	}
}

// ImportExam imports a YAML exam bundle sent as the request body.
// POST /admin/import?file=
func ImportExam(im *ingestion.Importer, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		file := c.DefaultQuery("file", "upload.yaml")
		body := http.MaxBytesReader(c.Writer, c.Request.Body, maxBundleSize)
		caller := auth.CallerFrom(c.Request.Context())

		e, err := im.Import(c.Request.Context(), caller, file, body)
		var verr *ingestion.ValidationError
		switch {
		case errors.As(err, &verr):
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"code":     apperr.Validation,
				"message":  "Bundle failed validation",
				"problems": verr.Problems,
			})
			return
		case err != nil:
			ae := apperr.As(err)
			if ae.Code == apperr.Internal {
				log.Error("import failed", zap.String("file", file), zap.Int64("caller_id", caller.ID), zap.Error(err))
			}
			c.JSON(statusOf(ae.Code), errorBody(ae))
			return
		}
		c.JSON(http.StatusCreated, gin.H{"id": strconv.FormatInt(e.ID, 10), "title": e.Title, "status": e.Status})
	}
}

func errorBody(e *apperr.Error) gin.H {
	return gin.H{"code": e.Code, "message": e.Message}
}

func statusOf(code apperr.Code) int {
	switch code {
	case apperr.Unauthorized:
		return http.StatusUnauthorized
	case apperr.Forbidden:
		return http.StatusForbidden
	case apperr.NotFound:
		return http.StatusNotFound
	case apperr.AlreadyExists:
		return http.StatusConflict
	case apperr.Validation:
		return http.StatusBadRequest
	case apperr.Internal:
		return http.StatusInternalServerError
	}
	return http.StatusUnprocessableEntity
}
