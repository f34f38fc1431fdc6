package server

import (
	"context"
	"mime/multipart"

	"github.com/gin-gonic/gin"

	"github.com/skillsenselab/recap/credits"
	apperrors "github.com/skillsenselab/recap/errors"
	"github.com/skillsenselab/recap/job"
	"github.com/skillsenselab/recap/logger"
	"github.com/skillsenselab/recap/server/endpoint"
	"github.com/skillsenselab/recap/server/middleware"
)

// API exposes the job pipeline over HTTP.
type API struct {
	jobs   *job.Service
	ledger *credits.Ledger
	log    *logger.Logger
}

// NewAPI creates the API handler set.
func NewAPI(jobs *job.Service, ledger *credits.Ledger) *API {
	return &API{
		jobs:   jobs,
		ledger: ledger,
		log:    logger.Get("api"),
	}
}

// RegisterRoutes mounts all API routes on the engine. Health and info stay
// outside authentication; everything under /api/v1 requires a Bearer token.
func (a *API) RegisterRoutes(engine *gin.Engine, authCfg middleware.AuthConfig, serviceName string, checker endpoint.HealthChecker) {
	registerValidators()

	engine.GET("/health", endpoint.Health(serviceName, checker))
	engine.GET("/info", endpoint.Info(serviceName))

	v1 := engine.Group("/api/v1")
	v1.Use(middleware.Auth(authCfg))

	v1.POST("/jobs", a.createJob)
	v1.GET("/jobs/:id", a.getJob)
	v1.POST("/jobs/:id/submit", a.submitJob)
	v1.POST("/jobs/:id/cancel", a.cancelJob)
	v1.POST("/jobs/:id/reprocess", a.reprocessJob)
	v1.GET("/providers", a.listProviders)
	v1.GET("/credits", a.getCredits)
}

type createJobForm struct {
	Audio *multipart.FileHeader `form:"audio" binding:"required"`
	Model string                `form:"model" binding:"required,modelid"`
}

// createJob accepts a multipart recording upload, preprocesses it and creates
// a pending job.
func (a *API) createJob(c *gin.Context) {
	var form createJobForm
	if err := c.ShouldBind(&form); err != nil {
		RespondWithError(c, apperrors.Invalid(err.Error()))
		return
	}

	f, err := form.Audio.Open()
	if err != nil {
		RespondWithError(c, apperrors.Invalid("audio upload is not readable"))
		return
	}
	defer f.Close()

	j, err := a.jobs.CreateFromUpload(c.Request.Context(), middleware.UserID(c), form.Audio.Filename, f, form.Model)
	if err != nil {
		RespondWithError(c, err)
		return
	}
	RespondCreated(c, j)
}

func (a *API) getJob(c *gin.Context) {
	j, err := a.jobs.Get(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		RespondWithError(c, err)
		return
	}
	RespondOK(c, j)
}

type submitForm struct {
	Model string `json:"model" binding:"omitempty,modelid"`
}

// submitJob admits the submission synchronously and runs the provider call in
// the background. The 202 body reflects the processing state; callers poll
// GET /jobs/:id for the outcome.
func (a *API) submitJob(c *gin.Context) {
	a.submit(c, false)
}

// reprocessJob re-enters the pipeline from a completed job.
func (a *API) reprocessJob(c *gin.Context) {
	a.submit(c, true)
}

func (a *API) submit(c *gin.Context, reprocess bool) {
	var form submitForm
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&form); err != nil {
			RespondWithError(c, apperrors.Invalid(err.Error()))
			return
		}
	}

	userID := middleware.UserID(c)
	jobID := c.Param("id")
	run, err := a.jobs.Begin(c.Request.Context(), userID, jobID, job.SubmitOptions{
		Model:     form.Model,
		Reprocess: reprocess,
	})
	if err != nil {
		RespondWithError(c, err)
		return
	}

	// The provider call outlives this request, so it runs on a fresh context.
	go func() {
		if _, err := run.Execute(context.Background()); err != nil {
			a.log.Warn("background run failed", logger.ErrorFields(err, logger.FieldJobID, jobID))
		}
	}()

	j, err := a.jobs.Get(c.Request.Context(), userID, jobID)
	if err != nil {
		RespondWithError(c, err)
		return
	}
	RespondAccepted(c, j)
}

func (a *API) cancelJob(c *gin.Context) {
	j, err := a.jobs.Cancel(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		RespondWithError(c, err)
		return
	}
	RespondOK(c, j)
}

type providersResponse struct {
	Providers       []insightDescriptor `json:"providers"`
	DefaultProvider string              `json:"default_provider"`
}

type insightDescriptor struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Models        []string `json:"models"`
	CostPerMinute float64  `json:"cost_per_minute"`
	Connected     bool     `json:"connected"`
	Default       bool     `json:"default"`
}

func (a *API) listProviders(c *gin.Context) {
	descriptors, defaultID := a.jobs.Providers(c.Request.Context())
	out := providersResponse{DefaultProvider: defaultID}
	for _, d := range descriptors {
		out.Providers = append(out.Providers, insightDescriptor{
			ID:            d.ID,
			Name:          d.Name,
			Models:        d.Models,
			CostPerMinute: d.CostPerMinute,
			Connected:     d.Connected,
			Default:       d.Default,
		})
	}
	RespondOK(c, out)
}

type creditsResponse struct {
	Balance int              `json:"balance"`
	Entries []*credits.Entry `json:"entries"`
}

func (a *API) getCredits(c *gin.Context) {
	ctx := c.Request.Context()
	userID := middleware.UserID(c)

	balance, err := a.ledger.Balance(ctx, userID)
	if err != nil {
		RespondWithError(c, err)
		return
	}
	entries, err := a.ledger.Recent(ctx, userID, 20)
	if err != nil {
		RespondWithError(c, err)
		return
	}
	if entries == nil {
		entries = []*credits.Entry{}
	}
	RespondOK(c, creditsResponse{Balance: balance, Entries: entries})
}
