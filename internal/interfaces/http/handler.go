package http

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"replygate/internal/entities"
	"replygate/internal/usecases"
)

type Pipeline interface {
	ProcessMessage(ctx context.Context, in entities.InboundMessage) (*usecases.PipelineResult, error)
}

type ApprovalService interface {
	GetPendingApprovals(ctx context.Context, businessID string) ([]entities.Approval, error)
	GetApproval(ctx context.Context, id, businessID string) (*entities.Approval, error)
	UpdateApprovalStatus(ctx context.Context, id string, status entities.ApprovalStatus, reviewerID, businessID string) (*entities.Approval, error)
	ListRules(ctx context.Context, businessID string) ([]entities.WorkflowRule, error)
	UpsertRule(ctx context.Context, businessID, intent string, requiresApproval bool, minConfidence float64) (*entities.WorkflowRule, error)
}

// Dispatcher runs approved actions off the request path.
type Dispatcher interface {
	Enqueue(approvalID string) error
}

type AuthService interface {
	TokenParser
	Signup(ctx context.Context, in usecases.SignupInput) (*usecases.AuthResult, error)
	Login(ctx context.Context, email, password string) (*usecases.AuthResult, error)
}

type ProfileService interface {
	GetProfile(ctx context.Context, businessID string) (*entities.Business, error)
	UpdateProfile(ctx context.Context, businessID string, upd entities.BusinessProfileUpdate) (*entities.Business, error)
}

type DashboardService interface {
	GetStats(ctx context.Context, businessID string) (*entities.DashboardStats, error)
	GetEngagement(ctx context.Context, businessID string) ([]entities.EngagementItem, error)
	Search(ctx context.Context, businessID, q string) ([]entities.SearchHit, error)
	ExportCSV(ctx context.Context, businessID string, w io.Writer) error
}

type DeviceService interface {
	Connect(ctx context.Context, businessID string) (entities.DeviceStatus, error)
	QR(businessID string) string
	Status(businessID string) entities.DeviceStatus
	Logout(ctx context.Context, businessID string) error
}

// Deps collects the services behind the HTTP API. Devices may be nil when
// linked-device support is disabled.
type Deps struct {
	Pipeline    Pipeline
	Approvals   ApprovalService
	Dispatcher  Dispatcher
	Auth        AuthService
	Profiles    ProfileService
	Dashboard   DashboardService
	Devices     DeviceService
	VerifyToken string
}

type Handler struct {
	Deps
	log zerolog.Logger
}

func NewHandler(deps Deps, log zerolog.Logger) *Handler {
	return &Handler{Deps: deps, log: log.With().Str("component", "http").Logger()}
}

func SetupRoutes(r *gin.Engine, h *Handler, middleware *Middleware, maxBodyBytes int64) {
	r.Use(middleware.RequestLogger())
	r.Use(SecurityHeaders())
	r.Use(RequestSizeLimiter(maxBodyBytes))
	r.Use(middleware.CORSMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Meta calls these without credentials
	r.GET("/whatsapp/webhook", h.VerifyWebhook)
	r.POST("/whatsapp/webhook", h.ReceiveWebhook)

	authGroup := r.Group("/auth")
	{
		authGroup.POST("/signup", h.Signup)
		authGroup.POST("/login", h.Login)
	}

	api := r.Group("/")
	api.Use(middleware.AuthRequired())
	api.Use(middleware.RateLimitPerUser())
	{
		api.POST("/whatsapp/simulate", h.Simulate)

		api.GET("/businesses/profile", h.GetProfile)
		api.PATCH("/businesses/profile", h.UpdateProfile)

		api.GET("/approvals/pending", h.GetPendingApprovals)
		api.GET("/approvals/:id", h.GetApproval)
		api.PATCH("/approvals/:id/status", h.UpdateApprovalStatus)

		api.GET("/workflows/rules", h.ListRules)
		api.PUT("/workflows/rules/:intent", h.UpsertRule)

		api.GET("/dashboard/stats", h.GetStats)
		api.GET("/dashboard/engagement", h.GetEngagement)
		api.GET("/dashboard/search", h.Search)
		api.GET("/dashboard/export", h.Export)

		api.POST("/devices/connect", h.ConnectDevice)
		api.GET("/devices/qr", h.GetDeviceQR)
		api.GET("/devices/status", h.GetDeviceStatus)
		api.POST("/devices/logout", h.LogoutDevice)
	}
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, entities.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, entities.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, entities.ErrAlreadyResolved), errors.Is(err, entities.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, entities.ErrValidation), errors.Is(err, entities.ErrInvalidStatus):
		return http.StatusBadRequest
	case errors.Is(err, entities.ErrUnauthorized):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) respondError(c *gin.Context, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		msg = "internal server error"
	}
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}
