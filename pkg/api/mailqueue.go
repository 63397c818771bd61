package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/telekom/issuemail/pkg/apiresponses"
	"github.com/telekom/issuemail/pkg/mail"
)

// MailQueue is the view of the mail service the admin endpoints need.
type MailQueue interface {
	Items(ctx context.Context) []mail.ItemStatus
	ErrorItems(ctx context.Context) []mail.ItemStatus
	Resend() (int, error)
	IsEnabled() bool
}

type queueResponse struct {
	Enabled bool              `json:"enabled"`
	Count   int               `json:"count"`
	Items   []mail.ItemStatus `json:"items"`
}

type resendResponse struct {
	Resent int `json:"resent"`
}

// MailQueueController serves the mail queue admin endpoints.
type MailQueueController struct {
	queue MailQueue
	log   *zap.SugaredLogger
}

func NewMailQueueController(queue MailQueue, log *zap.SugaredLogger) *MailQueueController {
	return &MailQueueController{queue: queue, log: log.Named("mailqueue-api")}
}

func (mc *MailQueueController) BasePath() string { return "mailqueue" }

func (mc *MailQueueController) Handlers() []gin.HandlerFunc { return nil }

func (mc *MailQueueController) Register(rg *gin.RouterGroup) error {
	rg.GET("", mc.handleItems)
	rg.GET("/errors", mc.handleErrorItems)
	rg.POST("/errors/resend", mc.handleResend)
	return nil
}

func (mc *MailQueueController) handleItems(c *gin.Context) {
	items := mc.queue.Items(c.Request.Context())
	apiresponses.RespondOK(c, queueResponse{Enabled: mc.queue.IsEnabled(), Count: len(items), Items: items})
}

func (mc *MailQueueController) handleErrorItems(c *gin.Context) {
	items := mc.queue.ErrorItems(c.Request.Context())
	apiresponses.RespondOK(c, queueResponse{Enabled: mc.queue.IsEnabled(), Count: len(items), Items: items})
}

func (mc *MailQueueController) handleResend(c *gin.Context) {
	n, err := mc.queue.Resend()
	switch {
	case errors.Is(err, mail.ErrQueueClosed):
		apiresponses.RespondServiceUnavailable(c, "mail queue")
	case errors.Is(err, mail.ErrQueueFull):
		mc.log.Warnw("Resend stopped on a full queue", "resent", n)
		c.JSON(http.StatusTooManyRequests, gin.H{"resent": n, "error": err.Error()})
	case err != nil:
		apiresponses.RespondInternalError(c, "resend error queue", err, mc.log)
	default:
		mc.log.Infow("Error queue resent", "count", n)
		apiresponses.RespondOK(c, resendResponse{Resent: n})
	}
}
