package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/telekom/issuemail/pkg/apiresponses"
	"github.com/telekom/issuemail/pkg/mail"
)

// ReplyResolver maps the threading headers of an inbound reply to an issue.
type ReplyResolver interface {
	IssueForReply(ctx context.Context, headers mail.Headers) (int64, bool)
}

type resolveRequest struct {
	Headers mail.Headers `json:"headers" binding:"required"`
}

type resolveResponse struct {
	Found   bool  `json:"found"`
	IssueID int64 `json:"issueId,omitempty"`
}

// ReplyController lets the inbound mail handler find the issue a reply belongs to.
type ReplyController struct {
	resolver ReplyResolver
	log      *zap.SugaredLogger
}

func NewReplyController(resolver ReplyResolver, log *zap.SugaredLogger) *ReplyController {
	return &ReplyController{resolver: resolver, log: log.Named("reply-api")}
}

func (rc *ReplyController) BasePath() string { return "replies" }

func (rc *ReplyController) Handlers() []gin.HandlerFunc { return nil }

func (rc *ReplyController) Register(rg *gin.RouterGroup) error {
	rg.POST("/resolve", rc.handleResolve)
	return nil
}

func (rc *ReplyController) handleResolve(c *gin.Context) {
	var req resolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apiresponses.APIError{Error: err.Error(), Code: "BAD_REQUEST"})
		return
	}
	id, ok := rc.resolver.IssueForReply(c.Request.Context(), req.Headers)
	rc.log.Debugw("Resolved reply", "found", ok, "issueID", id)
	apiresponses.RespondOK(c, resolveResponse{Found: ok, IssueID: id})
}
