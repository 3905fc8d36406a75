package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/talentbridge/trustlayer/core"
	"github.com/talentbridge/trustlayer/sandbox"
)

// JobHandlers serves the job board pieces the contract flow needs
type JobHandlers struct {
	inbox *sandbox.Inbox
}

func NewJobHandlers(inbox *sandbox.Inbox) *JobHandlers {
	return &JobHandlers{inbox: inbox}
}

// CreateApplication registers an application authored by the caller
func (h *JobHandlers) CreateApplication(c *gin.Context) {
	var req struct {
		ID               string          `json:"id" binding:"required"`
		PostID           string          `json:"postId" binding:"required"`
		JobTitle         string          `json:"jobTitle"`
		ApplicantUserID  string          `json:"applicantId" binding:"required"`
		ApplicantAddress string          `json:"applicantAddress"`
		Salary           decimal.Decimal `json:"salary"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "id, postId and applicantId are required")
		return
	}
	app := sandbox.Application{
		ID:               req.ID,
		PostID:           req.PostID,
		JobTitle:         req.JobTitle,
		AuthorUserID:     currentSession(c).UserID,
		ApplicantUserID:  req.ApplicantUserID,
		ApplicantAddress: req.ApplicantAddress,
		Salary:           req.Salary,
	}
	h.inbox.RegisterApplication(app)
	c.JSON(http.StatusCreated, app)
}

// Application is visible to the posting's author and the applicant
func (h *JobHandlers) Application(c *gin.Context) {
	app, err := h.inbox.Application(c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	user := currentSession(c).UserID
	if user != app.AuthorUserID && user != app.ApplicantUserID {
		abortWithError(c, core.ErrRoleNotPermitted)
		return
	}
	c.JSON(http.StatusOK, app)
}

func (h *JobHandlers) ContractRequest(c *gin.Context) {
	var req struct {
		Transaction *core.TransactionDescriptor `json:"transaction"`
		LinkURL     string                      `json:"linkUrl" binding:"required"`
		Message     string                      `json:"message" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "linkUrl and message are required")
		return
	}

	n, err := h.inbox.DeliverContractRequest(c.Request.Context(), currentSession(c).UserID, core.ContractNotificationLink{
		ApplicationID: c.Param("id"),
		LinkPayload:   req.LinkURL,
		Message:       req.Message,
		Transaction:   req.Transaction,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, n)
}

func (h *JobHandlers) Notifications(c *gin.Context) {
	c.JSON(http.StatusOK, h.inbox.List(currentSession(c).UserID))
}
