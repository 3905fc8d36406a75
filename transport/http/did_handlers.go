package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/talentbridge/trustlayer/core"
	"github.com/talentbridge/trustlayer/sandbox"
)

// DIDHandlers serves the DID verification service
type DIDHandlers struct {
	registry *sandbox.Registry
	auth     *AuthHandlers
}

func NewDIDHandlers(registry *sandbox.Registry, auth *AuthHandlers) *DIDHandlers {
	return &DIDHandlers{registry: registry, auth: auth}
}

func (h *DIDHandlers) Nonce(c *gin.Context) {
	var req struct {
		Address string `json:"address" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "address is required")
		return
	}
	grant, err := h.registry.IssueNonce(c.Request.Context(), req.Address)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"nonce": grant.Nonce, "expiresIn": int64(grant.ExpiresIn.Seconds())})
}

// Bind attaches the signing wallet to the caller's account and starts a
// session that carries the address
func (h *DIDHandlers) Bind(c *gin.Context) {
	var req core.WalletBinding
	if err := c.ShouldBindJSON(&req); err != nil || req.Address == "" || req.SignatureBase58 == "" {
		badRequest(c, "address and signatureBase58 are required")
		return
	}
	session := currentSession(c)
	if _, err := h.registry.BindWallet(c.Request.Context(), session.UserID, req); err != nil {
		abortWithError(c, err)
		return
	}

	tokens, err := h.auth.auth.Reissue(session.UserID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	h.auth.setSession(c, tokens)
	c.JSON(http.StatusOK, tokenBody(tokens))
}

func (h *DIDHandlers) Verified(c *gin.Context) {
	var req struct {
		DID string `json:"did"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "malformed body")
		return
	}
	profile, err := h.registry.MarkVerified(c.Request.Context(), currentSession(c).UserID, req.DID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (h *DIDHandlers) Status(c *gin.Context) {
	holder := c.Query("holder")
	if holder == "" {
		badRequest(c, "holder is required")
		return
	}
	status, err := h.registry.Status(c.Request.Context(), holder)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

type holderRequest struct {
	Holder string `json:"holder" binding:"required"`
}

func (h *DIDHandlers) Init(c *gin.Context) {
	var req holderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "holder is required")
		return
	}
	if err := h.registry.InitIdentity(c.Request.Context(), req.Holder); err != nil {
		abortWithError(c, err)
		return
	}
	status, err := h.registry.Status(c.Request.Context(), req.Holder)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, status)
}

func (h *DIDHandlers) AddMethod(c *gin.Context) {
	var req holderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "holder is required")
		return
	}
	if err := h.registry.AddVerificationMethod(c.Request.Context(), req.Holder); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *DIDHandlers) Challenge(c *gin.Context) {
	var req struct {
		Holder string `json:"holder" binding:"required"`
		Domain string `json:"domain"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "holder is required")
		return
	}
	body, err := h.registry.IssueChallenge(c.Request.Context(), req.Holder, req.Domain)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, body)
}

func (h *DIDHandlers) VerifyChallenge(c *gin.Context) {
	var req core.VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Nonce == "" {
		badRequest(c, "nonce, vc and vp are required")
		return
	}
	if err := h.registry.VerifyChallenge(c.Request.Context(), req); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
