package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/talentbridge/trustlayer/core"
	"github.com/talentbridge/trustlayer/sandbox"
)

const refreshCookie = "refresh_token"

// AuthHandlers contains HTTP handlers for auth endpoints
type AuthHandlers struct {
	auth     *sandbox.AuthService
	accounts *sandbox.Accounts
	secure   bool
}

// NewAuthHandlers creates new auth handlers
func NewAuthHandlers(auth *sandbox.AuthService, accounts *sandbox.Accounts, secureCookies bool) *AuthHandlers {
	return &AuthHandlers{auth: auth, accounts: accounts, secure: secureCookies}
}

func (h *AuthHandlers) setSession(c *gin.Context, t sandbox.Tokens) {
	maxAge := int(time.Until(t.RefreshExpiry).Seconds())
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(refreshCookie, t.Refresh, maxAge, "/", "", h.secure, true)
}

func (h *AuthHandlers) clearSession(c *gin.Context) {
	c.SetCookie(refreshCookie, "", -1, "/", "", h.secure, true)
}

func tokenBody(t sandbox.Tokens) gin.H {
	cred := t.Credential()
	return gin.H{"accessToken": cred.Token, "accessExp": cred.ExpiresAt}
}

// IssueCode creates a login code for a user id; it replaces the OAuth provider
func (h *AuthHandlers) IssueCode(c *gin.Context) {
	var req struct {
		UserID string `json:"userId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "userId is required")
		return
	}
	code, err := h.auth.IssueLoginCode(req.UserID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": code})
}

// Callback exchanges a login code for a session
func (h *AuthHandlers) Callback(c *gin.Context) {
	var req struct {
		Code string `json:"code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "code is required")
		return
	}

	tokens, next, err := h.auth.ExchangeLoginCode(c.Request.Context(), req.Code)
	if err != nil {
		abortWithError(c, err)
		return
	}
	h.setSession(c, tokens)
	body := tokenBody(tokens)
	body["nextStep"] = next
	c.JSON(http.StatusOK, body)
}

// Refresh rotates the session cookie and returns a new access token
func (h *AuthHandlers) Refresh(c *gin.Context) {
	refresh, err := c.Cookie(refreshCookie)
	if err != nil || refresh == "" {
		abortWithError(c, core.ErrInvalidToken)
		return
	}

	tokens, err := h.auth.Refresh(c.Request.Context(), refresh)
	if err != nil {
		h.clearSession(c)
		abortWithError(c, err)
		return
	}
	h.setSession(c, tokens)
	c.JSON(http.StatusOK, tokenBody(tokens))
}

// Logout handles session logout
func (h *AuthHandlers) Logout(c *gin.Context) {
	refresh, _ := c.Cookie(refreshCookie)
	h.clearSession(c)
	if refresh == "" {
		c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
		return
	}

	err := h.auth.Logout(c.Request.Context(), refresh)
	if err != nil && !errors.Is(err, core.ErrTokenExpired) {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}

// Me returns the authenticated user's profile
func (h *AuthHandlers) Me(c *gin.Context) {
	profile, err := h.auth.Me(currentSession(c))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

// CompleteKYC marks the caller's identity check as passed
func (h *AuthHandlers) CompleteKYC(c *gin.Context) {
	profile, err := h.accounts.Update(currentSession(c).UserID, func(p *core.Profile) { p.KYCComplete = true })
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}
