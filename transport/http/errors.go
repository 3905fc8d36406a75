package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/talentbridge/trustlayer/core"
)

// statusFor maps a service error onto a status and message code
func statusFor(err error) (int, string) {
	var chainErr *core.ChainServiceError
	switch {
	case errors.As(err, &chainErr):
		status := chainErr.Status
		if status == 0 {
			status = http.StatusBadGateway
		}
		return status, "CHAIN_ERROR"
	case errors.Is(err, core.ErrTokenExpired):
		return http.StatusUnauthorized, "TOKEN_EXPIRED"
	case errors.Is(err, core.ErrTokenInvalidated):
		return http.StatusUnauthorized, "TOKEN_INVALIDATED"
	case errors.Is(err, core.ErrInvalidToken):
		return http.StatusUnauthorized, "INVALID_TOKEN"
	case errors.Is(err, core.ErrInvalidSignature):
		return http.StatusUnauthorized, "INVALID_SIGNATURE"
	case errors.Is(err, core.ErrInvalidLoginCode):
		return http.StatusBadRequest, "INVALID_CODE"
	case errors.Is(err, core.ErrInvalidChallenge):
		return http.StatusBadRequest, "INVALID_CHALLENGE"
	case errors.Is(err, core.ErrDIDRequired):
		return http.StatusBadRequest, "DID_REQUIRED"
	case errors.Is(err, core.ErrIdentityNotFound), errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, core.ErrRoleNotPermitted):
		return http.StatusForbidden, "FORBIDDEN"
	}
	return http.StatusInternalServerError, "INTERNAL"
}

func abortWithError(c *gin.Context, err error) {
	status, code := statusFor(err)
	c.AbortWithStatusJSON(status, gin.H{"messageCode": code, "reason": err.Error()})
}

func badRequest(c *gin.Context, reason string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"messageCode": "INVALID_REQUEST", "reason": reason})
}
