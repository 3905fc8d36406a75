package service

import (
	"github.com/talentbridge/trustlayer/core"
)

// ResolveRole decides which party the signed-in account plays on a posting.
// A valid override wins; otherwise the author of the posting is the employer
// and anyone else arrives through the applicant flow.
func ResolveRole(accountID, authorID string, override core.Role) (core.Role, error) {
	if override.Valid() {
		return override, nil
	}
	if accountID == "" {
		return "", core.ErrInvalidToken
	}
	if authorID != "" && accountID == authorID {
		return core.RoleEmployer, nil
	}
	return core.RoleApplicant, nil
}
