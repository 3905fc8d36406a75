package core

import "time"

// Session represents an authenticated user session held by the auth service
type Session struct {
	ID            string    // Unique session identifier
	UserID        string    // Platform account the session belongs to
	Address       string    // Wallet address bound to the account, if any
	IssuedAt      time.Time // When the session was created
	RefreshExpiry time.Time // When the refresh capability expires
	AccessExpiry  time.Time // When the access capability expires
	RefreshID     string    // Unique identifier for the refresh token
}

// Profile is the "who am I" view of an account
type Profile struct {
	UserID      string `json:"userId"`
	Address     string `json:"address,omitempty"`
	KYCComplete bool   `json:"kyc"`
	DIDComplete bool   `json:"did"`
}

// NextStep tells a freshly authenticated client where to go
type NextStep string

const (
	NextStepKYC             NextStep = "KYC"
	NextStepDID             NextStep = "DID"
	NextStepHome            NextStep = "HOME"
	NextStepUnauthenticated NextStep = "LOGIN"
)

// NextStepFor derives the onboarding step from a profile. A missing profile
// sends the user home.
func NextStepFor(p *Profile) NextStep {
	switch {
	case p == nil:
		return NextStepHome
	case !p.KYCComplete:
		return NextStepKYC
	case !p.DIDComplete:
		return NextStepDID
	default:
		return NextStepHome
	}
}

// LoginResult is the outcome of a login-code exchange
type LoginResult struct {
	Credential AccessCredential
	NextStep   NextStep
}
