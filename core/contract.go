package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// Role is the party a client acts as on a contract
type Role string

const (
	RoleEmployer  Role = "employer"
	RoleApplicant Role = "applicant"
)

// Valid reports whether r is a known role
func (r Role) Valid() bool {
	return r == RoleEmployer || r == RoleApplicant
}

// ContractState is a step of the escrow signing sequence
type ContractState string

const (
	ContractUncreated       ContractState = "uncreated"
	ContractCreated         ContractState = "created"
	ContractApplicantSigned ContractState = "applicant_signed"
	ContractCompleted       ContractState = "completed"
	ContractExpired         ContractState = "expired"
)

// Terminal reports whether no further transition is possible
func (s ContractState) Terminal() bool {
	return s == ContractCompleted || s == ContractExpired
}

// ContractEscrow is the locally tracked state of one job contract
type ContractEscrow struct {
	ID                string                 `json:"id"`
	PostID            string                 `json:"postId"`
	ApplicationID     string                 `json:"applicationId"`
	JobTitle          string                 `json:"jobTitle,omitempty"`
	EmployerAddress   string                 `json:"employerAddress"`
	ApplicantAddress  string                 `json:"applicantAddress"`
	Salary            decimal.Decimal        `json:"salary"`
	StartDate         time.Time              `json:"startDate"`
	DueDate           time.Time              `json:"dueDate"`
	ContractAddress   string                 `json:"contract"`
	EscrowAddress     string                 `json:"escrow"`
	State             ContractState          `json:"state"`
	EmployerSigned    bool                   `json:"employerSigned"`
	EmployerSignedAt  *time.Time             `json:"employerSignedAt,omitempty"`
	ApplicantSigned   bool                   `json:"applicantSigned"`
	ApplicantSignedAt *time.Time             `json:"applicantSignedAt,omitempty"`
	Pending           *TransactionDescriptor `json:"pending,omitempty"`
	UpdatedAt         time.Time              `json:"updatedAt"`
}

// ChecklistItem is one statement the applicant must affirm before signing
type ChecklistItem string

const (
	ChecklistConditions ChecklistItem = "condition"
	ChecklistBenefits   ChecklistItem = "extra"
	ChecklistPrivacy    ChecklistItem = "privacy"
	ChecklistSecurity   ChecklistItem = "security"
	ChecklistOverall    ChecklistItem = "overall"
)

// ChecklistItems lists every item in display order
var ChecklistItems = []ChecklistItem{
	ChecklistConditions,
	ChecklistBenefits,
	ChecklistPrivacy,
	ChecklistSecurity,
	ChecklistOverall,
}

// Checklist records which items were affirmed
type Checklist map[ChecklistItem]bool

// FullChecklist returns a checklist with every item affirmed
func FullChecklist() Checklist {
	c := make(Checklist, len(ChecklistItems))
	for _, item := range ChecklistItems {
		c[item] = true
	}
	return c
}

// Missing returns the unaffirmed items
func (c Checklist) Missing() []ChecklistItem {
	var missing []ChecklistItem
	for _, item := range ChecklistItems {
		if !c[item] {
			missing = append(missing, item)
		}
	}
	return missing
}

// Complete reports whether every item is affirmed
func (c Checklist) Complete() bool {
	return len(c.Missing()) == 0
}

// ContractNotificationLink points the counterparty at the contract flow
type ContractNotificationLink struct {
	ApplicationID   string                 `json:"applicationId"`
	PostID          string                 `json:"postId"`
	LinkPayload     string                 `json:"linkUrl"`
	Message         string                 `json:"message"`
	ContractAddress string                 `json:"contract,omitempty"`
	EscrowAddress   string                 `json:"escrow,omitempty"`
	Transaction     *TransactionDescriptor `json:"transaction,omitempty"`
}

// ChainSignatureFlags is what the chain reports about a contract's signatures.
// Nil fields were absent from the chain response.
type ChainSignatureFlags struct {
	EmployerSigned    *bool
	EmployerSignedAt  *time.Time
	ApplicantSigned   *bool
	ApplicantSignedAt *time.Time
}

// Notification is an inbox entry delivered to a user
type Notification struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Title   string `json:"title"`
	Message string `json:"message"`
	LinkURL string `json:"linkUrl,omitempty"`
	// Transaction is the unsigned transaction the recipient is asked to sign
	Transaction *TransactionDescriptor `json:"transaction,omitempty"`
	Read        bool                   `json:"read"`
	CreatedAt   time.Time              `json:"createdAt"`
}
