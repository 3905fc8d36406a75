package service

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/talentbridge/trustlayer/core"
)

const (
	DefaultReviewPath = "/contracts/review"

	NotificationContractRequest = "CONTRACT_REQUEST"
)

// ContractLink is the resumable pointer sent to the counterparty
type ContractLink struct {
	Path            string
	PostID          string
	Role            core.Role
	ApplicationID   string
	ContractAddress string
	EscrowAddress   string
	ApplicantSigned bool
}

// String renders the link as a relative URL
func (l ContractLink) String() string {
	q := url.Values{}
	q.Set("postId", l.PostID)
	q.Set("role", string(l.Role))
	q.Set("applicationId", l.ApplicationID)
	if l.ContractAddress != "" {
		q.Set("contract", l.ContractAddress)
	}
	if l.EscrowAddress != "" {
		q.Set("escrow", l.EscrowAddress)
	}
	q.Set("applicantSigned", strconv.FormatBool(l.ApplicantSigned))

	path := l.Path
	if path == "" {
		path = DefaultReviewPath
	}
	return path + "?" + q.Encode()
}

// ParseContractLink reads a link produced by ContractLink.String. Absolute
// URLs are accepted.
func ParseContractLink(raw string) (ContractLink, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return ContractLink{}, fmt.Errorf("invalid contract link: %w", err)
	}
	q := u.Query()
	l := ContractLink{
		Path:            u.Path,
		PostID:          q.Get("postId"),
		Role:            core.Role(q.Get("role")),
		ApplicationID:   q.Get("applicationId"),
		ContractAddress: q.Get("contract"),
		EscrowAddress:   q.Get("escrow"),
	}
	if v := q.Get("applicantSigned"); v != "" {
		if l.ApplicantSigned, err = strconv.ParseBool(v); err != nil {
			return ContractLink{}, fmt.Errorf("invalid applicantSigned %q: %w", v, err)
		}
	}
	if l.ApplicationID == "" {
		return ContractLink{}, fmt.Errorf("contract link has no applicationId")
	}
	return l, nil
}

// ContractRequestMessage is the machine-readable body of a contract notification
type ContractRequestMessage struct {
	Type      string `json:"type"`
	PostID    string `json:"postId"`
	Contract  string `json:"contract"`
	Escrow    string `json:"escrow"`
	JobTitle  string `json:"jobTitle,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

func newContractRequestMessage(c *core.ContractEscrow, at time.Time) (string, error) {
	b, err := json.Marshal(ContractRequestMessage{
		Type:      NotificationContractRequest,
		PostID:    c.PostID,
		Contract:  c.ContractAddress,
		Escrow:    c.EscrowAddress,
		JobTitle:  c.JobTitle,
		Timestamp: at.UnixMilli(),
	})
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ParseContractRequestMessage decodes a notification body, rejecting other types
func ParseContractRequestMessage(message string) (ContractRequestMessage, error) {
	var m ContractRequestMessage
	if err := json.Unmarshal([]byte(message), &m); err != nil {
		return m, fmt.Errorf("invalid contract request message: %w", err)
	}
	if m.Type != NotificationContractRequest {
		return m, fmt.Errorf("unexpected notification type %q", m.Type)
	}
	return m, nil
}
