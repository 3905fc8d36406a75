package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/talentbridge/trustlayer/core"
	"github.com/talentbridge/trustlayer/internal/ids"
	"github.com/talentbridge/trustlayer/ports"
)

const (
	TopicDID          = "trustlayer.did"
	TopicContract     = "trustlayer.contract"
	TopicNotification = "trustlayer.notification"
)

// PhaseEvent is published for every DID flow transition
type PhaseEvent struct {
	Holder  string `json:"holder"`
	Phase   string `json:"phase"`
	Message string `json:"message,omitempty"`
	Nonce   string `json:"nonce,omitempty"`
	At      int64  `json:"at"`
}

// ContractEvent is published after every stored contract transition
type ContractEvent struct {
	ApplicationID   string `json:"applicationId"`
	PostID          string `json:"postId"`
	State           string `json:"state"`
	ContractAddress string `json:"contract"`
	EscrowAddress   string `json:"escrow"`
	EmployerSigned  bool   `json:"employerSigned"`
	ApplicantSigned bool   `json:"applicantSigned"`
	At              int64  `json:"at"`
}

// WatermillPublisher implements ports.EventPublisher and ports.ContractNotifier on a Watermill publisher
type WatermillPublisher struct {
	publisher message.Publisher
	now       func() time.Time
}

var (
	_ ports.EventPublisher   = (*WatermillPublisher)(nil)
	_ ports.ContractNotifier = (*WatermillPublisher)(nil)
)

// NewWatermillPublisher creates a new Watermill publisher
func NewWatermillPublisher(publisher message.Publisher) *WatermillPublisher {
	return &WatermillPublisher{publisher: publisher, now: time.Now}
}

// PublishPhase publishes a DID flow transition
func (p *WatermillPublisher) PublishPhase(ctx context.Context, holder string, phase core.Phase, detail core.PhaseDetail) error {
	return p.publish(ctx, TopicDID, holder, PhaseEvent{
		Holder:  holder,
		Phase:   string(phase),
		Message: detail.Message,
		Nonce:   detail.Nonce,
		At:      p.now().Unix(),
	})
}

// PublishContract publishes the current state of a contract
func (p *WatermillPublisher) PublishContract(ctx context.Context, c *core.ContractEscrow) error {
	return p.publish(ctx, TopicContract, c.ApplicationID, ContractEvent{
		ApplicationID:   c.ApplicationID,
		PostID:          c.PostID,
		State:           string(c.State),
		ContractAddress: c.ContractAddress,
		EscrowAddress:   c.EscrowAddress,
		EmployerSigned:  c.EmployerSigned,
		ApplicantSigned: c.ApplicantSigned,
		At:              p.now().Unix(),
	})
}

// NotifyContractRequest publishes the link for an inbox consumer to deliver
func (p *WatermillPublisher) NotifyContractRequest(ctx context.Context, link core.ContractNotificationLink) error {
	return p.publish(ctx, TopicNotification, link.ApplicationID, link)
}

func (p *WatermillPublisher) publish(ctx context.Context, topic, key string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(ids.New(), payload)
	msg.Metadata.Set("key", key)
	msg.SetContext(ctx)

	if err := p.publisher.Publish(topic, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}
