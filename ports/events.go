package ports

import (
	"context"

	"github.com/talentbridge/trustlayer/core"
)

// EventPublisher publishes flow events to other instances
type EventPublisher interface {
	PublishPhase(ctx context.Context, holder string, phase core.Phase, detail core.PhaseDetail) error
	PublishContract(ctx context.Context, contract *core.ContractEscrow) error
}

// ContractNotifier delivers a resumable contract link to the counterparty
type ContractNotifier interface {
	NotifyContractRequest(ctx context.Context, link core.ContractNotificationLink) error
}
