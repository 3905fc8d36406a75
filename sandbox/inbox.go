package sandbox

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/talentbridge/trustlayer/core"
	"github.com/talentbridge/trustlayer/internal/ids"
	"github.com/talentbridge/trustlayer/ports"
	"github.com/talentbridge/trustlayer/service"
)

// Application is a job application as the sandbox job board knows it
type Application struct {
	ID               string          `json:"id"`
	PostID           string          `json:"postId"`
	JobTitle         string          `json:"jobTitle"`
	AuthorUserID     string          `json:"authorId"`
	ApplicantUserID  string          `json:"applicantId"`
	ApplicantAddress string          `json:"applicantAddress"`
	Salary           decimal.Decimal `json:"salary"`
}

// Inbox stores applications and delivers contract requests to applicants
type Inbox struct {
	forward ports.ContractNotifier
	logger  *slog.Logger
	now     func() time.Time

	mu    sync.RWMutex
	apps  map[string]Application
	inbox map[string][]core.Notification
}

// NewInbox creates an inbox. Delivered links are also handed to forward when set.
func NewInbox(forward ports.ContractNotifier, logger *slog.Logger) *Inbox {
	return &Inbox{
		forward: forward,
		logger:  logger,
		now:     time.Now,
		apps:    make(map[string]Application),
		inbox:   make(map[string][]core.Notification),
	}
}

func (b *Inbox) RegisterApplication(a Application) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.apps[a.ID] = a
}

func (b *Inbox) Application(id string) (Application, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	a, ok := b.apps[id]
	if !ok {
		return Application{}, core.ErrNotFound
	}
	return a, nil
}

// DeliverContractRequest puts a contract request in the applicant's inbox.
// Only the posting's author may send one.
func (b *Inbox) DeliverContractRequest(ctx context.Context, senderID string, link core.ContractNotificationLink) (core.Notification, error) {
	app, err := b.Application(link.ApplicationID)
	if err != nil {
		return core.Notification{}, err
	}
	if app.AuthorUserID != senderID {
		return core.Notification{}, core.ErrRoleNotPermitted
	}
	msg, err := service.ParseContractRequestMessage(link.Message)
	if err != nil {
		return core.Notification{}, err
	}

	n := core.Notification{
		ID:          ids.New(),
		Type:        msg.Type,
		Title:       fmt.Sprintf("Contract request for %s", app.JobTitle),
		Message:     link.Message,
		LinkURL:     link.LinkPayload,
		Transaction: link.Transaction,
		CreatedAt:   b.now().UTC(),
	}

	b.mu.Lock()
	b.inbox[app.ApplicantUserID] = append(b.inbox[app.ApplicantUserID], n)
	b.mu.Unlock()

	if b.forward != nil {
		if err := b.forward.NotifyContractRequest(ctx, link); err != nil {
			b.logger.Warn("Failed to forward contract request", slog.String("application", app.ID), slog.String("error", err.Error()))
		}
	}
	b.logger.Info("Contract request delivered", slog.String("application", app.ID), slog.String("to", app.ApplicantUserID))
	return n, nil
}

// List returns a user's notifications, oldest first
func (b *Inbox) List(userID string) []core.Notification {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]core.Notification(nil), b.inbox[userID]...)
}
