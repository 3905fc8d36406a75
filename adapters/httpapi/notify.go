package httpapi

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/talentbridge/trustlayer/core"
	"github.com/talentbridge/trustlayer/ports"
)

// NotifyMinValidity is how long the access token must stay valid for a notification to be sent
const NotifyMinValidity = 30 * time.Second

// NotifyClient delivers contract requests through the job board
type NotifyClient struct {
	c   *Client
	now func() time.Time
}

var _ ports.ContractNotifier = (*NotifyClient)(nil)

func NewNotifyClient(c *Client) *NotifyClient {
	return &NotifyClient{c: c, now: time.Now}
}

type contractRequestBody struct {
	Transaction *core.TransactionDescriptor `json:"transaction,omitempty"`
	LinkURL     string                      `json:"linkUrl"`
	Message     string                      `json:"message"`
}

func (n *NotifyClient) NotifyContractRequest(ctx context.Context, link core.ContractNotificationLink) error {
	if err := n.ensureFresh(ctx); err != nil {
		return err
	}
	return serviceError(n.c.do(ctx, request{
		method: http.MethodPost,
		path:   "/api/job/applications/" + url.PathEscape(link.ApplicationID) + "/contract-request",
		body: contractRequestBody{
			Transaction: link.Transaction,
			LinkURL:     link.LinkPayload,
			Message:     link.Message,
		},
		auth: true,
	}, nil))
}

// Notifications lists the signed-in user's inbox
func (n *NotifyClient) Notifications(ctx context.Context) ([]core.Notification, error) {
	var resp []core.Notification
	if err := n.c.do(ctx, request{method: http.MethodGet, path: "/api/notifications", auth: true}, &resp); err != nil {
		return nil, serviceError(err)
	}
	return resp, nil
}

// ensureFresh refreshes a token that would expire before delivery completes
func (n *NotifyClient) ensureFresh(ctx context.Context) error {
	if n.c.tokens == nil {
		return core.ErrInvalidToken
	}
	cred, ok := n.c.tokens.GetValidAccessToken(ctx)
	if ok && !cred.Expired(n.now(), NotifyMinValidity) {
		return nil
	}
	if !n.c.tokens.RefreshOnce(ctx) {
		return core.ErrTokenExpired
	}
	return nil
}
