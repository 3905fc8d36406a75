package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talentbridge/trustlayer/core"
)

func newPubSub(t *testing.T) *gochannel.GoChannel {
	t.Helper()
	ps := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 8}, watermill.NopLogger{})
	t.Cleanup(func() { _ = ps.Close() })
	return ps
}

func receive(t *testing.T, ch <-chan *message.Message) *message.Message {
	t.Helper()
	select {
	case msg := <-ch:
		msg.Ack()
		return msg
	case <-time.After(time.Second):
		t.Fatal("no message received")
		return nil
	}
}

func TestPublishPhase(t *testing.T) {
	ctx := context.Background()
	ps := newPubSub(t)
	msgs, err := ps.Subscribe(ctx, TopicDID)
	require.NoError(t, err)

	p := NewWatermillPublisher(ps)
	p.now = func() time.Time { return time.Unix(100, 0) }
	require.NoError(t, p.PublishPhase(ctx, "0xabc", core.PhaseChallengeIssued, core.PhaseDetail{Nonce: "n1"}))

	msg := receive(t, msgs)
	assert.Equal(t, "0xabc", msg.Metadata.Get("key"))
	assert.NotEmpty(t, msg.UUID)

	var ev PhaseEvent
	require.NoError(t, json.Unmarshal(msg.Payload, &ev))
	assert.Equal(t, PhaseEvent{Holder: "0xabc", Phase: "challenge", Nonce: "n1", At: 100}, ev)
}

func TestPublishContract(t *testing.T) {
	ctx := context.Background()
	ps := newPubSub(t)
	msgs, err := ps.Subscribe(ctx, TopicContract)
	require.NoError(t, err)

	p := NewWatermillPublisher(ps)
	require.NoError(t, p.PublishContract(ctx, &core.ContractEscrow{
		ApplicationID:   "APPL7",
		State:           core.ContractApplicantSigned,
		ContractAddress: "C1",
		ApplicantSigned: true,
	}))

	var ev ContractEvent
	require.NoError(t, json.Unmarshal(receive(t, msgs).Payload, &ev))
	assert.Equal(t, "applicant_signed", ev.State)
	assert.True(t, ev.ApplicantSigned)
	assert.Equal(t, "C1", ev.ContractAddress)
}

func TestNotifyContractRequest(t *testing.T) {
	ctx := context.Background()
	ps := newPubSub(t)
	msgs, err := ps.Subscribe(ctx, TopicNotification)
	require.NoError(t, err)

	link := core.ContractNotificationLink{ApplicationID: "APPL7", LinkPayload: "/contracts/review?applicationId=APPL7"}
	require.NoError(t, NewWatermillPublisher(ps).NotifyContractRequest(ctx, link))

	var got core.ContractNotificationLink
	require.NoError(t, json.Unmarshal(receive(t, msgs).Payload, &got))
	assert.Equal(t, link, got)
}

func TestPublishAfterClose(t *testing.T) {
	ps := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	require.NoError(t, ps.Close())

	err := NewWatermillPublisher(ps).PublishPhase(context.Background(), "h", core.PhaseIdle, core.PhaseDetail{})
	assert.Error(t, err)
}
