package natsx

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Virstriker/ChatApp/service/chat"
)

const (
	BizPresence = "presence"
	BizDelivery = "delivery"
)

// Publisher sends one payload on the subject registered for biz.
type Publisher interface {
	Publish(ctx context.Context, biz string, data []byte, hdr map[string]string) error
}

// RegisterAuditRoutes binds the audit biz names under prefix,
// e.g. ppchat.presence and ppchat.delivery.
func RegisterAuditRoutes(c *NatsxClient, prefix string) error {
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), ".")
	if prefix == "" {
		return fmt.Errorf("subject prefix is empty")
	}
	for _, biz := range []string{BizPresence, BizDelivery} {
		if err := c.RegisterRoute(NatsxRoute{Biz: biz, Subject: prefix + "." + biz}); err != nil {
			return err
		}
	}
	return nil
}

type presenceRecord struct {
	Kind          chat.PresenceKind `json:"kind"`
	ParticipantID string            `json:"participantId"`
	DisplayName   string            `json:"displayName,omitempty"`
	NodeID        string            `json:"nodeId"`
	TS            int64             `json:"ts"`
}

// deliveryRecord has no body field: message text never leaves the process.
type deliveryRecord struct {
	Kind      chat.DeliveryKind `json:"kind"`
	MessageID string            `json:"messageId,omitempty"`
	From      string            `json:"from"`
	To        string            `json:"to"`
	Reason    chat.DropReason   `json:"reason,omitempty"`
	NodeID    string            `json:"nodeId"`
	TS        int64             `json:"ts"`
}

// AuditTap publishes presence changes and delivery outcomes to NATS.
type AuditTap struct {
	pub    Publisher
	nodeID string
}

func NewAuditTap(pub Publisher, nodeID string) *AuditTap {
	return &AuditTap{pub: pub, nodeID: nodeID}
}

func (t *AuditTap) Name() string { return "nats-audit" }

func (t *AuditTap) OnPresence(ctx context.Context, c chat.PresenceChange) error {
	return t.publish(ctx, BizPresence, presenceRecord{
		Kind:          c.Kind,
		ParticipantID: c.ParticipantID,
		DisplayName:   c.DisplayName,
		NodeID:        t.nodeID,
		TS:            c.At.UnixMilli(),
	})
}

func (t *AuditTap) OnDelivery(ctx context.Context, o chat.DeliveryOutcome) error {
	return t.publish(ctx, BizDelivery, deliveryRecord{
		Kind:      o.Kind,
		MessageID: o.MessageID,
		From:      o.From,
		To:        o.To,
		Reason:    o.Reason,
		NodeID:    t.nodeID,
		TS:        o.At.UnixMilli(),
	})
}

func (t *AuditTap) publish(ctx context.Context, biz string, rec any) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal %s record: %w", biz, err)
	}
	return t.pub.Publish(ctx, biz, data, map[string]string{"node": t.nodeID})
}
