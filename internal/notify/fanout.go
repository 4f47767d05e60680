package notify

import (
	"context"
	"fmt"
	"time"

	"traindeck/internal/notify/push"
	"traindeck/internal/types"
)

// MessageWriter persists the shared message record. Implemented by
// db.MessageRepository.
type MessageWriter interface {
	Create(ctx context.Context, m *types.Message) error
}

// InboxWriter persists inbox rows in chunks. Implemented by
// db.InboxRepository.
type InboxWriter interface {
	BulkCreate(ctx context.Context, messageID string, userIDs []string, sentAt time.Time, chunkSize int) (int64, error)
}

// LogWriter appends delivery audit rows. Implemented by
// db.DeliveryLogRepository.
type LogWriter interface {
	Create(ctx context.Context, l *types.DeliveryLog) error
}

// DeviceDeactivator retires devices whose token the push transport reported
// as permanently invalid. Implemented by db.DeviceRepository.
type DeviceDeactivator interface {
	Deactivate(ctx context.Context, deviceID string) error
}

// PushSender delivers a message to a set of targets and reports one result
// per distinct token. Implemented by push.Sender.
type PushSender interface {
	Send(ctx context.Context, msg *types.Message, targets []types.PushTarget) []push.Result
}

// FanoutResult summarizes one delivery fan-out.
type FanoutResult struct {
	MessageID  string
	InboxRows  int64
	PushSent   int
	PushFailed int
	DeadTokens int
}

// Fanout orchestrates one notification delivery: persist the shared message,
// write one inbox row per distinct recipient user, push to every distinct
// token, log each attempt, and retire dead devices.
//
// The steps are deliberately not wrapped in a single transaction. A fan-out
// can span thousands of rows and an external push call; holding locks across
// all of it would be worse than the partial states at-least-once delivery
// already tolerates.
type Fanout struct {
	messages  MessageWriter
	inbox     InboxWriter
	logs      LogWriter
	devices   DeviceDeactivator
	pusher    PushSender
	metrics   DeliveryMetrics
	chunkSize int
	clock     types.Clock
	logger    types.Logger
}

// NewFanout creates a Fanout service.
func NewFanout(messages MessageWriter, inbox InboxWriter, logs LogWriter, devices DeviceDeactivator, pusher PushSender, metrics DeliveryMetrics, chunkSize int, clock types.Clock, logger types.Logger) *Fanout {
	if metrics == nil {
		metrics = NopMetrics{}
	}
	return &Fanout{
		messages:  messages,
		inbox:     inbox,
		logs:      logs,
		devices:   devices,
		pusher:    pusher,
		metrics:   metrics,
		chunkSize: chunkSize,
		clock:     clock,
		logger:    logger,
	}
}

// Send runs the full fan-out for one composed notification. With no targets
// it performs zero writes: no message, no inbox rows, no logs. Inbox rows
// are committed before the push is attempted, so recipients see the
// notification in-app even when the push channel fails entirely.
func (f *Fanout) Send(ctx context.Context, event types.LifecycleEvent, content *Content, senderID string, targets []types.PushTarget) (*FanoutResult, error) {
	if len(targets) == 0 {
		f.logger.Info("no recipients resolved, skipping fan-out", "event", string(event))
		return &FanoutResult{}, nil
	}

	start := f.clock.Now()

	msg := &types.Message{
		Title:    content.Title,
		Body:     content.Body,
		Data:     content.Data,
		SendType: types.SendTypeToken,
		SenderID: senderID,
	}
	if err := f.messages.Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("creating message: %w", err)
	}

	userIDs := distinctUserIDs(targets)
	inserted, err := f.inbox.BulkCreate(ctx, msg.ID, userIDs, msg.CreatedAt, f.chunkSize)
	if err != nil {
		return nil, fmt.Errorf("fanning out inbox rows for message %s: %w", msg.ID, err)
	}

	results := f.pusher.Send(ctx, msg, targets)
	res := &FanoutResult{MessageID: msg.ID, InboxRows: inserted}
	for _, r := range results {
		f.recordResult(ctx, event, msg.ID, r, res)
	}

	f.metrics.RecordFanout(ctx, event, int(inserted), res.DeadTokens, f.clock.Now().Sub(start))

	f.logger.Info("fan-out complete",
		"event", string(event),
		"message_id", msg.ID,
		"inbox_rows", inserted,
		"push_sent", res.PushSent,
		"push_failed", res.PushFailed,
		"dead_tokens", res.DeadTokens,
	)
	return res, nil
}

// recordResult writes the delivery log for one token result and retires the
// device when the token is permanently dead. Bookkeeping failures are logged
// and never abort sibling results; the audit trail is best-effort while the
// delivery itself already happened.
func (f *Fanout) recordResult(ctx context.Context, event types.LifecycleEvent, messageID string, r push.Result, res *FanoutResult) {
	log := &types.DeliveryLog{
		MessageID: messageID,
		DeviceID:  &r.DeviceID,
		Status:    types.DeliverySent,
	}
	if r.Success {
		res.PushSent++
	} else {
		res.PushFailed++
		log.Status = types.DeliveryFailed
		if r.Err != nil {
			detail := r.Err.Error()
			log.ErrorDetail = &detail
		}
	}

	if err := f.logs.Create(ctx, log); err != nil {
		f.logger.Error("failed to write delivery log",
			"message_id", messageID,
			"device_id", r.DeviceID,
			"error", err.Error(),
		)
	}

	f.metrics.RecordPush(ctx, event, r.Success)

	if r.TokenDead {
		res.DeadTokens++
		if err := f.devices.Deactivate(ctx, r.DeviceID); err != nil {
			f.logger.Error("failed to deactivate dead device",
				"device_id", r.DeviceID,
				"error", err.Error(),
			)
			return
		}
		f.logger.Info("deactivated device with dead token", "device_id", r.DeviceID)
	}
}

// distinctUserIDs extracts the unique user IDs from the resolved targets,
// preserving first-appearance order. A user with three devices gets exactly
// one inbox row.
func distinctUserIDs(targets []types.PushTarget) []string {
	seen := make(map[string]struct{}, len(targets))
	ids := make([]string, 0, len(targets))
	for _, t := range targets {
		if t.UserID == "" {
			continue
		}
		if _, ok := seen[t.UserID]; ok {
			continue
		}
		seen[t.UserID] = struct{}{}
		ids = append(ids, t.UserID)
	}
	return ids
}
