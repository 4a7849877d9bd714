// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package internal_notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/rapidaai/voice-gateway/pkg/commons"
	"github.com/rapidaai/voice-gateway/pkg/utils"
)

// DisconnectChannel carries operator or CRM initiated hangup requests. Any
// gateway instance may publish; the instance holding the call acts on it.
const DisconnectChannel = "voice:disconnect"

// DisconnectMessage is the wire payload on DisconnectChannel.
type DisconnectMessage struct {
	StreamSid string `json:"streamSid"`
	Reason    string `json:"reason"`
}

// Terminator resolves a live call by stream id and asks it to end. The
// session registry satisfies it.
type Terminator interface {
	Terminate(streamSid, reason string) bool
}

// DisconnectNotifier bridges the redis control channel to live sessions.
type DisconnectNotifier struct {
	logger   commons.Logger
	client   *redis.Client
	registry Terminator
}

func NewDisconnectNotifier(logger commons.Logger, client *redis.Client, registry Terminator) *DisconnectNotifier {
	return &DisconnectNotifier{
		logger:   logger,
		client:   client,
		registry: registry,
	}
}

// Start subscribes and consumes until ctx is cancelled. A failed subscription
// is returned to the caller, who decides whether the gateway runs without
// external disconnects.
func (n *DisconnectNotifier) Start(ctx context.Context) error {
	sub := n.client.Subscribe(ctx, DisconnectChannel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("failed to subscribe to %s: %w", DisconnectChannel, err)
	}
	n.logger.Infow("disconnect notifier subscribed", "channel", DisconnectChannel)

	utils.Go(ctx, func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				n.handle(msg.Payload)
			}
		}
	})
	return nil
}

func (n *DisconnectNotifier) handle(payload string) {
	var m DisconnectMessage
	if err := json.Unmarshal([]byte(payload), &m); err != nil {
		n.logger.Warnw("malformed disconnect message", "payload", payload, "error", err)
		return
	}
	if m.StreamSid == "" {
		n.logger.Warnw("disconnect message without streamSid", "payload", payload)
		return
	}
	reason := m.Reason
	if reason == "" {
		reason = "external_disconnect"
	}
	if n.registry.Terminate(m.StreamSid, reason) {
		n.logger.Infow("external disconnect applied", "streamSid", m.StreamSid, "reason", reason)
		return
	}
	// Normal in a multi-instance deployment: some other instance owns it.
	n.logger.Debugw("disconnect for unknown stream", "streamSid", m.StreamSid)
}

// Publish requests a hangup cluster-wide.
func (n *DisconnectNotifier) Publish(ctx context.Context, streamSid, reason string) error {
	payload, err := json.Marshal(DisconnectMessage{StreamSid: streamSid, Reason: reason})
	if err != nil {
		return err
	}
	if err := n.client.Publish(ctx, DisconnectChannel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish disconnect: %w", err)
	}
	return nil
}
