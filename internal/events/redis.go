// Package events publishes interview transitions on Redis pub/sub.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"jobchaja-interviews/internal/models"

	"github.com/redis/go-redis/v9"
)

// EventType is the "type" field of every published message.
const EventType = "EVENT_INTERVIEW_TRANSITIONED"

// Message is the JSON payload sent to subscribers.
type Message struct {
	Type          string `json:"type"`
	RequestID     string `json:"requestId"`
	ApplicationID string `json:"applicationId"`
	JobID         string `json:"jobId"`
	Operation     string `json:"operation"`
	From          string `json:"from"`
	To            string `json:"to"`
	At            string `json:"at"`
}

type Publisher struct {
	rdb     *redis.Client
	channel string
}

func NewPublisher(rdb *redis.Client, channel string) *Publisher {
	if channel == "" {
		channel = EventType
	}
	return &Publisher{rdb: rdb, channel: channel}
}

func (p *Publisher) Channel() string { return p.channel }

// Encode renders the wire payload of ev.
func Encode(ev models.TransitionEvent) ([]byte, error) {
	return json.Marshal(Message{
		Type:          EventType,
		RequestID:     ev.RequestID,
		ApplicationID: ev.ApplicationID,
		JobID:         ev.JobID,
		Operation:     ev.Operation,
		From:          string(ev.From),
		To:            string(ev.To),
		At:            ev.At.UTC().Format(time.RFC3339Nano),
	})
}

func (p *Publisher) PublishTransition(ctx context.Context, ev models.TransitionEvent) error {
	payload, err := Encode(ev)
	if err != nil {
		return fmt.Errorf("failed to encode transition event: %w", err)
	}
	if err := p.rdb.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish %s failed: %w", p.channel, err)
	}
	return nil
}
