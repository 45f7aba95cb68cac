// Package notify delivers Discord notifications about submissions through a
// durable queue (Redis list or AMQP exchange) drained by a worker.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"
)

// Target selects where a message is delivered.
type Target string

const (
	// TargetAudit posts to the staff audit channel.
	TargetAudit Target = "audit"
	// TargetDM sends a direct message to Message.UserID.
	TargetDM Target = "dm"
)

// Message is one queued notification.
type Message struct {
	ID        string                  `json:"id"`
	Target    Target                  `json:"target"`
	UserID    string                  `json:"user_id,omitempty"`
	Embed     *discordgo.MessageEmbed `json:"embed"`
	Attempts  int                     `json:"attempts"`
	CreatedAt time.Time               `json:"created_at"`
}

// NewMessage stamps a message with an id and creation time.
func NewMessage(target Target, userID string, embed *discordgo.MessageEmbed) Message {
	return Message{
		ID:        uuid.NewString(),
		Target:    target,
		UserID:    userID,
		Embed:     embed,
		CreatedAt: time.Now().UTC(),
	}
}

// Validate rejects messages no sink can deliver.
func (m Message) Validate() error {
	switch m.Target {
	case TargetAudit:
	case TargetDM:
		if m.UserID == "" {
			return fmt.Errorf("dm message %s has no recipient", m.ID)
		}
	default:
		return fmt.Errorf("message %s has unknown target %q", m.ID, m.Target)
	}
	if m.Embed == nil {
		return fmt.Errorf("message %s has no embed", m.ID)
	}
	return nil
}

// Dispatcher enqueues a message for asynchronous delivery.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg Message) error
}

// Sink performs the actual delivery.
type Sink interface {
	Deliver(ctx context.Context, msg Message) error
}

// Encode serializes a message for a queue.
func Encode(msg Message) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode notification: %w", err)
	}
	return data, nil
}

// Decode parses a queued message.
func Decode(data []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, fmt.Errorf("decode notification: %w", err)
	}
	return msg, nil
}
