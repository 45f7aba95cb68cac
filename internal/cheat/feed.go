package cheat

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stemsi/whitelist-backend/internal/config"
	"github.com/stemsi/whitelist-backend/internal/model"
)

// Feed event types published on a quiz monitor channel.
const (
	FeedCheat     = "cheat"
	FeedJoin      = "join"
	FeedProgress  = "progress"
	FeedSubmitted = "submitted"
	FeedLeft      = "left"
)

// FeedEvent is the JSON published on a quiz monitor channel.
type FeedEvent struct {
	Type      string    `json:"type"`
	UserID    string    `json:"user_id"`
	Username  string    `json:"username,omitempty"`
	Method    string    `json:"method,omitempty"`
	Answered  int       `json:"answered_count,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// RedisFeed publishes monitor events on config.CacheKey.QuizMonitorChannel.
type RedisFeed struct {
	rdb redis.Cmdable
}

func NewRedisFeed(rdb redis.Cmdable) *RedisFeed {
	return &RedisFeed{rdb: rdb}
}

// Publish sends ev to the monitor channel of quizID.
func (f *RedisFeed) Publish(ctx context.Context, quizID string, ev FeedEvent) error {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return f.rdb.Publish(ctx, config.CacheKey.QuizMonitorChannel(quizID), payload).Err()
}

func (f *RedisFeed) PublishCheat(ctx context.Context, quizID, userID string, attempt model.CheatAttempt) error {
	return f.Publish(ctx, quizID, FeedEvent{
		Type:      FeedCheat,
		UserID:    userID,
		Method:    attempt.Method,
		Timestamp: attempt.Timestamp,
	})
}
