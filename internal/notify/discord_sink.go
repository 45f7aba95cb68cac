package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
)

// DiscordAPI is the subset of *discordgo.Session used for delivery.
type DiscordAPI interface {
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
	UserChannelCreate(recipientID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
}

// DiscordSink posts audit embeds to a channel and receipts as DMs.
type DiscordSink struct {
	api            DiscordAPI
	auditChannelID string
}

func NewDiscordSink(api DiscordAPI, auditChannelID string) *DiscordSink {
	return &DiscordSink{api: api, auditChannelID: auditChannelID}
}

// NewDiscordSession opens a bot-authenticated REST client. No gateway
// connection is made.
func NewDiscordSession(token string) (*discordgo.Session, error) {
	if token == "" {
		return nil, errors.New("discord bot token is empty")
	}
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	return s, nil
}

func (s *DiscordSink) Deliver(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}

	channelID := s.auditChannelID
	if msg.Target == TargetDM {
		ch, err := s.api.UserChannelCreate(msg.UserID, discordgo.WithContext(ctx))
		if err != nil {
			return fmt.Errorf("open dm channel with %s: %w", msg.UserID, err)
		}
		channelID = ch.ID
	}
	if channelID == "" {
		return errors.New("audit channel is not configured")
	}

	if _, err := s.api.ChannelMessageSendEmbed(channelID, msg.Embed, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("send %s embed: %w", msg.Target, err)
	}
	return nil
}

// LogSink writes messages to the log instead of Discord. Used when no bot
// token is configured.
type LogSink struct {
	log zerolog.Logger
}

func NewLogSink(log zerolog.Logger) *LogSink {
	return &LogSink{log: log.With().Str("component", "notify_log_sink").Logger()}
}

func (s *LogSink) Deliver(_ context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	s.log.Info().
		Str("id", msg.ID).
		Str("target", string(msg.Target)).
		Str("user_id", msg.UserID).
		Str("title", msg.Embed.Title).
		Msg("Notification (discord disabled)")
	return nil
}
