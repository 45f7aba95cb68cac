// Package submission turns a finished quiz session into a stored application
// and announces it.
package submission

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/whitelist-backend/internal/apperr"
	"github.com/stemsi/whitelist-backend/internal/draft"
	"github.com/stemsi/whitelist-backend/internal/model"
	"github.com/stemsi/whitelist-backend/internal/notify"
)

// Verifier checks a captcha token with the provider.
type Verifier interface {
	Verify(ctx context.Context, token, remoteIP string) (bool, error)
}

// Store persists submissions. Create must reject a second submission for the
// same (user, quiz) pair.
type Store interface {
	Create(ctx context.Context, sub *model.Submission) (uuid.UUID, error)
}

// Request is one final submission attempt.
type Request struct {
	Identity     model.Identity
	Quiz         *model.Quiz
	Answers      []model.Answer
	Cheats       []model.CheatAttempt
	CaptchaToken string
	RemoteIP     string
}

// Pipeline verifies, stores and announces submissions.
type Pipeline struct {
	verifier     Verifier
	store        Store
	drafts       draft.Store
	dispatcher   notify.Dispatcher
	panelBaseURL string
	now          func() time.Time
	log          zerolog.Logger
}

func NewPipeline(verifier Verifier, store Store, drafts draft.Store, dispatcher notify.Dispatcher, panelBaseURL string, log zerolog.Logger) *Pipeline {
	return &Pipeline{
		verifier:     verifier,
		store:        store,
		drafts:       drafts,
		dispatcher:   dispatcher,
		panelBaseURL: panelBaseURL,
		now:          time.Now,
		log:          log.With().Str("component", "submission_pipeline").Logger(),
	}
}

// Submit runs the pipeline and returns the new submission id.
//
// Captcha problems come back as validation errors and storage problems as
// persistence errors; in both cases the draft is untouched. Notification
// failures are logged and never returned.
func (p *Pipeline) Submit(ctx context.Context, req Request) (uuid.UUID, error) {
	log := p.log.With().
		Str("user_id", req.Identity.UserID).
		Str("quiz_id", req.Quiz.ID.String()).
		Logger()

	if req.CaptchaToken == "" {
		return uuid.Nil, apperr.ErrCaptchaRequired
	}

	ok, err := p.verifier.Verify(ctx, req.CaptchaToken, req.RemoteIP)
	if err != nil {
		log.Warn().Err(err).Msg("Captcha verification request failed")
	}
	if err != nil || !ok {
		return uuid.Nil, apperr.ErrCaptchaFailed
	}

	sub := &model.Submission{
		UserID:        req.Identity.UserID,
		Username:      req.Identity.Username,
		HighestRole:   req.Identity.HighestRole,
		QuizID:        req.Quiz.ID,
		QuizTitle:     req.Quiz.Title,
		Answers:       nonNil(req.Answers),
		CheatAttempts: nonNil(req.Cheats),
		SubmittedAt:   p.now().UTC(),
	}

	id, err := p.store.Create(ctx, sub)
	if err != nil {
		log.Error().Err(err).Msg("Submission insert failed")
		var appErr *apperr.Error
		if errors.As(err, &appErr) && appErr.Kind == apperr.KindPersistence {
			return uuid.Nil, appErr
		}
		return uuid.Nil, apperr.Persistence(err)
	}
	sub.ID = id

	if err := p.drafts.Clear(ctx, draft.Key(req.Identity.UserID, req.Quiz.ID.String())); err != nil {
		log.Warn().Err(err).Msg("Draft clear after submission failed")
	}

	p.announce(ctx, log, sub)

	log.Info().
		Str("submission_id", id.String()).
		Int("answers", len(sub.Answers)).
		Int("cheat_attempts", len(sub.CheatAttempts)).
		Msg("Submission stored")
	return id, nil
}

func (p *Pipeline) announce(ctx context.Context, log zerolog.Logger, sub *model.Submission) {
	messages := []notify.Message{
		notify.NewMessage(notify.TargetAudit, "", AuditEmbed(sub, p.panelBaseURL)),
		notify.NewMessage(notify.TargetDM, sub.UserID, ReceiptEmbed(sub)),
	}
	for _, msg := range messages {
		if err := p.dispatcher.Dispatch(ctx, msg); err != nil {
			log.Warn().Err(apperr.Notification(err)).
				Str("target", string(msg.Target)).
				Str("submission_id", sub.ID.String()).
				Msg("Notification dispatch failed")
		}
	}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
