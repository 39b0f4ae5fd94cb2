// Package digest buffers chat messages and, on a trigger message, drains the buffered
// backlog into a summarization prompt and replies with the summary.
//
// Every non-trigger message is archived as a conversation line. A trigger message first
// takes a summarization slot, then takes the whole backlog in one short store transaction:
// the lines that are read are exactly the lines that reach the prompt and exactly the lines
// that are deleted. Two drain modes exist:
//
//   - delete-first commits the delete before the engine runs. An engine failure loses the
//     drained lines; this is logged as a data-loss event.
//   - delete-on-success claims the lines instead, runs the engine outside any transaction
//     and deletes the claimed ids only after a summary was produced. A failure releases the
//     claim so the lines are summarized by the next trigger.
package digest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lithammer/shortuuid/v4"
	"github.com/pkg/errors"
	"golang.org/x/sync/semaphore"

	"github.com/hrygo/chatdigest/internal/profile"
	"github.com/hrygo/chatdigest/plugin/ai/timeout"
	"github.com/hrygo/chatdigest/plugin/line"
	apperrors "github.com/hrygo/chatdigest/server/internal/errors"
	"github.com/hrygo/chatdigest/server/internal/observability"
	"github.com/hrygo/chatdigest/server/timezone"
	"github.com/hrygo/chatdigest/store"
)

type Service struct {
	store      Store
	engine     Engine
	dispatcher Dispatcher
	profiles   ProfileLookup
	config     *Config
	triggers   *TriggerMatcher
	slots      *semaphore.Weighted
	metrics    *observability.Metrics
}

// NewService wires the collaborators. A nil metrics gets a private registry.
func NewService(store Store, engine Engine, dispatcher Dispatcher, profiles ProfileLookup, config *Config, metrics *observability.Metrics) (*Service, error) {
	if store == nil || engine == nil || dispatcher == nil || profiles == nil || config == nil {
		return nil, errors.New("store, engine, dispatcher, profile lookup and config are required")
	}
	if err := config.validate(); err != nil {
		return nil, err
	}
	if metrics == nil {
		metrics = observability.NewMetrics()
	}
	return &Service{
		store:      store,
		engine:     engine,
		dispatcher: dispatcher,
		profiles:   profiles,
		config:     config,
		triggers:   NewTriggerMatcher(config.TriggerTokens),
		slots:      semaphore.NewWeighted(int64(config.MaxConcurrentSummaries)),
		metrics:    metrics,
	}, nil
}

// HandleMessage archives msg or, if it is a trigger, summarizes the backlog.
// Processing is detached from ctx cancellation; only the summarize timeout abandons work.
// Store errors come back with code STORE_FAILED after the sender got the failure reply.
func (s *Service) HandleMessage(ctx context.Context, msg *InboundMessage) error {
	ctx = context.WithoutCancel(ctx)
	reqCtx := observability.FromContextOrNew(ctx, line.EventTypeMessage, msg.Source.UserID)

	if s.triggers.Match(msg.Text) {
		return s.summarize(ctx, reqCtx, msg)
	}
	return s.archive(ctx, reqCtx, msg)
}

func (s *Service) archive(ctx context.Context, reqCtx *observability.RequestContext, msg *InboundMessage) error {
	name := s.displayName(ctx, reqCtx, msg.Source)

	var createdTs int64
	if msg.Timestamp > 0 {
		createdTs = timezone.FromUnixMilli(msg.Timestamp)
	}
	archived, err := s.store.CreateConversationLine(ctx, &store.ConversationLine{
		User:      name,
		Content:   msg.Text,
		CreatedTs: createdTs,
	})
	if err != nil {
		appErr := apperrors.StoreFailed("failed to archive message", err)
		reqCtx.Error("failed to archive message", err, slog.String(observability.LogFieldErrorCode, string(appErr.Code)))
		s.reply(ctx, reqCtx, msg.ReplyToken, s.config.FailureReply)
		return appErr
	}
	s.metrics.RecordArchived()
	reqCtx.Debug("message archived",
		slog.Int("line_id", int(archived.ID)),
		slog.Int(observability.LogFieldMessageLen, len(msg.Text)))

	// The greeting never affects the archived line.
	greeting := fmt.Sprintf(s.config.GreetingTemplate, name, timezone.FormatTimestamp(archived.CreatedTs, s.config.Location), msg.Text)
	s.reply(ctx, reqCtx, msg.ReplyToken, greeting)
	return nil
}

func (s *Service) displayName(ctx context.Context, reqCtx *observability.RequestContext, source line.Source) string {
	name, err := s.profiles.GetDisplayName(ctx, source)
	if err != nil || strings.TrimSpace(name) == "" {
		appErr := apperrors.ProfileUnavailable("falling back to placeholder display name", err)
		reqCtx.Warn(appErr.Message,
			slog.String(observability.LogFieldErrorCode, string(appErr.Code)),
			slog.Any("error", err))
		return s.config.UnknownUserName
	}
	return name
}

func (s *Service) summarize(ctx context.Context, reqCtx *observability.RequestContext, msg *InboundMessage) error {
	drainID := shortuuid.New()
	logger := reqCtx.WithFields(slog.String(observability.LogFieldDrainID, drainID))

	// The slot is held before anything is taken from the backlog.
	if err := s.acquireSlot(ctx); err != nil {
		s.metrics.RecordDrain(observability.DrainOutcomeEngineFailed, 0)
		logger.Warn("no summarization slot, backlog kept",
			slog.String(observability.LogFieldErrorCode, string(err.Code)),
			slog.String("error", err.Error()))
		s.reply(ctx, reqCtx, msg.ReplyToken, s.config.FailureReply)
		return err
	}

	lines, err := s.takeBacklog(ctx, drainID)
	switch {
	case err != nil:
		s.slots.Release(1)
		appErr := apperrors.StoreFailed("failed to drain backlog", err)
		s.metrics.RecordDrain(observability.DrainOutcomeStoreFailed, 0)
		logger.Error("failed to drain backlog",
			slog.String(observability.LogFieldErrorCode, string(appErr.Code)),
			slog.String("error", err.Error()))
		s.reply(ctx, reqCtx, msg.ReplyToken, s.config.FailureReply)
		return appErr
	case len(lines) == 0:
		s.slots.Release(1)
		s.metrics.RecordDrain(observability.DrainOutcomeInsufficient, 0)
		logger.Info("backlog too short to summarize", slog.Int("min_backlog", s.config.MinBacklog))
		return s.reply(ctx, reqCtx, msg.ReplyToken, s.config.InsufficientHistoryReply)
	}

	lineIDs := store.LineIDs(lines)
	logger.Info("backlog drained", slog.Int("count", len(lines)), slog.String("drain_mode", s.config.DrainMode))

	summary, engineErr := s.runEngine(ctx, AssemblePrompt(s.config.SystemInstruction, lines, s.config.Location))
	if engineErr != nil {
		code := string(apperrors.GetCodeFromError(engineErr, apperrors.ErrCodeEngineFailed))
		if s.deleteOnSuccess() {
			s.metrics.RecordDrain(observability.DrainOutcomeEngineFailed, 0)
			logger.Error("summarization failed, backlog kept",
				slog.String(observability.LogFieldErrorCode, code),
				slog.Any(observability.LogFieldLineIDs, lineIDs),
				slog.String("error", engineErr.Error()))
			if err := s.store.ReleaseConversationLines(ctx, drainID); err != nil {
				logger.Error("failed to release claimed lines, they stay hidden until the claim goes stale",
					slog.Any(observability.LogFieldLineIDs, lineIDs),
					slog.String("error", err.Error()))
			}
		} else {
			s.metrics.RecordDrain(observability.DrainOutcomeEngineFailed, len(lines))
			logger.Error("summarization failed after drain, drained lines are lost",
				slog.String("event", "data_loss"),
				slog.String(observability.LogFieldErrorCode, code),
				slog.Any(observability.LogFieldLineIDs, lineIDs),
				slog.String("error", engineErr.Error()))
		}
		s.reply(ctx, reqCtx, msg.ReplyToken, s.config.FailureReply)
		return engineErr
	}

	if s.deleteOnSuccess() {
		err := s.store.DeleteConversationLines(ctx, &store.DeleteConversationLine{IDList: lineIDs, ClaimID: drainID})
		if err != nil {
			logger.Error("failed to delete summarized lines, they are summarized again once the claim goes stale",
				slog.String(observability.LogFieldErrorCode, string(apperrors.ErrCodeStoreFailed)),
				slog.Any(observability.LogFieldLineIDs, lineIDs),
				slog.String("error", err.Error()))
		}
	}

	s.metrics.RecordDrain(observability.DrainOutcomeSummarized, len(lines))
	logger.Info("backlog summarized", slog.Int("summary_length", len(summary)))
	return s.reply(ctx, reqCtx, msg.ReplyToken, summary)
}

func (s *Service) deleteOnSuccess() bool {
	return s.config.DrainMode == profile.DrainModeDeleteOnSuccess
}

// acquireSlot waits at most SummarizeTimeout for a free summarization slot.
func (s *Service) acquireSlot(ctx context.Context) *apperrors.AppError {
	ctx, cancel := context.WithTimeout(ctx, s.config.SummarizeTimeout)
	defer cancel()
	if err := s.slots.Acquire(ctx, 1); err != nil {
		return apperrors.Timeout("timed out waiting for a summarization slot", err)
	}
	return nil
}

// takeBacklog returns the lines to summarize, or none when the backlog is too short.
// delete-first removes them right away. delete-on-success only claims them under drainID,
// so a concurrent trigger skips them while archives keep flowing.
func (s *Service) takeBacklog(ctx context.Context, drainID string) ([]*store.ConversationLine, error) {
	var taken []*store.ConversationLine
	visit := func(_ context.Context, lines []*store.ConversationLine) (bool, error) {
		if len(lines) <= s.config.MinBacklog {
			return false, nil
		}
		taken = lines
		return true, nil
	}

	if !s.deleteOnSuccess() {
		if err := s.store.DrainConversationLines(ctx, visit); err != nil {
			return nil, err
		}
		return taken, nil
	}

	now := time.Now()
	claim := &store.ClaimConversationLines{
		ClaimID:     drainID,
		ClaimedTs:   now.Unix(),
		StaleBefore: now.Unix() - s.claimLeaseSeconds(),
	}
	if err := s.store.ClaimConversationLines(ctx, claim, visit); err != nil {
		return nil, err
	}
	return taken, nil
}

// claimLeaseSeconds is how long a claim hides its lines. It outlives the slot wait and the
// engine call of the claiming trigger, so only claims of a crashed process go stale.
func (s *Service) claimLeaseSeconds() int64 {
	return int64(2*s.config.SummarizeTimeout/time.Second) + 1
}

type engineResult struct {
	summary string
	err     error
}

// runEngine bounds the engine call by SummarizeTimeout and releases the slot taken by
// acquireSlot once the engine returns. An engine that ignores ctx is abandoned when the
// timeout fires; its slot stays taken until it finally returns.
func (s *Service) runEngine(ctx context.Context, prompt Prompt) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.SummarizeTimeout)
	defer cancel()

	done := s.metrics.StartSummarize()
	resultCh := make(chan engineResult, 1)
	go func() {
		defer s.slots.Release(1)
		summary, err := s.engine.Summarize(ctx, prompt)
		resultCh <- engineResult{summary: summary, err: err}
	}()

	select {
	case <-ctx.Done():
		done(observability.DrainOutcomeEngineFailed)
		return "", apperrors.Timeout(fmt.Sprintf("summarization exceeded %s", s.config.SummarizeTimeout), ctx.Err())
	case result := <-resultCh:
		if result.err != nil {
			done(observability.DrainOutcomeEngineFailed)
			if errors.Is(result.err, context.DeadlineExceeded) {
				return "", apperrors.Timeout(fmt.Sprintf("summarization exceeded %s", s.config.SummarizeTimeout), result.err)
			}
			return "", apperrors.EngineFailed("summarization failed", result.err)
		}
		if strings.TrimSpace(result.summary) == "" {
			done(observability.DrainOutcomeEngineFailed)
			return "", apperrors.EngineFailed("summarization returned no text", nil)
		}
		done(observability.DrainOutcomeSummarized)
		return result.summary, nil
	}
}

// reply logs dispatch failures and returns them. There are no retries.
func (s *Service) reply(ctx context.Context, reqCtx *observability.RequestContext, token, text string) error {
	err := s.dispatcher.Reply(ctx, token, text)
	s.metrics.RecordReply(err)
	if err != nil {
		appErr := apperrors.DispatchFailed("failed to send reply", err)
		reqCtx.Error(appErr.Message, err,
			slog.String(observability.LogFieldErrorCode, string(appErr.Code)),
			slog.String("reply", truncate(text, timeout.MaxTruncateLength)))
		return appErr
	}
	return nil
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}
