// Package webhook receives platform webhook deliveries and feeds text messages to the digest service.
package webhook

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/hrygo/chatdigest/plugin/line"
	apperrors "github.com/hrygo/chatdigest/server/internal/errors"
	"github.com/hrygo/chatdigest/server/internal/observability"
	"github.com/hrygo/chatdigest/server/service/digest"
)

// MessageHandler processes one inbound text message.
type MessageHandler interface {
	HandleMessage(ctx context.Context, msg *digest.InboundMessage) error
}

type Service struct {
	ChannelSecret string
	Handler       MessageHandler
	Metrics       *observability.Metrics
	Logger        *slog.Logger
}

func NewService(channelSecret string, handler MessageHandler, metrics *observability.Metrics, logger *slog.Logger) *Service {
	if metrics == nil {
		metrics = observability.NewMetrics()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		ChannelSecret: channelSecret,
		Handler:       handler,
		Metrics:       metrics,
		Logger:        logger,
	}
}

// Register mounts the webhook on path and on "/".
func (s *Service) Register(e *echo.Echo, path string, middlewares ...echo.MiddlewareFunc) {
	e.POST(path, s.HandleWebhook, middlewares...)
	if path != "/" {
		e.POST("/", s.HandleWebhook, middlewares...)
	}
}

// HandleWebhook verifies the signature, then handles every text event in delivery order.
// It answers 500 only when a message could not be archived or drained, so the platform redelivers.
func (s *Service) HandleWebhook(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, apperrors.InvalidArgument("failed to read request body"))
	}
	if err := line.ValidateSignature(s.ChannelSecret, body, c.Request().Header.Get(line.SignatureHeader)); err != nil {
		s.Logger.Warn("rejected webhook with invalid signature",
			slog.String("remote_ip", c.RealIP()),
			slog.String(observability.LogFieldErrorCode, string(apperrors.ErrCodeUnauthorized)))
		return c.JSON(http.StatusBadRequest, apperrors.Unauthorized("invalid signature"))
	}

	request, err := line.ParseWebhook(body)
	if err != nil {
		s.Logger.Warn("rejected malformed webhook", slog.String("error", err.Error()))
		return c.JSON(http.StatusBadRequest, apperrors.InvalidArgument("malformed webhook body"))
	}

	requestID := c.Response().Header().Get(echo.HeaderXRequestID)
	if requestID == "" {
		requestID = c.Request().Header.Get(echo.HeaderXRequestID)
	}

	storeFailed := false
	for i, event := range request.Events {
		s.Metrics.RecordEvent(event.Type)
		if !event.IsText() {
			s.Logger.Debug("skipping non-text event",
				slog.String(observability.LogFieldEventType, event.Type),
				slog.String("webhook_event_id", event.WebhookEventID))
			continue
		}

		eventRequestID := requestID
		if requestID != "" && len(request.Events) > 1 {
			eventRequestID = requestID + "-" + strconv.Itoa(i)
		}
		reqCtx := observability.NewRequestContextWithID(s.Logger, eventRequestID, event.Type, event.Source.UserID)
		ctx := observability.WithRequestContext(c.Request().Context(), reqCtx)

		err := s.Handler.HandleMessage(ctx, &digest.InboundMessage{
			ReplyToken: event.ReplyToken,
			Source:     event.Source,
			Text:       event.Message.Text,
			Timestamp:  event.Timestamp,
		})
		if err != nil {
			reqCtx.Warn("message handling failed",
				slog.String(observability.LogFieldErrorCode, string(apperrors.GetCodeFromError(err, apperrors.ErrCodeInternal))),
				slog.Bool("redelivery", event.DeliveryContext.IsRedelivery))
			if apperrors.IsCode(err, apperrors.ErrCodeStoreFailed) {
				storeFailed = true
			}
			continue
		}
		reqCtx.Info("message handled", slog.Int64(observability.LogFieldDuration, reqCtx.DurationMs()))
	}

	if storeFailed {
		return c.JSON(http.StatusInternalServerError, apperrors.StoreFailed("failed to persist message", nil))
	}
	return c.String(http.StatusOK, "OK")
}
