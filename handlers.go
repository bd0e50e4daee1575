package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

const webhookSecretHeader = "X-Webhook-Secret"

// TaskEnqueuer is satisfied by *asynq.Client.
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// TokenGranter issues browser subscribe tokens for one transaction channel.
type TokenGranter interface {
	GrantToken(ctx context.Context, transactionID string) (string, error)
}

type Handlers struct {
	sessionService *SessionService
	asynqClient    TaskEnqueuer
	tokens         TokenGranter
	validate       *validator.Validate
	webhookSecret  string
	logger         zerolog.Logger
}

func NewHandlers(ss *SessionService, asynqClient TaskEnqueuer, tokens TokenGranter, webhookSecret string, logger zerolog.Logger) *Handlers {
	return &Handlers{
		sessionService: ss,
		asynqClient:    asynqClient,
		tokens:         tokens,
		validate:       validator.New(),
		webhookSecret:  webhookSecret,
		logger:         logger.With().Str("component", "http").Logger(),
	}
}

func (h *Handlers) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": h.sessionService.Len(),
	})
}

// OpenWaitSession mounts a waiting page. The body is the navigation state
// handed over by checkout; the query string is the page's own URL query.
func (h *Handlers) OpenWaitSession(c echo.Context) error {
	var state NavigationState
	if err := (&echo.DefaultBinder{}).BindBody(c, &state); err != nil {
		return WrapAppError(err, CodeBadRequest, "invalid navigation state", http.StatusBadRequest)
	}
	if err := h.validate.Struct(state); err != nil {
		return Validation(err)
	}

	input := ResolveWaitInput(c.QueryParams(), state)
	input.Owner = userID(c)

	view := h.sessionService.Open(input)
	return c.JSON(http.StatusCreated, view)
}

func (h *Handlers) ListWaitSessions(c echo.Context) error {
	return c.JSON(http.StatusOK, h.sessionService.List(userID(c)))
}

func (h *Handlers) GetWaitSession(c echo.Context) error {
	id := c.Param("id")

	view, err := h.sessionService.Get(id)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return NotFound(fmt.Sprintf("wait session %s not found", id))
		}
		return Internal(err)
	}
	if !ownedBy(view, userID(c)) {
		return NotFound(fmt.Sprintf("wait session %s not found", id))
	}

	return c.JSON(http.StatusOK, view)
}

func (h *Handlers) CloseWaitSession(c echo.Context) error {
	id := c.Param("id")

	view, err := h.sessionService.Get(id)
	if err == nil && !ownedBy(view, userID(c)) {
		err = ErrSessionNotFound
	}
	if err == nil {
		err = h.sessionService.Close(id)
	}
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return NotFound(fmt.Sprintf("wait session %s not found", id))
		}
		return Internal(err)
	}

	return c.NoContent(http.StatusNoContent)
}

func (h *Handlers) GrantChannelToken(c echo.Context) error {
	transactionID := c.Param("transactionId")
	if transactionID == "" {
		return NewAppError(CodeBadRequest, "transactionId is empty", http.StatusBadRequest)
	}
	if h.tokens == nil {
		return WrapAppError(ErrTokensUnavailable, CodeUnavailable, ErrTokensUnavailable.Error(), http.StatusServiceUnavailable)
	}

	token, err := h.tokens.GrantToken(c.Request().Context(), transactionID)
	if err != nil {
		h.logger.Error().Err(err).Str("transaction_id", transactionID).Msg("h.tokens.GrantToken()")
		return Internal(err)
	}

	return c.JSON(http.StatusOK, map[string]string{"token": token, "channel": transactionID})
}

// NotifyPaymentCompleted queues the publish of a payment completed event.
func (h *Handlers) NotifyPaymentCompleted(c echo.Context) error {
	if h.webhookSecret != "" {
		got := c.Request().Header.Get(webhookSecretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.webhookSecret)) != 1 {
			return NewAppError("UNAUTHORIZED", "invalid webhook secret", http.StatusUnauthorized)
		}
	}

	var req PaymentNotification
	if err := c.Bind(&req); err != nil {
		return WrapAppError(err, CodeBadRequest, "invalid request", http.StatusBadRequest)
	}
	if err := h.validate.Struct(req); err != nil {
		return Validation(err)
	}

	task, err := NewPaymentCompletedTask(PaymentCompletedPayload{
		TransactionID: req.TransactionID,
		BookingID:     req.BookingID,
		Message:       req.Message,
	})
	if err != nil {
		return Internal(err)
	}

	taskID := fmt.Sprintf("payment-completed:%s", req.TransactionID)
	_, err = h.asynqClient.EnqueueContext(c.Request().Context(), task, asynq.TaskID(taskID), asynq.Queue("critical"))
	if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
		return c.JSON(http.StatusAccepted, map[string]string{"status": "duplicate"})
	}
	if err != nil {
		h.logger.Error().Err(err).Str("transaction_id", req.TransactionID).Msg("h.asynqClient.EnqueueContext()")
		return Internal(err)
	}

	return c.JSON(http.StatusAccepted, map[string]string{"status": "queued"})
}

func userID(c echo.Context) string {
	v := c.Get(userIDContextKey)
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

func ownedBy(view SessionView, user string) bool {
	return view.Owner == "" || view.Owner == user
}

// httpErrorHandler renders AppError and echo errors as JSON.
func httpErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status := http.StatusInternalServerError
		body := map[string]string{"code": CodeInternal, "message": "internal error"}

		var appErr *AppError
		var httpErr *echo.HTTPError
		switch {
		case errors.As(err, &appErr):
			status = appErr.HTTPStatus
			body = map[string]string{"code": appErr.Code, "message": appErr.Message}
		case errors.As(err, &httpErr):
			status = httpErr.Code
			body = map[string]string{"code": http.StatusText(status), "message": fmt.Sprint(httpErr.Message)}
		}

		if status >= http.StatusInternalServerError {
			logger.Error().Err(err).Str("path", c.Path()).Msg("request failed")
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(status)
		} else {
			err = c.JSON(status, body)
		}
		if err != nil {
			logger.Error().Err(err).Msg("writing error response")
		}
	}
}
