package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"story-player/internal/metrics"
	"story-player/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Максимальный размер тела ответа, который мы готовы прочитать.
const maxResponseBody = 2 << 20

// storyAPIHTTPClient реализует StoryAPIClient поверх HTTP/JSON.
type storyAPIHTTPClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// Compile-time check
var _ StoryAPIClient = (*storyAPIHTTPClient)(nil)

// NewStoryAPIClient создает новый клиент для бэкенда генерации историй.
func NewStoryAPIClient(baseURL string, timeout time.Duration, logger *zap.Logger) (StoryAPIClient, error) {
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL for story api: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &storyAPIHTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger.Named("StoryAPIClient"),
	}, nil
}

// backendErrorBody - тело ошибки, которое бэкенд иногда присылает.
type backendErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// do выполняет запрос и возвращает тело успешного ответа.
// Любая ошибка возвращается как *APIError.
func (c *storyAPIHTTPClient) do(ctx context.Context, op, method, path string, payload any) ([]byte, error) {
	log := c.logger.With(zap.String("op", op), zap.String("method", method), zap.String("path", path))
	start := time.Now()

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, &APIError{Op: op, Err: fmt.Errorf("marshal request: %w", err)}
		}
		body = bytes.NewReader(raw)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, &APIError{Op: op, Err: fmt.Errorf("create request: %w", err)}
	}
	httpReq.Header.Set("Accept", "application/json")
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("X-Request-ID", uuid.NewString())

	log.Debug("Sending request to story backend")
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		metrics.ObserveBackendRequest(op, "transport_error", time.Since(start))
		if ctxErr := ctx.Err(); ctxErr != nil {
			log.Debug("Story backend request cancelled", zap.Error(ctxErr))
			return nil, &APIError{Op: op, Retryable: true, Err: ctxErr}
		}
		log.Warn("Story backend request failed", zap.Error(err))
		return nil, &APIError{Op: op, Retryable: true, Err: fmt.Errorf("%w: %v", models.ErrBackendUnavailable, err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		metrics.ObserveBackendRequest(op, "transport_error", time.Since(start))
		log.Warn("Failed to read story backend response", zap.Error(err))
		return nil, &APIError{Op: op, StatusCode: resp.StatusCode, Retryable: true, Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		metrics.ObserveBackendRequest(op, "status_"+strconv.Itoa(resp.StatusCode), time.Since(start))
		apiErr := &APIError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Retryable:  resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusRequestTimeout,
		}
		var eb backendErrorBody
		if json.Unmarshal(respBody, &eb) == nil {
			apiErr.Message = eb.Message
			if apiErr.Message == "" {
				apiErr.Message = eb.Error
			}
		}
		if apiErr.StatusCode >= 500 {
			apiErr.Err = fmt.Errorf("%w: %s", models.ErrBackendUnavailable, http.StatusText(resp.StatusCode))
		} else {
			apiErr.Err = errors.New(http.StatusText(resp.StatusCode))
		}
		log.Warn("Story backend returned non-success status",
			zap.Int("statusCode", resp.StatusCode),
			zap.String("backendMessage", apiErr.Message),
		)
		return nil, apiErr
	}

	metrics.ObserveBackendRequest(op, "ok", time.Since(start))
	return respBody, nil
}

// shapeError оборачивает ошибку формата ответа. Частичное состояние никогда не возвращается.
func (c *storyAPIHTTPClient) shapeError(op string, err error) error {
	metrics.IncBackendMalformed(op)
	c.logger.Error("Story backend response rejected by adapter", zap.String("op", op), zap.Error(err))
	return &APIError{Op: op, StatusCode: http.StatusOK, Retryable: true, Err: err}
}

// StartStory создает новую сессию истории.
func (c *storyAPIHTTPClient) StartStory(ctx context.Context, req models.StartRequest) (*models.StartResult, error) {
	body, err := c.do(ctx, OpStartStory, http.MethodPost, "/api/story/start", req)
	if err != nil {
		return nil, err
	}
	res, err := DecodeStartResponse(body)
	if err != nil {
		return nil, c.shapeError(OpStartStory, err)
	}
	c.logger.Info("Story started",
		zap.String("sessionID", res.SessionID),
		zap.String("format", res.Format),
		zap.Bool("interactive", res.Interactive != nil),
	)
	return res, nil
}

// ContinueStory продолжает историю выбранной веткой.
func (c *storyAPIHTTPClient) ContinueStory(ctx context.Context, req models.ContinueRequest) (*models.ContinueResult, error) {
	body, err := c.do(ctx, OpContinueStory, http.MethodPost, "/api/story/continue", req)
	if err != nil {
		return nil, err
	}
	res, err := DecodeContinueResponse(body)
	if err != nil {
		return nil, c.shapeError(OpContinueStory, err)
	}
	c.logger.Debug("Story continued",
		zap.String("sessionID", req.SessionID),
		zap.Int("checkpoint", res.Segment.CheckpointIndex),
		zap.Bool("final", res.Final),
		zap.Int("options", len(res.NextOptions)),
	)
	return res, nil
}

// PollBranches спрашивает, готовы ли варианты для контрольной точки.
func (c *storyAPIHTTPClient) PollBranches(ctx context.Context, sessionID string, checkpoint int) (*models.PollResult, error) {
	path := fmt.Sprintf("/api/story/%s/branches?checkpoint=%d", url.PathEscape(sessionID), checkpoint)
	body, err := c.do(ctx, OpPollBranches, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	res, err := DecodePollResponse(body)
	if err != nil {
		return nil, c.shapeError(OpPollBranches, err)
	}
	return res, nil
}

// HealthCheck проверяет доступность бэкенда. false без ошибки не возвращается.
func (c *storyAPIHTTPClient) HealthCheck(ctx context.Context) (bool, error) {
	if _, err := c.do(ctx, OpHealthCheck, http.MethodGet, "/health", nil); err != nil {
		return false, err
	}
	return true, nil
}
