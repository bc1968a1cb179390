package expo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/momentapp/notifier/internal/application/push"
	"github.com/momentapp/notifier/internal/config"
	apperrors "github.com/momentapp/notifier/pkg/errors"
)

// ErrDeviceNotRegistered is the provider code for a token that will never
// accept pushes again.
const ErrDeviceNotRegistered = "DeviceNotRegistered"

const maxErrorBody = 4 << 10

// Client talks to the Expo push service
type Client struct {
	httpClient  *http.Client
	sendURL     string
	receiptsURL string
	accessToken string
	logger      *zap.Logger
}

var _ push.Provider = (*Client)(nil)

// NewClient creates an Expo client from cfg
func NewClient(cfg config.PushConfig, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	sendURL := cfg.SendURL
	if sendURL == "" {
		sendURL = config.DefaultExpoSendURL
	}
	receiptsURL := cfg.ReceiptsURL
	if receiptsURL == "" {
		receiptsURL = config.DefaultExpoReceiptsURL
	}

	return &Client{
		httpClient:  &http.Client{Timeout: timeout},
		sendURL:     sendURL,
		receiptsURL: receiptsURL,
		accessToken: cfg.AccessToken,
		logger:      logger.Named("expo"),
	}
}

type errorDetails struct {
	Error string `json:"error"`
}

type ticketResponse struct {
	Status  string        `json:"status"`
	ID      string        `json:"id"`
	Message string        `json:"message"`
	Details *errorDetails `json:"details"`
}

type sendResponse struct {
	Data   []ticketResponse `json:"data"`
	Errors []apiError       `json:"errors"`
}

type receiptResponse struct {
	Status  string        `json:"status"`
	Message string        `json:"message"`
	Details *errorDetails `json:"details"`
}

type receiptsResponse struct {
	Data   map[string]receiptResponse `json:"data"`
	Errors []apiError                 `json:"errors"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Send posts messages and returns one ticket per message.
func (c *Client) Send(ctx context.Context, messages []push.Message) ([]push.Ticket, error) {
	if len(messages) == 0 {
		return nil, nil
	}

	var resp sendResponse
	if err := c.post(ctx, c.sendURL, messages, &resp); err != nil {
		return nil, err
	}
	if len(resp.Errors) > 0 && len(resp.Data) == 0 {
		return nil, apperrors.TransientDelivery("expo send", fmt.Errorf("%s: %s", resp.Errors[0].Code, resp.Errors[0].Message))
	}
	if len(resp.Data) != len(messages) {
		return nil, apperrors.TransientDelivery("expo send",
			fmt.Errorf("expected %d tickets, got %d", len(messages), len(resp.Data)))
	}

	tickets := make([]push.Ticket, len(resp.Data))
	for i, t := range resp.Data {
		outcome, code := classify(t.Status, t.Details)
		tickets[i] = push.Ticket{ID: t.ID, Outcome: outcome, Code: code, Message: t.Message}
	}
	return tickets, nil
}

// Receipts fetches the receipts for ids.
func (c *Client) Receipts(ctx context.Context, ids []string) (map[string]push.Receipt, error) {
	if len(ids) == 0 {
		return map[string]push.Receipt{}, nil
	}

	var resp receiptsResponse
	if err := c.post(ctx, c.receiptsURL, map[string][]string{"ids": ids}, &resp); err != nil {
		return nil, err
	}
	if len(resp.Errors) > 0 && resp.Data == nil {
		return nil, apperrors.TransientDelivery("expo receipts", fmt.Errorf("%s: %s", resp.Errors[0].Code, resp.Errors[0].Message))
	}

	out := make(map[string]push.Receipt, len(resp.Data))
	for id, r := range resp.Data {
		outcome, code := classify(r.Status, r.Details)
		out[id] = push.Receipt{Outcome: outcome, Code: code, Message: r.Message}
	}
	return out, nil
}

func (c *Client) post(ctx context.Context, url string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding expo request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building expo request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.accessToken)
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return apperrors.TransientDelivery("expo request", err)
	}
	defer res.Body.Close()

	if res.StatusCode >= http.StatusBadRequest {
		snippet, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
		c.logger.Warn("expo request rejected",
			zap.String("url", url),
			zap.Int("status", res.StatusCode),
			zap.ByteString("body", snippet),
		)
		return apperrors.TransientDelivery("expo request", fmt.Errorf("status %d", res.StatusCode))
	}

	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return apperrors.TransientDelivery("expo response", err)
	}
	return nil
}

func classify(status string, details *errorDetails) (push.Outcome, string) {
	if status == "ok" {
		return push.OutcomeOK, ""
	}
	code := ""
	if details != nil {
		code = details.Error
	}
	if code == ErrDeviceNotRegistered {
		return push.OutcomePermanent, code
	}
	return push.OutcomeError, code
}
