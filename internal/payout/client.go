// Package payout предоставляет клиент для внешней платёжной системы выплат.
package payout

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
)

// Статусы выплаты, которые сообщает внешняя система.
const (
	StatusProcessing = "PROCESSING"
	StatusCompleted  = "COMPLETED"
	StatusFailed     = "FAILED"
)

// Client инкапсулирует HTTP-взаимодействие с системой выплат.
type Client struct {
	baseURL    string
	httpClient *retryablehttp.Client
}

// PayoutStatus описывает ответ системы выплат по одной заявке.
type PayoutStatus struct {
	Withdrawal    string `json:"withdrawal"`
	Status        string `json:"status"`
	ReferenceCode string `json:"reference_code,omitempty"`
	Reason        string `json:"reason,omitempty"`
}

// NewClient создаёт HTTP-клиент для обращения к системе выплат по указанному адресу.
func NewClient(baseURL string) *Client {
	httpClient := retryablehttp.NewClient()
	httpClient.RetryMax = 3
	httpClient.HTTPClient.Timeout = 5 * time.Second
	httpClient.Logger = nil
	// После исчерпания повторов возвращается последний ответ: 429 с Retry-After
	// обрабатывается вызывающей стороной.
	httpClient.ErrorHandler = retryablehttp.PassthroughErrorHandler

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// GetPayoutStatus запрашивает состояние выплаты по идентификатору заявки на вывод.
// Возвращает статус выплаты, HTTP-код ответа и паузу из Retry-After при 429.
func (c *Client) GetPayoutStatus(ctx context.Context, withdrawalID uuid.UUID) (*PayoutStatus, int, time.Duration, error) {
	if c == nil || c.baseURL == "" {
		return nil, 0, 0, fmt.Errorf("payout client not configured")
	}

	base := c.baseURL
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	url := fmt.Sprintf("%s/api/payouts/%s", base, withdrawalID)

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := time.Duration(0)
		if v := resp.Header.Get("Retry-After"); v != "" {
			if seconds, parseErr := strconv.Atoi(v); parseErr == nil {
				retryAfter = time.Duration(seconds) * time.Second
			}
		}
		return nil, resp.StatusCode, retryAfter, nil
	}

	if resp.StatusCode == http.StatusNoContent {
		return nil, resp.StatusCode, 0, nil
	}

	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode, 0, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var result PayoutStatus
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, resp.StatusCode, 0, fmt.Errorf("decode response: %w", err)
	}

	return &result, resp.StatusCode, 0, nil
}
