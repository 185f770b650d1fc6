package bank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// TransferRequest — параметры банковского перевода по заявке на вывод.
type TransferRequest struct {
	RequestCode   string `json:"request_code"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	BankName      string `json:"bank_name"`
	AccountNumber string `json:"account_number"`
	AccountName   string `json:"account_name"`
	Description   string `json:"description,omitempty"`
}

// TransferResult — ответ банковского шлюза на запрос перевода.
type TransferResult struct {
	TransactionID string `json:"transaction_id"`
	Status        string `json:"status"`
	Message       string `json:"message,omitempty"`
}

// Gateway - интерфейс банковского шлюза, через который уходят реальные переводы.
type Gateway interface {
	Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error)
}

// Client реализует Gateway поверх HTTP API платёжного провайдера.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient создаёт экземпляр клиента.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Transfer отправляет запрос перевода в банковский шлюз.
func (c *Client) Transfer(ctx context.Context, transfer TransferRequest) (*TransferResult, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("bank: baseURL не задан")
	}
	if transfer.Currency == "" {
		transfer.Currency = "VND"
	}

	body, err := json.Marshal(transfer)
	if err != nil {
		return nil, err
	}

	url := c.baseURL
	if !strings.HasSuffix(url, "/") {
		url += "/"
	}
	url += "transfers"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	// Повторная отправка того же кода заявки не должна создавать второй перевод.
	req.Header.Set("Idempotency-Key", transfer.RequestCode)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("bank: запрос не выполнен: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errorBody map[string]any
		_ = json.NewDecoder(resp.Body).Decode(&errorBody)
		return nil, fmt.Errorf("bank: код ответа %d: %v", resp.StatusCode, errorBody)
	}

	var result TransferResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	if result.TransactionID == "" {
		return nil, fmt.Errorf("bank: пустой идентификатор перевода")
	}
	return &result, nil
}
