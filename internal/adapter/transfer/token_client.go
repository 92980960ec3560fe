package transfer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"token-sale-engine/internal/core/ports"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// transferRequest is the JSON body sent to the token rail.
type transferRequest struct {
	From      string `json:"from,omitempty"`
	To        string `json:"to"`
	Amount    int64  `json:"amount"`
	Timestamp int64  `json:"timestamp"`
}

// balanceResponse is the token rail's balance query reply.
type balanceResponse struct {
	Account string `json:"account"`
	Balance int64  `json:"balance"`
}

// TokenAPIClient implements ports.TokenClient against an external token rail
// over HTTP. Outbound bodies are HMAC-signed with the shared transfer key.
type TokenAPIClient struct {
	baseURL    string
	secretKey  string
	sigSvc     ports.SignatureService
	httpClient HTTPClient
	log        zerolog.Logger
}

// NewTokenAPIClient creates a new token rail client.
func NewTokenAPIClient(baseURL, secretKey string, sigSvc ports.SignatureService, httpClient HTTPClient, log zerolog.Logger) *TokenAPIClient {
	return &TokenAPIClient{
		baseURL:    baseURL,
		secretKey:  secretKey,
		sigSvc:     sigSvc,
		httpClient: httpClient,
		log:        log,
	}
}

// Transfer moves tokens from the engine's working balance to an account.
func (c *TokenAPIClient) Transfer(ctx context.Context, to uuid.UUID, amount int64) error {
	body := transferRequest{
		To:        to.String(),
		Amount:    amount,
		Timestamp: time.Now().Unix(),
	}
	return c.post(ctx, "/transfer", body)
}

// TransferFrom pulls tokens from an account into the custodian.
func (c *TokenAPIClient) TransferFrom(ctx context.Context, from uuid.UUID, to uuid.UUID, amount int64) error {
	body := transferRequest{
		From:      from.String(),
		To:        to.String(),
		Amount:    amount,
		Timestamp: time.Now().Unix(),
	}
	return c.post(ctx, "/transfer-from", body)
}

// BalanceOf queries an account's token balance.
func (c *TokenAPIClient) BalanceOf(ctx context.Context, account uuid.UUID) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/balance/"+account.String(), nil)
	if err != nil {
		return 0, fmt.Errorf("create balance request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("token balance query: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("token balance query: status %d", resp.StatusCode)
	}

	var out balanceResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("decode balance response: %w", err)
	}
	return out.Balance, nil
}

func (c *TokenAPIClient) post(ctx context.Context, path string, body transferRequest) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal transfer request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create transfer request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Signature", c.sigSvc.Sign(c.secretKey, string(payload)))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("token rail call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.log.Warn().
			Str("path", path).
			Int("status", resp.StatusCode).
			Str("body", string(respBody)).
			Msg("token rail rejected transfer")
		return fmt.Errorf("token rail call %s: status %d", path, resp.StatusCode)
	}
	return nil
}
