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

// payoutRequest is the JSON body sent to the settlement rail.
type payoutRequest struct {
	To        string `json:"to"`
	Amount    int64  `json:"amount"`
	Timestamp int64  `json:"timestamp"`
}

// SettlementAPIClient implements ports.SettlementClient against an external
// settlement rail over HTTP. A non-2xx reply is an error so the surrounding
// operation rolls back.
type SettlementAPIClient struct {
	baseURL    string
	secretKey  string
	sigSvc     ports.SignatureService
	httpClient HTTPClient
	log        zerolog.Logger
}

// NewSettlementAPIClient creates a new settlement rail client.
func NewSettlementAPIClient(baseURL, secretKey string, sigSvc ports.SignatureService, httpClient HTTPClient, log zerolog.Logger) *SettlementAPIClient {
	return &SettlementAPIClient{
		baseURL:    baseURL,
		secretKey:  secretKey,
		sigSvc:     sigSvc,
		httpClient: httpClient,
		log:        log,
	}
}

// Payout pays settlement funds out to an account.
func (c *SettlementAPIClient) Payout(ctx context.Context, to uuid.UUID, amount int64) error {
	body := payoutRequest{
		To:        to.String(),
		Amount:    amount,
		Timestamp: time.Now().Unix(),
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal payout request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/payout", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create payout request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Signature", c.sigSvc.Sign(c.secretKey, string(payload)))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("settlement rail call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.log.Warn().
			Int("status", resp.StatusCode).
			Str("body", string(respBody)).
			Msg("settlement rail rejected payout")
		return fmt.Errorf("settlement payout: status %d", resp.StatusCode)
	}
	return nil
}
