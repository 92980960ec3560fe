package transfer

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"token-sale-engine/internal/service"
	"token-sale-engine/pkg/logger"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockHTTPClient captures the outbound request and returns a canned response.
type mockHTTPClient struct {
	lastReq  *http.Request
	lastBody []byte
	status   int
	body     string
	err      error
}

func (m *mockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	m.lastReq = req
	if req.Body != nil {
		m.lastBody, _ = io.ReadAll(req.Body)
	}
	if m.err != nil {
		return nil, m.err
	}
	return &http.Response{
		StatusCode: m.status,
		Body:       io.NopCloser(bytes.NewBufferString(m.body)),
	}, nil
}

func newTestTokenClient(mock *mockHTTPClient) *TokenAPIClient {
	sigSvc := service.NewHMACSignatureService()
	log := logger.New("error", false)
	return NewTokenAPIClient("https://token.example.com", "test-key", sigSvc, mock, log)
}

func TestTokenAPIClient_Transfer(t *testing.T) {
	mock := &mockHTTPClient{status: http.StatusOK}
	client := newTestTokenClient(mock)
	to := uuid.New()

	err := client.Transfer(context.Background(), to, 500_000)
	require.NoError(t, err)

	require.NotNil(t, mock.lastReq)
	assert.Equal(t, http.MethodPost, mock.lastReq.Method)
	assert.Equal(t, "https://token.example.com/transfer", mock.lastReq.URL.String())
	assert.NotEmpty(t, mock.lastReq.Header.Get("X-Signature"))

	var body transferRequest
	require.NoError(t, json.Unmarshal(mock.lastBody, &body))
	assert.Equal(t, to.String(), body.To)
	assert.Equal(t, int64(500_000), body.Amount)
	assert.Empty(t, body.From)
}

func TestTokenAPIClient_TransferFrom(t *testing.T) {
	mock := &mockHTTPClient{status: http.StatusOK}
	client := newTestTokenClient(mock)
	from := uuid.New()
	custodian := uuid.New()

	err := client.TransferFrom(context.Background(), from, custodian, 1_000)
	require.NoError(t, err)

	assert.Equal(t, "https://token.example.com/transfer-from", mock.lastReq.URL.String())

	var body transferRequest
	require.NoError(t, json.Unmarshal(mock.lastBody, &body))
	assert.Equal(t, from.String(), body.From)
	assert.Equal(t, custodian.String(), body.To)
}

func TestTokenAPIClient_Transfer_Rejected(t *testing.T) {
	mock := &mockHTTPClient{status: http.StatusUnprocessableEntity, body: `{"error":"insufficient balance"}`}
	client := newTestTokenClient(mock)

	err := client.Transfer(context.Background(), uuid.New(), 500_000)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "status 422")
}

func TestTokenAPIClient_BalanceOf(t *testing.T) {
	account := uuid.New()
	mock := &mockHTTPClient{status: http.StatusOK, body: `{"account":"` + account.String() + `","balance":750}`}
	client := newTestTokenClient(mock)

	balance, err := client.BalanceOf(context.Background(), account)
	require.NoError(t, err)
	assert.Equal(t, int64(750), balance)
	assert.Equal(t, "https://token.example.com/balance/"+account.String(), mock.lastReq.URL.String())
}

func TestSettlementAPIClient_Payout(t *testing.T) {
	mock := &mockHTTPClient{status: http.StatusOK}
	sigSvc := service.NewHMACSignatureService()
	log := logger.New("error", false)
	client := NewSettlementAPIClient("https://settle.example.com", "test-key", sigSvc, mock, log)
	to := uuid.New()

	err := client.Payout(context.Background(), to, 2_500)
	require.NoError(t, err)

	assert.Equal(t, "https://settle.example.com/payout", mock.lastReq.URL.String())
	assert.NotEmpty(t, mock.lastReq.Header.Get("X-Signature"))

	var body payoutRequest
	require.NoError(t, json.Unmarshal(mock.lastBody, &body))
	assert.Equal(t, to.String(), body.To)
	assert.Equal(t, int64(2_500), body.Amount)
}

func TestSettlementAPIClient_Payout_Failure(t *testing.T) {
	mock := &mockHTTPClient{status: http.StatusBadGateway, body: `{"error":"rail down"}`}
	sigSvc := service.NewHMACSignatureService()
	log := logger.New("error", false)
	client := NewSettlementAPIClient("https://settle.example.com", "test-key", sigSvc, mock, log)

	err := client.Payout(context.Background(), uuid.New(), 100)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
}
