package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitwit/x402-facilitator/config"
	"github.com/vitwit/x402-facilitator/facilitator"
	"github.com/vitwit/x402-facilitator/logger"
	"github.com/vitwit/x402-facilitator/metrics"
	"github.com/vitwit/x402-facilitator/types"
)

type stubFacilitator struct {
	verifyResult *types.VerificationResult
	verifyErr    error
	settleResult *types.SettleResponse
	settleErr    error
	supported    *types.SupportedResponse
}

func (s *stubFacilitator) Verify(context.Context, *types.VerifyRequest) (*types.VerificationResult, error) {
	return s.verifyResult, s.verifyErr
}

func (s *stubFacilitator) Settle(context.Context, *types.VerifyRequest) (*types.SettleResponse, error) {
	return s.settleResult, s.settleErr
}

func (s *stubFacilitator) Supported() *types.SupportedResponse {
	if s.supported != nil {
		return s.supported
	}
	return &types.SupportedResponse{Kinds: []types.SupportedKind{}}
}

func (s *stubFacilitator) Networks() map[string]bool {
	return map[string]bool{"evm": true, "svm": false}
}

func requestBody(t *testing.T, network string) []byte {
	t.Helper()
	payload, err := json.Marshal(types.ExactEvmPayload{
		Signature: "0xabcdef",
		Authorization: types.EVMAuthorization{
			From:        "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266",
			To:          "0x70997970C51812dc3A010C7d01b50e0d17dc79C8",
			Value:       "10000",
			ValidAfter:  "0",
			ValidBefore: "99999999999",
			Nonce:       "0x0011223344556677889900112233445566778899001122334455667788990011",
		},
	})
	require.NoError(t, err)

	body, err := json.Marshal(types.VerifyRequest{
		PaymentPayload: types.PaymentPayload{
			X402Version: types.X402Version,
			Scheme:      types.SchemeExact,
			Network:     network,
			Payload:     payload,
		},
		PaymentRequirements: types.PaymentRequirements{
			Scheme:            types.SchemeExact,
			Network:           network,
			MaxAmountRequired: "10000",
			PayTo:             "0x70997970C51812dc3A010C7d01b50e0d17dc79C8",
			Asset:             "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
		},
	})
	require.NoError(t, err)
	return body
}

func doRequest(t *testing.T, handler http.Handler, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestVerifyDocs(t *testing.T) {
	srv := New(&stubFacilitator{})

	rec := doRequest(t, srv.Handler(), http.MethodGet, "/verify", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "/verify", body["endpoint"])
	assert.Contains(t, body, "body")

	rec = doRequest(t, srv.Handler(), http.MethodGet, "/settle", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestVerifySuccess(t *testing.T) {
	srv := New(&stubFacilitator{
		verifyResult: &types.VerificationResult{IsValid: true, Payer: "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"},
	})

	rec := doRequest(t, srv.Handler(), http.MethodPost, "/verify", requestBody(t, "base-sepolia"))
	require.Equal(t, http.StatusOK, rec.Code)

	var result types.VerificationResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.IsValid)
}

func TestVerifyBadJSON(t *testing.T) {
	srv := New(&stubFacilitator{})

	rec := doRequest(t, srv.Handler(), http.MethodPost, "/verify", []byte("{not json"))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"Invalid request"}`, rec.Body.String())
}

func TestVerifyErrorIsGeneric(t *testing.T) {
	srv := New(&stubFacilitator{verifyErr: errors.New("rpc connection refused")})

	rec := doRequest(t, srv.Handler(), http.MethodPost, "/verify", requestBody(t, "base-sepolia"))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"Invalid request"}`, rec.Body.String())
}

func TestSettleErrorIsStringified(t *testing.T) {
	srv := New(&stubFacilitator{settleErr: errors.New("settlement failed: broadcast_failed")})

	rec := doRequest(t, srv.Handler(), http.MethodPost, "/settle", requestBody(t, "base-sepolia"))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"settlement failed: broadcast_failed"}`, rec.Body.String())
}

func TestSettleBadJSON(t *testing.T) {
	srv := New(&stubFacilitator{})

	rec := doRequest(t, srv.Handler(), http.MethodPost, "/settle", []byte("{not json"))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEqual(t, "Invalid request", body["error"])
	assert.NotEmpty(t, body["error"])
}

func TestSupported(t *testing.T) {
	srv := New(&stubFacilitator{
		supported: &types.SupportedResponse{Kinds: []types.SupportedKind{
			{X402Version: 1, Scheme: "exact", Network: "base-sepolia"},
		}},
	})

	rec := doRequest(t, srv.Handler(), http.MethodGet, "/supported", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp types.SupportedResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Kinds, 1)
	assert.Equal(t, "base-sepolia", resp.Kinds[0].Network)
}

func TestHealth(t *testing.T) {
	srv := New(&stubFacilitator{})

	rec := doRequest(t, srv.Handler(), http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Contains(t, body, "networks")
}

// stubSettler and stubTransferrer drive the full settle path through a
// real facilitator instance.
type stubSettler struct{}

func (stubSettler) SettlePayment(_ context.Context, payload *types.PaymentPayload, _ *types.PaymentRequirements) (*types.SettlementResult, error) {
	return &types.SettlementResult{
		Success:   true,
		TxHash:    "0xsettled",
		NetworkID: payload.Network,
		Payer:     payload.PayerAddress(),
	}, nil
}

func (stubSettler) Close() {}

type stubTransferrer struct{}

func (stubTransferrer) TokenDecimals(context.Context, string) (uint8, error) { return 6, nil }

func (stubTransferrer) TransferToken(context.Context, string, string, *big.Int) (string, error) {
	return "0xcashback", nil
}

func (stubTransferrer) Close() {}

func TestSettleEndToEnd(t *testing.T) {
	cfg := &config.Config{
		EVMPrivateKey:    "key",
		EVMCashbackToken: "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
		CashbackPercent:  2,
	}

	fac := facilitator.New(cfg,
		facilitator.WithSettlerFactory(func(types.Network) (facilitator.Settler, error) {
			return stubSettler{}, nil
		}),
		facilitator.WithDisburser(facilitator.NewCashbackDisburser(cfg,
			func() (facilitator.TokenTransferrer, error) { return stubTransferrer{}, nil },
			logger.NoopLogger{}, metrics.Noop{})),
	)
	srv := New(fac)

	rec := doRequest(t, srv.Handler(), http.MethodPost, "/settle", requestBody(t, "base-sepolia"))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp types.SettleResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	assert.True(t, resp.Success)
	require.NotNil(t, resp.Settlement)
	assert.Equal(t, "0xsettled", resp.Settlement.TxHash)
	require.NotNil(t, resp.Cashback)
	assert.Equal(t, int64(1), resp.Cashback.Amount)
	assert.Equal(t, int64(2), resp.Cashback.Percent)
	require.NotNil(t, resp.Cashback.TxHash)
	assert.Equal(t, "0xcashback", *resp.Cashback.TxHash)
}

func TestSettleUnknownNetwork(t *testing.T) {
	cfg := &config.Config{EVMPrivateKey: "key", CashbackPercent: 2}
	fac := facilitator.New(cfg, facilitator.WithFeePayerFunc(func() (string, error) { return "", nil }))
	srv := New(fac)

	rec := doRequest(t, srv.Handler(), http.MethodPost, "/settle", requestBody(t, "cosmoshub"))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body["error"], "unsupported network")
}
