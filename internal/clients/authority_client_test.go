package clients

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loyaltyx/demoledger/pkg/retrier"
)

func quickRetrier() *retrier.Retrier {
	return retrier.New(retrier.WithInitialInterval(time.Millisecond), retrier.WithMaxRetries(3))
}

func TestAuthorityClient_Create(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/demo/create", r.URL.Path)

		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "0xhandle", req["wallet_address"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"success": true,
			"message": "demo user created successfully",
			"summary": {
				"address": "0xhandle",
				"is_demo": true,
				"demo_active": true,
				"points": "10000",
				"token_balance": "10000",
				"stablecoin": {"collateral": "0", "debt": "0"}
			}
		}`))
	}))
	defer server.Close()

	client := NewAuthorityClient(server.URL, time.Second)
	summary, err := client.Create(context.Background(), "0xhandle")
	require.NoError(t, err)
	require.NotNil(t, summary)
	assert.Equal(t, "0xhandle", summary.Address)
	assert.True(t, summary.Points.Valid)
	assert.True(t, summary.Points.Value.Equal(decimal.NewFromInt(10000)))
}

func TestAuthorityClient_CreateWithoutSummaryFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success": true, "message": "ok"}`))
	}))
	defer server.Close()

	client := NewAuthorityClient(server.URL, time.Second)
	client.retrier = quickRetrier()
	_, err := client.Create(context.Background(), "0xhandle")
	assert.Error(t, err)
}

func TestAuthorityClient_Summary(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/api/demo/summary", r.URL.Path)
		assert.Equal(t, "0xhandle", r.URL.Query().Get("address"))

		// numeric fields partly malformed: the decoder must keep going
		_, _ = w.Write([]byte(`{
			"address": "0xhandle",
			"points": "4200.5",
			"token_balance": "oops",
			"stablecoin": {"debt": 7}
		}`))
	}))
	defer server.Close()

	client := NewAuthorityClient(server.URL, time.Second)
	summary, err := client.Summary(context.Background(), "0xhandle")
	require.NoError(t, err)

	assert.True(t, summary.Points.Valid)
	assert.True(t, summary.Points.Value.Equal(decimal.NewFromFloat(4200.5)))
	assert.False(t, summary.TokenBalance.Valid, "malformed field must stay unset")
	assert.True(t, summary.Stablecoin.Debt.Valid)
	assert.False(t, summary.Stablecoin.Collateral.Valid)
}

func TestAuthorityClient_SummaryRetriesServerErrors(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"address": "0xhandle", "points": "1"}`))
	}))
	defer server.Close()

	client := NewAuthorityClient(server.URL, time.Second)
	client.retrier = quickRetrier()

	summary, err := client.Summary(context.Background(), "0xhandle")
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.True(t, summary.Points.Value.Equal(decimal.NewFromInt(1)))
}

func TestAuthorityClient_Exit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/demo/exit", r.URL.Path)
		_, _ = w.Write([]byte(`{"success": true, "message": "successfully exited demo mode"}`))
	}))
	defer server.Close()

	client := NewAuthorityClient(server.URL, time.Second)
	assert.NoError(t, client.Exit(context.Background(), "0xhandle"))
}

func TestAuthorityClient_ErrorEnvelope(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error": "invalid wallet address format"}`))
	}))
	defer server.Close()

	client := NewAuthorityClient(server.URL, time.Second)
	err := client.Exit(context.Background(), "not-an-address")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid wallet address format")
}
