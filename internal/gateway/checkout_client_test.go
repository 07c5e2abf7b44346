package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aquador-web-app/aqua-dor-connect-platform-sub003/pkg/config"
)

func newTestClient(baseURL string) *CheckoutClient {
	return NewCheckoutClient(config.PaymentsConfig{
		APIBaseURL:     baseURL,
		SecretKey:      "sk_test_123",
		RequestTimeout: 5 * time.Second,
	})
}

func TestCheckoutClientGetSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/v1/checkout/sessions/cs_123", r.URL.Path)
		require.Equal(t, "Bearer sk_test_123", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(CheckoutSession{
			ID:            "cs_123",
			PaymentStatus: PaymentStatusPaid,
			AmountTotal:   5000,
			Currency:      "usd",
			Metadata:      map[string]string{"classId": "class-1"},
		})
	}))
	defer srv.Close()

	session, err := newTestClient(srv.URL).GetSession(context.Background(), "cs_123")

	require.NoError(t, err)
	require.Equal(t, "cs_123", session.ID)
	require.Equal(t, PaymentStatusPaid, session.PaymentStatus)
	require.Equal(t, "class-1", session.Metadata["classId"])
}

func TestCheckoutClientGetSessionSurfacesProcessorError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"no such session"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).GetSession(context.Background(), "cs_missing")

	require.Error(t, err)
	require.Contains(t, err.Error(), "404")
}

func TestCheckoutClientCreateSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/checkout/sessions", r.URL.Path)

		var payload map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		require.Equal(t, float64(5000), payload["amount_total"])
		metadata, _ := payload["metadata"].(map[string]interface{})
		require.Equal(t, "class-1", metadata["classId"])
		require.Equal(t, "stu-1", metadata["studentId"])

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(CheckoutSession{ID: "cs_new", PaymentStatus: "unpaid"})
	}))
	defer srv.Close()

	session, err := newTestClient(srv.URL).CreateSession(context.Background(), CreateSessionParams{
		AmountCents: 5000,
		Currency:    "usd",
		ClassID:     "class-1",
		StudentID:   "stu-1",
		SuccessURL:  "https://app.example.com/success",
		CancelURL:   "https://app.example.com/cancel",
	})

	require.NoError(t, err)
	require.Equal(t, "cs_new", session.ID)
}
