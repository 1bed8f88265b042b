package ucp_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sealor/shop-assistant/pkg/ucp"
)

type recorded struct {
	method  string
	path    string
	body    map[string]any
	headers http.Header
}

func newServer(t *testing.T, status int, response string) (*httptest.Server, *[]recorded) {
	t.Helper()
	var calls []recorded
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recorded{method: r.Method, path: r.URL.Path, headers: r.Header.Clone()}
		if b, _ := io.ReadAll(r.Body); len(b) > 0 {
			assert.NoError(t, json.Unmarshal(b, &rec.body))
		}
		calls = append(calls, rec)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, response)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestNew_RejectsBadURLs(t *testing.T) {
	for _, raw := range []string{"", "   ", "ftp://example.com", "http://"} {
		_, err := ucp.New(raw)
		assert.Error(t, err, raw)
	}
}

func TestClient_ReadEndpoints(t *testing.T) {
	srv, calls := newServer(t, http.StatusOK, `{"ok":true}`)
	client, err := ucp.New(srv.URL + "/")
	require.NoError(t, err)

	ctx := context.Background()
	for _, call := range []func(context.Context) (json.RawMessage, error){
		client.Products, client.DiscountCodes, client.User, client.DiscoverMerchant,
	} {
		body, err := call(ctx)
		require.NoError(t, err)
		assert.JSONEq(t, `{"ok":true}`, string(body))
	}

	paths := make([]string, 0, len(*calls))
	for _, c := range *calls {
		assert.Equal(t, http.MethodGet, c.method)
		assert.NotEmpty(t, c.headers.Get("Request-Id"))
		assert.Empty(t, c.headers.Get("Idempotency-Key"))
		paths = append(paths, c.path)
	}
	assert.Equal(t, []string{"/products", "/discount-codes", "/user", "/.well-known/ucp"}, paths)
}

func TestClient_CheckoutFlow(t *testing.T) {
	srv, calls := newServer(t, http.StatusCreated, `{"id":"cs_1","status":"ready_for_complete"}`)
	client, err := ucp.New(srv.URL, ucp.WithAgentProfile("https://agent.example/profile"))
	require.NoError(t, err)
	ctx := context.Background()

	_, err = client.CreateCheckout(ctx, ucp.CreateCheckoutRequest{
		LineItems: []ucp.LineItem{{Item: ucp.Item{ID: "bouquet_roses"}, Quantity: 2}},
		Currency:  "USD",
	})
	require.NoError(t, err)
	_, err = client.ApplyDiscount(ctx, "cs_1", "10OFF")
	require.NoError(t, err)
	_, err = client.SetShippingAddress(ctx, "cs_1", ucp.Fulfillment{AddressID: "addr_1"})
	require.NoError(t, err)
	_, err = client.CompleteCheckout(ctx, "cs_1", ucp.CompleteCheckoutRequest{
		PaymentData: ucp.PaymentData{HandlerID: "mock_payment_handler", Credential: ucp.PaymentCredential{Type: "token", Token: "success_token"}},
	})
	require.NoError(t, err)

	require.Len(t, *calls, 4)
	create, discount, shipping, complete := (*calls)[0], (*calls)[1], (*calls)[2], (*calls)[3]

	assert.Equal(t, http.MethodPost, create.method)
	assert.Equal(t, "/checkout-sessions", create.path)
	assert.Equal(t, "USD", create.body["currency"])
	assert.NotEmpty(t, create.headers.Get("Idempotency-Key"))
	assert.Equal(t, `profile="https://agent.example/profile"`, create.headers.Get("UCP-Agent"))

	assert.Equal(t, http.MethodPut, discount.method)
	assert.Equal(t, "/checkout-sessions/cs_1", discount.path)
	assert.Equal(t, map[string]any{"codes": []any{"10OFF"}}, discount.body["discounts"])

	assert.Equal(t, map[string]any{"address_id": "addr_1"}, shipping.body["fulfillment"])

	assert.Equal(t, http.MethodPost, complete.method)
	assert.Equal(t, "/checkout-sessions/cs_1/complete", complete.path)
}

func TestClient_ValidatesArguments(t *testing.T) {
	client, err := ucp.New("http://localhost:8182")
	require.NoError(t, err)
	ctx := context.Background()

	_, err = client.CreateCheckout(ctx, ucp.CreateCheckoutRequest{})
	assert.Error(t, err)
	_, err = client.ApplyDiscount(ctx, "", "CODE")
	assert.Error(t, err)
	_, err = client.ApplyDiscount(ctx, "cs_1", " ")
	assert.Error(t, err)
	_, err = client.SetShippingAddress(ctx, "cs_1", ucp.Fulfillment{})
	assert.Error(t, err)
	_, err = client.CompleteCheckout(ctx, " ", ucp.CompleteCheckoutRequest{})
	assert.Error(t, err)
}

func TestClient_StatusError(t *testing.T) {
	srv, _ := newServer(t, http.StatusNotFound, `{"detail":"checkout not found"}`)
	client, err := ucp.New(srv.URL)
	require.NoError(t, err)

	_, err = client.ApplyDiscount(context.Background(), "missing", "X")
	var statusErr *ucp.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
	assert.Contains(t, err.Error(), "checkout not found")
}

func TestClient_RetriesServerErrorsOnGetOnly(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = io.WriteString(w, `[]`)
	}))
	defer srv.Close()

	client, err := ucp.New(srv.URL, ucp.WithRetry(3))
	require.NoError(t, err)

	body, err := client.Products(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "[]", string(body))
	assert.EqualValues(t, 3, hits.Load())

	hits.Store(0)
	_, err = client.CreateCheckout(context.Background(), ucp.CreateCheckoutRequest{LineItems: []ucp.LineItem{{Item: ucp.Item{ID: "p"}, Quantity: 1}}})
	require.Error(t, err)
	assert.EqualValues(t, 1, hits.Load())
}

func TestClient_DoesNotRetryClientErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	client, err := ucp.New(srv.URL, ucp.WithRetry(5))
	require.NoError(t, err)
	_, err = client.User(context.Background())
	require.Error(t, err)
	assert.EqualValues(t, 1, hits.Load())
}

func TestClient_RejectsNonJSON(t *testing.T) {
	srv, _ := newServer(t, http.StatusOK, `<html>oops</html>`)
	client, err := ucp.New(srv.URL)
	require.NoError(t, err)
	_, err = client.Products(context.Background())
	assert.ErrorContains(t, err, "not JSON")
}

func TestLoggingInterceptor_LogsBodies(t *testing.T) {
	srv, _ := newServer(t, http.StatusOK, `{"id":"cs_9"}`)

	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	client, err := ucp.New(srv.URL, ucp.WithInterceptor(ucp.LoggingInterceptor(logger)))
	require.NoError(t, err)

	body, err := client.CreateCheckout(context.Background(), ucp.CreateCheckoutRequest{
		LineItems: []ucp.LineItem{{Item: ucp.Item{ID: "tulips"}, Quantity: 1}},
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"cs_9"}`, string(body), "response body must still reach the caller")

	out := logs.String()
	assert.Contains(t, out, `msg="ucp request"`)
	assert.Contains(t, out, "method=POST")
	assert.Contains(t, out, "status=200")
	assert.Contains(t, out, "tulips")
	assert.Contains(t, out, "cs_9")
}

func TestInterceptors_RunInOrder(t *testing.T) {
	srv, _ := newServer(t, http.StatusOK, `{}`)
	var order []string
	mark := func(name string) ucp.Interceptor {
		return func(next http.RoundTripper) http.RoundTripper {
			return roundTripFunc(func(r *http.Request) (*http.Response, error) {
				order = append(order, name)
				return next.RoundTrip(r)
			})
		}
	}

	client, err := ucp.New(srv.URL, ucp.WithInterceptor(mark("outer")), ucp.WithInterceptor(mark("inner")))
	require.NoError(t, err)
	_, err = client.Products(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"outer", "inner"}, order)
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }
