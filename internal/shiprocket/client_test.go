package shiprocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"storefront/internal/config"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeProvider struct {
	logins   atomic.Int32
	calls    atomic.Int32
	handlers map[string]http.HandlerFunc
}

func newFakeProvider(t *testing.T, handlers map[string]http.HandlerFunc) (*fakeProvider, *httptest.Server) {
	t.Helper()
	fp := &fakeProvider{handlers: handlers}
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		n := fp.logins.Add(1)
		time.Sleep(20 * time.Millisecond)
		json.NewEncoder(w).Encode(map[string]string{"token": "token-" + string(rune('0'+n))})
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fp.calls.Add(1)
		if h, ok := fp.handlers[r.URL.Path]; ok {
			h(w, r)
			return
		}
		http.NotFound(w, r)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return fp, server
}

func newTestClient(baseURL string) *Client {
	c := NewClient(config.ShiprocketConfig{
		BaseURL:  baseURL,
		Email:    "ops@example.com",
		Password: "secret",
		TokenTTL: time.Hour,
	}, zap.NewNop())
	c.newBackOff = func() backoff.BackOff {
		return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 2)
	}
	return c
}

func TestClient_TokenIsCachedAndSharedByConcurrentCallers(t *testing.T) {
	fp, server := newFakeProvider(t, map[string]http.HandlerFunc{
		"/orders": func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "Bearer token-1", r.Header.Get("Authorization"))
			w.Write([]byte(`{"data":[]}`))
		},
	})
	client := newTestClient(server.URL)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := client.ListOrders(context.Background())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), fp.logins.Load())
	assert.Equal(t, int32(10), fp.calls.Load())
}

func TestClient_CancelledCallerDoesNotFailSharedLogin(t *testing.T) {
	var logins atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		if logins.Add(1) == 1 {
			close(started)
		}
		<-release
		w.Write([]byte(`{"token":"shared"}`))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	client := newTestClient(server.URL)

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := client.authToken(ctx)
		first <- err
	}()
	<-started

	second := make(chan string, 1)
	go func() {
		token, err := client.authToken(context.Background())
		assert.NoError(t, err)
		second <- token
	}()

	cancel()
	assert.ErrorIs(t, <-first, context.Canceled)

	close(release)
	assert.Equal(t, "shared", <-second)
	assert.Equal(t, int32(1), logins.Load())
}

func TestClient_TokenExpiresAfterTTL(t *testing.T) {
	fp, server := newFakeProvider(t, map[string]http.HandlerFunc{
		"/orders": func(w http.ResponseWriter, r *http.Request) { w.Write([]byte(`{}`)) },
	})
	client := newTestClient(server.URL)

	now := time.Now()
	client.now = func() time.Time { return now }

	_, err := client.ListOrders(context.Background())
	require.NoError(t, err)

	now = now.Add(2 * time.Hour)
	_, err = client.ListOrders(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int32(2), fp.logins.Load())
}

func TestClient_UnauthorizedRefreshesTokenOnce(t *testing.T) {
	fp, server := newFakeProvider(t, map[string]http.HandlerFunc{
		"/orders": func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") == "Bearer token-1" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			w.Write([]byte(`{"data":[1]}`))
		},
	})
	client := newTestClient(server.URL)

	raw, err := client.ListOrders(context.Background())
	require.NoError(t, err)
	assert.JSONEq(t, `{"data":[1]}`, string(raw))
	assert.Equal(t, int32(2), fp.logins.Load())
}

func TestClient_TrackPriority(t *testing.T) {
	var paths []string
	var mu sync.Mutex
	record := func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.URL.RequestURI())
		mu.Unlock()
		w.Write([]byte(`{"tracking_data":{"shipment_status":6}}`))
	}
	_, server := newFakeProvider(t, map[string]http.HandlerFunc{
		"/courier/track/shipment/42": record,
		"/courier/track/awb/AWB1":    record,
		"/courier/track":             record,
	})
	client := newTestClient(server.URL)
	ctx := context.Background()

	_, err := client.Track(ctx, TrackQuery{ShipmentID: 42, AWBCode: "AWB1", ChannelOrderID: "ORD-1"})
	require.NoError(t, err)
	_, err = client.Track(ctx, TrackQuery{AWBCode: "AWB1", ChannelOrderID: "ORD-1"})
	require.NoError(t, err)
	_, err = client.Track(ctx, TrackQuery{ChannelOrderID: "ORD-1", ChannelID: "77"})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{
		"/courier/track/shipment/42",
		"/courier/track/awb/AWB1",
		"/courier/track?channel_id=77&order_id=ORD-1",
	}, paths)

	_, err = client.Track(ctx, TrackQuery{})
	assert.ErrorIs(t, err, ErrNoTrackingKey)
}

func TestClient_GetRetriesServerErrors(t *testing.T) {
	var attempts atomic.Int32
	fp, server := newFakeProvider(t, map[string]http.HandlerFunc{
		"/courier/track/shipment/7": func(w http.ResponseWriter, r *http.Request) {
			if attempts.Add(1) < 3 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			w.Write([]byte(`{"ok":true}`))
		},
		"/courier/track/shipment/8": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"message":"Shipment not found"}`))
		},
	})
	client := newTestClient(server.URL)

	_, err := client.Track(context.Background(), TrackQuery{ShipmentID: 7})
	require.NoError(t, err)
	assert.Equal(t, int32(3), attempts.Load())

	before := fp.calls.Load()
	_, err = client.Track(context.Background(), TrackQuery{ShipmentID: 8})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "Shipment not found", apiErr.Message)
	assert.Equal(t, before+1, fp.calls.Load(), "4xx responses are not retried")
}

func TestClient_CreateOrderNormalizesResponses(t *testing.T) {
	var wrapped atomic.Bool
	_, server := newFakeProvider(t, map[string]http.HandlerFunc{
		"/orders/create/adhoc": func(w http.ResponseWriter, r *http.Request) {
			var payload OrderPayload
			if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			if wrapped.Load() {
				w.Write([]byte(`{"data":{"order_id":11,"shipment_id":22,"awb_code":"AWB22","channel_order_id":"` + payload.OrderID + `"}}`))
				return
			}
			w.Write([]byte(`{"order_id":1,"shipment_id":2,"awb_code":null,"channel_order_id":"` + payload.OrderID + `","status":"NEW"}`))
		},
	})
	client := newTestClient(server.URL)
	ctx := context.Background()

	created, err := client.CreateOrder(ctx, &OrderPayload{OrderID: "ORD-1"})
	require.NoError(t, err)
	assert.Equal(t, CreatedOrder{OrderID: 1, ShipmentID: 2, ChannelOrderID: "ORD-1", Status: "NEW"}, *created)

	wrapped.Store(true)
	created, err = client.CreateOrder(ctx, &OrderPayload{OrderID: "ORD-2"})
	require.NoError(t, err)
	assert.Equal(t, int64(22), created.ShipmentID)
	assert.Equal(t, "AWB22", created.AWBCode)
}

func TestClient_CreateOrderErrorMessages(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"message", `{"message":"Wrong Pickup location entered.","data":{"data":[{"pickup_location":"Primary"},{"pickup_location":"Warehouse"}]}}`,
			"Wrong Pickup location entered.. Available locations: Primary, Warehouse"},
		{"error list", `{"errors":[{"field":"billing_phone","message":"invalid"}]}`, "billing_phone: invalid"},
		{"error map", `{"errors":{"billing_pincode":["The billing pincode must be 6 digits."]}}`, "billing_pincode: The billing pincode must be 6 digits."},
		{"empty", `{}`, "Failed to create order: 422"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fp, server := newFakeProvider(t, map[string]http.HandlerFunc{
				"/orders/create/adhoc": func(w http.ResponseWriter, r *http.Request) {
					w.WriteHeader(http.StatusUnprocessableEntity)
					w.Write([]byte(tc.body))
				},
			})
			client := newTestClient(server.URL)

			_, err := client.CreateOrder(context.Background(), &OrderPayload{OrderID: "ORD-1"})
			require.Error(t, err)
			assert.Equal(t, tc.want, err.Error())
			assert.Equal(t, int32(1), fp.calls.Load(), "order creation is never retried")
		})
	}
}

func TestClient_CreateOrderWithoutIDsSurfacesProviderMessage(t *testing.T) {
	cases := []struct {
		name       string
		body       string
		want       string
		wantStatus int
	}{
		{"message", `{"message":"Wrong Pickup location entered","status_code":422}`, "Wrong Pickup location entered", 422},
		{"no message", `{"status":"NEW"}`, "Failed to create order in Shiprocket", http.StatusOK},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, server := newFakeProvider(t, map[string]http.HandlerFunc{
				"/orders/create/adhoc": func(w http.ResponseWriter, r *http.Request) {
					w.Write([]byte(tc.body))
				},
			})
			client := newTestClient(server.URL)

			created, err := client.CreateOrder(context.Background(), &OrderPayload{OrderID: "ORD-1"})
			require.Error(t, err)
			assert.Nil(t, created)

			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tc.want, apiErr.Message)
			assert.Equal(t, tc.wantStatus, apiErr.StatusCode)
		})
	}
}

func TestClient_CheckServiceability(t *testing.T) {
	_, server := newFakeProvider(t, map[string]http.HandlerFunc{
		"/courier/serviceability/": func(w http.ResponseWriter, r *http.Request) {
			q := r.URL.Query()
			assert.Equal(t, "110001", q.Get("pickup_postcode"))
			assert.Equal(t, "560001", q.Get("delivery_postcode"))
			assert.Equal(t, "1", q.Get("cod"))
			assert.Equal(t, "0.5", q.Get("weight"))
			w.Write([]byte(`{"status":200,"data":{"available_courier_companies":[{"courier_company_id":10,"courier_name":"Delhivery","rate":85.5}],"recommended_courier_company_id":10}}`))
		},
	})
	client := newTestClient(server.URL)

	result, err := client.CheckServiceability(context.Background(), ServiceabilityParams{
		PickupPostcode:   "110001",
		DeliveryPostcode: "560001",
		COD:              true,
		Weight:           "0.5",
	})
	require.NoError(t, err)
	require.Len(t, result.AvailableCourierCompanies, 1)
	assert.Equal(t, "Delhivery", result.AvailableCourierCompanies[0].CourierName)
	assert.Equal(t, 10, result.RecommendedCourierCompanyID)
}

func TestClient_MissingCredentials(t *testing.T) {
	client := NewClient(config.ShiprocketConfig{BaseURL: "http://127.0.0.1:1"}, zap.NewNop())
	_, err := client.ListOrders(context.Background())
	assert.ErrorIs(t, err, ErrMissingCredentials)
}
