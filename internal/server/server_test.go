package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/perishables/internal/auth"
	authdomain "github.com/smallbiznis/perishables/internal/auth/domain"
	authservice "github.com/smallbiznis/perishables/internal/auth/service"
	"github.com/smallbiznis/perishables/internal/authorization"
	"github.com/smallbiznis/perishables/internal/clock"
	"github.com/smallbiznis/perishables/internal/config"
	"github.com/smallbiznis/perishables/internal/events"
	"github.com/smallbiznis/perishables/internal/inventory/inventorytest"
	inventoryrepo "github.com/smallbiznis/perishables/internal/inventory/repository"
	inventoryservice "github.com/smallbiznis/perishables/internal/inventory/service"
	"github.com/smallbiznis/perishables/internal/labels"
	"github.com/smallbiznis/perishables/internal/locks"
	"github.com/smallbiznis/perishables/internal/markdown/engine"
	markdownservice "github.com/smallbiznis/perishables/internal/markdown/service"
	"github.com/smallbiznis/perishables/internal/observability"
	pricingdomain "github.com/smallbiznis/perishables/internal/pricing/domain"
	pricingrepo "github.com/smallbiznis/perishables/internal/pricing/repository"
	pricingservice "github.com/smallbiznis/perishables/internal/pricing/service"
	"github.com/smallbiznis/perishables/internal/ratelimit"
	"github.com/smallbiznis/perishables/internal/realtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	"go.uber.org/zap"
)

var today = time.Date(2025, 1, 17, 9, 0, 0, 0, time.UTC)

type apiFixture struct {
	engine *gin.Engine
	tokens *authservice.Service
	srv    *httptest.Server
}

func newAPIFixture(t *testing.T, limiter *ratelimit.Limiter) apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := zap.NewNop()

	db := inventorytest.OpenDB(t, &pricingdomain.MarkdownRecord{})
	inventorytest.InsertStore(t, db, "1234")
	inventorytest.InsertStore(t, db, "5678")
	inventorytest.InsertItem(t, db, inventorytest.Item("mlk-001", "1234", "10.00", 24, today.AddDate(0, 0, 1)))
	inventorytest.InsertItem(t, db, inventorytest.Item("mlk-002", "1234", "4.79", 18, today.AddDate(0, 0, 2)))
	inventorytest.InsertItem(t, db, inventorytest.Item("mlk-900", "5678", "3.99", 6, today.AddDate(0, 0, 2)))

	fc := clock.NewFakeClock(today)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	hub := realtime.NewHub(realtime.HubParams{Log: log})
	t.Cleanup(hub.Close)
	bus := events.NewChannelBus(log)
	t.Cleanup(func() { _ = bus.Close() })
	forwarder := events.NewForwarder(bus, hub, fc, log)
	require.NoError(t, forwarder.Start(context.Background()))
	t.Cleanup(forwarder.Stop)

	inventorySvc := inventoryservice.New(inventoryservice.Params{
		DB:        db,
		Log:       log,
		Clock:     fc,
		Repo:      inventoryrepo.Provide(),
		Publisher: bus,
	})
	markdownSvc := markdownservice.New(markdownservice.Params{
		Log:       log,
		Clock:     fc,
		Engine:    engine.New(),
		Inventory: inventorySvc,
		Config:    config.NewStaticMarkdownConfigHolder(config.DefaultMarkdownConfig()),
	})
	pricingSvc := pricingservice.New(pricingservice.Params{
		DB:        db,
		Log:       log,
		Clock:     fc,
		GenID:     node,
		Repo:      pricingrepo.Provide(),
		ItemRepo:  inventoryrepo.Provide(),
		Mutex:     locks.NewKeyedMutex(),
		Publisher: bus,
	})
	enforcer, err := authorization.NewEnforcer(db)
	require.NoError(t, err)

	tokens := authservice.NewWithSecret(log, fc, []byte("test-secret"), time.Hour)
	r := NewEngine(observability.Config{Environment: "test"})
	NewServer(ServerParams{
		Gin:          r,
		Log:          log,
		Tokens:       tokens,
		Authz:        authorization.NewService(authorization.Params{Log: log, Enforcer: enforcer}),
		InventorySvc: inventorySvc,
		MarkdownSvc:  markdownSvc,
		PricingSvc:   pricingSvc,
		Labels:       labels.NewService(log, fc, pricingSvc, inventorySvc),
		Hub:          hub,
		Realtime: realtime.NewHandler(realtime.HandlerParams{
			Hub:   hub,
			Auth:  auth.NewSessionAuthenticator(tokens),
			Clock: fc,
			Log:   log,
		}),
		Limiter: limiter,
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return apiFixture{engine: r, tokens: tokens, srv: srv}
}

func (f apiFixture) token(t *testing.T, role authdomain.Role, storeID string) string {
	t.Helper()
	tok, err := f.tokens.Issue(context.Background(), authdomain.IssueRequest{
		UserID:  string(role) + "-" + storeID,
		Role:    role,
		StoreID: storeID,
	})
	require.NoError(t, err)
	return tok.Token
}

func (f apiFixture) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorPayload {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Error
}

type priceChangeBody struct {
	Data struct {
		ItemID   string          `json:"itemId"`
		StoreID  string          `json:"storeId"`
		OldPrice decimal.Decimal `json:"oldPrice"`
		NewPrice decimal.Decimal `json:"newPrice"`
	} `json:"data"`
}

func TestAPIRequiresBearerToken(t *testing.T) {
	f := newAPIFixture(t, nil)

	w := f.do(t, http.MethodGet, "/api/stores/1234/inventory", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "unauthorized", decodeError(t, w).Type)

	w = f.do(t, http.MethodGet, "/api/stores/1234/inventory", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestInventoryIsStoreScoped(t *testing.T) {
	f := newAPIFixture(t, nil)
	associate := f.token(t, authdomain.RoleAssociate, "1234")

	w := f.do(t, http.MethodGet, "/api/stores/1234/inventory", associate, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Data []struct {
			ID      string `json:"id"`
			StoreID string `json:"storeId"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Data, 2)
	for _, item := range list.Data {
		assert.Equal(t, "1234", item.StoreID)
	}

	w = f.do(t, http.MethodGet, "/api/stores/5678/inventory", associate, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	admin := f.token(t, authdomain.RoleAdmin, "1234")
	w = f.do(t, http.MethodGet, "/api/stores/5678/inventory", admin, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestListStoresFiltersForNonAdmins(t *testing.T) {
	f := newAPIFixture(t, nil)

	var resp struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	w := f.do(t, http.MethodGet, "/api/stores", f.token(t, authdomain.RoleManager, "5678"), nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "5678", resp.Data[0].ID)

	w = f.do(t, http.MethodGet, "/api/stores", f.token(t, authdomain.RoleAdmin, "1234"), nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Data, 2)
}

func TestExpiringValidatesThreshold(t *testing.T) {
	f := newAPIFixture(t, nil)
	tok := f.token(t, authdomain.RoleAssociate, "1234")

	w := f.do(t, http.MethodGet, "/api/stores/1234/expiring?daysThreshold=soon", tok, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	payload := decodeError(t, w)
	assert.Equal(t, "validation_error", payload.Type)
	assert.Equal(t, "invalid_days_threshold", payload.Errors[0].Code)

	w = f.do(t, http.MethodGet, "/api/stores/1234/expiring?daysThreshold=1", tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "mlk-001")
	assert.NotContains(t, w.Body.String(), "mlk-002")
}

func TestApplyMarkdownRequiresManager(t *testing.T) {
	f := newAPIFixture(t, nil)
	body := map[string]any{"discountPercent": 20}

	w := f.do(t, http.MethodPost, "/api/inventory/mlk-001/markdown", f.token(t, authdomain.RoleAssociate, "1234"), body)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(t, http.MethodPost, "/api/inventory/mlk-001/markdown", f.token(t, authdomain.RoleManager, "1234"), body)
	require.Equal(t, http.StatusOK, w.Code)
	var resp priceChangeBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "mlk-001", resp.Data.ItemID)
	assert.Equal(t, "10.00", resp.Data.OldPrice.StringFixed(2))
	assert.Equal(t, "8.00", resp.Data.NewPrice.StringFixed(2))
}

func TestApplyMarkdownErrors(t *testing.T) {
	f := newAPIFixture(t, nil)
	manager := f.token(t, authdomain.RoleManager, "1234")

	w := f.do(t, http.MethodPost, "/api/inventory/mlk-001/markdown", manager, map[string]any{"discountPercent": 75})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_discount", decodeError(t, w).Errors[0].Code)

	w = f.do(t, http.MethodPost, "/api/inventory/mlk-001/markdown", manager, map[string]any{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodPost, "/api/inventory/nope/markdown", manager, map[string]any{"discountPercent": 10})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, http.MethodPost, "/api/inventory/mlk-900/markdown", manager, map[string]any{"discountPercent": 10})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestSelectionMarkdownAndHistory(t *testing.T) {
	f := newAPIFixture(t, nil)
	manager := f.token(t, authdomain.RoleManager, "1234")

	w := f.do(t, http.MethodPost, "/api/stores/1234/selection-markdown", manager, map[string]any{
		"itemIds":         []string{"mlk-001", "mlk-002"},
		"discountPercent": 25,
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodPost, "/api/stores/1234/selection-markdown", manager, map[string]any{
		"itemIds":         []string{"mlk-900"},
		"discountPercent": 25,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodGet, "/api/stores/1234/markdown-history?limit=1", f.token(t, authdomain.RoleAssociate, "1234"), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var history struct {
		Data []pricingdomain.MarkdownRecord `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &history))
	assert.Len(t, history.Data, 1)

	w = f.do(t, http.MethodGet, "/api/stores/1234/markdown-history?limit=0", manager, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRecommendationsAndSelectionDiscount(t *testing.T) {
	f := newAPIFixture(t, nil)
	tok := f.token(t, authdomain.RoleAssociate, "1234")

	w := f.do(t, http.MethodGet, "/api/stores/1234/markdown-recommendations", tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var bulk struct {
		Data struct {
			StoreID    string `json:"storeId"`
			TotalItems int    `json:"totalItems"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &bulk))
	assert.Equal(t, "1234", bulk.Data.StoreID)
	assert.Equal(t, 2, bulk.Data.TotalItems)

	w = f.do(t, http.MethodPost, "/api/stores/1234/selection-discount", tok, map[string]any{"itemIds": []string{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodPost, "/api/stores/1234/selection-discount", tok, map[string]any{"itemIds": []string{"mlk-001", "mlk-002"}})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestUpdateQuantity(t *testing.T) {
	f := newAPIFixture(t, nil)
	tok := f.token(t, authdomain.RoleAssociate, "1234")

	w := f.do(t, http.MethodPut, "/api/inventory/mlk-001/quantity", tok, map[string]any{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodPut, "/api/inventory/mlk-001/quantity", tok, map[string]any{"quantityOnHand": -1})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodPut, "/api/inventory/mlk-001/quantity", tok, map[string]any{"quantityOnHand": 3})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"quantityOnHand":3`)
}

func TestCreateItemRequiresManager(t *testing.T) {
	f := newAPIFixture(t, nil)
	body := map[string]any{
		"sku":            "MLK-777",
		"name":           "Oat Milk",
		"category":       "Dairy",
		"origin":         "Green Valley Farm",
		"bottledDate":    "2025-01-15",
		"bestByDate":     "2025-01-25",
		"currentPrice":   "3.49",
		"quantityOnHand": 12,
	}

	w := f.do(t, http.MethodPost, "/api/stores/1234/inventory", f.token(t, authdomain.RoleAssociate, "1234"), body)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(t, http.MethodPost, "/api/stores/1234/inventory", f.token(t, authdomain.RoleManager, "1234"), body)
	require.Equal(t, http.StatusCreated, w.Code)

	w = f.do(t, http.MethodPost, "/api/stores/1234/inventory", f.token(t, authdomain.RoleManager, "1234"), body)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestMarkdownLabelsPDF(t *testing.T) {
	f := newAPIFixture(t, nil)
	manager := f.token(t, authdomain.RoleManager, "1234")

	w := f.do(t, http.MethodPost, "/api/inventory/mlk-001/markdown", manager, map[string]any{"discountPercent": 30})
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodGet, "/api/stores/1234/markdown-labels.pdf", manager, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(w.Body.String(), "%PDF"))
}

func TestPriceUpdateReachesOnlyItsStore(t *testing.T) {
	f := newAPIFixture(t, nil)
	wsURL := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/ws?token="

	dial := func(token string) *websocket.Conn {
		conn, _, err := websocket.DefaultDialer.Dial(wsURL+token, nil)
		require.NoError(t, err)
		t.Cleanup(func() { _ = conn.Close() })
		var ev realtime.Event
		require.NoError(t, conn.ReadJSON(&ev))
		require.Equal(t, realtime.EventConnected, ev.Type)
		return conn
	}
	local := dial(f.token(t, authdomain.RoleAssociate, "1234"))
	remote := dial(f.token(t, authdomain.RoleAssociate, "5678"))

	w := f.do(t, http.MethodPost, "/api/inventory/mlk-002/markdown", f.token(t, authdomain.RoleManager, "1234"), map[string]any{"discountPercent": 20})
	require.Equal(t, http.StatusOK, w.Code)

	require.NoError(t, local.SetReadDeadline(time.Now().Add(3*time.Second)))
	var got struct {
		Type realtime.EventType `json:"type"`
		Data struct {
			ItemID   string          `json:"itemId"`
			NewPrice decimal.Decimal `json:"newPrice"`
		} `json:"data"`
	}
	require.NoError(t, local.ReadJSON(&got))
	assert.Equal(t, realtime.EventPriceUpdate, got.Type)
	assert.Equal(t, "mlk-002", got.Data.ItemID)
	assert.Equal(t, "3.83", got.Data.NewPrice.StringFixed(2))

	require.NoError(t, remote.SetReadDeadline(time.Now().Add(300*time.Millisecond)))
	var stray realtime.Event
	assert.Error(t, remote.ReadJSON(&stray))
}

func TestWebsocketRejectsBadToken(t *testing.T) {
	f := newAPIFixture(t, nil)
	wsURL := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/ws?token=bogus"

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	_, _, err = conn.ReadMessage()
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, websocket.ClosePolicyViolation, closeErr.Code)
}

func TestRateLimitedResponses(t *testing.T) {
	limiter, err := ratelimit.NewWithStore(zap.NewNop(), memory.NewStore(), "2-M")
	require.NoError(t, err)
	f := newAPIFixture(t, limiter)
	tok := f.token(t, authdomain.RoleAssociate, "1234")

	for i := 0; i < 2; i++ {
		require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/stores/1234/inventory", tok, nil).Code)
	}
	w := f.do(t, http.MethodGet, "/api/stores/1234/inventory", tok, nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "rate_limited", decodeError(t, w).Type)
}

func TestHealthAndFallback(t *testing.T) {
	f := newAPIFixture(t, nil)

	w := f.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodGet, "/nowhere", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", decodeError(t, w).Type)
}
