package routes

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dinebot-ai/dinebot-backend/internal/checkout"
	"github.com/dinebot-ai/dinebot-backend/internal/session"
	"github.com/dinebot-ai/dinebot-backend/pkg/config"
	"github.com/dinebot-ai/dinebot-backend/pkg/db/models"
	"github.com/dinebot-ai/dinebot-backend/pkg/logger"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error {
	return nil
}

type stubEngine struct {
	lastIntent session.IntentKind
}

func (s *stubEngine) ApplyIntent(ctx context.Context, sessionID string, kind session.IntentKind, payload json.RawMessage) (*models.SessionEvent, error) {
	s.lastIntent = kind
	return &models.SessionEvent{ID: uuid.New(), SessionID: sessionID}, nil
}

func (s *stubEngine) CurrentCart(ctx context.Context, sessionID string) (*session.CartView, error) {
	return &session.CartView{Lines: []models.CartLine{}, Total: decimal.Zero}, nil
}

func (s *stubEngine) CurrentState(ctx context.Context, sessionID string) (*models.ConversationState, error) {
	return &models.ConversationState{SessionID: sessionID}, nil
}

func (s *stubEngine) History(ctx context.Context, sessionID string, limit, offset int) ([]models.SessionEvent, error) {
	return nil, nil
}

func (s *stubEngine) Recover(ctx context.Context, sessionID string) (int, error) {
	return 0, nil
}

type stubPromoter struct {
	orderID uuid.UUID
}

func (s *stubPromoter) Promote(ctx context.Context, input checkout.PromoteInput) (uuid.UUID, error) {
	return s.orderID, nil
}

func testConfig() *config.Config {
	return &config.Config{App: config.AppConfig{Env: "dev"}}
}

func newTestRouter(t *testing.T, engine *stubEngine, promoter *stubPromoter) http.Handler {
	t.Helper()
	logg := logger.New(logger.Options{ServiceName: "routes-test", Output: io.Discard})
	return NewRouter(testConfig(), logg, stubPinger{}, nil, engine, promoter, nil, nil, nil)
}

func TestRouterHealthLive(t *testing.T) {
	router := newTestRouter(t, &stubEngine{}, &stubPromoter{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "dev", rec.Header().Get("X-DineBot-Env"))
	assert.Contains(t, rec.Body.String(), `"live"`)
}

func TestRouterSessionCart(t *testing.T) {
	router := newTestRouter(t, &stubEngine{}, &stubPromoter{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/sessions/sess-1/cart", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"lines"`)
}

func TestRouterSessionIntentRoutesToEngine(t *testing.T) {
	engine := &stubEngine{}
	router := newTestRouter(t, engine, &stubPromoter{})

	body := strings.NewReader(`{"intent":"add_item","payload":{"item_id":"pizza","item_name":"Pizza","quantity":1,"unit_price":"299"}}`)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/sessions/sess-1/intents", body))

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, session.IntentAddItem, engine.lastIntent)
}

func TestRouterSessionIntentRejectsUnknownKind(t *testing.T) {
	router := newTestRouter(t, &stubEngine{}, &stubPromoter{})

	body := strings.NewReader(`{"intent":"launch_rocket"}`)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/sessions/sess-1/intents", body))

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouterCheckoutPromote(t *testing.T) {
	promoter := &stubPromoter{orderID: uuid.New()}
	router := newTestRouter(t, &stubEngine{}, promoter)

	body := strings.NewReader(`{"order_type":"dine_in","payment_method":"cash"}`)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/sessions/sess-1/checkout/promote", body))

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), promoter.orderID.String())
}

func TestRouterCheckoutPromoteRejectsBadOrderType(t *testing.T) {
	router := newTestRouter(t, &stubEngine{}, &stubPromoter{})

	body := strings.NewReader(`{"order_type":"teleport","payment_method":"cash"}`)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/sessions/sess-1/checkout/promote", body))

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouterWebsocketAbsentWithoutHub(t *testing.T) {
	router := newTestRouter(t, &stubEngine{}, &stubPromoter{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
