package routes

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/example/newport/internal/config"
	"github.com/example/newport/internal/models"
	"github.com/example/newport/internal/services"
	"github.com/example/newport/internal/testutil"
)

type testServer struct {
	app *fiber.App
	db  *gorm.DB
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	db := testutil.NewDB(t)
	cfg := &config.Config{
		JWTSecret:        "jwt-secret",
		TokenExpires:     time.Hour,
		PaymeMerchantID:  "merchant-1",
		PaymeMerchantKey: "merchant-key",
		PaymeLogin:       "Paycom",
		PaymeCheckoutURL: "https://checkout.test.paycom.uz",
		InviteSecret:     "invite-secret",
		InviteBaseURL:    "https://newport.test",
		InviteTTL:        time.Hour,
	}

	app := fiber.New()
	Register(app, db, cfg, services.Publishers{services.NewNotificationStore(db)}, nil)
	return &testServer{app: app, db: db}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) (int, map[string]any) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}

	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func (s *testServer) payme(t *testing.T, id int, method string, params map[string]any) map[string]any {
	t.Helper()

	raw, err := json.Marshal(map[string]any{"id": id, "method": method, "params": params})
	require.NoError(t, err)

	req := httptest.NewRequest(fiber.MethodPost, "/api/payme/pay", bytes.NewReader(raw))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	req.Header.Set(fiber.HeaderAuthorization, "Basic "+base64.StdEncoding.EncodeToString([]byte("Paycom:merchant-key")))

	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func (s *testServer) register(t *testing.T, name, phone string) (string, uuid.UUID) {
	t.Helper()

	status, body := s.do(t, fiber.MethodPost, "/api/auth/register", "", map[string]any{
		"full_name": name,
		"phone":     phone,
		"password":  "secret-pass",
	})
	require.Equal(t, fiber.StatusCreated, status, body)

	user := body["user"].(map[string]any)
	id, err := uuid.Parse(user["id"].(string))
	require.NoError(t, err)
	return body["token"].(string), id
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	status, body := s.do(t, fiber.MethodGet, "/health", "", nil)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "ok", body["status"])
}

func TestAuthFlow(t *testing.T) {
	s := newTestServer(t)
	token, _ := s.register(t, "Aziz Karimov", "+998901112233")
	assert.NotEmpty(t, token)

	status, _ := s.do(t, fiber.MethodPost, "/api/auth/register", "", map[string]any{
		"full_name": "Someone Else", "phone": "+998901112233", "password": "secret-pass",
	})
	assert.Equal(t, fiber.StatusConflict, status)

	status, _ = s.do(t, fiber.MethodPost, "/api/auth/register", "", map[string]any{
		"full_name": "Short", "phone": "+998900000001", "password": "abc",
	})
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, _ = s.do(t, fiber.MethodPost, "/api/auth/register", "", map[string]any{
		"full_name": "Admin", "phone": "+998900000002", "password": "secret-pass", "role": "admin",
	})
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, body := s.do(t, fiber.MethodPost, "/api/auth/login", "", map[string]any{
		"phone": "+998901112233", "password": "secret-pass",
	})
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["success"])
	user := body["user"].(map[string]any)
	assert.Equal(t, "owner", user["role"])
	assert.NotContains(t, user, "PasswordHash")

	status, _ = s.do(t, fiber.MethodPost, "/api/auth/login", "", map[string]any{
		"phone": "+998901112233", "password": "wrong-pass",
	})
	assert.Equal(t, fiber.StatusUnauthorized, status)

	loginToken := body["token"].(string)
	status, _ = s.do(t, fiber.MethodPut, "/api/profile", loginToken, map[string]any{"full_name": "Aziz K."})
	require.Equal(t, fiber.StatusOK, status)

	status, body = s.do(t, fiber.MethodGet, "/api/profile", loginToken, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "Aziz K.", body["user"].(map[string]any)["full_name"])
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	s := newTestServer(t)

	status, body := s.do(t, fiber.MethodGet, "/api/payments", "", nil)
	assert.Equal(t, fiber.StatusUnauthorized, status)
	assert.Equal(t, false, body["success"])

	status, _ = s.do(t, fiber.MethodPost, "/api/invites", "", map[string]any{"apartmentIds": []string{"A-12"}})
	assert.Equal(t, fiber.StatusUnauthorized, status)
}

func TestPaymeWebhookRejectsBadCredentials(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(fiber.MethodPost, "/api/payme/pay", strings.NewReader(`{"id":3,"method":"CheckTransaction","params":{"id":"x"}}`))
	req.Header.Set(fiber.HeaderAuthorization, "Basic "+base64.StdEncoding.EncodeToString([]byte("Paycom:wrong")))
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	resp, err = s.app.Test(httptest.NewRequest(fiber.MethodGet, "/api/payme/pay", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, fiber.StatusMethodNotAllowed, resp.StatusCode)
}

func TestPaymentLifecycleThroughAPI(t *testing.T) {
	s := newTestServer(t)
	token, userID := s.register(t, "Aziz Karimov", "+998901112233")
	testutil.OwnedApartment(t, s.db, "A-12", userID)

	status, body := s.do(t, fiber.MethodPost, "/api/payments", token, map[string]any{
		"amount":      850000,
		"apartmentId": "A-12",
	})
	require.Equal(t, fiber.StatusOK, status, body)
	paymentID := body["paymentId"].(string)
	assert.True(t, strings.HasPrefix(body["checkoutUrl"].(string), "https://checkout.test.paycom.uz/"))

	_, again := s.do(t, fiber.MethodPost, "/api/payments", token, map[string]any{
		"amount":      850000,
		"apartmentId": "A-12",
	})
	assert.Equal(t, paymentID, again["paymentId"])

	status, _ = s.do(t, fiber.MethodPost, "/api/payments", token, map[string]any{
		"amount":      500,
		"apartmentId": "A-12",
	})
	assert.Equal(t, fiber.StatusBadRequest, status)

	account := map[string]any{"payment_id": paymentID}

	check := s.payme(t, 1, "CheckPerformTransaction", map[string]any{"amount": 85000000, "account": account})
	assert.Equal(t, true, check["result"].(map[string]any)["allow"])

	bad := s.payme(t, 2, "CreateTransaction", map[string]any{"id": "ptx-1", "time": 1, "amount": 1, "account": account})
	assert.Equal(t, float64(-31001), bad["error"].(map[string]any)["code"])

	created := s.payme(t, 3, "CreateTransaction", map[string]any{"id": "ptx-1", "time": 1, "amount": 85000000, "account": account})
	assert.Equal(t, float64(1), created["result"].(map[string]any)["state"])

	performed := s.payme(t, 4, "PerformTransaction", map[string]any{"id": "ptx-1"})
	assert.Equal(t, float64(2), performed["result"].(map[string]any)["state"])

	status, history := s.do(t, fiber.MethodGet, "/api/payments?apartmentId=A-12", token, nil)
	require.Equal(t, fiber.StatusOK, status)
	payments := history["payments"].([]any)
	require.Len(t, payments, 1)
	assert.Equal(t, "completed", payments[0].(map[string]any)["status"])

	cancelled := s.payme(t, 5, "CancelTransaction", map[string]any{"id": "ptx-1", "reason": 1})
	assert.Equal(t, float64(-1), cancelled["result"].(map[string]any)["state"])

	var payment models.Payment
	require.NoError(t, s.db.Where("id = ?", paymentID).First(&payment).Error)
	assert.Equal(t, models.PaymentStatusCancelled, payment.Status)

	status, inbox := s.do(t, fiber.MethodGet, "/api/notifications", token, nil)
	require.Equal(t, fiber.StatusOK, status)
	notifications := inbox["notifications"].([]any)
	require.Len(t, notifications, 3)

	first := notifications[0].(map[string]any)
	assert.Equal(t, paymentID, first["related_payment_id"])
	status, _ = s.do(t, fiber.MethodPatch, "/api/notifications/"+first["id"].(string)+"/read", token, nil)
	require.Equal(t, fiber.StatusOK, status)

	_, unread := s.do(t, fiber.MethodGet, "/api/notifications?unread=true", token, nil)
	assert.Len(t, unread["notifications"].([]any), 2)

	status, _ = s.do(t, fiber.MethodPatch, "/api/notifications/"+uuid.NewString()+"/read", token, nil)
	assert.Equal(t, fiber.StatusNotFound, status)
}

func TestInviteFlowThroughAPI(t *testing.T) {
	s := newTestServer(t)
	ownerToken, ownerID := s.register(t, "Aziz Karimov", "+998901112233")
	memberToken, _ := s.register(t, "Dilnoza Karimova", "+998901112244")
	testutil.OwnedApartment(t, s.db, "A-12", ownerID)

	status, created := s.do(t, fiber.MethodPost, "/api/invites", ownerToken, map[string]any{
		"apartmentIds": []string{"A-12", "Z-99"},
	})
	require.Equal(t, fiber.StatusCreated, status, created)
	assert.Equal(t, float64(1), created["apartmentCount"])

	inviteID := created["inviteId"].(string)
	inviteURL := created["inviteUrl"].(string)
	sig := inviteURL[strings.Index(inviteURL, "sig=")+len("sig="):]
	assert.Equal(t, fmt.Sprintf("https://newport.test/invite/%s?sig=%s", inviteID, sig), inviteURL)

	status, verified := s.do(t, fiber.MethodGet, "/api/invites/"+inviteID+"/verify?sig="+sig, "", nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, verified["valid"])

	status, _ = s.do(t, fiber.MethodPost, "/api/invites", memberToken, map[string]any{
		"apartmentIds": []string{"A-12"},
	})
	assert.Equal(t, fiber.StatusForbidden, status)

	status, consumed := s.do(t, fiber.MethodPost, "/api/invites/"+inviteID+"/consume", memberToken, map[string]any{
		"signature": sig,
	})
	require.Equal(t, fiber.StatusOK, status, consumed)
	assert.Equal(t, []any{"A-12"}, consumed["apartmentIds"])
	assert.Equal(t, "family_full", consumed["roleToGrant"])

	status, _ = s.do(t, fiber.MethodPost, "/api/invites/"+inviteID+"/consume", memberToken, map[string]any{
		"signature": sig,
	})
	assert.Equal(t, fiber.StatusConflict, status)

	status, _ = s.do(t, fiber.MethodPost, "/api/invites/"+inviteID+"/revoke", ownerToken, nil)
	assert.Equal(t, fiber.StatusConflict, status)

	status, _ = s.do(t, fiber.MethodGet, "/api/invites/"+uuid.NewString()+"/verify?sig=abc", "", nil)
	assert.Equal(t, fiber.StatusNotFound, status)
}
