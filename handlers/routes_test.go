package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"order-of-ash/config"
	"order-of-ash/models"
	"order-of-ash/services"
	"order-of-ash/utils"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	initdata "github.com/telegram-mini-apps/init-data-golang"
	"github.com/tonkeeper/tongo"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	testBotToken     = "12345:test-bot-token"
	testServiceToken = "internal-secret"
	testWallet       = "0:e2d41ed396a9f1ba03839d63c5650fafc6fd9b2c2e5e6b7a2bbd0c1e5b1e3e3f"
)

type testServer struct {
	app  *fiber.App
	db   *gorm.DB
	deps Deps
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "ash.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(models.All()...))

	wallet, err := tongo.ParseAccountID(testWallet)
	require.NoError(t, err)

	rules := config.DefaultGameRules()
	lg := zap.NewNop()
	deps := Deps{
		Players:        services.NewPlayerService(db, rules, lg),
		Invoices:       services.NewInvoiceService(db, rules, services.PaymentTarget{Wallet: wallet, AmountNano: 500_000_000}, lg),
		Referrals:      services.NewReferralService(db, rules, lg),
		Final:          services.NewFinalService(db, rules, lg),
		Stats:          services.NewStatsService(db, lg),
		Sessions:       utils.NewSessionIssuer("jwt-secret", time.Hour),
		BotToken:       testBotToken,
		InitDataMaxAge: time.Hour,
		ServiceToken:   testServiceToken,
		StreamInterval: 10 * time.Millisecond,
		Logger:         lg,
	}
	app := fiber.New()
	Register(app, deps)
	return &testServer{app: app, db: db, deps: deps}
}

func initData(id int64, firstName, startParam string) string {
	authDate := time.Now()
	payload := map[string]string{"user": fmt.Sprintf(`{"id":%d,"first_name":%q}`, id, firstName)}
	if startParam != "" {
		payload["start_param"] = startParam
	}
	v := url.Values{}
	for k, val := range payload {
		v.Set(k, val)
	}
	v.Set("auth_date", strconv.FormatInt(authDate.Unix(), 10))
	v.Set("hash", initdata.Sign(payload, testBotToken, authDate))
	return v.Encode()
}

func (s *testServer) do(t *testing.T, method, path, token string, body interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]interface{}{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return resp, out
}

func (s *testServer) login(t *testing.T, id int64, name, startParam string) string {
	t.Helper()
	resp, body := s.do(t, "POST", "/auth/telegram", "", fiber.Map{"init_data": initData(id, name, startParam)})
	require.Contains(t, []int{fiber.StatusOK, fiber.StatusCreated}, resp.StatusCode)
	token, _ := body["token"].(string)
	require.NotEmpty(t, token)
	return token
}

func (s *testServer) setFragments(t *testing.T, id int64, fragments ...int) {
	t.Helper()
	require.NoError(t, s.db.Model(&models.Player{}).Where("id = ?", id).
		Update("fragments", models.FragmentSet(fragments)).Error)
}

func TestTelegramLogin(t *testing.T) {
	s := newTestServer(t)

	resp, body := s.do(t, "POST", "/auth/telegram", "", fiber.Map{"init_data": initData(101, "Ember", "")})
	assert.Equal(t, fiber.StatusCreated, resp.StatusCode)
	assert.Equal(t, true, body["created"])
	assert.NotEmpty(t, body["token"])

	resp, body = s.do(t, "POST", "/auth/telegram", "", fiber.Map{"init_data": initData(101, "Ember", "")})
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["created"])

	resp, _ = s.do(t, "POST", "/auth/telegram", "", fiber.Map{"init_data": "user=%7B%22id%22%3A1%7D&auth_date=1&hash=00"})
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	resp, body = s.do(t, "POST", "/auth/telegram", "", fiber.Map{})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "validation_error", body["error"])
}

func TestLoginRecordsReferral(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t, 1, "Referrer", "")
	_, me := s.do(t, "GET", "/player", token, nil)
	code, _ := me["referral_code"].(string)
	require.NotEmpty(t, code)

	s.login(t, 2, "Friend", "ref_"+code)

	_, refs := s.do(t, "GET", "/referrals", token, nil)
	assert.EqualValues(t, 1, refs["count"])
}

func TestPlayerRequiresSession(t *testing.T) {
	s := newTestServer(t)
	resp, _ := s.do(t, "GET", "/player", "", nil)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestInvoiceLifecycle(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t, 7, "Cinder", "")

	// without the mandatory fragments there is nothing to pay for
	resp, body := s.do(t, "POST", "/invoices", token, nil)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "prerequisites_not_met", body["error"])

	s.setFragments(t, 7, 1, 2, 3)

	resp, created := s.do(t, "POST", "/invoices", token, nil)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	invoiceID, _ := created["invoice_id"].(string)
	require.NotEmpty(t, invoiceID)
	assert.NotEmpty(t, created["match_token"])

	resp, again := s.do(t, "POST", "/invoices", token, nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, invoiceID, again["invoice_id"])

	resp, status := s.do(t, "GET", "/invoices/"+invoiceID, token, nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "pending", status["status"])

	resp, body = s.do(t, "POST", "/invoices/"+invoiceID+"/resolve", token, fiber.Map{"success": true})
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
	assert.Equal(t, "not_payable_yet", body["error"])

	resp, _ = s.do(t, "POST", "/internal/invoices/"+invoiceID+"/paid", "", fiber.Map{"tx_hash": "abc"})
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	resp, paid := s.do(t, "POST", "/internal/invoices/"+invoiceID+"/paid", testServiceToken, fiber.Map{"tx_hash": "abc"})
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, true, paid["changed"])

	resp, _ = s.do(t, "POST", "/invoices/"+invoiceID+"/resolve", token, fiber.Map{})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp, first := s.do(t, "POST", "/invoices/"+invoiceID+"/resolve", token, fiber.Map{"success": true})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, false, first["already_processed"])

	resp, second := s.do(t, "POST", "/invoices/"+invoiceID+"/resolve", token, fiber.Map{"success": false})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, true, second["already_processed"])
	assert.Equal(t, first["result"], second["result"])

	other := s.login(t, 8, "Stranger", "")
	resp, _ = s.do(t, "GET", "/invoices/"+invoiceID, other, nil)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	resp, _ = s.do(t, "GET", "/invoices/00000000-0000-0000-0000-000000000000", token, nil)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestInvoiceStream(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t, 9, "Soot", "")
	s.setFragments(t, 9, 1, 2, 3)

	_, created := s.do(t, "POST", "/invoices", token, nil)
	invoiceID := created["invoice_id"].(string)

	resp, _ := s.do(t, "GET", "/invoices/"+invoiceID+"/stream", "", nil)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	_, err := s.deps.Invoices.MarkPaid(t.Context(), invoiceID, "tx")
	require.NoError(t, err)
	_, err = s.deps.Invoices.Resolve(t.Context(), 9, invoiceID, true)
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/invoices/"+invoiceID+"/stream?token="+url.QueryEscape(token), nil)
	stream, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer stream.Body.Close()
	assert.Equal(t, "text/event-stream", stream.Header.Get("Content-Type"))

	raw, err := io.ReadAll(stream.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "event: status")
	assert.Contains(t, string(raw), `"processed":true`)
}

func TestInvoiceStreamFollowsLiveInvoice(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t, 10, "Tinder", "")
	s.setFragments(t, 10, 1, 2, 3)

	_, created := s.do(t, "POST", "/invoices", token, nil)
	invoiceID := created["invoice_id"].(string)

	type result struct {
		body string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		req := httptest.NewRequest("GET", "/invoices/"+invoiceID+"/stream?token="+url.QueryEscape(token), nil)
		resp, err := s.app.Test(req, -1)
		if err != nil {
			done <- result{err: err}
			return
		}
		defer resp.Body.Close()
		raw, err := io.ReadAll(resp.Body)
		done <- result{body: string(raw), err: err}
	}()

	// other requests reuse pooled contexts while the stream is open
	for i := 0; i < 50; i++ {
		resp, _ := s.do(t, "GET", "/invoices/ffffffff-ffff-ffff-ffff-ffffffffffff", token, nil)
		require.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	}

	_, err := s.deps.Invoices.MarkPaid(t.Context(), invoiceID, "tx")
	require.NoError(t, err)
	_, err = s.deps.Invoices.Resolve(t.Context(), 10, invoiceID, true)
	require.NoError(t, err)

	select {
	case res := <-done:
		require.NoError(t, res.err)
		assert.Contains(t, res.body, `"status":"pending"`)
		assert.Contains(t, res.body, `"processed":true`)
		assert.Contains(t, res.body, invoiceID)
		assert.NotContains(t, res.body, "ffffffff-ffff")
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not end after the invoice was processed")
	}
}

func TestFreeBurnRoute(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t, 11, "Flint", "")

	resp, body := s.do(t, "POST", "/burn/free", token, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 1, body["fragment"])

	resp, body = s.do(t, "POST", "/burn/free", token, nil)
	assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "cooldown_active", body["error"])
}

func TestReferralClaimRoute(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t, 12, "Pyre", "")

	resp, body := s.do(t, "POST", "/referrals/claim", token, nil)
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
	assert.Equal(t, "not_enough_referrals", body["error"])
}

func TestFinalRoute(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t, 13, "Phoenix", "")

	resp, _ := s.do(t, "POST", "/final", token, fiber.Map{"phrase": "i am the ash of Phoenix"})
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	s.setFragments(t, 13, s.deps.Final.Rules.AllFragments()...)
	var p models.Player
	require.NoError(t, s.db.Where("id = ?", 13).First(&p).Error)
	s.deps.Final.Now = func() time.Time { return p.CreatedAt.Add(10 * time.Second) }

	resp, body := s.do(t, "POST", "/final", token, fiber.Map{"phrase": "I am the ash of someone else"})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["accepted"])

	resp, body = s.do(t, "POST", "/final", token, fiber.Map{"phrase": "  I AM the ash of   phoenix "})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["accepted"])
	assert.NotEmpty(t, body["token"])

	resp, _ = s.do(t, "POST", "/final", token, fiber.Map{"phrase": "   "})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestStatsAndMetrics(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t, 14, "Ashen", "")
	s.do(t, "POST", "/burn/free", token, nil)

	resp, body := s.do(t, "GET", "/stats", "", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 1, body[services.CounterFragmentsGranted])

	req := httptest.NewRequest("GET", "/metrics", nil)
	metrics, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer metrics.Body.Close()
	raw, err := io.ReadAll(metrics.Body)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, metrics.StatusCode)
	assert.Contains(t, string(raw), "go_goroutines")
}

func TestRespondErrorMapping(t *testing.T) {
	tests := []struct {
		err  error
		want int
		code string
	}{
		{fmt.Errorf("x: %w", services.ErrValidation), fiber.StatusBadRequest, "validation_error"},
		{services.ErrNotFound, fiber.StatusNotFound, "not_found"},
		{services.ErrForbidden, fiber.StatusForbidden, "forbidden"},
		{services.ErrNotPayableYet, fiber.StatusConflict, "not_payable_yet"},
		{services.ErrCooldownActive, fiber.StatusTooManyRequests, "cooldown_active"},
		{errors.New("db exploded"), fiber.StatusInternalServerError, "internal_error"},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			app := fiber.New()
			app.Get("/", func(c *fiber.Ctx) error { return respondError(c, tt.err) })
			resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tt.want, resp.StatusCode)

			var body map[string]string
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Equal(t, tt.code, body["error"])
			assert.NotContains(t, body["message"], "db exploded")
		})
	}
}
