package handler_test

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DukeRupert/tradeflow/internal/ai/mock"
	"github.com/DukeRupert/tradeflow/internal/auth"
	"github.com/DukeRupert/tradeflow/internal/billing"
	"github.com/DukeRupert/tradeflow/internal/domain"
	"github.com/DukeRupert/tradeflow/internal/handler"
	"github.com/DukeRupert/tradeflow/internal/middleware"
	"github.com/DukeRupert/tradeflow/internal/repository/memstore"
	"github.com/DukeRupert/tradeflow/internal/service"
	"github.com/DukeRupert/tradeflow/internal/storage"
)

const (
	lsSecret     = "ls-handler-secret"
	testFilesURL = "http://localhost:8080/files"
)

type testAPI struct {
	mux      *http.ServeMux
	store    *memstore.Store
	analyzer *mock.Provider
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memstore.New()
	analyzer := mock.New(logger)

	tokens := auth.NewTokenManager("handler-test-secret", time.Hour)
	userService := service.NewUserService(store, tokens, logger)
	ledger := service.NewLedger(store, logger)
	gate := service.NewUsageGate(ledger, logger)
	archive, err := storage.NewLocalStorage(storage.LocalConfig{
		BasePath: t.TempDir(),
		BaseURL:  testFilesURL,
	}, logger)
	require.NoError(t, err)

	recorder := service.NewAnalysisRecorder(store, archive, logger)
	analysisService := service.NewAnalysisService(gate, recorder, analyzer, service.NewChartNormalizer(256, 0), archive, logger)
	reconciler := service.NewReconciler(ledger, logger)

	providers := billing.NewRegistry()
	ls := billing.NewLemonSqueezy(billing.LemonSqueezyConfig{WebhookSecret: lsSecret}, logger)
	providers.RegisterWebhook(ls)
	providers.RegisterCheckout(ls)

	authMw := middleware.NewAuthMiddleware(tokens, userService, logger)
	guards := handler.Guards{RequireUser: authMw.RequireUser}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", handler.StatusBanner)
	handler.NewAuthHandler(userService, logger).RegisterRoutes(mux, guards)
	handler.NewAccountHandler(userService, ledger, recorder, logger).RegisterRoutes(mux, guards, true)
	handler.NewAnalysisHandler(analysisService, recorder, archive, 1<<20, logger).RegisterRoutes(mux, guards)
	handler.NewBillingHandler(providers, "http://localhost:8080", logger).RegisterRoutes(mux, guards)
	handler.NewWebhookHandler(providers, reconciler, logger).RegisterRoutes(mux)
	handler.NewChartFileHandler(archive, logger).RegisterRoutes(mux, guards)

	return &testAPI{mux: mux, store: store, analyzer: analyzer}
}

func (a *testAPI) do(t *testing.T, method, path, token string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.mux.ServeHTTP(rec, req)
	return rec
}

func (a *testAPI) register(t *testing.T, email string) string {
	t.Helper()
	form := url.Values{"email": {email}, "password": {"chartist42"}, "name": {"Test Trader"}}
	rec := a.do(t, http.MethodPost, "/register", "", strings.NewReader(form.Encode()), "application/x-www-form-urlencoded")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp handler.TokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.AccessToken)
	return resp.AccessToken
}

func (a *testAPI) me(t *testing.T, token string) handler.UserView {
	t.Helper()
	rec := a.do(t, http.MethodGet, "/me", token, nil, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var v handler.UserView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func (a *testAPI) analyze(t *testing.T, token string) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := chartUpload(t, "chart.png", "image/png", pngBytes(t))
	return a.do(t, http.MethodPost, "/analyze-image", token, body, contentType)
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 32, 16))
	for x := 0; x < 32; x++ {
		img.Set(x, 15-x/2, color.RGBA{R: 0, G: 200, B: 0, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func chartUpload(t *testing.T, filename, partType string, data []byte) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	h.Set("Content-Type", partType)
	part, err := mw.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body handler.JSONError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body.Error.Code
}

// =============================================================================
// Accounts
// =============================================================================

func TestRegisterLoginAndMe(t *testing.T) {
	api := newTestAPI(t)
	api.register(t, "Trader@Example.com")

	rec := api.do(t, http.MethodPost, "/login", "",
		strings.NewReader(`{"email":"trader@example.com","password":"chartist42"}`), "application/json")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var login handler.TokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &login))
	assert.Equal(t, "bearer", login.TokenType)
	assert.True(t, login.ExpiresAt.After(time.Now()))

	me := api.me(t, login.AccessToken)
	assert.Equal(t, "trader@example.com", me.Email)
	assert.Equal(t, "Test Trader", me.Name)
	assert.Equal(t, "free", me.Plan)
	assert.Equal(t, 0, me.AnalysesUsed)
	assert.Equal(t, 3, me.AnalysesLimit)
	assert.Equal(t, "inactive", me.SubscriptionStatus)
}

func TestLogin_OAuthUsernameField(t *testing.T) {
	api := newTestAPI(t)
	api.register(t, "oauth@example.com")

	form := url.Values{"username": {"oauth@example.com"}, "password": {"chartist42"}}
	rec := api.do(t, http.MethodPost, "/login", "", strings.NewReader(form.Encode()), "application/x-www-form-urlencoded")
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestRegister_DuplicateEmail(t *testing.T) {
	api := newTestAPI(t)
	api.register(t, "dup@example.com")

	form := url.Values{"email": {"DUP@example.com"}, "password": {"chartist42"}}
	rec := api.do(t, http.MethodPost, "/register", "", strings.NewReader(form.Encode()), "application/x-www-form-urlencoded")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, domain.ECONFLICT, errorCode(t, rec))
}

func TestLogin_WrongPassword(t *testing.T) {
	api := newTestAPI(t)
	api.register(t, "wrong@example.com")

	rec := api.do(t, http.MethodPost, "/login", "",
		strings.NewReader(`{"email":"wrong@example.com","password":"notmypass1"}`), "application/json")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = api.do(t, http.MethodPost, "/login", "",
		strings.NewReader(`{"email":"nobody@example.com","password":"notmypass1"}`), "application/json")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	api := newTestAPI(t)

	for _, path := range []string{"/me", "/dashboard", "/analysis-history"} {
		rec := api.do(t, http.MethodGet, path, "", nil, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}
	rec := api.do(t, http.MethodGet, "/me", "not-a-jwt", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUpdateMe(t *testing.T) {
	api := newTestAPI(t)
	token := api.register(t, "rename@example.com")

	rec := api.do(t, http.MethodPatch, "/me", token, strings.NewReader(`{"name":"Renamed"}`), "application/json")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Renamed", api.me(t, token).Name)

	rec = api.do(t, http.MethodPatch, "/me", token, strings.NewReader(`{"plan":"premium"}`), "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "free", api.me(t, token).Plan)
}

// =============================================================================
// Analysis and quota
// =============================================================================

func TestAnalyze_EnforcesFreeQuota(t *testing.T) {
	api := newTestAPI(t)
	token := api.register(t, "quota@example.com")

	for i := 1; i <= 3; i++ {
		rec := api.analyze(t, token)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var resp handler.AnalyzeResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, i, resp.AnalysesUsed)
		assert.Equal(t, 3, resp.AnalysesLimit)
		assert.Equal(t, string(domain.TrendBullish), resp.Trend)
		assert.NotEmpty(t, resp.Analysis)
	}

	rec := api.analyze(t, token)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, domain.EQUOTA, errorCode(t, rec))

	assert.Equal(t, 3, api.analyzer.CallCount())
	assert.Equal(t, 3, api.me(t, token).AnalysesUsed)

	rec = api.do(t, http.MethodGet, "/analysis-history", token, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var items []handler.HistoryItem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &items))
	assert.Len(t, items, 3)
}

func TestAnalyze_AnalyzerFailureKeepsQuota(t *testing.T) {
	api := newTestAPI(t)
	token := api.register(t, "fail@example.com")
	api.analyzer.Error = errors.New("upstream overloaded")

	rec := api.analyze(t, token)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, domain.EANALYSIS, errorCode(t, rec))
	assert.Equal(t, 0, api.me(t, token).AnalysesUsed)
}

func TestAnalyze_RejectsNonImage(t *testing.T) {
	api := newTestAPI(t)
	token := api.register(t, "text@example.com")

	body, contentType := chartUpload(t, "notes.txt", "text/plain", []byte("not a chart"))
	rec := api.do(t, http.MethodPost, "/analyze-image", token, body, contentType)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	body, contentType = chartUpload(t, "chart.png", "application/octet-stream", []byte("still not a chart"))
	rec = api.do(t, http.MethodPost, "/analyze-image", token, body, contentType)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Equal(t, 0, api.analyzer.CallCount())
	assert.Equal(t, 0, api.me(t, token).AnalysesUsed)
}

func TestAnalyze_MissingFile(t *testing.T) {
	api := newTestAPI(t)
	token := api.register(t, "nofile@example.com")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("note", "hello"))
	require.NoError(t, mw.Close())

	rec := api.do(t, http.MethodPost, "/analyze-image", token, &buf, mw.FormDataContentType())
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAnalyze_TooLarge(t *testing.T) {
	api := newTestAPI(t)
	token := api.register(t, "big@example.com")

	body, contentType := chartUpload(t, "chart.png", "image/png", bytes.Repeat([]byte{0}, 2<<20))
	rec := api.do(t, http.MethodPost, "/analyze-image", token, body, contentType)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, 0, api.me(t, token).AnalysesUsed)
}

func TestHistory_PreviewIsTruncated(t *testing.T) {
	api := newTestAPI(t)
	token := api.register(t, "preview@example.com")
	api.analyzer.Response = "DOWNTREND\nhigh\n" + strings.Repeat("é", 500)

	rec := api.analyze(t, token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = api.do(t, http.MethodGet, "/analysis-history?limit=10", token, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var items []handler.HistoryItem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &items))
	require.Len(t, items, 1)
	assert.Equal(t, domain.HistoryPreviewLength, utf8.RuneCountInString(items[0].AnalysisText))
	assert.Equal(t, string(domain.TrendBearish), items[0].Trend)

	rec = api.do(t, http.MethodGet, "/analysis/"+items[0].ID, token, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var detail handler.AnalysisDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &detail))
	assert.Equal(t, api.analyzer.Response, detail.AnalysisText)

	rec = api.do(t, http.MethodGet, "/analysis-history?limit=zero", token, nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteAnalysis_OnlyOwner(t *testing.T) {
	api := newTestAPI(t)
	owner := api.register(t, "owner@example.com")
	other := api.register(t, "other@example.com")

	rec := api.analyze(t, owner)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp handler.AnalyzeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	rec = api.do(t, http.MethodDelete, "/delete-analysis/"+resp.ID, other, nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = api.do(t, http.MethodGet, "/analysis/"+resp.ID, other, nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = api.do(t, http.MethodDelete, "/delete-analysis/"+resp.ID, owner, nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = api.do(t, http.MethodGet, "/analysis/"+resp.ID, owner, nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = api.do(t, http.MethodDelete, "/delete-analysis/not-a-uuid", owner, nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Deleting history never refunds the unit.
	assert.Equal(t, 1, api.me(t, owner).AnalysesUsed)
}

func TestChartFiles_OnlyOwner(t *testing.T) {
	api := newTestAPI(t)
	owner := api.register(t, "charts@example.com")
	other := api.register(t, "snoop@example.com")

	rec := api.analyze(t, owner)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp handler.AnalyzeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	rec = api.do(t, http.MethodGet, "/analysis/"+resp.ID, owner, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var detail handler.AnalysisDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &detail))
	require.True(t, strings.HasPrefix(detail.ImageURL, testFilesURL+"/charts/"), detail.ImageURL)
	path := strings.TrimPrefix(detail.ImageURL, "http://localhost:8080")

	rec = api.do(t, http.MethodGet, path, owner, nil, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	_, err := png.Decode(rec.Body)
	assert.NoError(t, err)

	rec = api.do(t, http.MethodGet, path, "", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = api.do(t, http.MethodGet, path, other, nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = api.do(t, http.MethodGet, "/files/charts/", owner, nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Deleting the analysis removes the file.
	rec = api.do(t, http.MethodDelete, "/delete-analysis/"+resp.ID, owner, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	rec = api.do(t, http.MethodGet, path, owner, nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDashboard(t *testing.T) {
	api := newTestAPI(t)
	token := api.register(t, "dash@example.com")
	require.Equal(t, http.StatusOK, api.analyze(t, token).Code)

	rec := api.do(t, http.MethodGet, "/dashboard", token, nil, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var d handler.DashboardResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &d))
	assert.Equal(t, "Free", d.PlanName)
	assert.Equal(t, 2, d.AnalysesRemaining)
	assert.False(t, d.Unlimited)
	assert.Equal(t, int64(1), d.TotalAnalyses)
	assert.Len(t, d.RecentAnalyses, 1)
}

func TestDashboard_ConcurrentRequests(t *testing.T) {
	api := newTestAPI(t)

	plans := []string{"free", "pro", "premium", "pro"}
	want := map[string]string{"free": "Free", "pro": "Pro", "premium": "Premium"}
	tokens := make([]string, len(plans))
	for i, plan := range plans {
		tokens[i] = api.register(t, fmt.Sprintf("dash%d@example.com", i))
		if plan != "free" {
			rec := api.do(t, http.MethodPost, "/debug/upgrade-plan?plan="+plan, tokens[i], nil, "")
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		}
	}

	const requests = 40
	names := make([]string, requests)
	codes := make([]int, requests)
	var wg sync.WaitGroup
	for i := 0; i < requests; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
			req.Header.Set("Authorization", "Bearer "+tokens[i%len(tokens)])
			rec := httptest.NewRecorder()
			api.mux.ServeHTTP(rec, req)

			codes[i] = rec.Code
			var d handler.DashboardResponse
			if json.Unmarshal(rec.Body.Bytes(), &d) == nil {
				names[i] = d.PlanName
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < requests; i++ {
		assert.Equal(t, http.StatusOK, codes[i])
		assert.Equal(t, want[plans[i%len(plans)]], names[i], "request %d", i)
	}
}

// =============================================================================
// Plans and billing
// =============================================================================

func TestDebugUpgradePlan(t *testing.T) {
	api := newTestAPI(t)
	token := api.register(t, "debug@example.com")

	rec := api.do(t, http.MethodPost, "/debug/upgrade-plan?plan=pro", token, nil, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "Plan updated")

	me := api.me(t, token)
	assert.Equal(t, "pro", me.Plan)
	assert.Equal(t, 50, me.AnalysesLimit)
	assert.Equal(t, "active", me.SubscriptionStatus)
	require.NotNil(t, me.PlanEndsAt)

	rec = api.do(t, http.MethodPost, "/debug/upgrade-plan?plan=gold", token, nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "pro", api.me(t, token).Plan)
}

func lsSign(body []byte) string {
	mac := hmac.New(sha256.New, []byte(lsSecret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func (a *testAPI) webhook(t *testing.T, provider string, body []byte, signature string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhook/"+provider, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set("X-Signature", signature)
	}
	rec := httptest.NewRecorder()
	a.mux.ServeHTTP(rec, req)
	return rec
}

func TestWebhook_OrderUpgradesPlanOnce(t *testing.T) {
	api := newTestAPI(t)
	token := api.register(t, "buyer@example.com")

	body := []byte(`{
		"meta": {"event_name": "order_created", "webhook_id": "wh_1"},
		"data": {"id": "9001", "type": "orders", "attributes": {
			"user_email": "Buyer@Example.com",
			"customer_id": 42,
			"status": "paid",
			"first_order_item": {"product_name": "Premium Plan", "variant_id": 7}
		}}
	}`)

	rec := api.webhook(t, billing.ProviderLemonSqueezy, body, lsSign(body))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"status":"applied"}`, rec.Body.String())

	me := api.me(t, token)
	assert.Equal(t, "premium", me.Plan)
	assert.Equal(t, domain.UnlimitedAnalyses, me.AnalysesLimit)

	rec = api.webhook(t, billing.ProviderLemonSqueezy, body, lsSign(body))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"duplicate"}`, rec.Body.String())
	assert.Len(t, api.store.WebhookEvents(), 1)
}

func TestWebhook_Rejections(t *testing.T) {
	api := newTestAPI(t)
	body := []byte(`{"meta":{"event_name":"order_created"},"data":{"attributes":{"user_email":"x@example.com"}}}`)

	rec := api.webhook(t, "venmo", body, lsSign(body))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = api.webhook(t, billing.ProviderLemonSqueezy, body, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = api.webhook(t, billing.ProviderLemonSqueezy, body, lsSign([]byte("other body")))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	bad := []byte(`{"meta":`)
	rec = api.webhook(t, billing.ProviderLemonSqueezy, bad, lsSign(bad))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Empty(t, api.store.WebhookEvents())
}

func TestWebhook_UnknownUserIsRecorded(t *testing.T) {
	api := newTestAPI(t)
	body := []byte(`{"meta":{"event_name":"order_created","webhook_id":"wh_ghost"},
		"data":{"attributes":{"user_email":"ghost@example.com","first_order_item":{"product_name":"Pro Plan"}}}}`)

	rec := api.webhook(t, billing.ProviderLemonSqueezy, body, lsSign(body))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"user_not_found"}`, rec.Body.String())
	assert.Len(t, api.store.WebhookEvents(), 1)
}

func TestCreateCheckout(t *testing.T) {
	api := newTestAPI(t)
	token := api.register(t, "checkout@example.com")

	rec := api.do(t, http.MethodPost, "/api/payment/create-checkout", token,
		strings.NewReader(`{"plan":"pro"}`), "application/json")
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
	assert.Equal(t, domain.ENOTIMPL, errorCode(t, rec))

	rec = api.do(t, http.MethodPost, "/api/payment/create-checkout", token,
		strings.NewReader(`{"plan":"free"}`), "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodPost, "/api/payment/create-checkout", token,
		strings.NewReader(`{"plan":"pro","provider":"venmo"}`), "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodPost, "/api/payment/create-checkout", "",
		strings.NewReader(`{"plan":"pro"}`), "application/json")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestStatusBanner(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodGet, "/", "", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"running"`)

	rec = api.do(t, http.MethodGet, "/nope", "", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
