package routes_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/tradexcel/backend/internal/config"
	"github.com/tradexcel/backend/internal/finance"
	"github.com/tradexcel/backend/internal/logging"
	"github.com/tradexcel/backend/internal/routes"
	"github.com/tradexcel/backend/internal/server"
)

type captureSender struct {
	mu       sync.Mutex
	lastCode string
}

func (s *captureSender) Send(_ context.Context, _, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastCode = code
	return nil
}

func (s *captureSender) code() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastCode
}

type stubQuoter struct {
	quote finance.Quote
}

func (q stubQuoter) Quote(context.Context, string) (finance.Quote, error) {
	return q.quote, nil
}

func testConfig() config.Config {
	return config.Config{
		AppName:            "backend-test",
		AppEnv:             "test",
		CORSOrigin:         "http://localhost:3000",
		AccessTokenSecret:  "access-secret",
		RefreshTokenSecret: "refresh-secret",
		AccessTokenTTL:     time.Hour,
		RefreshTokenTTL:    240 * time.Hour,
		OTPTTL:             10 * time.Minute,
		PendingRetention:   24 * time.Hour,
	}
}

func newTestApp(t *testing.T, sender *captureSender) *fiber.App {
	t.Helper()
	cfg := testConfig()
	app := fiber.New(fiber.Config{ErrorHandler: server.ErrorHandler(logging.Discard())})
	_, err := routes.Setup(app, routes.Deps{
		Cfg:       cfg,
		Logger:    logging.Discard(),
		OTPSender: sender,
		Quoter:    stubQuoter{quote: finance.Quote{CurrentPrice: 42, TodayChange: "+1.00", PercentageChange: "2.44", StockPrices: []float64{41, 42}}},
	})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	return app
}

type envelope struct {
	Status  int             `json:"status"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Errors  []string        `json:"errors"`
}

func do(t *testing.T, app *fiber.App, method, path, body string, mutate func(*http.Request)) (*http.Response, envelope) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if mutate != nil {
		mutate(req)
	}
	resp, err := app.Test(req, 5000)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	raw, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("decode %s: %v", raw, err)
	}
	return resp, env
}

func cookieValue(resp *http.Response, name string) string {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c.Value
		}
	}
	return ""
}

const registerBody = `{
	"name": "Alice Smith",
	"username": "alice",
	"email": "alice@x.com",
	"password": "secret-pass",
	"dob": "1999-01-02",
	"phoneNumber": "5551234567",
	"countryCode": "+1",
	"pin": "1234",
	"otpMethod": "email"
}`

func registerAndVerify(t *testing.T, app *fiber.App, sender *captureSender) {
	t.Helper()
	resp, env := do(t, app, "POST", "/api/v1/users/register", registerBody, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("register: status %d message %q", resp.StatusCode, env.Message)
	}
	if sender.code() == "" {
		t.Fatalf("no OTP dispatched")
	}

	verify := `{"email":"alice@x.com","otpMethod":"email","otp":"` + sender.code() + `"}`
	resp, env = do(t, app, "POST", "/api/v1/users/verify-otp", verify, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("verify: status %d message %q", resp.StatusCode, env.Message)
	}
}

func login(t *testing.T, app *fiber.App) *http.Response {
	t.Helper()
	resp, env := do(t, app, "POST", "/api/v1/users/login",
		`{"emailOrUsername":"alice","password":"secret-pass","pin":"1234"}`, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login: status %d message %q", resp.StatusCode, env.Message)
	}
	return resp
}

func TestRegisterVerifyLoginFlow(t *testing.T) {
	sender := &captureSender{}
	app := newTestApp(t, sender)

	registerAndVerify(t, app, sender)
	resp := login(t, app)

	access := cookieValue(resp, "accessToken")
	refresh := cookieValue(resp, "refreshToken")
	if access == "" || refresh == "" {
		t.Fatalf("login must set both auth cookies")
	}

	// The envelope carries the tokens and the sanitized user too.
	_, env := do(t, app, "POST", "/api/v1/users/login",
		`{"emailOrUsername":"alice@x.com","password":"secret-pass","pin":"1234"}`, nil)
	var data struct {
		User struct {
			Username    string `json:"username"`
			OTPVerified bool   `json:"otpVerified"`
		} `json:"user"`
		AccessToken  string `json:"accessToken"`
		RefreshToken string `json:"refreshToken"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("decode login data: %v", err)
	}
	if data.User.Username != "alice" || !data.User.OTPVerified || data.AccessToken == "" || data.RefreshToken == "" {
		t.Fatalf("unexpected login payload: %s", env.Data)
	}
}

func TestVerifyWrongCodeThenCorrect(t *testing.T) {
	sender := &captureSender{}
	app := newTestApp(t, sender)

	resp, _ := do(t, app, "POST", "/api/v1/users/register", registerBody, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("register: status %d", resp.StatusCode)
	}

	resp, env := do(t, app, "POST", "/api/v1/users/verify-otp",
		`{"email":"alice@x.com","otpMethod":"email","otp":"000000"}`, nil)
	if resp.StatusCode != http.StatusBadRequest || env.Status != http.StatusBadRequest {
		t.Fatalf("wrong code: status %d body status %d", resp.StatusCode, env.Status)
	}

	// The pending registration survives, so the correct code still works.
	resp, _ = do(t, app, "POST", "/api/v1/users/verify-otp",
		`{"email":"alice@x.com","otpMethod":"email","otp":"`+sender.code()+`"}`, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("correct code after failure: status %d", resp.StatusCode)
	}
}

func TestRegisterMissingFieldsListsThem(t *testing.T) {
	app := newTestApp(t, &captureSender{})

	resp, env := do(t, app, "POST", "/api/v1/users/register", `{"email":"a@x.com"}`, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status %d", resp.StatusCode)
	}
	if len(env.Errors) == 0 {
		t.Fatalf("expected missing field list, got %+v", env)
	}
}

func TestDuplicateRegisterConflicts(t *testing.T) {
	sender := &captureSender{}
	app := newTestApp(t, sender)
	registerAndVerify(t, app, sender)

	resp, env := do(t, app, "POST", "/api/v1/users/register", registerBody, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("duplicate register: status %d message %q", resp.StatusCode, env.Message)
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	app := newTestApp(t, &captureSender{})

	resp, env := do(t, app, "GET", "/api/v1/users/profile", "", nil)
	if resp.StatusCode != http.StatusUnauthorized || env.Status != http.StatusUnauthorized {
		t.Fatalf("status %d body status %d", resp.StatusCode, env.Status)
	}
}

func TestProfileWithCookieAndBearer(t *testing.T) {
	sender := &captureSender{}
	app := newTestApp(t, sender)
	registerAndVerify(t, app, sender)
	access := cookieValue(login(t, app), "accessToken")

	// Cookie auth.
	resp, env := do(t, app, "GET", "/api/v1/users/profile", "", func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: "accessToken", Value: access})
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("cookie auth: status %d message %q", resp.StatusCode, env.Message)
	}
	var profile struct {
		Name        string `json:"name"`
		Email       string `json:"email"`
		PhoneNumber string `json:"phoneNumber"`
		Username    string `json:"username"`
		DOB         string `json:"dob"`
	}
	if err := json.Unmarshal(env.Data, &profile); err != nil {
		t.Fatalf("decode profile: %v", err)
	}
	if profile.Username != "alice" || profile.DOB != "1999-01-02" {
		t.Fatalf("unexpected profile: %s", env.Data)
	}

	// Bearer auth.
	resp, _ = do(t, app, "GET", "/api/v1/users/name", "", func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+access)
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("bearer auth: status %d", resp.StatusCode)
	}
}

func TestUpdateProfile(t *testing.T) {
	sender := &captureSender{}
	app := newTestApp(t, sender)
	registerAndVerify(t, app, sender)
	access := cookieValue(login(t, app), "accessToken")
	withAuth := func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: "accessToken", Value: access})
	}

	resp, env := do(t, app, "PATCH", "/api/v1/users/update", `{"name":"Alice Jones"}`, withAuth)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update: status %d message %q", resp.StatusCode, env.Message)
	}

	_, env = do(t, app, "GET", "/api/v1/users/name", "", withAuth)
	var name struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(env.Data, &name); err != nil {
		t.Fatalf("decode name: %v", err)
	}
	if name.Name != "Alice Jones" {
		t.Fatalf("name = %q", name.Name)
	}

	// An empty patch is rejected.
	resp, _ = do(t, app, "PATCH", "/api/v1/users/update", `{}`, withAuth)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("empty patch: status %d", resp.StatusCode)
	}
}

func TestChangePasswordThenLogin(t *testing.T) {
	sender := &captureSender{}
	app := newTestApp(t, sender)
	registerAndVerify(t, app, sender)
	access := cookieValue(login(t, app), "accessToken")

	resp, env := do(t, app, "PATCH", "/api/v1/users/change-password-pin",
		`{"oldPassword":"secret-pass","newPassword":"rotated-pass"}`, func(r *http.Request) {
			r.AddCookie(&http.Cookie{Name: "accessToken", Value: access})
		})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("change password: status %d message %q", resp.StatusCode, env.Message)
	}

	resp, _ = do(t, app, "POST", "/api/v1/users/login",
		`{"emailOrUsername":"alice","password":"secret-pass","pin":"1234"}`, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("old password must be rejected, got %d", resp.StatusCode)
	}

	resp, _ = do(t, app, "POST", "/api/v1/users/login",
		`{"emailOrUsername":"alice","password":"rotated-pass","pin":"1234"}`, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("new password must work, got %d", resp.StatusCode)
	}
}

func TestLoginWrongPINReturnsForbidden(t *testing.T) {
	sender := &captureSender{}
	app := newTestApp(t, sender)
	registerAndVerify(t, app, sender)

	resp, _ := do(t, app, "POST", "/api/v1/users/login",
		`{"emailOrUsername":"alice","password":"secret-pass","pin":"9999"}`, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("wrong PIN: status %d", resp.StatusCode)
	}
}

func TestRefreshRotationAndSupersession(t *testing.T) {
	sender := &captureSender{}
	app := newTestApp(t, sender)
	registerAndVerify(t, app, sender)
	first := cookieValue(login(t, app), "refreshToken")

	// Rotate via cookie.
	resp, env := do(t, app, "POST", "/api/v1/users/refresh-token", "", func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: "refreshToken", Value: first})
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("refresh: status %d message %q", resp.StatusCode, env.Message)
	}
	second := cookieValue(resp, "refreshToken")
	if second == "" || second == first {
		t.Fatalf("refresh must set a new refresh cookie")
	}

	// The superseded token is dead, via body this time.
	resp, _ = do(t, app, "POST", "/api/v1/users/refresh-token",
		`{"refreshToken":"`+first+`"}`, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("superseded token: status %d", resp.StatusCode)
	}

	// The current one still rotates.
	resp, _ = do(t, app, "POST", "/api/v1/users/refresh-token",
		`{"refreshToken":"`+second+`"}`, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("current token: status %d", resp.StatusCode)
	}
}

func TestRefreshWithoutTokenIsUnauthorized(t *testing.T) {
	app := newTestApp(t, &captureSender{})

	resp, _ := do(t, app, "POST", "/api/v1/users/refresh-token", `{}`, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status %d", resp.StatusCode)
	}
}

func TestLogoutRevokesAndClearsCookies(t *testing.T) {
	sender := &captureSender{}
	app := newTestApp(t, sender)
	registerAndVerify(t, app, sender)
	loginResp := login(t, app)
	access := cookieValue(loginResp, "accessToken")
	refresh := cookieValue(loginResp, "refreshToken")

	resp, env := do(t, app, "POST", "/api/v1/users/logout", "", func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: "accessToken", Value: access})
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("logout: status %d message %q", resp.StatusCode, env.Message)
	}
	for _, c := range resp.Cookies() {
		if (c.Name == "accessToken" || c.Name == "refreshToken") && c.Value != "" {
			t.Fatalf("logout must clear cookie %s", c.Name)
		}
	}

	resp, _ = do(t, app, "POST", "/api/v1/users/refresh-token",
		`{"refreshToken":"`+refresh+`"}`, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("refresh after logout: status %d", resp.StatusCode)
	}
}

func TestStockQuoteEndpoint(t *testing.T) {
	app := newTestApp(t, &captureSender{})

	resp, env := do(t, app, "GET", "/api/v1/finance/stock/AAPL", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("stock: status %d message %q", resp.StatusCode, env.Message)
	}
	var quote finance.Quote
	if err := json.Unmarshal(env.Data, &quote); err != nil {
		t.Fatalf("decode quote: %v", err)
	}
	if quote.CurrentPrice != 42 || quote.TodayChange != "+1.00" {
		t.Fatalf("unexpected quote: %s", env.Data)
	}
}
