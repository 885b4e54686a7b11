package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/finsight/identity-service/internal/config"
	"github.com/finsight/identity-service/internal/domain"
	"github.com/finsight/identity-service/internal/http/handler"
	"github.com/finsight/identity-service/internal/http/middleware"
	"github.com/finsight/identity-service/internal/http/router"
	"github.com/finsight/identity-service/internal/repository"
	"github.com/finsight/identity-service/internal/security"
	"github.com/finsight/identity-service/internal/service"
)

const testJWTSecret = "integration-test-secret-0123456789ab"

// codeCaptureNotifier records the last code sent per email so tests can
// complete OTP round trips without real delivery.
type codeCaptureNotifier struct {
	mu     sync.Mutex
	verify map[string]string
	reset  map[string]string
}

func newCodeCaptureNotifier() *codeCaptureNotifier {
	return &codeCaptureNotifier{verify: map[string]string{}, reset: map[string]string{}}
}

func (n *codeCaptureNotifier) SendVerificationCode(_ context.Context, email, code string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.verify[email] = code
	return nil
}

func (n *codeCaptureNotifier) SendResetCode(_ context.Context, email, code string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reset[email] = code
	return nil
}

func (n *codeCaptureNotifier) SendWelcome(context.Context, string, string) error { return nil }

func (n *codeCaptureNotifier) VerifyCode(email string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.verify[email]
}

func (n *codeCaptureNotifier) ResetCode(email string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.reset[email]
}

type testEnv struct {
	baseURL  string
	client   *http.Client
	users    repository.UserRepository
	notifier *codeCaptureNotifier
	cfg      *config.Config
}

func testConfig() *config.Config {
	return &config.Config{
		Env:                 "test",
		JWTSecret:           testJWTSecret,
		JWTValidity:         10 * time.Hour,
		CookieName:          "jwt",
		CookiePath:          "/",
		RoutePrefix:         "/api/v1",
		PublicPaths:         []string{"/login", "/register", "/send-otp", "/verify-otp", "/send-reset-otp", "/reset-password", "/logout", "/health"},
		OTPVerifyTTL:        24 * time.Hour,
		OTPResetTTL:         15 * time.Minute,
		PasswordMinLength:   8,
		AuthMaxFailedLogins: 5,
		AuthLockoutCooldown: 15 * time.Minute,
		CORSAllowedOrigins:  []string{"http://localhost:3000"},
		AuthRateLimitPerMin: 1000,
		APIRateLimitPerMin:  1000,
	}
}

func newTestEnv(t *testing.T, override func(cfg *config.Config)) *testEnv {
	t.Helper()

	cfg := testConfig()
	if override != nil {
		override(cfg)
	}

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&domain.User{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	users := repository.NewUserRepository(db)
	notifier := newCodeCaptureNotifier()

	jwtMgr, err := security.NewJWTManager(cfg.JWTSecret, cfg.JWTValidity)
	if err != nil {
		t.Fatalf("jwt manager: %v", err)
	}
	tokenSvc := service.NewTokenService(jwtMgr)
	otpSvc := service.NewOTPService(users, notifier, security.NewCryptoOTPSource(), cfg.OTPVerifyTTL, cfg.OTPResetTTL, logger)
	authSvc := service.NewAuthService(cfg, users, tokenSvc, otpSvc, notifier, logger)

	cookieMgr := security.NewCookieManager(cfg.CookieName, cfg.CookiePath, cfg.CookieDomain, cfg.CookieSecure)
	gate := middleware.AuthGate(middleware.AuthGateConfig{
		RoutePrefix: cfg.RoutePrefix,
		PublicPaths: cfg.PublicPaths,
		CookieName:  cfg.CookieName,
	}, users, tokenSvc, logger)

	h := router.NewRouter(router.Dependencies{
		AuthHandler:      handler.NewAuthHandler(authSvc, cookieMgr, cfg.JWTValidity),
		UserHandler:      handler.NewUserHandler(users),
		AuthGate:         router.AuthGateFunc(gate),
		CORSOrigins:      cfg.CORSAllowedOrigins,
		AuthRateLimitRPM: cfg.AuthRateLimitPerMin,
		APIRateLimitRPM:  cfg.APIRateLimitPerMin,
		RoutePrefix:      cfg.RoutePrefix,
	})

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookie jar: %v", err)
	}

	return &testEnv{
		baseURL:  srv.URL,
		client:   &http.Client{Jar: jar, Timeout: 5 * time.Second},
		users:    users,
		notifier: notifier,
		cfg:      cfg,
	}
}

func (e *testEnv) doJSON(t *testing.T, method, path string, body any, headers map[string]string) (*http.Response, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, e.baseURL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	var decoded map[string]any
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &decoded); err != nil {
			t.Fatalf("decode body %q: %v", raw, err)
		}
	}
	return resp, decoded
}

func (e *testEnv) register(t *testing.T, email, name, password string) {
	t.Helper()
	resp, body := e.doJSON(t, http.MethodPost, "/api/v1/register", map[string]string{
		"email": email, "name": name, "password": password,
	}, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register %s: status=%d body=%v", email, resp.StatusCode, body)
	}
}

func (e *testEnv) login(t *testing.T, email, password string) (*http.Response, map[string]any) {
	t.Helper()
	return e.doJSON(t, http.MethodPost, "/api/v1/login", map[string]string{
		"email": email, "password": password,
	}, nil)
}

func errCode(body map[string]any) string {
	errObj, ok := body["error"].(map[string]any)
	if !ok {
		return ""
	}
	code, _ := errObj["code"].(string)
	return code
}
