package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/drone-fleet-maintenance/internal/config"
)

func serve(e *echo.Echo, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestHeaderIdentityAndRequireRole(t *testing.T) {
	e := echo.New()
	e.HTTPErrorHandler = HTTPErrorHandler
	e.Use(HeaderIdentity())
	e.GET("/pieces", func(c echo.Context) error {
		return c.String(http.StatusOK, UserID(c)+"|"+strings.Join(Roles(c), ","))
	}, RequireRole("admin", "maintainer"))

	cases := []struct {
		name   string
		roles  string
		status int
	}{
		{"no roles", "", http.StatusForbidden},
		{"other role", "pilot", http.StatusForbidden},
		{"admin", "admin", http.StatusOK},
		{"mixed case in list", "pilot, Maintainer", http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/pieces", nil)
			req.Header.Set(HeaderUserID, "u-42")
			if tc.roles != "" {
				req.Header.Set(HeaderUserRoles, tc.roles)
			}
			rec := serve(e, req)
			if rec.Code != tc.status {
				t.Fatalf("status = %d, want %d", rec.Code, tc.status)
			}
			if tc.status == http.StatusOK && !strings.HasPrefix(rec.Body.String(), "u-42|") {
				t.Errorf("identity not propagated: %q", rec.Body.String())
			}
			if tc.status == http.StatusForbidden {
				var body ErrorBody
				if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
					t.Fatalf("decode: %v", err)
				}
				if body.Status != http.StatusForbidden || body.Message == "" {
					t.Errorf("unexpected body %+v", body)
				}
				if _, err := time.Parse(time.RFC3339, body.Timestamp); err != nil {
					t.Errorf("timestamp %q: %v", body.Timestamp, err)
				}
			}
		})
	}
}

func TestUserIDPtrAnonymous(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	if UserIDPtr(c) != nil {
		t.Fatal("anonymous request has a user id")
	}
}

func TestHTTPErrorHandlerShape(t *testing.T) {
	e := echo.New()
	e.HTTPErrorHandler = HTTPErrorHandler
	e.GET("/boom", func(c echo.Context) error { return errors.New("boom") })

	rec := serve(e, httptest.NewRequest(http.MethodGet, "/missing", nil))
	var body ErrorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec.Code != http.StatusNotFound || body.Status != http.StatusNotFound {
		t.Fatalf("unknown route: %d %+v", rec.Code, body)
	}

	rec = serve(e, httptest.NewRequest(http.MethodGet, "/boom", nil))
	if rec.Code != http.StatusInternalServerError || strings.Contains(rec.Body.String(), "boom") {
		t.Fatalf("internal error leaked or wrong status: %d %s", rec.Code, rec.Body.String())
	}
}

func TestDisabledLimiterAndCachePassThrough(t *testing.T) {
	e := echo.New()
	e.Use(NewTokenBucket(config.RateLimitConfig{Enabled: true, Capacity: 1}, nil))
	e.Use(NewRedisCache(config.CacheConfig{Enabled: true, Methods: map[string]bool{"GET": true}}, nil))
	e.Use(InvalidateOnWrite(config.CacheConfig{Enabled: true}, nil))
	e.GET("/x", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) })
	for i := 0; i < 3; i++ {
		rec := serve(e, httptest.NewRequest(http.MethodGet, "/x", nil))
		if rec.Code != http.StatusNoContent || rec.Header().Get("X-Cache") != "" {
			t.Fatalf("request %d: %d cache=%q", i, rec.Code, rec.Header().Get("X-Cache"))
		}
	}
}

func TestBuildRateKey(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/drones", nil)
	req.Header.Set(echo.HeaderXRealIP, "10.0.0.9")
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath("/api/v1/drones")
	c.Set(ctxUserID, "u1")

	cases := map[string]string{
		"ip":            "rl:ip:10.0.0.9",
		"user_route":    "rl:user:u1:route:GET /api/v1/drones",
		"ip_user_route": "rl:ip:10.0.0.9:user:u1:route:GET /api/v1/drones",
		"nonsense":      "rl:ip:10.0.0.9:user:u1:route:GET /api/v1/drones",
	}
	for strategy, want := range cases {
		got := buildRateKey(config.RateLimitConfig{Prefix: "rl", KeyStrategy: strategy}, c)
		if got != want {
			t.Errorf("%s: got %q, want %q", strategy, got, want)
		}
	}
}

func TestCacheKeyDependsOnGenerationAndParams(t *testing.T) {
	e := echo.New()
	cfg := config.CacheConfig{Prefix: "pc", KeyStrategy: "route_query"}
	ctxFor := func(id string) echo.Context {
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/pieces/"+id, nil), httptest.NewRecorder())
		c.SetPath("/pieces/:id")
		c.SetParamNames("id")
		c.SetParamValues(id)
		return c
	}
	a, b := ctxFor("p1"), ctxFor("p2")
	if cacheKeyFrom(cfg, 0, a) == cacheKeyFrom(cfg, 0, b) {
		t.Error("different path params share a key")
	}
	if cacheKeyFrom(cfg, 0, a) == cacheKeyFrom(cfg, 1, a) {
		t.Error("generation bump did not change the key")
	}
	if !strings.HasPrefix(cacheKeyFrom(cfg, 3, a), "pc:3:") {
		t.Error("key not namespaced by prefix and generation")
	}
}

func TestPayloadEncoding(t *testing.T) {
	hdr := http.Header{"Content-Type": {"application/json"}}
	bs, err := encodePayload(http.StatusOK, hdr, []byte(`{"a":1}`))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	status, got, body, ok := decodePayload(bs)
	if !ok || status != http.StatusOK || got.Get("Content-Type") != "application/json" || string(body) != `{"a":1}` {
		t.Fatalf("decode = %d %v %q %v", status, got, body, ok)
	}
	if _, _, _, ok := decodePayload([]byte{0, 0}); ok {
		t.Fatal("short payload accepted")
	}
}
