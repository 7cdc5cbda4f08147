package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/example/poster-shop/internal/auth"
	"github.com/example/poster-shop/internal/session"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestJWTService() *auth.JWTService {
	return auth.NewJWTService("test-secret-key-for-testing-purposes", 15*time.Minute, 7*24*time.Hour)
}

// newAdminRouter mounts AdminAuth in front of a handler that echoes the claims
func newAdminRouter(jwtService *auth.JWTService) *gin.Engine {
	r := gin.New()
	r.GET("/admin", AdminAuth(jwtService), func(c *gin.Context) {
		claims, ok := GetAdmin(c)
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.String(http.StatusOK, claims.Username)
	})
	return r
}

// ============================================
// AdminAuth Tests
// ============================================

func TestAdminAuth(t *testing.T) {
	jwtService := newTestJWTService()
	adminToken, _, err := jwtService.GenerateAccessToken("curator", auth.RoleAdmin)
	require.NoError(t, err)
	viewerToken, _, err := jwtService.GenerateAccessToken("viewer", "viewer")
	require.NoError(t, err)
	refreshToken, _, err := jwtService.GenerateRefreshToken("curator")
	require.NoError(t, err)

	tests := []struct {
		name       string
		prepare    func(req *http.Request)
		wantStatus int
		wantBody   string
	}{
		{
			name:       "bearer token",
			prepare:    func(req *http.Request) { req.Header.Set("Authorization", "Bearer "+adminToken) },
			wantStatus: http.StatusOK,
			wantBody:   "curator",
		},
		{
			name:       "cookie token",
			prepare:    func(req *http.Request) { req.AddCookie(&http.Cookie{Name: AdminCookie, Value: adminToken}) },
			wantStatus: http.StatusOK,
			wantBody:   "curator",
		},
		{
			name:       "no token",
			prepare:    func(req *http.Request) {},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "garbage token",
			prepare:    func(req *http.Request) { req.Header.Set("Authorization", "Bearer not.a.token") },
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "refresh token is not an access token",
			prepare:    func(req *http.Request) { req.Header.Set("Authorization", "Bearer "+refreshToken) },
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "non-admin role",
			prepare:    func(req *http.Request) { req.Header.Set("Authorization", "Bearer "+viewerToken) },
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "basic auth header",
			prepare:    func(req *http.Request) { req.Header.Set("Authorization", "Basic Y3VyYXRvcjpwdw==") },
			wantStatus: http.StatusUnauthorized,
		},
	}

	router := newAdminRouter(jwtService)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin", nil)
			tt.prepare(req)
			rec := httptest.NewRecorder()

			router.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantBody != "" {
				assert.Equal(t, tt.wantBody, rec.Body.String())
			}
		})
	}
}

func TestAdminAuth_TokenFromOtherSecret(t *testing.T) {
	other := auth.NewJWTService("another-secret-key-for-other-tests", 15*time.Minute, time.Hour)
	token, _, err := other.GenerateAccessToken("curator", auth.RoleAdmin)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	newAdminRouter(newTestJWTService()).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestExtractToken_CookieWins(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: AdminCookie, Value: "from-cookie"})
	req.Header.Set("Authorization", "Bearer from-header")

	assert.Equal(t, "from-cookie", ExtractToken(req))
}

// ============================================
// Session Tests
// ============================================

func newSessionRouter() *gin.Engine {
	r := gin.New()
	r.Use(Session(time.Hour, false))
	r.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, SessionID(c))
	})
	return r
}

func sessionCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == session.StorageKey && c.MaxAge > 0 {
			return c
		}
	}
	return nil
}

func TestSession_IssuesCookie(t *testing.T) {
	router := newSessionRouter()
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	cookie := sessionCookie(rec)
	require.NotNil(t, cookie)
	assert.Equal(t, cookie.Value, rec.Body.String())
	assert.True(t, session.Valid(cookie.Value))
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, 3600, cookie.MaxAge)
}

func TestSession_ReusesCookie(t *testing.T) {
	router := newSessionRouter()
	id := session.NewID(time.Now())
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: session.StorageKey, Value: id})
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, id, rec.Body.String())
	assert.Nil(t, sessionCookie(rec))
}

func TestSession_ReplacesTamperedCookie(t *testing.T) {
	router := newSessionRouter()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: session.StorageKey, Value: "../../etc/passwd"})
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	cookie := sessionCookie(rec)
	require.NotNil(t, cookie)
	assert.True(t, session.Valid(rec.Body.String()))
	assert.Equal(t, cookie.Value, rec.Body.String())
}

func TestSessionID_OutsideMiddleware(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())

	assert.Empty(t, SessionID(c))
}
