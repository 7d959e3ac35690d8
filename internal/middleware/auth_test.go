package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "middleware-test-secret"

func newEngine(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handlers = append(handlers, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"user":    GetUserID(c),
			"role":    GetUserRole(c),
			"company": GetCompanyID(c),
			"actor":   CurrentActor(c).Name,
		})
	})
	r.GET("/probe", handlers...)
	return r
}

func signed(t *testing.T, claims Claims, ttl time.Duration) string {
	t.Helper()
	tok, err := NewToken(secret, claims, ttl)
	require.NoError(t, err)
	return tok
}

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuth(t *testing.T) {
	r := newEngine(Auth(secret))
	valid := signed(t, Claims{UserID: "u-1", Name: "Ravi", Role: RoleSupervisor, CompanyID: "c-1"}, time.Hour)

	tests := []struct {
		name   string
		header string
		query  string
		want   int
	}{
		{name: "bearer token", header: "Bearer " + valid, want: http.StatusOK},
		{name: "query token", query: "?token=" + valid, want: http.StatusOK},
		{name: "missing", want: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic " + valid, want: http.StatusUnauthorized},
		{name: "garbage", header: "Bearer abc.def.ghi", want: http.StatusUnauthorized},
		{name: "expired", header: "Bearer " + signed(t, Claims{UserID: "u-1"}, -time.Minute), want: http.StatusUnauthorized},
		{name: "no user", header: "Bearer " + signed(t, Claims{CompanyID: "c-1"}, time.Hour), want: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/probe"+tt.query, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := serve(r, req)
			assert.Equal(t, tt.want, w.Code)
			if tt.want == http.StatusOK {
				assert.JSONEq(t, `{"user":"u-1","role":"supervisor","company":"","actor":"Ravi"}`, w.Body.String())
			} else {
				assert.Contains(t, w.Body.String(), `"success":false`)
			}
		})
	}
}

func TestAuth_RejectsOtherSecret(t *testing.T) {
	r := newEngine(Auth(secret))
	tok, err := NewToken("someone-else", Claims{UserID: "u-1"}, time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	req.Header.Set("Authorization", "Bearer "+tok)

	assert.Equal(t, http.StatusUnauthorized, serve(r, req).Code)
}

func TestTenant(t *testing.T) {
	r := newEngine(Auth(secret), Tenant())
	withCompany := signed(t, Claims{UserID: "u-1", CompanyID: "c-1"}, time.Hour)
	withoutCompany := signed(t, Claims{UserID: "u-2", Role: RoleSupervisor}, time.Hour)
	adminWithoutCompany := signed(t, Claims{UserID: "u-3", Role: RoleAdmin}, time.Hour)

	tests := []struct {
		name        string
		token       string
		header      string
		want        int
		wantCompany string
	}{
		{name: "from token", token: withCompany, want: http.StatusOK, wantCompany: "c-1"},
		{name: "header repeats token", token: withCompany, header: "c-1", want: http.StatusOK, wantCompany: "c-1"},
		{name: "header contradicts token", token: withCompany, header: "c-2", want: http.StatusForbidden},
		{name: "header without company claim", token: withoutCompany, header: "c-9", want: http.StatusForbidden},
		{name: "no company claim or header", token: withoutCompany, want: http.StatusForbidden},
		{name: "admin picks company by header", token: adminWithoutCompany, header: "c-9", want: http.StatusOK, wantCompany: "c-9"},
		{name: "admin without header", token: adminWithoutCompany, want: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/probe", nil)
			req.Header.Set("Authorization", "Bearer "+tt.token)
			if tt.header != "" {
				req.Header.Set(HeaderCompanyID, tt.header)
			}
			w := serve(r, req)
			require.Equal(t, tt.want, w.Code)
			if tt.wantCompany != "" {
				assert.Contains(t, w.Body.String(), `"company":"`+tt.wantCompany+`"`)
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	r := newEngine(Auth(secret), RequireRole(RoleAdmin, RoleSupervisor))

	for role, want := range map[string]int{
		RoleAdmin:      http.StatusOK,
		RoleSupervisor: http.StatusOK,
		RoleOperator:   http.StatusForbidden,
		RoleViewer:     http.StatusForbidden,
	} {
		t.Run(role, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/probe", nil)
			req.Header.Set("Authorization", "Bearer "+signed(t, Claims{UserID: "u-1", Role: role}, time.Hour))
			assert.Equal(t, want, serve(r, req).Code)
		})
	}
}

func TestCurrentRequest(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPatch, "/api/v1/pre-processing/x/status?dry=1", nil)
	c.Request.Header.Set("User-Agent", "floor-tablet/2.1")
	c.Request.Header.Set("X-Session-ID", "sess-42")

	info := CurrentRequest(c)

	assert.Equal(t, http.MethodPatch, info.Method)
	assert.Equal(t, "/api/v1/pre-processing/x/status?dry=1", info.URL)
	assert.Equal(t, "floor-tablet/2.1", info.UserAgent)
	assert.Equal(t, "sess-42", info.SessionID)
	assert.Equal(t, "192.0.2.1", info.IPAddress)
}
