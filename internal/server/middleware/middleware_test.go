package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	. "github.com/smartystreets/goconvey/convey"

	"intellisurf/internal/pkg/ctxutil"
	"intellisurf/internal/pkg/jwt"
)

func whoami(c *gin.Context) {
	p, ok := ctxutil.GetPrincipal(c.Request.Context())
	if !ok {
		c.String(http.StatusOK, "anonymous")
		return
	}
	c.String(http.StatusOK, p.Provider+":"+p.UserID)
}

func serve(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)

	Convey("JWT 认证", t, func() {
		jwtUtil := jwt.NewJWT("test-secret", time.Hour)

		r := gin.New()
		r.Use(Auth(jwtUtil, AuthOptions{}))
		r.GET("/me", whoami)

		Convey("有效 token 注入 Principal", func() {
			token, err := jwtUtil.GenerateToken("u42", "u42@example.com", "User")
			So(err, ShouldBeNil)
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			req.Header.Set("Authorization", "Bearer "+token)

			w := serve(r, req)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldEqual, "jwt:u42")
		})

		Convey("缺少 token 返回 401", func() {
			w := serve(r, httptest.NewRequest(http.MethodGet, "/me", nil))
			So(w.Code, ShouldEqual, http.StatusUnauthorized)
		})

		Convey("格式错误返回 401", func() {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			req.Header.Set("Authorization", "Token abc")
			So(serve(r, req).Code, ShouldEqual, http.StatusUnauthorized)
		})

		Convey("其他密钥签发的 token 返回 401", func() {
			token, err := jwt.NewJWT("other-secret", time.Hour).GenerateToken("u42", "", "")
			So(err, ShouldBeNil)
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			req.Header.Set("Authorization", "Bearer "+token)
			w := serve(r, req)
			So(w.Code, ShouldEqual, http.StatusUnauthorized)
			So(w.Body.String(), ShouldContainSubstring, "40102")
		})

		Convey("开发模式下未携带 token 注入开发用户", func() {
			dev := gin.New()
			dev.Use(Auth(jwtUtil, AuthOptions{DevMode: true, DevUserID: "dev-1"}))
			dev.GET("/me", whoami)

			w := serve(dev, httptest.NewRequest(http.MethodGet, "/me", nil))
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldEqual, "dev:dev-1")

			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			req.Header.Set("Authorization", "Bearer garbage")
			So(serve(dev, req).Code, ShouldEqual, http.StatusUnauthorized)
		})
	})
}

func TestRequestIDAndCORS(t *testing.T) {
	gin.SetMode(gin.TestMode)

	Convey("请求ID与跨域", t, func() {
		r := gin.New()
		r.Use(RequestID(), CORS())
		r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, c.GetString("request_id")) })

		Convey("生成请求ID", func() {
			w := serve(r, httptest.NewRequest(http.MethodGet, "/ping", nil))
			So(w.Header().Get(RequestIDHeader), ShouldNotBeEmpty)
			So(w.Body.String(), ShouldEqual, w.Header().Get(RequestIDHeader))
			So(w.Header().Get("Access-Control-Allow-Origin"), ShouldEqual, "*")
		})

		Convey("沿用调用方的请求ID", func() {
			req := httptest.NewRequest(http.MethodGet, "/ping", nil)
			req.Header.Set(RequestIDHeader, "req-123")
			So(serve(r, req).Body.String(), ShouldEqual, "req-123")
		})

		Convey("预检请求直接返回", func() {
			w := serve(r, httptest.NewRequest(http.MethodOptions, "/ping", nil))
			So(w.Code, ShouldEqual, http.StatusNoContent)
		})
	})
}

func TestRecovery(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(Recovery())
	r.GET("/panic", func(c *gin.Context) { panic("boom") })

	w := serve(r, httptest.NewRequest(http.MethodGet, "/panic", nil))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
}
