package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"intellisurf/internal/pkg/ctxutil"
	httputil "intellisurf/internal/pkg/http"
	"intellisurf/internal/pkg/jwt"
)

// AuthOptions 认证中间件参数
type AuthOptions struct {
	DevMode   bool   // 未携带 token 时注入开发用户
	DevUserID string // 开发用户ID
}

// Auth JWT 认证中间件
// 从 Authorization header 中提取 Bearer token，验证后注入 Principal 到 context
func Auth(jwtUtil *jwt.JWT, opts AuthOptions) gin.HandlerFunc {
	if opts.DevUserID == "" {
		opts.DevUserID = "dev-user"
	}

	return func(c *gin.Context) {
		// 从 Header 获取 Token
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			if opts.DevMode {
				setPrincipal(c, ctxutil.Principal{UserID: opts.DevUserID, Name: "Developer", Provider: "dev"})
				c.Next()
				return
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, httputil.NewErrorResponse(httputil.CodeUnauthorized, "未授权"))
			return
		}

		// 提取 Token（Bearer {token}）
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, httputil.NewErrorResponse(httputil.CodeUnauthorized, "Invalid authorization header"))
			return
		}

		// 验证 Token
		claims, err := jwtUtil.ValidateToken(parts[1])
		if err != nil {
			message := "Token无效"
			if errors.Is(err, jwt.ErrExpiredToken) {
				message = "Token已过期"
			}
			log.Debug().Err(err).Str("path", c.Request.URL.Path).Msg("token validation failed")
			c.AbortWithStatusJSON(http.StatusUnauthorized, httputil.NewErrorResponse(httputil.CodeInvalidToken, message))
			return
		}

		setPrincipal(c, ctxutil.Principal{
			UserID:   claims.Identity(),
			Email:    claims.Email,
			Name:     claims.Name,
			Provider: "jwt",
		})
		c.Next()
	}
}

func setPrincipal(c *gin.Context, p ctxutil.Principal) {
	ctx := ctxutil.WithPrincipal(c.Request.Context(), p)
	c.Request = c.Request.WithContext(ctx)
	c.Set("user_id", p.UserID)
}
