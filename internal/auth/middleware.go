package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RequireSession はセッション Cookie を検証するミドルウェアを返します。
// 失敗理由（未ログイン・期限切れ・改ざん）はクライアントに区別して返しません。
func (m *Manager) RequireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := c.Cookie(m.cookie.Name)
		if err != nil || token == "" {
			abortUnauthorized(c)
			return
		}

		claims, ok := m.codec.Verify(token)
		if !ok {
			abortUnauthorized(c)
			return
		}

		c.Set(ContextClaimsKey, claims)
		c.Next()
	}
}

// ClaimsFromContext は RequireSession が保存したクレームを取り出します。
func ClaimsFromContext(c *gin.Context) (Claims, bool) {
	v, ok := c.Get(ContextClaimsKey)
	if !ok {
		return Claims{}, false
	}
	claims, ok := v.(Claims)
	return claims, ok
}

func abortUnauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"code":    "UNAUTHORIZED",
		"message": "ログインが必要です",
	})
}

// VerifyCSRF は X-CSRF-Token ヘッダーを検証するミドルウェアです。RequireSession の後ろで使います。
func (m *Manager) VerifyCSRF() gin.HandlerFunc {
	return func(c *gin.Context) {
		if isSafeMethod(c.Request.Method) {
			c.Next()
			return
		}

		claims, ok := ClaimsFromContext(c)
		if !ok {
			abortUnauthorized(c)
			return
		}

		received := c.GetHeader(CSRFHeader)
		if received == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"code":    "CSRF_MISSING",
				"message": "CSRF トークンが設定されていません",
			})
			return
		}
		if !m.codec.VerifyCSRF(claims, received) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"code":    "CSRF_INVALID",
				"message": "CSRF トークンが一致しません",
			})
			return
		}

		c.Next()
	}
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	default:
		return false
	}
}
