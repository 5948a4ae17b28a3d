package auth

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

type loginRequest struct {
	Password string `json:"password" binding:"required"`
}

// Login は /auth/login のハンドラーです。
func (m *Manager) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "INVALID_INPUT",
			"message": "password を JSON で送ってください",
		})
		return
	}

	ctx := c.Request.Context()
	ip := c.ClientIP()

	retryAfter, err := m.limiter.Check(ctx, ip)
	if err != nil {
		m.logger.Printf("auth: login throttle check failed ip=%s: %v", ip, err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "INTERNAL_ERROR",
			"message": "しばらくしてから再度お試しください",
		})
		return
	}
	if retryAfter > 0 {
		// Retry-After は秒数で返す（端数は切り上げ）
		seconds := int64((retryAfter + time.Second - 1) / time.Second)
		c.Header("Retry-After", strconv.FormatInt(seconds, 10))
		c.JSON(http.StatusTooManyRequests, gin.H{
			"code":    "TOO_MANY_ATTEMPTS",
			"message": "一定時間後に再度お試しください",
		})
		return
	}

	ok, err := m.verifier.VerifyPassword(req.Password)
	if err != nil {
		// ハッシュ比較自体の失敗はログイン失敗として扱い、詳細は返さない
		m.logger.Printf("auth: password verification error: %v", err)
	}
	if !ok {
		payload := gin.H{
			"code":    "INVALID_CREDENTIALS",
			"message": "パスワードが正しくありません",
		}
		// 試行回数を記録できなかった場合は残り回数を返さない
		if remaining, err := m.limiter.Fail(ctx, ip); err != nil {
			m.logger.Printf("auth: failed to record login failure ip=%s: %v", ip, err)
		} else {
			payload["remainingAttempts"] = remaining
		}
		m.record(c, false)
		c.JSON(http.StatusUnauthorized, payload)
		return
	}

	if err := m.limiter.Reset(ctx, ip); err != nil {
		m.logger.Printf("auth: failed to reset login attempts ip=%s: %v", ip, err)
	}

	token, claims, err := m.codec.issue()
	if err != nil {
		m.logger.Printf("auth: failed to issue session token: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "TOKEN_GENERATION_FAILED",
			"message": "セッションの発行に失敗しました",
		})
		return
	}

	http.SetCookie(c.Writer, m.cookie.Cookie(token))
	c.Header(CSRFHeader, m.codec.CSRFToken(claims))
	m.record(c, true)
	c.Status(http.StatusNoContent)
}

// Logout は /auth/logout のハンドラーです。RequireSession と VerifyCSRF の後ろで使います。
// Cookie を削除するだけで、トークン自体は期限まで有効なままです。
func (m *Manager) Logout(c *gin.Context) {
	http.SetCookie(c.Writer, m.cookie.Expired())
	c.Status(http.StatusNoContent)
}

// Session は現在のセッション情報を返すハンドラーです。RequireSession の後ろで使います。
func (m *Manager) Session(c *gin.Context) {
	claims, ok := ClaimsFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{
			"code":    "UNAUTHORIZED",
			"message": "ログインが必要です",
		})
		return
	}

	// リロード後もフロントエンドが CSRF トークンを取り直せるように返す
	c.Header(CSRFHeader, m.codec.CSRFToken(claims))

	payload := gin.H{
		"authenticated": claims.Authenticated,
	}
	if claims.IssuedAt != nil {
		payload["issuedAt"] = claims.IssuedAt.Time.UTC()
	}
	if claims.ExpiresAt != nil {
		payload["expiresAt"] = claims.ExpiresAt.Time.UTC()
	}
	c.JSON(http.StatusOK, payload)
}

func (m *Manager) record(c *gin.Context, succeeded bool) {
	m.recorder.RecordAttempt(c.Request.Context(), Attempt{
		IP:         c.ClientIP(),
		UserAgent:  c.Request.UserAgent(),
		Succeeded:  succeeded,
		OccurredAt: m.now().UTC(),
	})
}
