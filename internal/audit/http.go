package audit

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

const (
	defaultRecentLimit = 50
	maxRecentLimit     = 200
)

// EventReader は監査レコードの読み出しを表します。
type EventReader interface {
	Recent(ctx context.Context, limit int) ([]Event, error)
}

// RecentHandler は直近のログイン試行を返すハンドラーです。
func RecentHandler(reader EventReader) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := defaultRecentLimit
		if raw := c.Query("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				c.JSON(http.StatusBadRequest, gin.H{
					"code":    "INVALID_INPUT",
					"message": "limit には正の整数を指定してください",
				})
				return
			}
			limit = min(n, maxRecentLimit)
		}

		events, err := reader.Recent(c.Request.Context(), limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"code":    "INTERNAL_ERROR",
				"message": "ログイン履歴の取得に失敗しました",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"events": events,
		})
	}
}
