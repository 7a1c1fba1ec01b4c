// Package handler はプラットフォームレベルのエンドポイント用HTTPハンドラーを提供します。
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// checkTimeout は依存先ごとのチェックに許される最大時間です。
const checkTimeout = 2 * time.Second

// Check は依存先（DB、Redisなど）の疎通確認です。
type Check struct {
	Name  string
	Probe func(ctx context.Context) error
}

// NewHealth は /healthz エンドポイントのハンドラーを生成します。
// チェックが1つでも失敗した場合は503を返します。キャッシュは常に防止します。
func NewHealth(checks ...Check) gin.HandlerFunc {
	return func(c *gin.Context) {
		// 明示的にキャッシュを防止
		c.Header("Cache-Control", "no-store")

		// OPTIONSはチェックを実行しない
		if c.Request.Method == http.MethodOptions {
			c.Status(http.StatusNoContent)
			return
		}

		status, results := run(c.Request.Context(), checks)

		switch c.Request.Method {
		case http.MethodHead:
			c.Status(status)
		default:
			body := gin.H{"status": "ok"}
			if status != http.StatusOK {
				body["status"] = "unavailable"
			}
			if len(results) > 0 {
				body["checks"] = results
			}
			c.JSON(status, body)
		}
	}
}

func run(ctx context.Context, checks []Check) (int, map[string]string) {
	if len(checks) == 0 {
		return http.StatusOK, nil
	}
	status := http.StatusOK
	results := make(map[string]string, len(checks))
	for _, chk := range checks {
		cctx, cancel := context.WithTimeout(ctx, checkTimeout)
		err := chk.Probe(cctx)
		cancel()
		if err != nil {
			zap.L().Warn("health check failed", zap.String("check", chk.Name), zap.Error(err))
			results[chk.Name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		results[chk.Name] = "ok"
	}
	return status, results
}
