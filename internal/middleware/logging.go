// Package middleware はHTTPミドルウェアと監査ログ出力を提供する。
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// 監査ログの結果。
const (
	ResultSuccess = "SUCCESS"
	ResultFailed  = "FAILED"
	ResultDenied  = "DENIED"
)

// WriteAuditLog は監査ログを出力する。リクエストIDはロガー側でcontextから付与される。
// subjectは操作対象（鍵識別子、エンティティ種別、ユーザーIDなど）、detailは補足情報。
// 平文や鍵素材を渡してはならない。
func WriteAuditLog(ctx context.Context, operation, subject, detail, result string) {
	slog.InfoContext(ctx, "audit",
		"audit", true,
		"operation", operation,
		"subject", subject,
		"detail", detail,
		"result", result,
		"timestamp", time.Now().UTC().Format(time.RFC3339),
	)
}

// RequestLogger はリクエストごとにslogでアクセスログを出力する。
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			level := slog.LevelInfo
			if ww.Status() >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			slog.Log(r.Context(), level, "http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
			)
		}()
		next.ServeHTTP(ww, r)
	})
}
