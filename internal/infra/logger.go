package infra

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/trace"

	"field-protection-service/config"
)

// ContextHandler はcontextからリクエストIDとトレース情報を取り出してログに付与するslogハンドラ。
// slog.InfoContext などcontext付きで出力したログのみが対象。
type ContextHandler struct {
	next        slog.Handler
	projectID   string
	otelEnabled bool
}

// NewContextHandler は新しいContextHandlerを生成する。
func NewContextHandler(next slog.Handler, cfg *config.Config) *ContextHandler {
	return &ContextHandler{
		next:        next,
		projectID:   cfg.GoogleCloudProject,
		otelEnabled: cfg.OtelEnabled,
	}
}

func (h *ContextHandler) with(next slog.Handler) *ContextHandler {
	clone := *h
	clone.next = next
	return &clone
}

// Enabled はハンドラがログを処理するかどうかを返す。
func (h *ContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

// Handle はリクエストIDとトレース情報を付与して次のハンドラに渡す。
func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if reqID := chimiddleware.GetReqID(ctx); reqID != "" {
		r.AddAttrs(slog.String("request_id", reqID))
	}
	if h.otelEnabled {
		h.addTraceAttrs(ctx, &r)
	}
	return h.next.Handle(ctx, r)
}

func (h *ContextHandler) addTraceAttrs(ctx context.Context, r *slog.Record) {
	spanCtx := trace.SpanContextFromContext(ctx)
	if !spanCtx.IsValid() {
		return
	}
	traceID := spanCtx.TraceID().String()
	spanID := spanCtx.SpanID().String()

	r.AddAttrs(
		slog.String("trace", traceID),
		slog.String("spanId", spanID),
		slog.Bool("traceSampled", spanCtx.IsSampled()),
	)
	// Google Cloud Logging連携用フィールド
	if h.projectID != "" {
		r.AddAttrs(
			slog.String("logging.googleapis.com/trace", "projects/"+h.projectID+"/traces/"+traceID),
			slog.String("logging.googleapis.com/spanId", spanID),
		)
	}
}

// WithAttrs は属性を追加した新しいハンドラを返す。
func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h.with(h.next.WithAttrs(attrs))
}

// WithGroup はグループを追加した新しいハンドラを返す。
func (h *ContextHandler) WithGroup(name string) slog.Handler {
	return h.with(h.next.WithGroup(name))
}

// redactedKeys はログに出力してはならない属性名。
var redactedKeys = map[string]struct{}{
	"key":           {},
	"key_material":  {},
	"plaintext":     {},
	"master_key":    {},
	"value":         {},
	"decrypted":     {},
	"encrypted_key": {},
}

// redactAttr は鍵素材や平文を含みうる属性を伏せ字に置き換える。
func redactAttr(_ []string, a slog.Attr) slog.Attr {
	if _, ok := redactedKeys[strings.ToLower(a.Key)]; ok {
		return slog.String(a.Key, "[REDACTED]")
	}
	return a
}

// ParseLevel はLOG_LEVELの文字列をslog.Levelに変換する。
func ParseLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger はJSON形式で、context情報付き・秘匿属性マスク付きのロガーを生成する。
func NewLogger(w io.Writer, cfg *config.Config, level slog.Level) *slog.Logger {
	jsonHandler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: redactAttr,
	})
	return slog.New(NewContextHandler(jsonHandler, cfg))
}

// SetupLogger はデフォルトロガーを設定する。
func SetupLogger(cfg *config.Config, level slog.Level) {
	slog.SetDefault(NewLogger(os.Stdout, cfg, level))
}
