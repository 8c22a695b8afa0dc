package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"field-protection-service/internal/middleware"
)

// Handlers はルーターに登録するハンドラ群。
type Handlers struct {
	Keys     *KeyHandler
	Fields   *FieldHandler
	Entities *EntityHandler
	Access   *AccessHandler
	// Metrics はPrometheusのエクスポートハンドラ。nilなら/metricsを登録しない。
	Metrics http.Handler
}

// NewRouter はルーターを生成する。
func NewRouter(h Handlers) http.Handler {
	r := chi.NewRouter()

	// ミドルウェア
	r.Use(chimiddleware.RequestID)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if h.Metrics != nil {
		r.Handle("/metrics", h.Metrics)
	}

	// ルート定義
	r.Route("/v1", func(r chi.Router) {
		r.Route("/keys", func(r chi.Router) {
			r.Get("/", h.Keys.ListKeys)
			r.Get("/active", h.Keys.GetActiveKey)
			r.Post("/rotate", h.Keys.RotateKey)
		})
		r.Route("/fields", func(r chi.Router) {
			r.Post("/encrypt", h.Fields.Encrypt)
			r.Post("/decrypt", h.Fields.Decrypt)
			r.Post("/rotate", h.Fields.Rotate)
		})
		r.Route("/entities/{entity_type}", func(r chi.Router) {
			r.Get("/fields", h.Entities.GetFields)
			r.Post("/encrypt", h.Entities.Encrypt)
			r.Post("/decrypt", h.Entities.Decrypt)
			r.Post("/rotate", h.Entities.Rotate)
			r.Post("/mask", h.Entities.Mask)
		})
		r.Post("/mask", h.Entities.MaskValue)
		r.Post("/access/check", h.Access.Check)
		r.Get("/users/{user_id}/permissions", h.Access.GetPermissions)
	})

	return otelhttp.NewHandler(r, "field-protection-service",
		otelhttp.WithFilter(func(req *http.Request) bool {
			return req.URL.Path != "/healthz" && req.URL.Path != "/metrics"
		}),
	)
}
