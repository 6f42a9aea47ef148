package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

type Handlers struct {
	Credential *CredentialHandler
	Upload     *UploadHandler
	Quota      *StorageQuotaHandler
	Admin      *AdminHandler
}

func NewRouter(h Handlers, allowedOrigins []string) *chi.Mux {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/cos-token", h.Credential.GetToken)

		r.Route("/upload", func(r chi.Router) {
			r.Get("/", h.Upload.ListUploads)
			r.Post("/", h.Upload.RecordUpload)
			r.Delete("/", h.Upload.DeleteUpload)
			r.Get("/{id}", h.Upload.GetUpload)
		})

		r.Route("/quota", func(r chi.Router) {
			r.Get("/", h.Quota.GetQuotaInfo)
			r.Put("/limit", h.Quota.UpdateQuotaLimit)
			r.Post("/reconcile", h.Quota.Reconcile)
		})

		if h.Admin != nil {
			r.Post("/admin/sweep", h.Admin.Sweep)
		}
	})

	return r
}
