package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"mailbridge/internal/admin"
	"mailbridge/internal/domain"
	"mailbridge/internal/redisstore"
	"mailbridge/internal/routing"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"
)

// Handler exposes the stored messages and routing configuration over HTTP,
// mirroring the bot command surface for dashboards and scripts.
type Handler struct {
	store  *redisstore.Store
	routes *routing.Config
	auth   *admin.AuthService
	log    *logrus.Entry
}

func New(store *redisstore.Store, routes *routing.Config, auth *admin.AuthService, log *logrus.Logger) *Handler {
	return &Handler{
		store:  store,
		routes: routes,
		auth:   auth,
		log:    log.WithField("component", "api"),
	}
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})
	r.Use(c.Handler)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/admin/login", h.login)

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware)

			r.Get("/messages", h.listMessages)
			r.Get("/messages/{id}", h.getMessage)
			r.Delete("/messages/{id}", h.deleteMessage)
			r.Get("/status", h.status)
			r.Post("/routing/target", h.setTarget)
			r.Post("/routing/mapping", h.setMapping)
		})
	})

	return r
}

func (h *Handler) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Missing authorization header", http.StatusUnauthorized)
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			http.Error(w, "Invalid authorization header format", http.StatusUnauthorized)
			return
		}

		if _, err := h.auth.ValidateToken(parts[1]); err != nil {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.auth.ValidatePassword(req.Password); err != nil {
		http.Error(w, "Invalid password", http.StatusUnauthorized)
		return
	}

	token, err := h.auth.GenerateToken()
	if err != nil {
		http.Error(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]string{"token": token})
}

func (h *Handler) listMessages(w http.ResponseWriter, r *http.Request) {
	name := strings.ToLower(r.URL.Query().Get("domain"))

	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if i, err := strconv.Atoi(l); err == nil && i > 0 && i <= 100 {
			limit = i
		}
	}
	offset := 0
	if o := r.URL.Query().Get("offset"); o != "" {
		if i, err := strconv.Atoi(o); err == nil && i >= 0 {
			offset = i
		}
	}

	records, err := h.store.Search(r.Context(), name, limit, offset)
	if err != nil {
		h.log.WithError(err).Error("message search failed")
		http.Error(w, "Failed to fetch messages", http.StatusInternalServerError)
		return
	}

	metas := make([]*domain.Metadata, 0, len(records))
	for _, rec := range records {
		metas = append(metas, rec.Metadata)
	}
	writeJSON(w, map[string]interface{}{
		"messages": metas,
		"limit":    limit,
		"offset":   offset,
	})
}

func (h *Handler) getMessage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	rec, err := h.store.Retrieve(r.Context(), id)
	if errors.Is(err, redisstore.ErrNotFound) {
		http.Error(w, "Message not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.log.WithError(err).WithField("id", id).Error("message retrieve failed")
		http.Error(w, "Failed to fetch message", http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]interface{}{
		"metadata":  rec.Metadata,
		"structure": rec.Structure,
		"raw":       string(rec.Raw),
	})
}

func (h *Handler) deleteMessage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.store.Delete(r.Context(), id); err != nil {
		h.log.WithError(err).WithField("id", id).Error("message delete failed")
		http.Error(w, "Failed to delete message", http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]string{"status": "deleted"})
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	messages, _ := h.store.CountMessages(ctx)
	domains, _ := h.store.CountDomains(ctx)
	last24h, _ := h.store.MessagesSince(ctx, time.Now().Add(-24*time.Hour))
	active, mapping := h.routes.Snapshot()

	writeJSON(w, map[string]interface{}{
		"messages":        messages,
		"domains":         domains,
		"messagesLast24h": last24h,
		"activeTarget":    active.String(),
		"domainMappings":  mapping,
	})
}

func (h *Handler) setTarget(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Kind   string `json:"kind"`
		ChatID int64  `json:"chat_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	target := domain.Target{Kind: domain.TargetKind(strings.ToLower(req.Kind)), ChatID: req.ChatID}
	if err := h.routes.SetActive(target); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, map[string]string{"activeTarget": target.String()})
}

func (h *Handler) setMapping(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Domain string `json:"domain"`
		ChatID int64  `json:"chat_id"`
		Delete bool   `json:"delete,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	name := strings.ToLower(strings.TrimSpace(req.Domain))
	if name == "" {
		http.Error(w, "Missing domain", http.StatusBadRequest)
		return
	}

	if req.Delete {
		h.routes.DeleteMapping(name)
		writeJSON(w, map[string]string{"status": "deleted", "domain": name})
		return
	}

	if req.ChatID == 0 {
		http.Error(w, "Missing chat_id", http.StatusBadRequest)
		return
	}
	h.routes.SetMapping(name, req.ChatID)
	writeJSON(w, map[string]interface{}{"domain": name, "chat_id": req.ChatID})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
