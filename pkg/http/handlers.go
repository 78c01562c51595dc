package http

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"

	"shortlink/pkg/middleware"
	"shortlink/pkg/service"
	"shortlink/pkg/users"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type Handler struct {
	linkService *service.LinkService
	accounts    *users.KeycloakClient
	baseURL     string
}

func NewHandler(linkService *service.LinkService, accounts *users.KeycloakClient, baseURL string) *Handler {
	return &Handler{
		linkService: linkService,
		accounts:    accounts,
		baseURL:     strings.TrimRight(baseURL, "/"),
	}
}

type createLinkResponse struct {
	ID          uuid.UUID  `json:"id"`
	OriginalURL string     `json:"original_url"`
	ShortCode   string     `json:"short_code"`
	ShortURL    string     `json:"short_url"`
	OwnerID     *uuid.UUID `json:"owner_id,omitempty"`
}

func (h *Handler) CreateLink(w http.ResponseWriter, r *http.Request) {
	var req service.CreateLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	// Anonymous creation is allowed; a valid token makes the link owned.
	var ownerID *uuid.UUID
	if id := middleware.GetOwnerIDFromContext(r.Context()); id != uuid.Nil {
		ownerID = &id
	}

	link, err := h.linkService.CreateLink(r.Context(), &req, ownerID)
	if err != nil {
		if errors.Is(err, service.ErrInvalidURL) {
			http.Error(w, "invalid URL", http.StatusBadRequest)
			return
		}
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(createLinkResponse{
		ID:          link.ID,
		OriginalURL: link.OriginalURL,
		ShortCode:   link.ShortCode,
		ShortURL:    h.baseURL + "/r/" + link.ShortCode,
		OwnerID:     link.OwnerID,
	})
}

func (h *Handler) Redirect(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	target, err := h.linkService.Resolve(r.Context(), code, service.RequestMeta{
		UserAgent: r.UserAgent(),
		IPAddress: clientIP(r),
	})
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	http.Redirect(w, r, target, http.StatusFound)
}

func (h *Handler) ListLinks(w http.ResponseWriter, r *http.Request) {
	ownerID := middleware.GetOwnerIDFromContext(r.Context())
	if ownerID == uuid.Nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	links, err := h.linkService.ListLinks(r.Context(), ownerID)
	if err != nil {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(links)
}

func (h *Handler) UpdateLink(w http.ResponseWriter, r *http.Request) {
	ownerID := middleware.GetOwnerIDFromContext(r.Context())
	if ownerID == uuid.Nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	var req struct {
		OriginalURL string `json:"original_url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	link, err := h.linkService.UpdateLink(r.Context(), id, ownerID, req.OriginalURL)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidURL):
			http.Error(w, "invalid URL", http.StatusBadRequest)
		case errors.Is(err, service.ErrNotFound):
			http.Error(w, "not found", http.StatusNotFound)
		default:
			http.Error(w, "internal server error", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(link)
}

func (h *Handler) DeleteLink(w http.ResponseWriter, r *http.Request) {
	ownerID := middleware.GetOwnerIDFromContext(r.Context())
	if ownerID == uuid.Nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	if err := h.linkService.SoftDeleteLink(r.Context(), id, ownerID); err != nil {
		if errors.Is(err, service.ErrNotFound) {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username == "" || req.Password == "" {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	if err := h.accounts.CreateUser(r.Context(), req.Username, req.Password); err != nil {
		if errors.Is(err, users.ErrUserExists) {
			http.Error(w, "user already exists", http.StatusConflict)
			return
		}
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]string{"message": "user created"})
}

func (h *Handler) Signin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username == "" || req.Password == "" {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	tokens, err := h.accounts.SignIn(r.Context(), req.Username, req.Password)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(tokens)
}

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// SetupRoutes wires the management API. oauthMiddleware may be nil in
// tests; ownership checks then rely on whatever the context carries.
func SetupRoutes(r *chi.Mux, handler *Handler, oauthMiddleware *middleware.OAuthMiddleware) {
	r.Get("/health", handler.HealthCheck)

	r.Route("/v1", func(r chi.Router) {
		if oauthMiddleware != nil {
			r.With(oauthMiddleware.OptionalAuthenticate()).Post("/links", handler.CreateLink)
			r.With(oauthMiddleware.Authenticate()).Get("/links", handler.ListLinks)
			r.With(oauthMiddleware.Authenticate()).Put("/links/{id}", handler.UpdateLink)
			r.With(oauthMiddleware.Authenticate()).Delete("/links/{id}", handler.DeleteLink)
		} else {
			r.Post("/links", handler.CreateLink)
			r.Get("/links", handler.ListLinks)
			r.Put("/links/{id}", handler.UpdateLink)
			r.Delete("/links/{id}", handler.DeleteLink)
		}
	})

	if handler.accounts != nil {
		r.Post("/users/signup", handler.Signup)
		r.Post("/users/signin", handler.Signin)
	}

	r.Get("/r/{code}", handler.Redirect)
}

func clientIP(r *http.Request) string {
	// Behind a proxy the first forwarded address is the visitor.
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		if i := strings.IndexByte(forwarded, ','); i >= 0 {
			return strings.TrimSpace(forwarded[:i])
		}
		return strings.TrimSpace(forwarded)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
