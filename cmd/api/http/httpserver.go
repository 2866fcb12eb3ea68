package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/library-service/cmd/api/book"
)

// RequestTimeout bounds every request context. Overridable through
// HTTP_REQUEST_TIMEOUT at startup.
var RequestTimeout = 30 * time.Second

type ServerConfig struct {
	Port int
}

func NewServer(config ServerConfig, h *BookHandler) *http.Server {
	r := chi.NewRouter()
	r.Use(withTimeout)
	r.Use(identity)

	r.Get("/ping", ping)

	r.Route("/books", func(r chi.Router) {
		r.Get("/", h.listBooks)
		r.With(requireRole(book.RoleAdmin, book.RoleLibrarian)).Post("/", h.createBook)

		r.With(requireUser).Get("/user/history", h.userHistory)
		r.With(requireRole(book.RoleLibrarian, book.RoleAdmin)).Get("/borrowings/recent", h.recentBorrowings)
		r.With(requireRole(book.RoleAdmin, book.RoleLibrarian)).Get("/stats/dashboard", h.dashboardStats)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.getBookById)
			r.With(requireRole(book.RoleAdmin, book.RoleLibrarian)).Put("/", h.updateBook)
			r.With(requireRole(book.RoleAdmin)).Delete("/", h.deleteBook)
			r.With(requireRole(book.RoleMember)).Post("/borrow", h.borrowBook)
			r.With(requireRole(book.RoleMember)).Post("/return", h.returnBook)
		})
	})

	server := http.Server{
		Addr:    fmt.Sprintf(":%d", config.Port),
		Handler: r,
	}
	return &server
}

/* Tests the http server connection. */
func ping(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func withTimeout(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), RequestTimeout)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type contextKey string

const (
	userIDKey   contextKey = "userID"
	userRoleKey contextKey = "userRole"
)

/* Reads the identity the gateway established. Authentication itself happens
upstream; this service only consumes X-User-ID and X-User-Role. */
func identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if rawID := r.Header.Get("X-User-ID"); rawID != "" {
			if id, err := uuid.Parse(rawID); err == nil {
				ctx = context.WithValue(ctx, userIDKey, id)
			}
		}
		if role := r.Header.Get("X-User-Role"); role != "" {
			ctx = context.WithValue(ctx, userRoleKey, role)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func userFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(userIDKey).(uuid.UUID)
	return id, ok
}

func roleFromContext(ctx context.Context) (string, bool) {
	role, ok := ctx.Value(userRoleKey).(string)
	return role, ok
}

func requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := userFromContext(r.Context()); !ok {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := userFromContext(r.Context()); !ok {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			role, ok := roleFromContext(r.Context())
			if !ok {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			for _, allowed := range roles {
				if role == allowed {
					next.ServeHTTP(w, r)
					return
				}
			}
			w.WriteHeader(http.StatusForbidden)
		})
	}
}
