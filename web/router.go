// Package web maps the application URLs onto their handlers.
package web

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/doujins-org/plankit/auth"
	"github.com/doujins-org/plankit/menu"
	"github.com/doujins-org/plankit/reportmanager"
)

// UserHeader carries the username of the authenticated user, set by the
// proxy in front of the server.
const UserHeader = "X-Plankit-User"

type Principals interface {
	Principal(ctx context.Context, username string) (*auth.Principal, error)
}

type Reports interface {
	List(ctx context.Context, userID int64) ([]reportmanager.Report, error)
	Get(ctx context.Context, id int64) (*reportmanager.Report, error)
	Create(ctx context.Context, r *reportmanager.Report) error
	Update(ctx context.Context, r *reportmanager.Report) error
	Schema(ctx context.Context) ([]reportmanager.Table, error)
}

type SQLRunner interface {
	Run(ctx context.Context, sql string) (*reportmanager.Result, error)
}

// Server holds the collaborators of the handlers.
type Server struct {
	Menu         *menu.Menu
	Principals   Principals
	Reports      Reports
	Runner       SQLRunner
	UploadFolder string
	Logger       *zap.Logger
}

// Router returns the application routes.
func (s *Server) Router() *mux.Router {
	if s.Logger == nil {
		s.Logger = zap.NewNop()
	}
	r := mux.NewRouter()
	r.Use(s.logRequests, s.authenticate)

	r.HandleFunc("/reportmanager/schema/", s.schema).Methods(http.MethodGet)
	r.HandleFunc("/reportmanager/{id:[0-9]+}/", s.getReport).Methods(http.MethodGet)
	r.HandleFunc("/reportmanager/{id:[0-9]+}/", s.updateReport).Methods(http.MethodPost)
	r.HandleFunc("/reportmanager/", s.newReport).Methods(http.MethodGet)
	r.HandleFunc("/reportmanager/", s.createReport).Methods(http.MethodPost)
	r.HandleFunc("/data/reportmanager/sqlreport/add/", s.newReport).Methods(http.MethodGet)
	r.HandleFunc("/data/reportmanager/sqlreport/add/", s.createReport).Methods(http.MethodPost)
	r.HandleFunc("/data/reportmanager/sqlreport/", s.listReports).Methods(http.MethodGet)

	r.HandleFunc("/menu/", s.menu).Methods(http.MethodGet)

	r.HandleFunc("/execute/export/", s.listExports).Methods(http.MethodGet)
	r.HandleFunc("/execute/export/{filename}", s.downloadExport).Methods(http.MethodGet)
	return r
}

type principalKey struct{}

func principalFrom(ctx context.Context) *auth.Principal {
	p, _ := ctx.Value(principalKey{}).(*auth.Principal)
	return p
}

// authenticate resolves the user of the request; anonymous requests are
// refused.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username := r.Header.Get(UserHeader)
		if username == "" || s.Principals == nil {
			http.Error(w, "Authentication required", http.StatusUnauthorized)
			return
		}
		p, err := s.Principals.Principal(r.Context(), username)
		if err != nil || !p.User.IsActive {
			http.Error(w, "Authentication required", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), principalKey{}, p)))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.Logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("elapsed", time.Since(start)),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
