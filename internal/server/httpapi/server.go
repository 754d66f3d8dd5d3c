// Package httpapi exposes the vault over HTTP: folder listings and file
// downloads on GET, command-style mutations on POST.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/dmitrijs2005/gophvault/internal/logging"
	"github.com/dmitrijs2005/gophvault/internal/server/auth"
	"github.com/dmitrijs2005/gophvault/internal/server/uploads"
	"github.com/dmitrijs2005/gophvault/internal/server/vault"
)

const (
	headerVaultKey     = common.KeyHeaderName
	headerAPIKey       = common.APIKeyHeaderName
	headerUploadID     = "X-Upload-Id"
	headerFileName     = "X-File-Name"
	headerContentRange = "Content-Range"

	// maxBodyBytes caps a single request, batch uploads included.
	maxBodyBytes = 1 << 30
	// maxMemoryBytes is how much of a multipart body is kept in memory
	// before spilling to temporary files.
	maxMemoryBytes = 32 << 20
)

// Server holds the collaborators the HTTP handlers call into.
type Server struct {
	store     *vault.Store
	uploads   *uploads.Manager
	auth      *auth.Cache
	uiMessage string
	logger    logging.Logger
}

// NewServer wires the handlers. authCache may be nil, in which case every
// request is anonymous.
func NewServer(store *vault.Store, up *uploads.Manager, authCache *auth.Cache, uiMessage string, logger logging.Logger) *Server {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Server{
		store:     store,
		uploads:   up,
		auth:      authCache,
		uiMessage: uiMessage,
		logger:    logger.With("module", "http"),
	}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.accessLog)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Minute))

	r.Get("/info", s.handleInfo)

	r.Route("/files", func(r chi.Router) {
		r.Use(s.authenticate)
		r.Get("/", s.handleGet)
		r.Get("/*", s.handleGet)
		r.Post("/", s.handlePost)
		r.Post("/*", s.handlePost)
	})

	return r
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, map[string]any{
		"extensions": vault.KnownExtensions,
		"message":    s.uiMessage,
	})
}
