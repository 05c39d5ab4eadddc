package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/larriantoniy/tg_session_web/internal/ports"
)

// recentLimit - сколько записей отдаёт /api/sessions.
const recentLimit = 50

type Deps struct {
	Store     ports.CredentialStore
	Index     ports.CredentialIndex
	Channel   http.Handler // /ws
	Restarter *Restarter
	Active    func() int

	// Countdown - сколько страница показывает QR до маски "истёк"
	Countdown time.Duration
}

type server struct {
	deps Deps
	log  *slog.Logger
	page []byte
}

func NewRouter(deps Deps, log *slog.Logger) (*mux.Router, error) {
	page, err := renderPage(deps.Countdown)
	if err != nil {
		return nil, err
	}
	s := &server{deps: deps, log: log, page: page}

	r := mux.NewRouter()
	r.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	r.Handle("/ws", deps.Channel).Methods(http.MethodGet)
	r.HandleFunc("/export/{filename}", s.handleExport).Methods(http.MethodGet)
	r.HandleFunc("/api/restart", s.handleRestart).Methods(http.MethodPost)
	r.HandleFunc("/api/sessions", s.handleSessions).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	return r, nil
}
