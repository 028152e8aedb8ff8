// Package server exposes boost over HTTP: document management, command
// triggers, the journal, a websocket channel bridge for remote
// controllers, and the same actions as MCP tools.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/booster/channel"
	"github.com/hazyhaar/booster/controller"
	"github.com/hazyhaar/booster/host"
	"github.com/hazyhaar/booster/idgen"
	"github.com/hazyhaar/booster/journal"
)

// Options configure a Server.
type Options struct {
	Logger     *slog.Logger
	Host       *host.Host
	Controller *controller.Controller
	// Journal is optional; without it the journal endpoint answers 404.
	Journal *journal.Journal
	// AuthUser enables basic auth; AuthHash is the bcrypt hash of the
	// password.
	AuthUser string
	AuthHash string
	// AllowedOrigins are host patterns accepted for websocket upgrades
	// from browsers. Same-origin is always accepted.
	AllowedOrigins []string
	Version        string
}

// Server is the HTTP surface.
type Server struct {
	opts   Options
	logger *slog.Logger
	mcp    *mcp.Server
}

// New creates a Server.
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}
	s := &Server{opts: opts, logger: opts.Logger}
	s.mcp = mcp.NewServer(&mcp.Implementation{Name: "boost", Version: opts.Version}, nil)
	s.RegisterMCP(s.mcp)
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.accessLog)
	r.Use(securityHeaders)
	r.Use(maxBody(maxBodyBytes))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		if s.opts.AuthUser != "" {
			r.Use(s.basicAuth)
		}

		r.Get("/controller", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, s.opts.Controller.Status())
		})

		r.Route("/documents", func(r chi.Router) {
			r.Get("/", s.listDocuments)
			r.Post("/", s.openDocument)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.getDocument)
				r.Delete("/", s.closeDocument)
				r.Post("/activate", s.activateDocument)
				r.Post("/commands/{command}", s.runCommand)
				r.Get("/journal", s.listJournal)
				r.Get("/channel", s.channel)
			})
		})

		mcpHandler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return s.mcp }, nil)
		r.Handle("/mcp", mcpHandler)
		r.Handle("/mcp/*", mcpHandler)
	})
	return r
}

// document resolves the {id} URL parameter, answering 404 itself.
func (s *Server) document(w http.ResponseWriter, r *http.Request) (*host.Document, bool) {
	id := chi.URLParam(r, "id")
	if id != host.ActiveID {
		canon, err := idgen.ParseDocument(id)
		if err != nil {
			jsonErr(w, http.StatusNotFound, host.ErrDocumentNotFound)
			return nil, false
		}
		id = canon
	}
	d, err := s.opts.Host.Get(id)
	if err != nil {
		jsonErr(w, http.StatusNotFound, err)
		return nil, false
	}
	return d, true
}

func (s *Server) info(r *http.Request, d *host.Document) (host.Info, error) {
	info, err := d.Info(r.Context())
	info.Active = s.opts.Host.IsActive(d.ID())
	return info, err
}

func (s *Server) listDocuments(w http.ResponseWriter, r *http.Request) {
	out := []host.Info{}
	for _, d := range s.opts.Host.List() {
		info, err := s.info(r, d)
		if err != nil {
			continue // closed meanwhile
		}
		out = append(out, info)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) openDocument(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		jsonErr(w, http.StatusBadRequest, errors.New("body must be {\"url\": ...}"))
		return
	}
	d, err := s.opts.Host.Open(r.Context(), req.URL)
	if err != nil {
		jsonErr(w, http.StatusBadGateway, err)
		return
	}
	info, _ := s.info(r, d)
	writeJSON(w, http.StatusCreated, info)
}

func (s *Server) getDocument(w http.ResponseWriter, r *http.Request) {
	d, ok := s.document(w, r)
	if !ok {
		return
	}
	info, err := s.info(r, d)
	if err != nil {
		jsonErr(w, http.StatusNotFound, host.ErrDocumentNotFound)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) closeDocument(w http.ResponseWriter, r *http.Request) {
	d, ok := s.document(w, r)
	if !ok {
		return
	}
	if err := s.opts.Host.Close(r.Context(), d.ID()); err != nil {
		jsonErr(w, http.StatusNotFound, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) activateDocument(w http.ResponseWriter, r *http.Request) {
	d, ok := s.document(w, r)
	if !ok {
		return
	}
	if err := s.opts.Host.SetActive(d.ID()); err != nil {
		jsonErr(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"active": d.ID()})
}

func (s *Server) runCommand(w http.ResponseWriter, r *http.Request) {
	d, ok := s.document(w, r)
	if !ok {
		return
	}
	var args Args
	if err := json.NewDecoder(r.Body).Decode(&args); err != nil && !errors.Is(err, io.EOF) {
		jsonErr(w, http.StatusBadRequest, err)
		return
	}
	res, err := run(s.opts.Controller, d, chi.URLParam(r, "command"), args)
	switch {
	case errors.Is(err, errUnknownCommand):
		jsonErr(w, http.StatusNotFound, err)
	case err != nil:
		jsonErr(w, http.StatusBadRequest, err)
	default:
		writeJSON(w, http.StatusAccepted, res)
	}
}

func (s *Server) listJournal(w http.ResponseWriter, r *http.Request) {
	if s.opts.Journal == nil {
		jsonErr(w, http.StatusNotFound, errors.New("journal disabled"))
		return
	}
	d, ok := s.document(w, r)
	if !ok {
		return
	}
	entries, err := s.opts.Journal.List(r.Context(), d.ID(), queryInt(r, "limit", 100))
	if err != nil {
		jsonErr(w, http.StatusInternalServerError, err)
		return
	}
	if entries == nil {
		entries = []journal.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// channel upgrades to a websocket speaking the channel protocol with the
// document. The connection joins the document's outbound fanout until it
// closes.
func (s *Server) channel(w http.ResponseWriter, r *http.Request) {
	d, ok := s.document(w, r)
	if !ok {
		return
	}
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:   channel.Subprotocols(),
		OriginPatterns: s.opts.AllowedOrigins,
	})
	if err != nil {
		s.logger.Debug("server: websocket accept failed", "document", d.ID(), "error", err)
		return
	}
	codec, _ := channel.CodecFor(conn.Subprotocol())
	if codec == nil {
		codec = channel.JSON
	}
	log := s.logger.With("document", d.ID(), "conn", idgen.Conn(), "codec", codec.Subprotocol())
	log.Info("server: channel connected")
	if err := channel.Bridge(r.Context(), conn, codec, d.Port(), d.Outbound(), log); err != nil {
		log.Debug("server: channel ended", "error", err)
	}
	log.Info("server: channel closed")
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func jsonErr(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func queryInt(r *http.Request, key string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return def
	}
	return v
}
