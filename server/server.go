package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"voice_ad_assistant/adstudio"
	"voice_ad_assistant/workflow"
)

const defaultTurnTimeout = 60 * time.Second

// Factory creates the workflow of a new session.
type Factory func() (*workflow.Workflow, error)

type Options struct {
	NewWorkflow Factory
	TurnTimeout time.Duration
	// Gatherer backs /metrics; nil leaves the route out.
	Gatherer prometheus.Gatherer
	Logger   *zap.Logger
}

type Server struct {
	newWorkflow Factory
	turnTimeout time.Duration
	gatherer    prometheus.Gatherer
	store       *sessionStore
	upgrader    websocket.Upgrader
	logger      *zap.Logger
}

type session struct {
	id      string
	wf      *workflow.Workflow
	created time.Time
}

type sessionStore struct {
	mu       sync.Mutex
	sessions map[string]*session
}

func newStore() *sessionStore {
	return &sessionStore{sessions: make(map[string]*session)}
}

func (s *sessionStore) set(sess *session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.id] = sess
}

func (s *sessionStore) get(id string) (*session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

func (s *sessionStore) delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[id]
	delete(s.sessions, id)
	return ok
}

func New(opts Options) (*Server, error) {
	if opts.NewWorkflow == nil {
		return nil, errors.New("workflow factory required")
	}
	if opts.TurnTimeout <= 0 {
		opts.TurnTimeout = defaultTurnTimeout
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Server{
		newWorkflow: opts.NewWorkflow,
		turnTimeout: opts.TurnTimeout,
		gatherer:    opts.Gatherer,
		store:       newStore(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: opts.Logger.With(zap.String("component", "server")),
	}, nil
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/sessions", s.handleSessionCreate)
	mux.HandleFunc("/api/sessions/", s.handleSessionByID)
	if s.gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return Chain(mux, Recovery(s.logger), RequestLogger(s.logger))
}

// --- Handlers ---

type sessionResp struct {
	SessionID  string                 `json:"session_id"`
	Greeting   string                 `json:"greeting,omitempty"`
	Specialist string                 `json:"specialist"`
	Context    workflow.SharedContext `json:"context"`
	History    []workflow.Message     `json:"history"`
}

type turnReq struct {
	Utterance string `json:"utterance"`
}

type turnResp struct {
	SessionID  string   `json:"session_id"`
	Fragments  []string `json:"fragments"`
	Specialist string   `json:"specialist"`
	Error      string   `json:"error,omitempty"`
}

type adCopyResp struct {
	Markdown string `json:"markdown"`
	HTML     string `json:"html"`
	Digest   string `json:"digest"`
}

func (s *Server) handleSessionCreate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	wf, err := s.newWorkflow()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	sess := &session{id: uuid.NewString(), wf: wf, created: time.Now()}
	s.store.set(sess)
	s.logger.Info("session created", zap.String("session", sess.id))
	resp := snapshot(sess)
	resp.Greeting = adstudio.Greeting
	writeJSONStatus(w, http.StatusCreated, resp)
}

func (s *Server) handleSessionByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/sessions/")
	id, action, _ := strings.Cut(rest, "/")
	if id == "" {
		http.NotFound(w, r)
		return
	}
	sess, ok := s.store.get(id)
	if !ok {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		writeJSON(w, snapshot(sess))
	case action == "" && r.Method == http.MethodDelete:
		s.store.delete(id)
		w.WriteHeader(http.StatusNoContent)
	case action == "turns" && r.Method == http.MethodPost:
		s.handleTurn(w, r, sess)
	case action == "reset" && r.Method == http.MethodPost:
		if err := sess.wf.Reset(); err != nil {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		writeJSON(w, snapshot(sess))
	case action == "stream" && r.Method == http.MethodGet:
		s.handleStream(w, r, sess)
	case action == "adcopy" && r.Method == http.MethodGet:
		s.handleAdCopy(w, sess)
	case action == "" || action == "turns" || action == "reset" || action == "stream" || action == "adcopy":
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleTurn(w http.ResponseWriter, r *http.Request, sess *session) {
	var req turnReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Utterance) == "" {
		http.Error(w, "utterance is required", http.StatusBadRequest)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.turnTimeout)
	defer cancel()
	fragments, err := sess.wf.RunTurn(ctx, req.Utterance).Collect()
	resp := turnResp{SessionID: sess.id, Fragments: fragments, Specialist: sess.wf.Current().Name}
	if resp.Fragments == nil {
		resp.Fragments = []string{}
	}
	if err != nil {
		resp.Error = err.Error()
		status := http.StatusBadGateway
		if errors.Is(err, workflow.ErrTurnInProgress) {
			status = http.StatusConflict
		}
		writeJSONStatus(w, status, resp)
		return
	}
	writeJSON(w, resp)
}

func (s *Server) handleAdCopy(w http.ResponseWriter, sess *session) {
	text := sess.wf.State().Context.AdCopy
	if text == "" {
		http.Error(w, "no ad copy yet", http.StatusNotFound)
		return
	}
	md := adstudio.ParseAdCopy(text).Markdown()
	html, err := adstudio.RenderHTML(md)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, adCopyResp{Markdown: md, HTML: html, Digest: adstudio.Digest(text, 120)})
}

// --- Helpers ---

func snapshot(sess *session) sessionResp {
	st := sess.wf.State()
	history := st.History
	if history == nil {
		history = []workflow.Message{}
	}
	return sessionResp{
		SessionID:  sess.id,
		Specialist: st.Current.Name,
		Context:    st.Context,
		History:    history,
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}

func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
