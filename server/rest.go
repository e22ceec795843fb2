package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/alejzeis/rps-arena/common"
	"github.com/alejzeis/rps-arena/config"
	"github.com/alejzeis/rps-arena/game"
	"github.com/alejzeis/rps-arena/record"
)

const shutdownTimeout = 10 * time.Second

// Server serves the REST API and the player websocket, and owns the engine behind them
type Server struct {
	cfg    *config.Config
	secret []byte

	registry     *Registry
	queue        *Queue
	store        *Store
	orchestrator *Orchestrator
	recorder     record.Recorder

	upgrader   websocket.Upgrader
	infoJSON   []byte // Cached bytes of the JSON for the /info response
	httpServer *http.Server

	// ctx outlives requests, connections use it for recorder calls
	ctx    context.Context
	cancel context.CancelFunc
}

// NewServer builds the engine for rules. A nil recorder only logs results.
func NewServer(cfg *config.Config, rules game.Rules, recorder record.Recorder) *Server {
	if recorder == nil {
		recorder = record.LogRecorder{}
	}

	registry := NewRegistry()
	queue := NewQueue()
	store := NewStore(rules, cfg.SessionMaxAge)
	orchestrator := NewOrchestrator(queue, store, registry, recorder)
	if cfg.RecorderTimeout > 0 {
		orchestrator.RecordTimeout = cfg.RecorderTimeout
	}

	infoJSON, _ := json.Marshal(common.InfoResponse{
		Software: common.SoftwareName,
		Version:  common.SoftwareVersion,
		API:      common.APIVersion,
	})

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:          cfg,
		secret:       []byte(cfg.Secret),
		registry:     registry,
		queue:        queue,
		store:        store,
		orchestrator: orchestrator,
		recorder:     recorder,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Browsers connect from the web client's origin, auth is the token
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		infoJSON: infoJSON,
		ctx:      ctx,
		cancel:   cancel,
	}
	s.httpServer = &http.Server{
		Addr:    ":" + strconv.Itoa(cfg.Port),
		Handler: s.Router(),
	}
	return s
}

// Router returns the HTTP routes of the server
func (s *Server) Router() *mux.Router {
	router := mux.NewRouter().StrictSlash(true)
	router.HandleFunc("/info", s.handleInfo).Methods("GET")
	router.HandleFunc("/stats", s.handleStats).Methods("GET")
	router.HandleFunc("/results/{user}", s.handleResults).Methods("GET")
	router.HandleFunc("/ws", s.handleWebsocket).Methods("GET")
	return router
}

// ListenAndServe starts the sweeper and blocks serving HTTP until Shutdown
func (s *Server) ListenAndServe() error {
	s.store.RunSweeper(s.cfg.SweepInterval)

	log.WithField("port", s.cfg.Port).Info("Starting REST API HTTP Server...")
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting requests, stops the sweeper and closes the recorder.
// Websockets are hijacked, so their readers end when the process exits.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	s.cancel()
	s.store.Close()
	if closeErr := s.recorder.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}

// StartControlServer runs the server until SIGINT or SIGTERM, called by main function
func StartControlServer(cfg *config.Config, rules game.Rules, recorder record.Recorder) error {
	srv := NewServer(cfg, rules, recorder)

	errs := make(chan error, 1)
	go func() {
		errs <- srv.ListenAndServe()
	}()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signals)

	select {
	case err := <-errs:
		if err != nil {
			log.WithError(err).WithField("port", cfg.Port).Error("Failed to start listening")
		}
		srv.Shutdown(context.Background())
		return err
	case sig := <-signals:
		log.WithField("signal", sig).Info("Shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(ctx)
}

// Returns server information such as the software version and REST API version
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(s.infoJSON)
}

// Returns how many users are online, waiting, and playing
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, common.StatsResponse{
		Online:   s.registry.Online(),
		Waiting:  s.queue.Len(),
		Sessions: s.store.Len(),
	})
}

// Returns the win/lose/draw tally of a user
// HTTP Responses:
//   - 400 Bad Request: user is not a UUID
//   - 404 Not Found: the configured recorder keeps no tallies
//   - 500 Internal Server Error: the recorder failed
//   - 200 OK: Success, returns TallyResponse (JSON)
func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	user, err := uuid.Parse(mux.Vars(r)["user"])
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	tallier, ok := s.recorder.(record.Tallier)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	tally, err := tallier.Tally(r.Context(), user)
	if err != nil {
		log.WithError(err).WithField("user", user).Error("Failed to read tally")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, common.TallyResponse{
		User:   user.String(),
		Wins:   tally.Wins,
		Losses: tally.Losses,
		Draws:  tally.Draws,
	})
}

// Upgrades an authenticated request to the player websocket
// HTTP Responses:
//   - 401 Unauthorized: no token in the Authorization header or the token query parameter
//   - 403 Forbidden: JWT wasn't valid
//   - 400 Bad Request: the token subject is not a UUID
func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	tokenStr, err := tokenFromRequest(r)
	if err != nil {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	claims, err := verifyToken(s.secret, tokenStr)
	if err != nil {
		log.WithError(err).WithField("address", r.RemoteAddr).Warn("Rejected token")
		w.WriteHeader(http.StatusForbidden)
		return
	}

	user, err := uuid.Parse(claims.Subject)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	socket, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied to the client
		log.WithError(err).WithField("address", r.RemoteAddr).Warn("Websocket upgrade failed")
		return
	}

	log.WithFields(log.Fields{
		"user":    user,
		"name":    claims.Name,
		"address": r.RemoteAddr,
	}).Info("New connection")

	newPlayerConnection(s.ctx, user, claims.Name, socket, s.registry, s.orchestrator).start()
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	data, err := json.Marshal(body)
	if err != nil {
		log.WithError(err).Error("Failed to encode response json")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}
