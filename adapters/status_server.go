package adapters

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"iot-dashboard/application"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

const statusServerShutdownTimeout = 5 * time.Second

type StatusServerParams struct {
	Addr string

	MQTTClient application.MQTTClient
	Watchdog   *application.LivenessWatchdog
	MessageLog *application.MessageLog
	Control    *application.ControlService

	Log zerolog.Logger
}

// StatusServer exposes device status, client status and control commands as
// JSON over HTTP.
type StatusServer struct {
	params StatusServerParams
	router *mux.Router

	log zerolog.Logger
}

type mqttStatusResponse struct {
	State             string    `json:"state"`
	Connected         bool      `json:"connected"`
	MessageCount      uint64    `json:"message_count"`
	LastTimePublished time.Time `json:"last_time_published"`
	Pending           int       `json:"pending"`
	Topics            int       `json:"topics"`
}

type lightRequest struct {
	On bool `json:"on"`
}

type ledRequest struct {
	ID *int `json:"id"`
}

type colorRequest struct {
	Color string `json:"color"`
}

func NewStatusServer(params StatusServerParams) (*StatusServer, error) {
	if params.MQTTClient == nil {
		return nil, fmt.Errorf("MQTTClient is nil")
	}
	if params.Watchdog == nil {
		return nil, fmt.Errorf("Watchdog is nil")
	}

	s := &StatusServer{params: params, log: params.Log}
	s.router = s.newRouter()
	return s, nil
}

func (s *StatusServer) Handler() http.Handler {
	return s.router
}

func (s *StatusServer) newRouter() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprintln(w, "OK")
	}).Methods(http.MethodGet)
	r.HandleFunc("/devices", s.getDevices).Methods(http.MethodGet)
	r.HandleFunc("/devices/check", s.checkDevices).Methods(http.MethodPost)
	r.HandleFunc("/mqtt", s.getMQTTStatus).Methods(http.MethodGet)
	if s.params.MessageLog != nil {
		r.HandleFunc("/logs", s.getLogs).Methods(http.MethodGet)
	}
	if s.params.Control != nil {
		r.HandleFunc("/commands/light", s.postLight).Methods(http.MethodPost)
		r.HandleFunc("/commands/led", s.postLED).Methods(http.MethodPost)
		r.HandleFunc("/commands/color", s.postColor).Methods(http.MethodPost)
	}
	return r
}

// Run serves until ctx is cancelled.
func (s *StatusServer) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.params.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.params.Addr).Msg("status server listening")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), statusServerShutdownTimeout)
	defer cancel()

	s.log.Info().Msg("status server stopping")
	return server.Shutdown(shutdownCtx)
}

func (s *StatusServer) getDevices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.params.Watchdog.SortedStatuses())
}

func (s *StatusServer) checkDevices(w http.ResponseWriter, r *http.Request) {
	s.params.Watchdog.CheckStatus()
	w.WriteHeader(http.StatusAccepted)
}

func (s *StatusServer) getMQTTStatus(w http.ResponseWriter, r *http.Request) {
	status := s.params.MQTTClient.Status()
	writeJSON(w, http.StatusOK, mqttStatusResponse{
		State:             status.State.String(),
		Connected:         status.Connected,
		MessageCount:      status.MessageCount,
		LastTimePublished: status.LastTimePublished,
		Pending:           status.Pending,
		Topics:            status.Topics,
	})
}

func (s *StatusServer) getLogs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.params.MessageLog.Entries())
}

func (s *StatusServer) postLight(w http.ResponseWriter, r *http.Request) {
	var req lightRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	s.params.Control.SetLight(req.On)
	w.WriteHeader(http.StatusAccepted)
}

func (s *StatusServer) postLED(w http.ResponseWriter, r *http.Request) {
	var req ledRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ID == nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("id is required"))
		return
	}
	if err := s.params.Control.SelectLED(*req.ID); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *StatusServer) postColor(w http.ResponseWriter, r *http.Request) {
	var req colorRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.params.Control.SetColor(req.Color); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, out any) bool {
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
