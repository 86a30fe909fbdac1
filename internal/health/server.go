package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vietddude/walletsync/internal/core/domain"
	"github.com/vietddude/walletsync/internal/notify"
)

// NetworkLister exposes the network table.
type NetworkLister interface {
	List() []domain.NetworkInfo
	Current() domain.NetworkInfo
}

// NotificationSource exposes recent user-facing messages.
type NotificationSource interface {
	Messages() []notify.Message
}

// Server provides HTTP endpoints for health monitoring and wallet status.
type Server struct {
	monitor       *Monitor
	wallet        WalletState
	networks      NetworkLister
	notifications NotificationSource
	server        *http.Server
}

// NewServer creates a new health server.
func NewServer(monitor *Monitor, wallet WalletState, networks NetworkLister, notifications NotificationSource, port int) *Server {
	mux := http.NewServeMux()
	s := &Server{
		monitor:       monitor,
		wallet:        wallet,
		networks:      networks,
		notifications: notifications,
		server: &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: mux,
		},
	}

	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/health/detailed", s.handleDetailed)
	mux.HandleFunc("/wallet", s.handleWallet)
	mux.HandleFunc("/networks", s.handleNetworks)
	mux.HandleFunc("/notifications", s.handleNotifications)
	mux.Handle("/metrics", promhttp.Handler())

	return s
}

// Handler returns the server's request multiplexer.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Stop stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.monitor.CheckHealth(r.Context())
	status := http.StatusOK
	if report.SystemStatus == StatusCritical {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]string{"status": string(report.SystemStatus)})
}

func (s *Server) handleDetailed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.monitor.CheckHealth(r.Context()))
}

type walletResponse struct {
	Connected bool                   `json:"connected"`
	Snapshot  *domain.WalletSnapshot `json:"snapshot"`
}

func (s *Server) handleWallet(w http.ResponseWriter, r *http.Request) {
	resp := walletResponse{}
	if s.wallet != nil {
		resp.Connected = s.wallet.IsConnected()
		resp.Snapshot = s.wallet.Current()
	}
	writeJSON(w, http.StatusOK, resp)
}

type networksResponse struct {
	Current  domain.NetworkInfo   `json:"current"`
	Networks []domain.NetworkInfo `json:"networks"`
}

func (s *Server) handleNetworks(w http.ResponseWriter, r *http.Request) {
	if s.networks == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "network registry not available"})
		return
	}
	writeJSON(w, http.StatusOK, networksResponse{
		Current:  s.networks.Current(),
		Networks: s.networks.List(),
	})
}

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	messages := []notify.Message{}
	if s.notifications != nil {
		messages = s.notifications.Messages()
	}
	writeJSON(w, http.StatusOK, messages)
}
