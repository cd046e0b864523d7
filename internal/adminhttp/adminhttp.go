// Package adminhttp exposes a small HTTP status surface over the
// running netserver process: a JSON roster of connected peers, a health
// check, and (when wired) the prometheus scrape endpoint. It is
// auxiliary to the UDP protocol itself, matching how the teacher keeps
// its own HTTP API separate from the data paths it serves.
package adminhttp

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mattlee78/netstate/pkg/log"
)

// RosterStats mirrors netserver.Stats' fields, duplicated rather than
// imported so this package (and the netserver package, which must
// implement StatusSource) don't form an import cycle.
type RosterStats struct {
	DatagramsReceived                uint64 `json:"datagrams_received"`
	DatagramsSent                    uint64 `json:"datagrams_sent"`
	ReliableMessagesSent              uint64 `json:"reliable_messages_sent"`
	DuplicateReliableMessagesSkipped uint64 `json:"duplicate_reliable_messages_skipped"`
	FracturedSnapshots                uint64 `json:"fractured_snapshots"`
}

// Roster reports one connected peer for the /status endpoint.
type Roster struct {
	ClientID uint16      `json:"client_id"`
	Username string      `json:"username"`
	Stats    RosterStats `json:"stats"`
}

// StatusSource supplies the current peer roster. cmd/netserver adapts
// *netserver.Server to this interface, keeping adminhttp decoupled from
// the UDP transport package rather than importing it directly.
type StatusSource interface {
	Roster() []Roster
}

// NewRouter builds the admin HTTP mux: /healthz, /status, and (always,
// matching the teacher's own always-on /metrics) the prometheus scrape
// endpoint at /metrics.
func NewRouter(source StatusSource) *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusOK)
		_, _ = rw.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	router.HandleFunc("/status", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(rw).Encode(source.Roster()); err != nil {
			log.Errorf("adminhttp: encoding status failed: %v", err)
		}
	}).Methods(http.MethodGet)

	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	return router
}

// Serve runs an http.Server wrapping router until it errors or is
// shut down, matching the teacher's fixed read/write timeout idiom
// (cmd/cc-backend/server.go).
func Serve(addr string, router *mux.Router) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  20 * time.Second,
		WriteTimeout: 20 * time.Second,
	}
	log.Infof("adminhttp: listening on %s", addr)
	return srv.ListenAndServe()
}
