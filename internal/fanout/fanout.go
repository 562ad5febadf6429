// Package fanout delivers call, voicemail, and recording events to the
// subscribers of a tenant over a long-lived websocket session. The
// in-process subscriber registry applies the same exclusivity reasoning
// as internal/dispatcher, with a mutex in place of a row lock.
package fanout

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/arc-self/dialpad-broker/internal/credential"
	"github.com/arc-self/dialpad-broker/internal/store/db"
)

const (
	pingInterval = 30 * time.Second
	pongWait     = 2 * pingInterval
	writeWait    = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Event is the wire shape broadcast to subscribers. Field names follow the
// call/voicemail/message payload vocabulary directly so subscribers don't
// need a translation layer.
type Event struct {
	Event          string `json:"event"`
	UpstreamCallID string `json:"upstream_call_id,omitempty"`
	Direction      string `json:"direction,omitempty"`
	FromNumber     string `json:"from_number,omitempty"`
	ToNumber       string `json:"to_number,omitempty"`
	Status         string `json:"status,omitempty"`
	UpstreamUserID string `json:"upstream_user_id,omitempty"`
	MappedUserID   string `json:"mapped_user_id,omitempty"`
	DurationSec    *int32 `json:"duration_seconds,omitempty"`
	Timestamp      string `json:"timestamp"`
}

type subscriber struct {
	conn   *websocket.Conn
	mu     sync.Mutex // guards concurrent writes to conn
	tenant string
}

func (s *subscriber) send(v interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(v)
}

func (s *subscriber) ping() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(websocket.PingMessage, nil)
}

// Registry tracks open subscriber connections keyed by tenant id. Insertion,
// removal, and broadcast iteration all take the same lock so a broadcast
// never observes a half-removed entry.
type Registry struct {
	mu     sync.RWMutex
	byApp  map[string]map[*subscriber]struct{}
	cred   *credential.Manager
	q      db.Querier
	logger *zap.Logger
}

func NewRegistry(q db.Querier, cred *credential.Manager, logger *zap.Logger) *Registry {
	return &Registry{
		byApp:  make(map[string]map[*subscriber]struct{}),
		cred:   cred,
		q:      q,
		logger: logger,
	}
}

func (r *Registry) add(appID string, s *subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.byApp[appID]
	if !ok {
		set = make(map[*subscriber]struct{})
		r.byApp[appID] = set
	}
	set[s] = struct{}{}
}

// remove drops s from its tenant's set and prunes the set eagerly once
// empty, so an idle tenant leaves no trace in the registry.
func (r *Registry) remove(appID string, s *subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.byApp[appID]
	if !ok {
		return
	}
	delete(set, s)
	if len(set) == 0 {
		delete(r.byApp, appID)
	}
}

// ConnectionCount returns the number of open subscriber connections across
// every tenant, for the /metrics endpoint.
func (r *Registry) ConnectionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, set := range r.byApp {
		n += len(set)
	}
	return n
}

// Broadcast sends event to every open subscriber of appID. Delivery is
// best-effort: a write failure on one connection is logged and otherwise
// ignored, it neither delays nor cancels delivery to the rest.
func (r *Registry) Broadcast(appID string, event Event) {
	r.mu.RLock()
	set := r.byApp[appID]
	subs := make([]*subscriber, 0, len(set))
	for s := range set {
		subs = append(subs, s)
	}
	r.mu.RUnlock()

	for _, s := range subs {
		if err := s.send(event); err != nil {
			r.logger.Warn("fanout delivery failed", zap.String("app_id", appID), zap.Error(err))
		}
	}
}

// Emit resolves event's upstream user id to a tenant-defined user id via
// the User Mapping, enriches the event when a mapping exists, and
// broadcasts once to appID's subscribers. Exactly one tenant-wide send
// per event; there is no additional targeted send that could double
// deliver.
func (r *Registry) Emit(ctx context.Context, appID db.App, event Event) {
	if event.UpstreamUserID != "" {
		mapping, err := r.q.GetUserMappingByUpstreamID(ctx, db.GetUserMappingByUpstreamIDParams{
			AppID:          appID.ID,
			UpstreamUserID: event.UpstreamUserID,
		})
		switch {
		case err == nil:
			event.MappedUserID = mapping.CRMUserID
		case errors.Is(err, db.ErrNotFound):
			// fall through to tenant-wide broadcast, unenriched
		default:
			r.logger.Warn("user mapping lookup failed during fanout", zap.Error(err))
		}
	}
	r.Broadcast(appID.ID.String(), event)
}

// Upgrade authenticates the handshake with the same API key mechanism as
// REST (query parameter or header, verified via the Credential Manager),
// then upgrades the connection and registers it under the resolved tenant.
// It blocks, running the connection's read/keepalive loop, until the
// connection closes.
func (r *Registry) Upgrade(w http.ResponseWriter, req *http.Request) error {
	raw := req.URL.Query().Get("api_key")
	if raw == "" {
		raw = req.Header.Get("x-app-api-key")
	}
	appID, err := r.cred.Verify(req.Context(), raw)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return err
	}

	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		return err
	}

	sub := &subscriber{conn: conn, tenant: appID.String()}
	r.add(sub.tenant, sub)
	r.logger.Info("fanout subscriber connected", zap.String("app_id", sub.tenant))
	defer func() {
		r.remove(sub.tenant, sub)
		conn.Close()
		r.logger.Info("fanout subscriber disconnected", zap.String("app_id", sub.tenant))
	}()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	done := make(chan struct{})
	go r.keepalive(sub, done)
	defer close(done)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return nil
		}
	}
}

func (r *Registry) keepalive(s *subscriber, done <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := s.ping(); err != nil {
				return
			}
		}
	}
}

// Marshal is exposed for tests that want to assert on the wire shape
// without standing up a real connection.
func Marshal(e Event) ([]byte, error) {
	return json.Marshal(e)
}
