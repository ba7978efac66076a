package hass

import (
	"context"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mentxia/mordomo/internal/config"
	. "github.com/mentxia/mordomo/internal/logging"
)

// debounceWindow suppresses repeated alerts for the same entity:state
// pair inside this window.
const debounceWindow = 5 * time.Second

// NotifyFunc pushes an alert text to an identity through the gateway.
type NotifyFunc func(ctx context.Context, identity, text string) error

// Watcher maintains a WebSocket connection to Home Assistant, subscribes
// to state_changed events and pushes matching changes to configured
// identities. It reconnects with backoff and never blocks the caller.
type Watcher struct {
	cfg    config.HomeAssistantConfig
	alerts []config.AlertConfig
	notify NotifyFunc

	mu       sync.Mutex
	debounce map[string]time.Time // "entity_id:state" -> last alerted

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWatcher creates a watcher for the given alert rules.
func NewWatcher(cfg config.HomeAssistantConfig, alerts []config.AlertConfig, notify NotifyFunc) *Watcher {
	return &Watcher{
		cfg:      cfg,
		alerts:   alerts,
		notify:   notify,
		debounce: make(map[string]time.Time),
	}
}

// Start launches the connection loop. A watcher without alert rules is
// a no-op.
func (w *Watcher) Start(ctx context.Context) {
	if len(w.alerts) == 0 {
		L_debug("hass: no alerts configured, watcher idle")
		return
	}
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go w.connectLoop()
	L_info("hass: watcher started", "alerts", len(w.alerts))
}

// Stop shuts the watcher down and waits for the connection loop.
func (w *Watcher) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}

func (w *Watcher) wsURL() string {
	url := strings.TrimSuffix(w.cfg.URL, "/")
	url = strings.Replace(url, "https://", "wss://", 1)
	url = strings.Replace(url, "http://", "ws://", 1)
	return url + "/api/websocket"
}

func (w *Watcher) connectLoop() {
	defer w.wg.Done()

	backoff := time.Second
	for {
		if w.ctx.Err() != nil {
			return
		}

		if err := w.runConnection(); err != nil {
			L_warn("hass: watcher connection lost", "error", err, "retryIn", backoff)
		}

		select {
		case <-w.ctx.Done():
			return
		case <-time.After(backoff):
		}
		if backoff < 60*time.Second {
			backoff *= 2
		}
	}
}

// runConnection performs the auth handshake, subscribes to state_changed
// and pumps events until the connection drops.
func (w *Watcher) runConnection() error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(w.ctx, w.wsURL(), nil)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}
	defer conn.Close()

	// Close the socket when the context is cancelled so ReadJSON unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-w.ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	// auth_required -> auth -> auth_ok
	var msg wsMessage
	if err := conn.ReadJSON(&msg); err != nil {
		return fmt.Errorf("read auth_required: %w", err)
	}
	if msg.Type != "auth_required" {
		return fmt.Errorf("unexpected greeting: %s", msg.Type)
	}
	if err := conn.WriteJSON(wsMessage{Type: "auth", AccessToken: w.cfg.Token}); err != nil {
		return fmt.Errorf("write auth: %w", err)
	}
	if err := conn.ReadJSON(&msg); err != nil {
		return fmt.Errorf("read auth result: %w", err)
	}
	if msg.Type != "auth_ok" {
		return fmt.Errorf("authentication rejected: %s", msg.Type)
	}

	if err := conn.WriteJSON(wsMessage{ID: 1, Type: "subscribe_events", EventType: "state_changed"}); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	L_info("hass: watcher connected", "url", w.wsURL())

	for {
		var frame wsMessage
		if err := conn.ReadJSON(&frame); err != nil {
			return fmt.Errorf("read: %w", err)
		}
		if frame.Type != "event" || frame.Event == nil {
			continue
		}
		w.handleEvent(frame.Event)
	}
}

func (w *Watcher) handleEvent(ev *wsEvent) {
	if ev.EventType != "state_changed" || ev.Data.NewState == nil {
		return
	}
	st := ev.Data.NewState

	// Ignore attribute-only updates
	if ev.Data.OldState != nil && ev.Data.OldState.State == st.State {
		return
	}

	for _, alert := range w.alerts {
		match, err := path.Match(alert.Pattern, st.EntityID)
		if err != nil || !match {
			continue
		}
		if w.debounced(st.EntityID, st.State) {
			continue
		}
		text := fmt.Sprintf("🔔 %s: %s", st.FriendlyName(), st.State)
		if unit := st.Unit(); unit != "" {
			text += " " + unit
		}

		identity := alert.Notify
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := w.notify(ctx, identity, text); err != nil {
				L_error("hass: alert delivery failed", "identity", identity, "error", err)
			}
		}()
		L_debug("hass: alert fired", "entity", st.EntityID, "state", st.State, "notify", identity)
	}
}

// debounced records the entity:state pair and reports whether it fired
// too recently to alert again.
func (w *Watcher) debounced(entityID, state string) bool {
	key := entityID + ":" + state
	now := time.Now()

	w.mu.Lock()
	defer w.mu.Unlock()
	if last, ok := w.debounce[key]; ok && now.Sub(last) < debounceWindow {
		return true
	}
	w.debounce[key] = now

	// Opportunistic pruning keeps the map from growing unbounded.
	if len(w.debounce) > 1024 {
		for k, t := range w.debounce {
			if now.Sub(t) > time.Minute {
				delete(w.debounce, k)
			}
		}
	}
	return false
}
