// Fakeout
//
// A room of players researches obscure articles, one "expert" per round
// writes a truthful summary, everyone else writes a convincing lie, and the
// whole room votes on which write-up is the real one.
//
// Features:
// - Rooms minted over REST: POST /api/v1/rooms -> {roomCode, hostToken}
// - WebSockets per room: /api/v1/rooms/:code/ws?role=host|player
// - Host authenticates with its bearer token; players join by name
// - Dropped players may reconnect with playerId + reconnect token within
//   a grace window, without losing their seat or score
// - 4-char room codes from a charset with no look-alike glyphs
// - Per-recipient views: nobody sees another player's draft, authorship,
//   or vote before the reveal
// - Hostless rooms auto-reaped after a configurable expiry
// - In-browser QR button to share the room join URL, backed by go-qrcode

package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type client struct {
	conn *websocket.Conn
	send chan any
}

func newClient(conn *websocket.Conn) *client {
	return &client{
		conn: conn,
		send: make(chan any, 16),
	}
}

// Send implements Sink. It never blocks; a stalled client just misses a
// frame and catches up on the next SYNC_STATE.
func (c *client) Send(v any) bool {
	select {
	case c.send <- v:
		return true
	default:
		return false
	}
}

func (c *client) writePump() {
	defer c.conn.Close()

	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

func (c *client) readPump(h *hub, senderID string) {
	defer func() {
		close(c.send)
		_ = c.conn.Close()
	}()

	for {
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}

		if ev, ok := clientEvent(senderID, msg); ok {
			h.enqueue(ev)
		}
	}
}

// clientEvent maps an inbound frame to a game event, stamping the sender.
// Internal event types (ticks, fetch results, roster bookkeeping) are not
// reachable from the wire.
func clientEvent(senderID string, msg ClientMessage) (Event, bool) {
	ev := Event{SenderID: senderID}

	switch EventType(msg.Type) {
	case EventStartGame:
		ev.Type = EventStartGame
	case EventNextPhase:
		ev.Type = EventNextPhase
	case EventChooseArticle:
		ev.Type = EventChooseArticle
		ev.ArticleID = msg.ArticleID
	case EventSubmitSummary:
		ev.Type = EventSubmitSummary
		ev.Summary = msg.Summary
	case EventSubmitLie:
		ev.Type = EventSubmitLie
		ev.Text = msg.Text
	case EventSubmitVote:
		ev.Type = EventSubmitVote
		ev.AnswerID = msg.AnswerID
	default:
		return Event{}, false
	}

	return ev, true
}

// hubManager pairs the registry with one running hub per live room.
type hubManager struct {
	mu   sync.Mutex
	hubs map[string]*runningHub

	ctx    context.Context
	cfg    *Config
	reg    *Registry
	source ArticleSource
}

type runningHub struct {
	hub    *hub
	cancel context.CancelFunc
}

func newHubManager(ctx context.Context, cfg *Config, reg *Registry, source ArticleSource) *hubManager {
	return &hubManager{
		hubs:   make(map[string]*runningHub),
		ctx:    ctx,
		cfg:    cfg,
		reg:    reg,
		source: source,
	}
}

func (m *hubManager) create() (string, string) {
	code, hostToken := m.reg.CreateRoom()

	h := newHub(m.cfg, code, m.reg, m.source)
	ctx, cancel := context.WithCancel(m.ctx)

	m.mu.Lock()
	m.hubs[code] = &runningHub{hub: h, cancel: cancel}
	m.mu.Unlock()

	go h.run(ctx)

	return code, hostToken
}

func (m *hubManager) get(code string) (*hub, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rh, ok := m.hubs[normalizeCode(code)]
	if !ok {
		return nil, false
	}
	return rh.hub, true
}

// runReaper sweeps hostless expired rooms out of the registry and stops
// their hubs. Housekeeping only: racing a host reconnecting right at the
// boundary is an accepted loss.
func (m *hubManager) runReaper(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.reapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, code := range m.reg.ReapExpiredRooms(m.reg.now()) {
				m.mu.Lock()
				if rh, ok := m.hubs[code]; ok {
					rh.cancel()
					delete(m.hubs, code)
				}
				m.mu.Unlock()
				logf(m.cfg, "GAMES: Reaped idle room %s", code)
			}
		}
	}
}

func serveCreateRoom(cfg *Config, m *hubManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		code, hostToken := m.create()
		logf(cfg, "GAMES: Created room %s", code)

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		securityHeaders(cfg, w)
		_ = json.NewEncoder(w).Encode(CreateRoomResponse{
			RoomCode:  code,
			HostToken: hostToken,
		})
	}
}

// serveRoomSocket is the gateway: it resolves the connecting identity
// against the registry, attaches the socket, and from then on only shuttles
// frames in and out of the room's event loop.
func serveRoomSocket(cfg *Config, m *hubManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		code := normalizeCode(ps.ByName("code"))

		h, ok := m.get(code)
		if !ok {
			http.Error(w, "no such room", http.StatusNotFound)
			return
		}

		query := r.URL.Query()
		role := query.Get("role")
		token := query.Get("token")

		switch role {
		case "host":
			if !m.reg.ValidateHostToken(code, token) {
				http.Error(w, "invalid host token", http.StatusUnauthorized)
				return
			}

			conn, err := upgrader.Upgrade(w, r, nil)
			if err != nil {
				log.Println("upgrade error:", err)
				return
			}

			c := newClient(conn)
			m.reg.AttachHost(code, c)
			h.enqueue(Event{Type: EventSyncRequested, SenderID: hostSender})

			go c.writePump()
			c.readPump(h, hostSender)

			m.reg.DetachHost(code)

		case "player":
			playerID := query.Get("playerId")

			if playerID != "" {
				if rej := m.reg.ReconnectPlayer(code, playerID, token); rej != nil {
					status := http.StatusForbidden
					switch rej.Code {
					case codeNotFound:
						status = http.StatusNotFound
					case codeUnauthorized:
						status = http.StatusUnauthorized
					}
					http.Error(w, rej.Code, status)
					return
				}

				conn, err := upgrader.Upgrade(w, r, nil)
				if err != nil {
					log.Println("upgrade error:", err)
					return
				}

				c := newClient(conn)
				m.reg.AttachPlayer(code, playerID, c)
				h.enqueue(Event{Type: EventPlayerConnected, SenderID: playerID, PlayerID: playerID, Rejoin: true})
				logf(cfg, "GAMES: Player %s reconnected to %s", playerID, code)

				go c.writePump()
				c.readPump(h, playerID)

				m.reg.DetachPlayer(code, playerID)
				h.enqueue(Event{Type: EventPlayerDisconnected, PlayerID: playerID})
				return
			}

			name := strings.TrimSpace(query.Get("name"))
			if name == "" {
				http.Error(w, "missing player name", http.StatusBadRequest)
				return
			}

			playerID, _, ok := m.reg.AddPlayer(code, name)
			if !ok {
				http.Error(w, "no such room", http.StatusNotFound)
				return
			}

			conn, err := upgrader.Upgrade(w, r, nil)
			if err != nil {
				m.reg.RemovePlayer(code, playerID)
				log.Println("upgrade error:", err)
				return
			}

			c := newClient(conn)
			m.reg.AttachPlayer(code, playerID, c)
			h.enqueue(Event{Type: EventPlayerConnected, SenderID: playerID, PlayerID: playerID, PlayerName: name})
			logf(cfg, "GAMES: Player %q joined %s", name, code)

			go c.writePump()
			c.readPump(h, playerID)

			m.reg.DetachPlayer(code, playerID)
			h.enqueue(Event{Type: EventPlayerDisconnected, PlayerID: playerID})

		default:
			http.Error(w, "role must be host or player", http.StatusBadRequest)
		}
	}
}

// serveRoomQR generates a PNG QR code for the room join URL.
func serveRoomQR(m *hubManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		code := normalizeCode(ps.ByName("code"))
		if !m.reg.RoomExists(code) {
			http.Error(w, "no such room", http.StatusNotFound)
			return
		}

		// Derive scheme (respecting TLS and X-Forwarded-Proto if present).
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		}

		// We are at /.../:code/qr; strip trailing "/qr" to get the room URL.
		path := strings.TrimSuffix(r.URL.Path, "/qr")

		url := scheme + "://" + r.Host + path

		const qrSize = 320 // mobile-friendly size
		png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
		if err != nil {
			http.Error(w, "qr generation failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(png)
	}
}

// registerTriviaGame sets up routes so that:
//   - POST $prefix/api/v1/rooms          → mints {roomCode, hostToken}
//   - GET  $prefix/api/v1/rooms/:code/ws → WebSocket for that room
//   - GET  $prefix/api/v1/rooms/:code/qr → PNG QR code for the room URL
func registerTriviaGame(ctx context.Context, cfg *Config, mux *httprouter.Router) {
	reg := newRegistry(cfg.reconnectWindow, cfg.roomExpiry)
	m := newHubManager(ctx, cfg, reg, newWikipediaSource())

	go m.runReaper(ctx)

	mux.POST(cfg.prefix+"/api/v1/rooms", serveCreateRoom(cfg, m))
	mux.GET(cfg.prefix+"/api/v1/rooms/:code/ws", serveRoomSocket(cfg, m))
	mux.GET(cfg.prefix+"/api/v1/rooms/:code/qr", serveRoomQR(m))
}
