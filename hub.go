package main

import (
	"context"
	"math/rand"
	"time"
)

// hub drives one room: a single goroutine consumes events, ticks, and fetch
// completions off one channel, so the game state has exactly one writer.
type hub struct {
	cfg    *Config
	code   string
	reg    *Registry
	game   *Game
	source ArticleSource

	events chan Event
}

func newHub(cfg *Config, code string, reg *Registry, source ArticleSource) *hub {
	return &hub{
		cfg:    cfg,
		code:   code,
		reg:    reg,
		game:   newGame(code, cfg.roomConfig(), rand.New(rand.NewSource(time.Now().UnixNano()))),
		source: source,
		events: make(chan Event, 256),
	}
}

// enqueue hands an event to the room's loop. A full queue drops the event;
// clients recover from the next SYNC_STATE.
func (h *hub) enqueue(ev Event) {
	select {
	case h.events <- ev:
	default:
	}
}

func (h *hub) run(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-h.events:
			h.dispatch(ctx, ev)
		case <-ticker.C:
			h.dispatch(ctx, Event{Type: EventTimerTick})
		}
	}
}

func (h *hub) dispatch(ctx context.Context, ev Event) {
	before := h.game.Phase

	if rej := h.game.Apply(ev); rej != nil {
		logf(h.cfg, "GAMES: Rejected %s from %s in %s: %s", ev.Type, ev.SenderID, h.code, rej.Error())
		h.sendError(ev.SenderID, rej)

		// A refused admission leaves no trace in the registry either.
		if ev.Type == EventPlayerConnected && !ev.Rejoin {
			h.reg.RemovePlayer(h.code, ev.PlayerID)
		}
		return
	}

	switch ev.Type {
	case EventPlayerConnected:
		if !ev.Rejoin {
			h.sendJoined(ev.PlayerID)
		}
	case EventPlayerDisconnected:
		h.scheduleExpiry(ev.PlayerID)
	}

	after := h.game.Phase
	if after == PhaseTopicSelection && before != PhaseTopicSelection {
		h.fetchAllArticles(ctx)
	}
	if before != after {
		logf(h.cfg, "GAMES: Room %s entered %s", h.code, after)
	}

	// Idle ticks carry no new information; everything else is broadcast.
	if ev.Type == EventTimerTick && before == after && !h.game.timerActive {
		return
	}

	h.broadcast()
}

// scheduleExpiry arms the reconnection grace window for a dropped player.
// The expiry lands back on the event loop like everything else; the game
// decides whether anything is actually removed.
func (h *hub) scheduleExpiry(playerID string) {
	time.AfterFunc(h.reg.reconnectWindow, func() {
		if p, ok := h.reg.Player(h.code, playerID); ok && !p.Attached() {
			h.enqueue(Event{Type: EventPlayerExpired, PlayerID: playerID})
		}
	})
}

// fetchAllArticles kicks off one fetch per player. Results re-enter the
// loop as ordinary events, so other players' events keep flowing while a
// fetch is in flight.
func (h *hub) fetchAllArticles(ctx context.Context) {
	for _, id := range h.game.order {
		playerID := id
		go func() {
			const attempts = 3
			for i := 0; i < attempts; i++ {
				articles, err := h.source.FetchCandidates(ctx, h.cfg.articlesPer)
				if err == nil {
					h.enqueue(Event{Type: EventArticlesFetched, PlayerID: playerID, Articles: articles})
					return
				}
				logf(h.cfg, "GAMES: Article fetch for %s in %s failed (attempt %d/%d): %v", playerID, h.code, i+1, attempts, err)

				// No backoff after the last attempt; report the failure now.
				if i == attempts-1 {
					break
				}
				select {
				case <-ctx.Done():
					return
				case <-time.After(time.Duration(i+1) * time.Second):
				}
			}
			h.enqueue(Event{Type: EventArticlesFetched, PlayerID: playerID, FetchFailed: true})
		}()
	}
}

// broadcast projects the current state once per reachable recipient.
func (h *hub) broadcast() {
	hostSink, players := h.reg.BroadcastTargets(h.code)

	if hostSink != nil {
		hostSink.Send(SyncStateMessage{Type: msgSyncState, Payload: projectView(h.game, hostSender)})
	}
	for id, sink := range players {
		sink.Send(SyncStateMessage{Type: msgSyncState, Payload: projectView(h.game, id)})
	}
}

func (h *hub) sendJoined(playerID string) {
	player, ok := h.reg.Player(h.code, playerID)
	if !ok || !player.Attached() {
		return
	}
	player.sink.Send(RoomJoinedMessage{
		Type: msgRoomJoined,
		Payload: RoomJoinedPayload{
			PlayerID:       player.ID,
			ReconnectToken: player.ReconnectToken,
		},
	})
}

// sendError delivers a rejection to the offending sender only.
func (h *hub) sendError(senderID string, rej *rejection) {
	hostSink, players := h.reg.BroadcastTargets(h.code)

	var sink Sink
	if senderID == hostSender {
		sink = hostSink
	} else {
		sink = players[senderID]
	}
	if sink == nil {
		// Failed admissions are not broadcast targets yet.
		if p, ok := h.reg.Player(h.code, senderID); ok && p.Attached() {
			sink = p.sink
		}
	}
	if sink != nil {
		sink.Send(ErrorMessage{Type: msgError, Payload: *rej})
	}
}
