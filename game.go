package main

import (
	"math/rand"
	"sort"
	"unicode/utf8"
)

type Phase string

const (
	PhaseLobby          Phase = "LOBBY"
	PhaseTutorial       Phase = "TUTORIAL"
	PhaseTopicSelection Phase = "TOPIC_SELECTION"
	PhaseWriting        Phase = "WRITING"
	PhaseGuessing       Phase = "GUESSING"
	PhasePresenting     Phase = "PRESENTING"
	PhaseVoting         Phase = "VOTING"
	PhaseReveal         Phase = "REVEAL"
	PhaseLeaderboard    Phase = "LEADERBOARD"
)

type EventType string

const (
	EventPlayerConnected    EventType = "PLAYER_CONNECTED"
	EventPlayerDisconnected EventType = "PLAYER_DISCONNECTED"
	EventStartGame          EventType = "START_GAME"
	EventNextPhase          EventType = "NEXT_PHASE"
	EventChooseArticle      EventType = "CHOOSE_ARTICLE"
	EventSubmitSummary      EventType = "SUBMIT_SUMMARY"
	EventSubmitLie          EventType = "SUBMIT_LIE"
	EventSubmitVote         EventType = "SUBMIT_VOTE"
	EventArticlesFetched    EventType = "ARTICLES_FETCHED"
	EventTimerTick          EventType = "TIMER_TICK"
	EventPlayerExpired      EventType = "PLAYER_EXPIRED"
	EventSyncRequested      EventType = "SYNC_REQUESTED"
)

// hostSender is the sender id carried by events originating from the host
// connection. It can never collide with a player id.
const hostSender = "host"

// Event is one inbound game event, already tagged with its sender by the
// gateway. Which payload fields matter depends on Type.
type Event struct {
	Type     EventType
	SenderID string

	PlayerID   string
	PlayerName string
	ArticleID  string
	Summary    string
	Text       string
	AnswerID   string

	Articles    []Article
	FetchFailed bool
	Rejoin      bool
}

// PlayerState is one roster entry as the orchestrator sees it.
type PlayerState struct {
	ID        string
	Name      string
	Score     int
	Connected bool
}

// Game owns the full state of one room's match. It is a plain state
// machine: no goroutines, no clocks, no sockets. Events go in one at a
// time, a rejection or nil comes out.
type Game struct {
	RoomCode string
	Config   RoomConfig
	Phase    Phase

	rng *rand.Rand

	players map[string]*PlayerState
	order   []string // join order; order[0] is the VIP

	timerActive bool
	timer       int

	offers             map[string][]Article
	selected           map[string]Article
	summaries          map[string]string
	contentUnavailable map[string]bool

	rounds       []*Round
	presentOrder []string
	presentIndex int
}

func newGame(roomCode string, cfg RoomConfig, rng *rand.Rand) *Game {
	return &Game{
		RoomCode:           roomCode,
		Config:             cfg,
		Phase:              PhaseLobby,
		rng:                rng,
		players:            make(map[string]*PlayerState),
		offers:             make(map[string][]Article),
		selected:           make(map[string]Article),
		summaries:          make(map[string]string),
		contentUnavailable: make(map[string]bool),
	}
}

func (g *Game) vip() string {
	if len(g.order) == 0 {
		return ""
	}
	return g.order[0]
}

func (g *Game) currentRound() *Round {
	if len(g.rounds) == 0 {
		return nil
	}
	return g.rounds[len(g.rounds)-1]
}

func (g *Game) currentPresenter() string {
	if g.Phase != PhasePresenting || g.presentIndex >= len(g.presentOrder) {
		return ""
	}
	return g.presentOrder[g.presentIndex]
}

// mayAdvance reports whether sender is allowed to push host-gated phases
// forward: the host connection or the VIP.
func (g *Game) mayAdvance(sender string) bool {
	return sender == hostSender || (sender != "" && sender == g.vip())
}

func (g *Game) startTimer(seconds int) {
	g.timerActive = seconds > 0
	g.timer = seconds
}

func (g *Game) stopTimer() {
	g.timerActive = false
	g.timer = 0
}

// Apply runs one event against the machine. A non-nil result is always a
// *rejection local to the sender; state is untouched when one is returned.
func (g *Game) Apply(ev Event) *rejection {
	switch ev.Type {
	case EventPlayerConnected:
		return g.handleConnect(ev)
	case EventPlayerDisconnected:
		return g.handleDisconnect(ev)
	case EventPlayerExpired:
		g.handleExpired(ev)
		return nil
	case EventSyncRequested:
		return nil
	case EventTimerTick:
		g.handleTick()
		return nil
	case EventArticlesFetched:
		g.handleArticles(ev)
		return nil
	case EventStartGame:
		return g.handleStart(ev)
	case EventNextPhase:
		return g.handleAdvance(ev)
	case EventChooseArticle:
		return g.handleChooseArticle(ev)
	case EventSubmitSummary:
		return g.handleSubmitSummary(ev)
	case EventSubmitLie:
		return g.handleSubmitLie(ev)
	case EventSubmitVote:
		return g.handleSubmitVote(ev)
	default:
		return reject(codeValidationFailed, "unknown event type %q", ev.Type)
	}
}

// handleConnect admits a new player in the lobby, or flips an existing
// player back to connected in any phase (reconnection never rewinds state).
func (g *Game) handleConnect(ev Event) *rejection {
	if p, ok := g.players[ev.PlayerID]; ok {
		p.Connected = true
		return nil
	}

	if g.Phase != PhaseLobby {
		return reject(codeInvalidTransition, "the game has already started")
	}
	if len(g.players) >= g.Config.MaxPlayers {
		return reject(codeGuardFailed, "the room is full")
	}
	for _, p := range g.players {
		if p.Name == ev.PlayerName {
			return reject(codeValidationFailed, "the name %q is already taken", ev.PlayerName)
		}
	}

	g.players[ev.PlayerID] = &PlayerState{
		ID:        ev.PlayerID,
		Name:      ev.PlayerName,
		Connected: true,
	}
	g.order = append(g.order, ev.PlayerID)
	return nil
}

func (g *Game) handleDisconnect(ev Event) *rejection {
	if p, ok := g.players[ev.PlayerID]; ok {
		p.Connected = false
	}
	return nil
}

// handleExpired drops a player whose reconnection window ran out. Only the
// lobby forgets people; once a match is underway the roster stays fixed so
// rounds and scores keep their shape.
func (g *Game) handleExpired(ev Event) {
	if g.Phase != PhaseLobby {
		return
	}
	p, ok := g.players[ev.PlayerID]
	if !ok || p.Connected {
		return
	}
	delete(g.players, ev.PlayerID)
	for i, id := range g.order {
		if id == ev.PlayerID {
			g.order = append(g.order[:i], g.order[i+1:]...)
			break
		}
	}
}

func (g *Game) handleStart(ev Event) *rejection {
	if g.Phase != PhaseLobby {
		return reject(codeInvalidTransition, "cannot start from %s", g.Phase)
	}
	if !g.mayAdvance(ev.SenderID) {
		return reject(codeUnauthorized, "only the host or VIP may start the game")
	}
	if len(g.players) < 3 {
		return reject(codeGuardFailed, "need at least 3 players, have %d", len(g.players))
	}

	g.Phase = PhaseTutorial
	return nil
}

func (g *Game) handleAdvance(ev Event) *rejection {
	switch g.Phase {
	case PhaseTutorial:
		if !g.mayAdvance(ev.SenderID) {
			return reject(codeUnauthorized, "only the host or VIP may skip the tutorial")
		}
		g.Phase = PhaseTopicSelection
		return nil

	case PhaseTopicSelection:
		if !g.mayAdvance(ev.SenderID) {
			return reject(codeUnauthorized, "only the host or VIP may end topic selection")
		}
		g.enterWriting()
		return nil

	case PhasePresenting:
		if !g.mayAdvance(ev.SenderID) && ev.SenderID != g.currentPresenter() {
			return reject(codeUnauthorized, "only the presenter, host, or VIP may advance")
		}
		g.advancePresenter()
		return nil

	case PhaseReveal:
		if !g.mayAdvance(ev.SenderID) {
			return reject(codeUnauthorized, "only the host or VIP may end the reveal")
		}
		if len(g.rounds) < g.totalRounds() {
			g.enterGuessing()
		} else {
			g.Phase = PhaseLeaderboard
			g.stopTimer()
		}
		return nil

	default:
		return reject(codeInvalidTransition, "nothing to advance in %s", g.Phase)
	}
}

// handleArticles stores a fetch result. Late or duplicate completions are
// harmless; a terminal failure marks the player content-unavailable rather
// than failing the round. Marking a player unavailable shrinks the
// all-submitted count, so the advance check re-runs here too: the failure
// may be the last completion the room was waiting on.
func (g *Game) handleArticles(ev Event) {
	if _, ok := g.players[ev.PlayerID]; !ok {
		return
	}
	if ev.FetchFailed || len(ev.Articles) == 0 {
		if _, chosen := g.selected[ev.PlayerID]; !chosen {
			g.contentUnavailable[ev.PlayerID] = true
			if g.Phase == PhaseTopicSelection && len(g.selected) > 0 && g.allTopicsChosen() {
				g.enterWriting()
			}
		}
		return
	}
	delete(g.contentUnavailable, ev.PlayerID)
	g.offers[ev.PlayerID] = ev.Articles
}

func (g *Game) handleChooseArticle(ev Event) *rejection {
	if g.Phase != PhaseTopicSelection {
		return reject(codeInvalidTransition, "cannot choose a topic in %s", g.Phase)
	}
	if _, ok := g.players[ev.SenderID]; !ok {
		return reject(codeNotFound, "unknown player")
	}

	for _, a := range g.offers[ev.SenderID] {
		if a.ID == ev.ArticleID {
			g.selected[ev.SenderID] = a

			if g.allTopicsChosen() {
				g.enterWriting()
			}
			return nil
		}
	}
	return reject(codeValidationFailed, "article %q is not among your options", ev.ArticleID)
}

// allTopicsChosen ignores players whose article fetch failed for good; they
// sit this research round out.
func (g *Game) allTopicsChosen() bool {
	for id := range g.players {
		if g.contentUnavailable[id] {
			continue
		}
		if _, ok := g.selected[id]; !ok {
			return false
		}
	}
	return true
}

func (g *Game) handleSubmitSummary(ev Event) *rejection {
	if g.Phase != PhaseWriting {
		return reject(codeInvalidTransition, "cannot submit a summary in %s", g.Phase)
	}
	if _, ok := g.players[ev.SenderID]; !ok {
		return reject(codeNotFound, "unknown player")
	}
	if _, ok := g.selected[ev.SenderID]; !ok {
		return reject(codeValidationFailed, "no article selected")
	}
	if ev.Summary == "" {
		return reject(codeValidationFailed, "summary must not be empty")
	}

	g.summaries[ev.SenderID] = ev.Summary
	return nil
}

func (g *Game) handleSubmitLie(ev Event) *rejection {
	if g.Phase != PhaseGuessing {
		return reject(codeInvalidTransition, "cannot submit a lie in %s", g.Phase)
	}
	round := g.currentRound()
	if round == nil {
		return reject(codeInvalidTransition, "no active round")
	}
	if _, ok := g.players[ev.SenderID]; !ok {
		return reject(codeNotFound, "unknown player")
	}
	if ev.SenderID == round.ExpertID {
		return reject(codeValidationFailed, "the expert cannot submit a lie")
	}
	if ev.Text == "" {
		return reject(codeValidationFailed, "lie must not be empty")
	}

	round.Lies[ev.SenderID] = ev.Text
	return nil
}

func (g *Game) handleSubmitVote(ev Event) *rejection {
	if g.Phase != PhaseVoting {
		return reject(codeInvalidTransition, "cannot vote in %s", g.Phase)
	}
	round := g.currentRound()
	if round == nil {
		return reject(codeInvalidTransition, "no active round")
	}
	if _, ok := g.players[ev.SenderID]; !ok {
		return reject(codeNotFound, "unknown player")
	}
	if ev.SenderID == round.ExpertID {
		return reject(codeValidationFailed, "the expert cannot vote")
	}
	if _, voted := round.Votes[ev.SenderID]; voted {
		return reject(codeValidationFailed, "you have already voted")
	}
	if _, ok := round.answer(ev.AnswerID); !ok {
		return reject(codeValidationFailed, "unknown answer %q", ev.AnswerID)
	}

	round.Votes[ev.SenderID] = ev.AnswerID
	return nil
}

// handleTick decrements the active countdown. A tick with no timer armed,
// or after a phase already advanced, is a no-op.
func (g *Game) handleTick() {
	if !g.timerActive {
		return
	}
	g.timer--
	if g.timer > 0 {
		return
	}
	g.stopTimer()
	g.timerExpired()
}

func (g *Game) timerExpired() {
	switch g.Phase {
	case PhaseWriting:
		g.freezeSummaries()
		g.enterGuessing()
	case PhaseGuessing:
		g.currentRound().buildAnswers(g.Config.LiesChance, g.rng)
		g.enterPresenting()
	case PhasePresenting:
		g.advancePresenter()
	case PhaseVoting:
		g.applyTally()
		g.Phase = PhaseReveal
	}
}

func (g *Game) enterWriting() {
	g.Phase = PhaseWriting
	g.startTimer(g.Config.ResearchTime)
}

// freezeSummaries fills a placeholder for everyone who ran out the clock,
// so every selected article carries a presentable truth. Truncation backs
// up to a rune boundary so the placeholder stays valid UTF-8.
func (g *Game) freezeSummaries() {
	for id, article := range g.selected {
		if _, ok := g.summaries[id]; ok {
			continue
		}
		extract := article.Extract
		if len(extract) > 160 {
			cut := 160
			for cut > 0 && !utf8.RuneStart(extract[cut]) {
				cut--
			}
			extract = extract[:cut] + "…"
		}
		g.summaries[id] = extract
	}
}

// eligibleExperts lists the players who can carry a round: they selected an
// article and have a frozen summary for it.
func (g *Game) eligibleExperts() []string {
	var out []string
	for id := range g.players {
		if _, ok := g.selected[id]; !ok {
			continue
		}
		if _, ok := g.summaries[id]; !ok {
			continue
		}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// totalRounds is one round per eligible expert, capped by config.
func (g *Game) totalRounds() int {
	n := len(g.eligibleExperts())
	if g.Config.Rounds > 0 && g.Config.Rounds < n {
		n = g.Config.Rounds
	}
	return n
}

// enterGuessing opens the next round: rotates the expert role, pins their
// article and truth, and arms the lie-writing clock. With nobody eligible
// the match skips straight to the leaderboard.
func (g *Game) enterGuessing() {
	eligible := g.eligibleExperts()
	if len(eligible) == 0 {
		g.Phase = PhaseLeaderboard
		g.stopTimer()
		return
	}

	prior := make([]string, 0, len(g.rounds))
	for _, r := range g.rounds {
		prior = append(prior, r.ExpertID)
	}

	expert := assignExpert(eligible, prior)
	round := newRound(len(g.rounds), expert, g.selected[expert], g.summaries[expert])
	g.rounds = append(g.rounds, round)

	g.Phase = PhaseGuessing
	g.startTimer(g.Config.LieTime)
}

func (g *Game) enterPresenting() {
	g.Phase = PhasePresenting
	g.presentOrder = append([]string(nil), g.order...)
	g.presentIndex = 0
	g.startTimer(g.Config.PresentationTime)
}

func (g *Game) advancePresenter() {
	g.presentIndex++
	if g.presentIndex >= len(g.presentOrder) {
		g.Phase = PhaseVoting
		g.startTimer(g.Config.VoteTime)
		return
	}
	g.startTimer(g.Config.PresentationTime)
}

func (g *Game) applyTally() {
	for id, delta := range g.currentRound().tally(g.Config) {
		if p, ok := g.players[id]; ok {
			p.Score += delta
		}
	}
}
