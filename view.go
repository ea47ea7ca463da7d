package main

import (
	"github.com/samber/lo"
)

// RosterEntry is the public slice of a player every recipient may see.
type RosterEntry struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Score     int    `json:"score"`
	Connected bool   `json:"connected"`
}

// AnswerView is an answer as voters see it: id and text, nothing else.
type AnswerView struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// AnswerReveal is the full breakdown shown once the round is over.
type AnswerReveal struct {
	ID         string `json:"id"`
	Text       string `json:"text"`
	IsTruth    bool   `json:"isTruth"`
	AuthorName string `json:"authorName,omitempty"`
	Votes      int    `json:"votes"`
}

// View is one recipient's projection of the game state. The research half
// carries only the recipient's own offers and drafts; the answer half
// carries the shared answer set with authorship stripped until reveal.
type View struct {
	RoomCode   string        `json:"roomCode"`
	Phase      Phase         `json:"phase"`
	PlayerID   string        `json:"playerId,omitempty"`
	Timer      *int          `json:"timer"`
	Players    []RosterEntry `json:"players"`
	RoundIndex int           `json:"roundIndex"`

	ArticleOptions     []Article `json:"articleOptions,omitempty"`
	CurrentArticle     *Article  `json:"currentArticle,omitempty"`
	ContentUnavailable bool      `json:"contentUnavailable,omitempty"`

	ArticleTitle string       `json:"articleTitle,omitempty"`
	ExpertID     string       `json:"expertId,omitempty"`
	PresenterID  string       `json:"presenterId,omitempty"`
	Answers      []AnswerView `json:"answers,omitempty"`

	HasSubmitted bool `json:"hasSubmitted"`
	HasVoted     bool `json:"hasVoted"`

	TruthAnswerID string         `json:"truthAnswerId,omitempty"`
	Reveal        []AnswerReveal `json:"reveal,omitempty"`
}

func researchHalf(p Phase) bool {
	return p == PhaseTopicSelection || p == PhaseWriting
}

func answerHalf(p Phase) bool {
	return p == PhaseGuessing || p == PhasePresenting || p == PhaseVoting || p == PhaseReveal
}

// projectView derives what one recipient is allowed to see. Pass hostSender
// for the host screen, which gets the shared state but nobody's secrets.
func projectView(g *Game, recipientID string) View {
	view := View{
		RoomCode:   g.RoomCode,
		Phase:      g.Phase,
		Players:    rosterView(g),
		RoundIndex: len(g.rounds) - 1,
	}
	if recipientID != hostSender {
		view.PlayerID = recipientID
	}
	if g.timerActive {
		t := g.timer
		view.Timer = &t
	}

	switch {
	case researchHalf(g.Phase):
		if recipientID == hostSender {
			break
		}
		view.ArticleOptions = g.offers[recipientID]
		view.ContentUnavailable = g.contentUnavailable[recipientID]
		if a, ok := g.selected[recipientID]; ok {
			article := a
			view.CurrentArticle = &article
			if g.Phase == PhaseTopicSelection {
				view.HasSubmitted = true
			}
		}
		if g.Phase == PhaseWriting {
			_, view.HasSubmitted = g.summaries[recipientID]
		}

	case answerHalf(g.Phase):
		round := g.currentRound()
		if round == nil {
			break
		}
		view.ArticleTitle = round.Article.Title
		view.ExpertID = round.ExpertID
		view.PresenterID = g.currentPresenter()
		view.Answers = lo.Map(round.Answers, func(a Answer, _ int) AnswerView {
			return AnswerView{ID: a.ID, Text: a.Text}
		})
		if recipientID != hostSender {
			if g.Phase == PhaseGuessing {
				_, view.HasSubmitted = round.Lies[recipientID]
			}
			_, view.HasVoted = round.Votes[recipientID]
			view.HasSubmitted = view.HasSubmitted || view.HasVoted
		}
		if g.Phase == PhaseReveal {
			view.TruthAnswerID = round.truthAnswerID()
			view.Reveal = revealView(g, round)
		}
	}

	return view
}

func rosterView(g *Game) []RosterEntry {
	return lo.Map(g.order, func(id string, _ int) RosterEntry {
		p := g.players[id]
		return RosterEntry{ID: p.ID, Name: p.Name, Score: p.Score, Connected: p.Connected}
	})
}

func revealView(g *Game, round *Round) []AnswerReveal {
	votes := lo.CountValues(lo.Values(round.Votes))

	return lo.Map(round.Answers, func(a Answer, _ int) AnswerReveal {
		entry := AnswerReveal{
			ID:      a.ID,
			Text:    a.Text,
			IsTruth: a.IsTruth,
			Votes:   votes[a.ID],
		}
		if p, ok := g.players[a.authorID]; ok {
			entry.AuthorName = p.Name
		}
		return entry
	})
}
