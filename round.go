package main

import (
	"fmt"
	"math/rand"
	"sort"

	"github.com/samber/lo"
)

// RoomConfig is frozen per room at creation time. Durations are whole
// seconds, matching the one-tick-per-second game clock.
type RoomConfig struct {
	MaxPlayers       int
	ArticlesPer      int
	ResearchTime     int
	LieTime          int
	PresentationTime int
	VoteTime         int
	LiesChance       float64
	Rounds           int
	TruthPoints      int
	FoolPoints       int
}

// Article is one candidate content item offered during research.
type Article struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Extract string `json:"extract"`
	URL     string `json:"url"`
}

// Answer is one entry of a round's answer set. The id is opaque and shares
// nothing with player ids; authorship stays server-side until reveal.
type Answer struct {
	ID      string
	Text    string
	IsTruth bool

	authorID string // empty for a house lie
}

// Round is the bookkeeping for a single expert's article.
type Round struct {
	Index    int
	ExpertID string
	Article  Article
	Truth    string

	Lies  map[string]string // lie author -> lie text
	Votes map[string]string // voter -> chosen answer id

	Answers []Answer // nil until voting opens, immutable afterwards
}

func newRound(index int, expertID string, article Article, truth string) *Round {
	return &Round{
		Index:    index,
		ExpertID: expertID,
		Article:  article,
		Truth:    truth,
		Lies:     make(map[string]string),
		Votes:    make(map[string]string),
	}
}

// assignExpert picks the next expert from the roster, preferring players who
// have held the role least often and never repeating the previous expert
// when the roster allows it.
func assignExpert(roster []string, prior []string) string {
	if len(roster) == 0 {
		return ""
	}

	counts := lo.CountValues(prior)

	var last string
	if len(prior) > 0 {
		last = prior[len(prior)-1]
	}

	candidates := make([]string, len(roster))
	copy(candidates, roster)
	sort.Strings(candidates)

	best := ""
	for _, id := range candidates {
		if id == last && len(roster) > 1 {
			continue
		}
		if best == "" || counts[id] < counts[best] {
			best = id
		}
	}
	if best == "" {
		best = candidates[0]
	}
	return best
}

var houseLieTemplates = []string{
	"%s was banned in several countries shortly after becoming public.",
	"%s is named after the engineer who first documented it in 1911.",
	"%s was almost lost to history until a museum intern rediscovered it.",
	"%s held a world record for nearly two decades before being disqualified.",
	"%s was originally created as an elaborate April Fools' joke.",
}

func houseLie(article Article, rng *rand.Rand) string {
	return fmt.Sprintf(houseLieTemplates[rng.Intn(len(houseLieTemplates))], article.Title)
}

// buildAnswers assembles the answer set: the truth plus every submitted lie,
// with a chance of one extra house lie so the entry count is no tell.
// Shuffled exactly once; callers must not rebuild after voting opens.
func (r *Round) buildAnswers(chance float64, rng *rand.Rand) {
	if r.Answers != nil {
		return
	}

	answers := []Answer{{
		ID:       newAnswerID(),
		Text:     r.Truth,
		IsTruth:  true,
		authorID: r.ExpertID,
	}}

	authors := lo.Keys(r.Lies)
	sort.Strings(authors)
	for _, author := range authors {
		answers = append(answers, Answer{
			ID:       newAnswerID(),
			Text:     r.Lies[author],
			authorID: author,
		})
	}

	if rng.Float64() < chance {
		answers = append(answers, Answer{
			ID:   newAnswerID(),
			Text: houseLie(r.Article, rng),
		})
	}

	rng.Shuffle(len(answers), func(i, j int) {
		answers[i], answers[j] = answers[j], answers[i]
	})

	r.Answers = answers
}

func (r *Round) answer(id string) (Answer, bool) {
	for _, a := range r.Answers {
		if a.ID == id {
			return a, true
		}
	}
	return Answer{}, false
}

func (r *Round) truthAnswerID() string {
	for _, a := range r.Answers {
		if a.IsTruth {
			return a.ID
		}
	}
	return ""
}

// tally computes per-player score deltas for this round. Voters who found
// the truth earn TruthPoints; a lie's author earns FoolPoints for every
// voter it fooled. The expert earns nothing here, and the result depends
// only on the answer set and the votes, not on iteration order.
func (r *Round) tally(cfg RoomConfig) map[string]int {
	deltas := make(map[string]int)

	truthID := r.truthAnswerID()

	voters := lo.Keys(r.Votes)
	sort.Strings(voters)

	for _, voter := range voters {
		if voter == r.ExpertID {
			continue
		}

		answerID := r.Votes[voter]
		if answerID == truthID {
			deltas[voter] += cfg.TruthPoints
			continue
		}

		chosen, ok := r.answer(answerID)
		if !ok {
			continue
		}
		if chosen.authorID != "" && chosen.authorID != voter && chosen.authorID != r.ExpertID {
			deltas[chosen.authorID] += cfg.FoolPoints
		}
	}

	return deltas
}
