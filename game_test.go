package main

import (
	"fmt"
	"math/rand"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"
)

func testRoomConfig() RoomConfig {
	return RoomConfig{
		MaxPlayers:       8,
		ArticlesPer:      3,
		ResearchTime:     1,
		LieTime:          1,
		PresentationTime: 1,
		VoteTime:         1,
		LiesChance:       0,
		Rounds:           1,
		TruthPoints:      500,
		FoolPoints:       250,
	}
}

func newTestGame(cfg RoomConfig, playerCount int) *Game {
	g := newGame("GAME", cfg, rand.New(rand.NewSource(1)))
	for i := 1; i <= playerCount; i++ {
		id := fmt.Sprintf("p%d", i)
		ev := Event{Type: EventPlayerConnected, SenderID: id, PlayerID: id, PlayerName: "player " + id}
		if rej := g.Apply(ev); rej != nil {
			panic(rej.Error())
		}
	}
	return g
}

func testOffers(playerID string) []Article {
	return []Article{
		testArticle(playerID + "-1"),
		testArticle(playerID + "-2"),
		testArticle(playerID + "-3"),
	}
}

// advanceToGuessing walks a fresh lobby through tutorial, topic selection,
// and writing, leaving the game at the start of its first round.
func advanceToGuessing(t *testing.T, g *Game) {
	t.Helper()
	req := require.New(t)

	req.Nil(g.Apply(Event{Type: EventStartGame, SenderID: hostSender}))
	req.Equal(PhaseTutorial, g.Phase)

	req.Nil(g.Apply(Event{Type: EventNextPhase, SenderID: g.vip()}))
	req.Equal(PhaseTopicSelection, g.Phase)

	for _, id := range g.order {
		req.Nil(g.Apply(Event{Type: EventArticlesFetched, PlayerID: id, Articles: testOffers(id)}))
	}
	for _, id := range g.order {
		req.Nil(g.Apply(Event{Type: EventChooseArticle, SenderID: id, ArticleID: id + "-1"}))
	}
	req.Equal(PhaseWriting, g.Phase, "all topics chosen advances to writing")

	for _, id := range g.order {
		req.Nil(g.Apply(Event{Type: EventSubmitSummary, SenderID: id, Summary: "truth from " + id}))
	}
	req.Nil(g.Apply(Event{Type: EventTimerTick}))
	req.Equal(PhaseGuessing, g.Phase)
}

func TestStartRequiresThreePlayers(t *testing.T) {
	req := require.New(t)
	g := newTestGame(testRoomConfig(), 2)

	rej := g.Apply(Event{Type: EventStartGame, SenderID: hostSender})
	req.NotNil(rej)
	req.Equal(codeGuardFailed, rej.Code)
	req.Equal(PhaseLobby, g.Phase, "a failed guard leaves state untouched")
	req.Len(g.players, 2)
}

func TestStartRequiresHostOrVIP(t *testing.T) {
	req := require.New(t)
	g := newTestGame(testRoomConfig(), 3)

	rej := g.Apply(Event{Type: EventStartGame, SenderID: "p2"})
	req.NotNil(rej)
	req.Equal(codeUnauthorized, rej.Code)

	req.Nil(g.Apply(Event{Type: EventStartGame, SenderID: "p1"}), "p1 is the VIP")
	req.Equal(PhaseTutorial, g.Phase)
}

func TestLobbyRejectsDuplicateNamesAndOverflow(t *testing.T) {
	req := require.New(t)
	cfg := testRoomConfig()
	cfg.MaxPlayers = 3
	g := newTestGame(cfg, 3)

	rej := g.Apply(Event{Type: EventPlayerConnected, SenderID: "p9", PlayerID: "p9", PlayerName: "player p1"})
	req.NotNil(rej)
	req.Equal(codeGuardFailed, rej.Code, "the room is full before names are even checked")

	cfg.MaxPlayers = 8
	g = newTestGame(cfg, 3)
	rej = g.Apply(Event{Type: EventPlayerConnected, SenderID: "p9", PlayerID: "p9", PlayerName: "player p1"})
	req.NotNil(rej)
	req.Equal(codeValidationFailed, rej.Code)
}

func TestJoinAfterStartRejectedButReconnectAllowed(t *testing.T) {
	req := require.New(t)
	g := newTestGame(testRoomConfig(), 3)

	req.Nil(g.Apply(Event{Type: EventStartGame, SenderID: hostSender}))

	rej := g.Apply(Event{Type: EventPlayerConnected, SenderID: "p9", PlayerID: "p9", PlayerName: "latecomer"})
	req.NotNil(rej)
	req.Equal(codeInvalidTransition, rej.Code)

	req.Nil(g.Apply(Event{Type: EventPlayerDisconnected, PlayerID: "p2"}))
	req.False(g.players["p2"].Connected)

	req.Nil(g.Apply(Event{Type: EventPlayerConnected, PlayerID: "p2"}), "reconnection works mid-game")
	req.True(g.players["p2"].Connected)
}

func TestExpiredPlayersLeaveTheLobbyOnly(t *testing.T) {
	req := require.New(t)
	g := newTestGame(testRoomConfig(), 3)

	req.Nil(g.Apply(Event{Type: EventPlayerDisconnected, PlayerID: "p3"}))
	req.Nil(g.Apply(Event{Type: EventPlayerExpired, PlayerID: "p3"}))
	req.Len(g.players, 2)
	req.NotContains(g.order, "p3")

	g = newTestGame(testRoomConfig(), 3)
	req.Nil(g.Apply(Event{Type: EventStartGame, SenderID: hostSender}))
	req.Nil(g.Apply(Event{Type: EventPlayerDisconnected, PlayerID: "p3"}))
	req.Nil(g.Apply(Event{Type: EventPlayerExpired, PlayerID: "p3"}))
	req.Len(g.players, 3, "mid-game rosters stay fixed")
}

func TestTutorialAdvanceIsVIPGated(t *testing.T) {
	req := require.New(t)
	g := newTestGame(testRoomConfig(), 3)
	req.Nil(g.Apply(Event{Type: EventStartGame, SenderID: hostSender}))

	rej := g.Apply(Event{Type: EventNextPhase, SenderID: "p3"})
	req.NotNil(rej)
	req.Equal(codeUnauthorized, rej.Code)
	req.Equal(PhaseTutorial, g.Phase)
}

func TestChooseArticleMustComeFromOwnOffers(t *testing.T) {
	req := require.New(t)
	g := newTestGame(testRoomConfig(), 3)
	req.Nil(g.Apply(Event{Type: EventStartGame, SenderID: hostSender}))
	req.Nil(g.Apply(Event{Type: EventNextPhase, SenderID: "p1"}))

	req.Nil(g.Apply(Event{Type: EventArticlesFetched, PlayerID: "p1", Articles: testOffers("p1")}))

	rej := g.Apply(Event{Type: EventChooseArticle, SenderID: "p1", ArticleID: "p2-1"})
	req.NotNil(rej)
	req.Equal(codeValidationFailed, rej.Code)

	req.Nil(g.Apply(Event{Type: EventChooseArticle, SenderID: "p1", ArticleID: "p1-2"}))
	req.Equal("p1-2", g.selected["p1"].ID)
}

func TestFailedFetchMarksContentUnavailable(t *testing.T) {
	req := require.New(t)
	g := newTestGame(testRoomConfig(), 3)
	req.Nil(g.Apply(Event{Type: EventStartGame, SenderID: hostSender}))
	req.Nil(g.Apply(Event{Type: EventNextPhase, SenderID: "p1"}))

	req.Nil(g.Apply(Event{Type: EventArticlesFetched, PlayerID: "p3", FetchFailed: true}))
	req.True(g.contentUnavailable["p3"])

	// The stuck player no longer blocks the all-submitted advance.
	for _, id := range []string{"p1", "p2"} {
		req.Nil(g.Apply(Event{Type: EventArticlesFetched, PlayerID: id, Articles: testOffers(id)}))
		req.Nil(g.Apply(Event{Type: EventChooseArticle, SenderID: id, ArticleID: id + "-1"}))
	}
	req.Equal(PhaseWriting, g.Phase)

	// A later successful fetch clears the flag.
	req.Nil(g.Apply(Event{Type: EventArticlesFetched, PlayerID: "p3", Articles: testOffers("p3")}))
	req.False(g.contentUnavailable["p3"])
}

func TestFetchFailureArrivingLastUnblocksWriting(t *testing.T) {
	req := require.New(t)
	g := newTestGame(testRoomConfig(), 3)
	req.Nil(g.Apply(Event{Type: EventStartGame, SenderID: hostSender}))
	req.Nil(g.Apply(Event{Type: EventNextPhase, SenderID: "p1"}))

	// Everyone else has already chosen by the time the last fetch gives up.
	for _, id := range []string{"p1", "p2"} {
		req.Nil(g.Apply(Event{Type: EventArticlesFetched, PlayerID: id, Articles: testOffers(id)}))
		req.Nil(g.Apply(Event{Type: EventChooseArticle, SenderID: id, ArticleID: id + "-1"}))
	}
	req.Equal(PhaseTopicSelection, g.Phase)

	req.Nil(g.Apply(Event{Type: EventArticlesFetched, PlayerID: "p3", FetchFailed: true}))
	req.Equal(PhaseWriting, g.Phase, "the failure was the last completion the room waited on")
	req.True(g.contentUnavailable["p3"])
}

func TestWritingTimerFreezesPlaceholders(t *testing.T) {
	req := require.New(t)
	g := newTestGame(testRoomConfig(), 3)
	req.Nil(g.Apply(Event{Type: EventStartGame, SenderID: hostSender}))
	req.Nil(g.Apply(Event{Type: EventNextPhase, SenderID: "p1"}))

	for _, id := range g.order {
		req.Nil(g.Apply(Event{Type: EventArticlesFetched, PlayerID: id, Articles: testOffers(id)}))
		req.Nil(g.Apply(Event{Type: EventChooseArticle, SenderID: id, ArticleID: id + "-1"}))
	}
	req.Equal(PhaseWriting, g.Phase)

	req.Nil(g.Apply(Event{Type: EventSubmitSummary, SenderID: "p1", Summary: "a real summary"}))
	req.Nil(g.Apply(Event{Type: EventTimerTick}))

	req.Equal(PhaseGuessing, g.Phase)
	req.Equal("a real summary", g.summaries["p1"])
	req.NotEmpty(g.summaries["p2"], "timed-out players get a placeholder")
	req.NotEmpty(g.summaries["p3"])
}

func TestFrozenPlaceholdersKeepRuneBoundaries(t *testing.T) {
	req := require.New(t)
	g := newTestGame(testRoomConfig(), 3)
	req.Nil(g.Apply(Event{Type: EventStartGame, SenderID: hostSender}))
	req.Nil(g.Apply(Event{Type: EventNextPhase, SenderID: "p1"}))

	// 3-byte runes, so the truncation limit lands mid-rune.
	long := Article{ID: "p1-1", Title: "金印", Extract: strings.Repeat("金", 100)}
	req.Nil(g.Apply(Event{Type: EventArticlesFetched, PlayerID: "p1", Articles: []Article{long}}))
	req.Nil(g.Apply(Event{Type: EventChooseArticle, SenderID: "p1", ArticleID: "p1-1"}))
	for _, id := range []string{"p2", "p3"} {
		req.Nil(g.Apply(Event{Type: EventArticlesFetched, PlayerID: id, Articles: testOffers(id)}))
		req.Nil(g.Apply(Event{Type: EventChooseArticle, SenderID: id, ArticleID: id + "-1"}))
	}
	req.Equal(PhaseWriting, g.Phase)

	req.Nil(g.Apply(Event{Type: EventTimerTick}))

	placeholder := g.summaries["p1"]
	req.True(utf8.ValidString(placeholder), "truncation must not split a rune")
	req.True(strings.HasSuffix(placeholder, "…"))
	req.Less(len(placeholder), len(long.Extract))
}

func TestGuessingRejectsExpertLies(t *testing.T) {
	req := require.New(t)
	g := newTestGame(testRoomConfig(), 3)
	advanceToGuessing(t, g)

	round := g.currentRound()
	req.NotNil(round)

	rej := g.Apply(Event{Type: EventSubmitLie, SenderID: round.ExpertID, Text: "an expert lie"})
	req.NotNil(rej)
	req.Equal(codeValidationFailed, rej.Code)
	req.Empty(round.Lies)
}

func TestVotingGuards(t *testing.T) {
	req := require.New(t)
	g := newTestGame(testRoomConfig(), 3)
	advanceToGuessing(t, g)

	round := g.currentRound()
	liars := make([]string, 0, 2)
	for _, id := range g.order {
		if id != round.ExpertID {
			liars = append(liars, id)
			req.Nil(g.Apply(Event{Type: EventSubmitLie, SenderID: id, Text: "lie from " + id}))
		}
	}

	req.Nil(g.Apply(Event{Type: EventTimerTick}))
	req.Equal(PhasePresenting, g.Phase)
	req.Len(round.Answers, 3)

	for range g.order {
		req.Nil(g.Apply(Event{Type: EventNextPhase, SenderID: hostSender}))
	}
	req.Equal(PhaseVoting, g.Phase)

	rej := g.Apply(Event{Type: EventSubmitVote, SenderID: round.ExpertID, AnswerID: round.Answers[0].ID})
	req.NotNil(rej)
	req.Equal(codeValidationFailed, rej.Code, "the expert may never vote")

	rej = g.Apply(Event{Type: EventSubmitVote, SenderID: liars[0], AnswerID: "a-bogus"})
	req.NotNil(rej)
	req.Equal(codeValidationFailed, rej.Code, "unknown answer ids are rejected")

	req.Nil(g.Apply(Event{Type: EventSubmitVote, SenderID: liars[0], AnswerID: round.Answers[0].ID}))
	rej = g.Apply(Event{Type: EventSubmitVote, SenderID: liars[0], AnswerID: round.Answers[1].ID})
	req.NotNil(rej)
	req.Equal(codeValidationFailed, rej.Code, "double votes are rejected")
}

func TestPresenterRotation(t *testing.T) {
	req := require.New(t)
	g := newTestGame(testRoomConfig(), 3)
	advanceToGuessing(t, g)

	round := g.currentRound()
	for _, id := range g.order {
		if id != round.ExpertID {
			req.Nil(g.Apply(Event{Type: EventSubmitLie, SenderID: id, Text: "lie from " + id}))
		}
	}
	req.Nil(g.Apply(Event{Type: EventTimerTick}))
	req.Equal(PhasePresenting, g.Phase)
	req.Equal("p1", g.currentPresenter())

	// The presenter themselves may advance; the timer advances too.
	req.Nil(g.Apply(Event{Type: EventNextPhase, SenderID: "p1"}))
	req.Equal("p2", g.currentPresenter())

	req.Nil(g.Apply(Event{Type: EventTimerTick}))
	req.Equal("p3", g.currentPresenter())

	rej := g.Apply(Event{Type: EventNextPhase, SenderID: "p2"})
	req.NotNil(rej)
	req.Equal(codeUnauthorized, rej.Code, "bystanders cannot advance the presenter")

	req.Nil(g.Apply(Event{Type: EventNextPhase, SenderID: "p3"}))
	req.Equal(PhaseVoting, g.Phase, "roster exhausted moves to voting")
}

func TestFullSingleRoundScenario(t *testing.T) {
	req := require.New(t)
	g := newTestGame(testRoomConfig(), 3)
	advanceToGuessing(t, g)

	round := g.currentRound()
	expert := round.ExpertID

	liars := make([]string, 0, 2)
	for _, id := range g.order {
		if id != expert {
			liars = append(liars, id)
			req.Nil(g.Apply(Event{Type: EventSubmitLie, SenderID: id, Text: "lie from " + id}))
		}
	}
	req.Len(round.Lies, 2, "expert excluded, two decoys recorded")

	req.Nil(g.Apply(Event{Type: EventTimerTick}))
	req.Equal(PhasePresenting, g.Phase)
	req.Len(round.Answers, 3, "two decoys plus the truth")

	for range g.order {
		req.Nil(g.Apply(Event{Type: EventNextPhase, SenderID: hostSender}))
	}
	req.Equal(PhaseVoting, g.Phase)

	truthID := round.truthAnswerID()
	var wrongID string
	for _, a := range round.Answers {
		if !a.IsTruth && a.authorID != liars[1] {
			wrongID = a.ID
			break
		}
	}

	req.Nil(g.Apply(Event{Type: EventSubmitVote, SenderID: liars[0], AnswerID: truthID}))
	req.Nil(g.Apply(Event{Type: EventSubmitVote, SenderID: liars[1], AnswerID: wrongID}))

	req.Nil(g.Apply(Event{Type: EventTimerTick}))
	req.Equal(PhaseReveal, g.Phase)

	req.Equal(750, g.players[liars[0]].Score, "truth found plus one voter fooled")
	req.Zero(g.players[liars[1]].Score)
	req.Zero(g.players[expert].Score, "expert earns nothing from the tally")

	// Single-round config: the reveal ends on the leaderboard.
	req.Nil(g.Apply(Event{Type: EventNextPhase, SenderID: hostSender}))
	req.Equal(PhaseLeaderboard, g.Phase)

	rej := g.Apply(Event{Type: EventStartGame, SenderID: hostSender})
	req.NotNil(rej)
	req.Equal(codeInvalidTransition, rej.Code, "the leaderboard is terminal")
}

func TestMultiRoundRotation(t *testing.T) {
	req := require.New(t)
	cfg := testRoomConfig()
	cfg.Rounds = 0 // one round per player
	g := newTestGame(cfg, 3)
	advanceToGuessing(t, g)

	playRound := func() {
		round := g.currentRound()
		for _, id := range g.order {
			if id != round.ExpertID {
				req.Nil(g.Apply(Event{Type: EventSubmitLie, SenderID: id, Text: "lie from " + id}))
			}
		}
		req.Nil(g.Apply(Event{Type: EventTimerTick})) // guessing -> presenting
		for range g.order {
			req.Nil(g.Apply(Event{Type: EventNextPhase, SenderID: hostSender}))
		}
		req.Nil(g.Apply(Event{Type: EventTimerTick})) // voting -> reveal
		req.Nil(g.Apply(Event{Type: EventNextPhase, SenderID: hostSender}))
	}

	experts := []string{g.currentRound().ExpertID}
	playRound()
	req.Equal(PhaseGuessing, g.Phase, "rounds remain after the first reveal")
	experts = append(experts, g.currentRound().ExpertID)
	playRound()
	req.Equal(PhaseGuessing, g.Phase)
	experts = append(experts, g.currentRound().ExpertID)
	playRound()

	req.Equal(PhaseLeaderboard, g.Phase)
	req.ElementsMatch([]string{"p1", "p2", "p3"}, experts, "every player experts exactly once")
}

func TestLateTicksAreHarmless(t *testing.T) {
	req := require.New(t)
	g := newTestGame(testRoomConfig(), 3)

	for i := 0; i < 5; i++ {
		req.Nil(g.Apply(Event{Type: EventTimerTick}))
	}
	req.Equal(PhaseLobby, g.Phase)
	req.False(g.timerActive)
}
