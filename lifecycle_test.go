package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func configuredLobby() *Room {
	room := newRoom("host", "Host", 1000)
	room.Settings.CategoryIDs = []int{9, 21}
	count, secs := 5, 10
	room.Settings.QuestionCount = &count
	room.Settings.QuestionTimeSec = &secs
	room.Questions = []Question{{Question: "q", Correct: "a", Options: []string{"a", "b"}}}

	return room
}

func TestCanEnterState(t *testing.T) {
	t.Run("unknown states are rejected", func(t *testing.T) {
		room := configuredLobby()
		assert.False(t, room.canEnterState("warpcore"))
		assert.False(t, room.canEnterState(""))
	})

	t.Run("re-asserting the current state converges", func(t *testing.T) {
		room := configuredLobby()
		assert.True(t, room.canEnterState(stateLobby))

		room.State = stateResults
		assert.True(t, room.canEnterState(stateResults))
	})

	t.Run("pregame requires full configuration", func(t *testing.T) {
		room := configuredLobby()
		assert.True(t, room.canEnterState(statePregame))

		missingCategories := configuredLobby()
		missingCategories.Settings.CategoryIDs = []int{}
		assert.False(t, missingCategories.canEnterState(statePregame))

		missingCount := configuredLobby()
		missingCount.Settings.QuestionCount = nil
		assert.False(t, missingCount.canEnterState(statePregame))

		missingTime := configuredLobby()
		missingTime.Settings.QuestionTimeSec = nil
		assert.False(t, missingTime.canEnterState(statePregame))

		missingQuestions := configuredLobby()
		missingQuestions.Questions = []Question{}
		assert.False(t, missingQuestions.canEnterState(statePregame))
	})

	t.Run("results back to lobby is always legal", func(t *testing.T) {
		room := newRoom("host", "Host", 1000)
		room.State = stateResults
		assert.True(t, room.canEnterState(stateLobby))
	})
}

// The start-game patch carries the question set alongside the state
// change; readiness is judged against the post-merge document.
func TestStartGamePatch(t *testing.T) {
	now := int64(50000)

	t.Run("accepted when the same patch completes configuration", func(t *testing.T) {
		room := newRoom("host", "Host", 1000)
		room.Settings.CategoryIDs = []int{9}
		count, secs := 5, 10
		room.Settings.QuestionCount = &count
		room.Settings.QuestionTimeSec = &secs

		patch := patchOf(t, `{
			"questions":[{"question":"q","correct":"a","options":["a","b"]}],
			"qIndex":0,
			"state":"pregame",
			"countdownEndsAt":60000,
			"intermissionEndsAt":0
		}`)
		applyPatch(room, patch, "host", true, now)

		assert.Equal(t, statePregame, room.State)
		assert.Equal(t, 0, room.QIndex)
		assert.Equal(t, int64(60000), room.CountdownEndsAt, "the deadline is taken from the patch, never derived")
		require.Len(t, room.Questions, 1)
	})

	t.Run("state change dropped while unconfigured, rest of patch applies", func(t *testing.T) {
		room := newRoom("host", "Host", 1000)

		patch := patchOf(t, `{
			"questions":[{"question":"q","correct":"a","options":["a","b"]}],
			"state":"pregame"
		}`)
		applyPatch(room, patch, "host", true, now)

		assert.Equal(t, stateLobby, room.State, "no categories, count, or time chosen yet")
		assert.Len(t, room.Questions, 1, "the rest of the patch still merges")
	})
}

// Entering the results phase writes the answer tally into the roster, so
// the polled document carries final standings.
func TestResultsPatchAppliesScores(t *testing.T) {
	room := roomWithQuestions(1000)
	applyPatch(room, patchOf(t, `{"answers":{"0":{"b":{"answer":"Paris"}}}}`), "b", false, 2000)
	applyPatch(room, patchOf(t, `{"answers":{"1":{"b":{"answer":"4"}}}}`), "b", false, 3000)
	applyPatch(room, patchOf(t, `{"answers":{"0":{"host":{"answer":"Lyon"}}}}`), "host", true, 3000)

	applyPatch(room, patchOf(t, `{"state":"results"}`), "host", true, 4000)

	require.Equal(t, stateResults, room.State)
	assert.Equal(t, 2, room.Players["b"].Score)
	assert.Equal(t, 0, room.Players["host"].Score)

	// Re-asserting the state recomputes the same tally.
	applyPatch(room, patchOf(t, `{"state":"results"}`), "host", true, 5000)
	assert.Equal(t, 2, room.Players["b"].Score)
}

func TestNewGamePatch(t *testing.T) {
	room := roomWithQuestions(1000)
	room.State = stateResults
	room.GameNo = 2
	room.GifIndex = 1
	applyPatch(room, patchOf(t, `{"answers":{"0":{"b":{"answer":"Paris"}}}}`), "b", false, 2000)

	patch := patchOf(t, `{
		"state":"lobby",
		"questions":[],
		"answers":{},
		"qIndex":0,
		"countdownEndsAt":0,
		"questionEndsAt":0,
		"intermissionEndsAt":0,
		"gameNo":3,
		"gifIndex":2
	}`)
	applyPatch(room, patch, "host", true, 3000)

	assert.Equal(t, stateLobby, room.State)
	assert.Empty(t, room.Questions)
	assert.Empty(t, room.Answers)
	assert.Equal(t, 2, room.GifIndex)
	assert.Equal(t, 2, room.GameNo, "gameNo is not patchable; only wipeAndReset advances it")
	assert.Len(t, room.Players, 2, "the roster survives a new game")
}
