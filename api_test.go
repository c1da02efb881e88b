package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type apiReply struct {
	OK    bool   `json:"ok"`
	Room  *Room  `json:"room"`
	Error string `json:"error"`
}

func newTestMux(cooldown time.Duration) *httprouter.Router {
	cfg := &Config{storage: "memory"}
	store := newRoomStore(&memoryStorage{}, cooldown)
	api := &apiServer{cfg: cfg, store: store}

	mux := httprouter.New()
	mux.POST("/api", api.handleAPI())

	return mux
}

func callAPI(t *testing.T, mux *httprouter.Router, body string) (int, *apiReply) {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/api", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	mux.ServeHTTP(rec, req)

	var reply apiReply
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reply))

	return rec.Code, &reply
}

func TestJoinOrCreate(t *testing.T) {
	t.Run("first joiner creates the room and becomes host", func(t *testing.T) {
		mux := newTestMux(0)

		status, reply := callAPI(t, mux, `{"action":"joinOrCreate","name":"Al","playerId":"a"}`)

		require.Equal(t, http.StatusOK, status)
		require.True(t, reply.OK)
		require.NotNil(t, reply.Room)
		assert.Equal(t, "a", reply.Room.HostID)
		assert.Equal(t, stateLobby, reply.Room.State)
		require.Contains(t, reply.Room.Players, "a")
		assert.Equal(t, "Al", reply.Room.Players["a"].Name)
		assert.Equal(t, 0, reply.Room.Players["a"].Score)
		assert.Equal(t, 0, reply.Room.GameNo)
		assert.Equal(t, -1, reply.Room.QIndex)
	})

	t.Run("names are sanitized on the way in", func(t *testing.T) {
		mux := newTestMux(0)

		_, reply := callAPI(t, mux, `{"action":"joinOrCreate","name":"  Al!!  <b>  ","playerId":"a"}`)
		assert.Equal(t, "Al b", reply.Room.Players["a"].Name)

		_, reply = callAPI(t, mux, `{"action":"joinOrCreate","name":"@@@","playerId":"b"}`)
		assert.Equal(t, "Player", reply.Room.Players["b"].Name)
	})

	t.Run("a missing player id gets a server-generated one", func(t *testing.T) {
		mux := newTestMux(0)

		_, reply := callAPI(t, mux, `{"action":"joinOrCreate","name":"Al"}`)
		require.Len(t, reply.Room.Players, 1)
		assert.NotEmpty(t, reply.Room.HostID)
	})

	t.Run("rejoining is an idempotent upsert", func(t *testing.T) {
		mux := newTestMux(0)

		callAPI(t, mux, `{"action":"joinOrCreate","name":"Al","playerId":"a"}`)
		status, reply := callAPI(t, mux, `{"action":"joinOrCreate","name":"Alice","playerId":"a"}`)

		require.Equal(t, http.StatusOK, status)
		require.Len(t, reply.Room.Players, 1)
		assert.Equal(t, "Alice", reply.Room.Players["a"].Name)
		assert.Equal(t, "a", reply.Room.HostID, "host is never reassigned by a rejoin")
	})

	t.Run("the eleventh distinct player is rejected", func(t *testing.T) {
		mux := newTestMux(0)

		for i := 0; i < maxPlayers; i++ {
			status, _ := callAPI(t, mux, fmt.Sprintf(`{"action":"joinOrCreate","name":"P%d","playerId":"p%d"}`, i, i))
			require.Equal(t, http.StatusOK, status)
		}

		status, reply := callAPI(t, mux, `{"action":"joinOrCreate","name":"Late","playerId":"p10"}`)
		assert.Equal(t, http.StatusForbidden, status)
		assert.Equal(t, "Room is full", reply.Error)

		// An existing player can still rejoin a full room.
		status, reply = callAPI(t, mux, `{"action":"joinOrCreate","name":"P0","playerId":"p0"}`)
		assert.Equal(t, http.StatusOK, status)
		require.NotNil(t, reply.Room)
		assert.Len(t, reply.Room.Players, maxPlayers)
	})
}

func TestGetRoom(t *testing.T) {
	mux := newTestMux(0)

	status, reply := callAPI(t, mux, `{"action":"getRoom"}`)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "Room not found", reply.Error)

	callAPI(t, mux, `{"action":"joinOrCreate","name":"Al","playerId":"a"}`)

	status, reply = callAPI(t, mux, `{"action":"getRoom"}`)
	require.Equal(t, http.StatusOK, status)
	require.NotNil(t, reply.Room)
	assert.Equal(t, "Al", reply.Room.Players["a"].Name)
}

func TestUpdateRoom(t *testing.T) {
	t.Run("outer validation", func(t *testing.T) {
		mux := newTestMux(0)
		callAPI(t, mux, `{"action":"joinOrCreate","name":"Al","playerId":"a"}`)

		status, reply := callAPI(t, mux, `{"action":"updateRoom","patch":{"state":"results"}}`)
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, "Missing playerId", reply.Error)

		status, reply = callAPI(t, mux, `{"action":"updateRoom","playerId":"a"}`)
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, "Missing patch", reply.Error)

		status, reply = callAPI(t, mux, `{"action":"updateRoom","playerId":"a","patch":"nope"}`)
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, "Missing patch", reply.Error)
	})

	t.Run("room must exist", func(t *testing.T) {
		mux := newTestMux(0)

		status, reply := callAPI(t, mux, `{"action":"updateRoom","playerId":"a","patch":{"state":"results"}}`)
		assert.Equal(t, http.StatusNotFound, status)
		assert.Equal(t, "Room not found", reply.Error)
	})

	t.Run("host configures settings", func(t *testing.T) {
		mux := newTestMux(0)
		callAPI(t, mux, `{"action":"joinOrCreate","name":"Al","playerId":"a"}`)

		status, reply := callAPI(t, mux,
			`{"action":"updateRoom","playerId":"a","patch":{"settings":{"categoryIds":[9,9,21],"questionCount":10,"questionTimeSec":15}}}`)

		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, []int{9, 21}, reply.Room.Settings.CategoryIDs)
		require.NotNil(t, reply.Room.Settings.QuestionCount)
		assert.Equal(t, 10, *reply.Room.Settings.QuestionCount)
	})

	t.Run("non-host state patch is dropped without error", func(t *testing.T) {
		mux := newTestMux(0)
		callAPI(t, mux, `{"action":"joinOrCreate","name":"Al","playerId":"a"}`)
		callAPI(t, mux, `{"action":"joinOrCreate","name":"Cee","playerId":"c"}`)

		status, reply := callAPI(t, mux, `{"action":"updateRoom","playerId":"c","patch":{"state":"results"}}`)

		require.Equal(t, http.StatusOK, status, "patches are best-effort, not errors")
		assert.Equal(t, stateLobby, reply.Room.State)
	})

	t.Run("answer submission during a game", func(t *testing.T) {
		mux := newTestMux(0)
		callAPI(t, mux, `{"action":"joinOrCreate","name":"Al","playerId":"a"}`)
		callAPI(t, mux, `{"action":"joinOrCreate","name":"Bea","playerId":"b"}`)

		callAPI(t, mux,
			`{"action":"updateRoom","playerId":"a","patch":{"settings":{"categoryIds":[9],"questionCount":5,"questionTimeSec":10}}}`)
		callAPI(t, mux,
			`{"action":"updateRoom","playerId":"a","patch":{"questions":[{"question":"Capital of France?","correct":"Paris","options":["Paris","Lyon"]}],"qIndex":0,"state":"pregame","countdownEndsAt":1,"intermissionEndsAt":0}}`)
		callAPI(t, mux,
			`{"action":"updateRoom","playerId":"a","patch":{"state":"question","questionEndsAt":2}}`)

		status, reply := callAPI(t, mux,
			`{"action":"updateRoom","playerId":"b","patch":{"answers":{"0":{"b":{"answer":"Paris"}}}}}`)

		require.Equal(t, http.StatusOK, status)
		require.Contains(t, reply.Room.Answers, "0")
		answer := reply.Room.Answers["0"]["b"]
		assert.Equal(t, "Paris", answer.Answer)
		assert.True(t, answer.Correct)
		assert.NotZero(t, answer.At)
	})
}

func TestWipeAndReset(t *testing.T) {
	mux := newTestMux(0)

	status, reply := callAPI(t, mux, `{"action":"wipeAndReset","playerId":"a"}`)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "Room not found", reply.Error)

	callAPI(t, mux, `{"action":"joinOrCreate","name":"Al","playerId":"a"}`)
	callAPI(t, mux, `{"action":"joinOrCreate","name":"Bea","playerId":"b"}`)
	callAPI(t, mux,
		`{"action":"updateRoom","playerId":"a","patch":{"settings":{"categoryIds":[9],"questionCount":5,"questionTimeSec":10}}}`)

	status, reply = callAPI(t, mux, `{"action":"wipeAndReset","playerId":"b"}`)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "Only host can reset", reply.Error)

	status, reply = callAPI(t, mux, `{"action":"wipeAndReset","playerId":"a"}`)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 1, reply.Room.GameNo)
	assert.Equal(t, stateLobby, reply.Room.State)
	assert.Len(t, reply.Room.Players, 2)
	assert.Equal(t, 0, reply.Room.Players["b"].Score)
	assert.Equal(t, []int{9}, reply.Room.Settings.CategoryIDs, "settings survive a reset")
	assert.Empty(t, reply.Room.Questions)
	assert.Empty(t, reply.Room.Answers)
}

func TestNukeRoom(t *testing.T) {
	t.Run("host only, absent room tolerated", func(t *testing.T) {
		mux := newTestMux(0)

		status, reply := callAPI(t, mux, `{"action":"nukeRoom","playerId":"a"}`)
		assert.Equal(t, http.StatusOK, status)
		assert.True(t, reply.OK)

		callAPI(t, mux, `{"action":"joinOrCreate","name":"Al","playerId":"a"}`)
		callAPI(t, mux, `{"action":"joinOrCreate","name":"Bea","playerId":"b"}`)

		status, reply = callAPI(t, mux, `{"action":"nukeRoom","playerId":"b"}`)
		assert.Equal(t, http.StatusForbidden, status)
		assert.Equal(t, "Only host can reset", reply.Error)

		status, _ = callAPI(t, mux, `{"action":"nukeRoom","playerId":"a"}`)
		require.Equal(t, http.StatusOK, status)

		status, _ = callAPI(t, mux, `{"action":"getRoom"}`)
		assert.Equal(t, http.StatusNotFound, status)
	})

	t.Run("cooldown blocks re-creation", func(t *testing.T) {
		mux := newTestMux(time.Minute)

		callAPI(t, mux, `{"action":"joinOrCreate","name":"Al","playerId":"a"}`)
		status, _ := callAPI(t, mux, `{"action":"nukeRoom","playerId":"a"}`)
		require.Equal(t, http.StatusOK, status)

		status, reply := callAPI(t, mux, `{"action":"joinOrCreate","name":"Bea","playerId":"b"}`)
		assert.Equal(t, http.StatusForbidden, status)
		assert.Equal(t, "Room creation is temporarily blocked", reply.Error)
	})

	t.Run("absent-room nuke does not start the cooldown", func(t *testing.T) {
		mux := newTestMux(time.Minute)

		// Anyone may nuke nothing, repeatedly; only a host-issued deletion
		// may block re-creation.
		for i := 0; i < 3; i++ {
			status, reply := callAPI(t, mux, `{"action":"nukeRoom","playerId":"mallory"}`)
			require.Equal(t, http.StatusOK, status)
			require.True(t, reply.OK)
		}

		status, reply := callAPI(t, mux, `{"action":"joinOrCreate","name":"Al","playerId":"a"}`)
		require.Equal(t, http.StatusOK, status)
		require.NotNil(t, reply.Room)
		assert.Equal(t, "a", reply.Room.HostID)
	})
}

func TestUnknownAction(t *testing.T) {
	mux := newTestMux(0)

	status, reply := callAPI(t, mux, `{"action":"explode"}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Unknown action", reply.Error)

	status, reply = callAPI(t, mux, `{}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Unknown action", reply.Error)
}

func TestActionFromQueryString(t *testing.T) {
	mux := newTestMux(0)
	callAPI(t, mux, `{"action":"joinOrCreate","name":"Al","playerId":"a"}`)

	req := httptest.NewRequest(http.MethodPost, "/api?action=getRoom", strings.NewReader(""))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var reply apiReply
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reply))
	require.NotNil(t, reply.Room)
	assert.Equal(t, "a", reply.Room.HostID)
}

func TestInvalidBody(t *testing.T) {
	mux := newTestMux(0)

	status, reply := callAPI(t, mux, `{"action":`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Invalid request body", reply.Error)
}
