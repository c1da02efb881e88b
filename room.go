// Wild Trivia room document.
//
// A single shared Room is the only persisted aggregate: up to ten players,
// host-chosen settings, the question set for the current game, and a sparse
// map of submitted answers. Clients poll the document sub-second and drive
// every phase transition themselves via patches; the server never runs a
// timer. The first player to join becomes the host, and possession of a
// player identity string is the entire trust model.

package main

import (
	"regexp"
	"strings"
	"time"
)

const (
	roomID = "ROOM"

	maxPlayers    = 10
	maxCategories = 5
	maxNameLength = 20
	defaultName   = "Player"
)

// Lifecycle phases, in order of a normal game.
const (
	stateLobby    = "lobby"
	statePregame  = "pregame"
	stateQuestion = "question"
	stateResults  = "results"
)

var (
	questionCounts   = []int{5, 10, 15, 20}
	questionTimeSecs = []int{10, 15, 20}
)

// Player is one roster entry, keyed by the client-generated identity.
type Player struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Score int    `json:"score"`
}

// Settings are the host-chosen game parameters. The count and time fields
// are pointers so an unconfigured value serializes as null, matching what
// polling clients expect before the host has picked anything.
type Settings struct {
	CategoryIDs     []int `json:"categoryIds"`
	QuestionCount   *int  `json:"questionCount"`
	QuestionTimeSec *int  `json:"questionTimeSec"`
}

// Question is one entry of the fetched question set, immutable during a game.
type Question struct {
	Question   string   `json:"question"`
	Correct    string   `json:"correct"`
	Options    []string `json:"options"`
	Category   string   `json:"category"`
	Difficulty string   `json:"difficulty"`
}

// Answer records one player's submission for one question. Correctness is
// recomputed server-side on every write and never trusted from the client.
type Answer struct {
	Answer  string `json:"answer"`
	Correct bool   `json:"correct"`
	At      int64  `json:"at"`
}

// Room is the single persisted game aggregate. Timestamps are absolute
// wall-clock milliseconds; zero means the timer is inactive.
type Room struct {
	ID                 string                       `json:"id"`
	HostID             string                       `json:"hostId"`
	State              string                       `json:"state"`
	Settings           Settings                     `json:"settings"`
	Players            map[string]*Player           `json:"players"`
	CountdownEndsAt    int64                        `json:"countdownEndsAt"`
	QuestionEndsAt     int64                        `json:"questionEndsAt,omitempty"`
	IntermissionEndsAt int64                        `json:"intermissionEndsAt"`
	QIndex             int                          `json:"qIndex"`
	Questions          []Question                   `json:"questions"`
	Answers            map[string]map[string]Answer `json:"answers"`
	CreatedAt          int64                        `json:"createdAt"`
	GameNo             int                          `json:"gameNo"`
	GifIndex           int                          `json:"gifIndex"`
	Build              string                       `json:"build,omitempty"`
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}

// newRoom builds the default document, with the creating player as host.
func newRoom(hostID, name string, now int64) *Room {
	return &Room{
		ID:     roomID,
		HostID: hostID,
		State:  stateLobby,
		Settings: Settings{
			CategoryIDs: []int{},
		},
		Players: map[string]*Player{
			hostID: {ID: hostID, Name: name, Score: 0},
		},
		QIndex:    -1,
		Questions: []Question{},
		Answers:   map[string]map[string]Answer{},
		CreatedAt: now,
	}
}

var (
	nameStrip    = regexp.MustCompile(`[^\p{L}\p{N} _\-'.]`)
	nameCollapse = regexp.MustCompile(`\s+`)
)

// sanitizeName cleans a player-supplied display name: strip everything but
// letters, digits, spaces, and _-'. , collapse runs of whitespace, and cap
// at twenty runes. An empty result falls back to "Player".
func sanitizeName(name string) string {
	cleaned := nameCollapse.ReplaceAllString(nameStrip.ReplaceAllString(strings.TrimSpace(name), ""), " ")
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" {
		cleaned = defaultName
	}

	runes := []rune(cleaned)
	if len(runes) > maxNameLength {
		runes = runes[:maxNameLength]
	}

	return string(runes)
}

// normalize repairs substructures that may be missing or mangled in a
// stored document, so the patch engine always operates on proper maps.
func (r *Room) normalize() {
	if r.Settings.CategoryIDs == nil {
		r.Settings.CategoryIDs = []int{}
	}
	if r.Players == nil {
		r.Players = map[string]*Player{}
	}
	if r.Questions == nil {
		r.Questions = []Question{}
	}
	if r.Answers == nil {
		r.Answers = map[string]map[string]Answer{}
	}
	for q, m := range r.Answers {
		if m == nil {
			r.Answers[q] = map[string]Answer{}
		}
	}
}

func (r *Room) isHost(playerID string) bool {
	return playerID != "" && r.HostID == playerID
}

// scores tallies correct answers per player for the results phase.
func (r *Room) scores() map[string]int {
	tally := make(map[string]int, len(r.Players))
	for id := range r.Players {
		tally[id] = 0
	}
	for _, byPlayer := range r.Answers {
		for id, answer := range byPlayer {
			if answer.Correct {
				tally[id]++
			}
		}
	}
	return tally
}

// applyScores writes the current tally into the roster, so a document in
// the results phase carries final standings. Recomputing is idempotent,
// matching the converging same-state transition.
func (r *Room) applyScores() {
	tally := r.scores()
	for id, p := range r.Players {
		p.Score = tally[id]
	}
}

// reset returns the next-generation document after a host wipe: same
// roster and settings, scores zeroed, all game progress cleared.
func (r *Room) reset(now int64) *Room {
	players := make(map[string]*Player, len(r.Players))
	for id, p := range r.Players {
		players[id] = &Player{ID: p.ID, Name: p.Name, Score: 0}
	}

	hostID := r.HostID
	if hostID == "" {
		for id := range players {
			hostID = id
			break
		}
	}

	next := &Room{
		ID:        roomID,
		HostID:    hostID,
		State:     stateLobby,
		Settings:  r.Settings,
		Players:   players,
		QIndex:    -1,
		Questions: []Question{},
		Answers:   map[string]map[string]Answer{},
		CreatedAt: now,
		GameNo:    r.GameNo + 1,
	}
	next.normalize()

	return next
}
