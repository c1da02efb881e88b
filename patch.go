// The patch engine.
//
// Every mutation to the room arrives as a partial update merged field by
// field under authorization rules: game-control fields apply only when the
// caller is the host, while the answers map is writable by anyone but
// scoped to the caller's own identity. Patches are best-effort; a field the
// caller may not touch, or one that fails to decode, is dropped silently
// rather than failing the request, so the API stays available under
// confused or malicious clients.

package main

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Patch is a client-submitted partial room update, decoded lazily so each
// field can be accepted or dropped on its own.
type Patch map[string]json.RawMessage

// hostFields are writable only by the host. Anything else in a patch,
// other than answers, is ignored outright.
var hostFields = map[string]bool{
	"state":              true,
	"settings":           true,
	"questions":          true,
	"qIndex":             true,
	"countdownEndsAt":    true,
	"questionEndsAt":     true,
	"intermissionEndsAt": true,
	"gifIndex":           true,
	"build":              true,
}

// applyPatch merges a patch into the room on behalf of callerID and
// returns the (mutated) room. It never fails: malformed sub-fields
// degrade to no-ops, and the result is always a normalized document.
//
// Host-gated fields are applied in a fixed order with state last, so a
// transition submitted alongside its settings and question set is judged
// against the post-merge document.
func applyPatch(room *Room, patch Patch, callerID string, host bool, now int64) *Room {
	room.normalize()

	if host {
		if raw, ok := patch["settings"]; ok {
			mergeSettings(room, raw)
		}
		if raw, ok := patch["questions"]; ok {
			var questions []Question
			if err := json.Unmarshal(raw, &questions); err == nil {
				room.Questions = questions
			}
		}
		if raw, ok := patch["qIndex"]; ok {
			var idx int
			if err := json.Unmarshal(raw, &idx); err == nil {
				room.QIndex = idx
			}
		}
		mergeTimestamp(patch, "countdownEndsAt", &room.CountdownEndsAt)
		mergeTimestamp(patch, "questionEndsAt", &room.QuestionEndsAt)
		mergeTimestamp(patch, "intermissionEndsAt", &room.IntermissionEndsAt)
		if raw, ok := patch["gifIndex"]; ok {
			var idx int
			if err := json.Unmarshal(raw, &idx); err == nil {
				room.GifIndex = idx
			}
		}
		if raw, ok := patch["build"]; ok {
			var build string
			if err := json.Unmarshal(raw, &build); err == nil {
				room.Build = build
			}
		}
		if raw, ok := patch["state"]; ok {
			var state string
			if err := json.Unmarshal(raw, &state); err == nil && room.canEnterState(state) {
				room.State = state
				if state == stateResults {
					room.applyScores()
				}
			}
		}
	}

	if raw, ok := patch["answers"]; ok {
		mergeAnswers(room, raw, callerID, host, now)
	}

	room.normalize()

	return room
}

func mergeTimestamp(patch Patch, field string, dst *int64) {
	raw, ok := patch[field]
	if !ok {
		return
	}
	var ts int64
	if err := json.Unmarshal(raw, &ts); err == nil {
		*dst = ts
	}
}

// mergeSettings applies the settings sub-merge: categoryIds replace the
// prior set only if array-shaped, entries coerced to unique non-negative
// integers in first-occurrence order and capped at five; the two enum
// fields replace only when the incoming value is in the allowed set, each
// judged on its own.
func mergeSettings(room *Room, raw json.RawMessage) {
	var incoming struct {
		CategoryIDs     json.RawMessage `json:"categoryIds"`
		QuestionCount   json.RawMessage `json:"questionCount"`
		QuestionTimeSec json.RawMessage `json:"questionTimeSec"`
	}
	if err := json.Unmarshal(raw, &incoming); err != nil {
		return
	}

	if incoming.CategoryIDs != nil {
		var entries []any
		if err := json.Unmarshal(incoming.CategoryIDs, &entries); err == nil {
			room.Settings.CategoryIDs = coerceCategoryIDs(entries)
		}
	}
	if incoming.QuestionCount != nil {
		var count int
		if err := json.Unmarshal(incoming.QuestionCount, &count); err == nil && intInSet(count, questionCounts) {
			room.Settings.QuestionCount = &count
		}
	}
	if incoming.QuestionTimeSec != nil {
		var secs int
		if err := json.Unmarshal(incoming.QuestionTimeSec, &secs); err == nil && intInSet(secs, questionTimeSecs) {
			room.Settings.QuestionTimeSec = &secs
		}
	}
}

// coerceCategoryIDs turns a raw JSON array into at most five unique
// non-negative integer category IDs, keeping first-occurrence order.
// Numeric strings are accepted the way the legacy clients sent them.
func coerceCategoryIDs(entries []any) []int {
	ids := make([]int, 0, maxCategories)
	seen := make(map[int]bool, maxCategories)

	for _, entry := range entries {
		id, ok := coerceInt(entry)
		if !ok || id < 0 || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
		if len(ids) == maxCategories {
			break
		}
	}

	return ids
}

func coerceInt(value any) (int, bool) {
	switch v := value.(type) {
	case float64:
		return int(v), true
	case string:
		if n, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return int(n), true
		}
	}
	return 0, false
}

func intInSet(n int, set []int) bool {
	for _, s := range set {
		if n == s {
			return true
		}
	}
	return false
}

// mergeAnswers upserts answer entries from the patch. Only the entry
// keyed by the caller's own identity is honored; entries a client embeds
// for other players are dropped. Question indices without a corresponding
// question are skipped, correctness is recomputed against the stored
// question, and a later submission overwrites an earlier one.
//
// One host privilege: an explicitly empty answers object wipes the map,
// which is how the new-game transition clears the previous game's board.
func mergeAnswers(room *Room, raw json.RawMessage, callerID string, host bool, now int64) {
	if callerID == "" {
		return
	}

	var byQuestion map[string]json.RawMessage
	if err := json.Unmarshal(raw, &byQuestion); err != nil {
		return
	}

	if host && byQuestion != nil && len(byQuestion) == 0 {
		room.Answers = map[string]map[string]Answer{}
		return
	}

	for qKey, rawEntries := range byQuestion {
		idx, err := strconv.Atoi(strings.TrimSpace(qKey))
		if err != nil || idx < 0 || idx >= len(room.Questions) {
			continue
		}

		var byPlayer map[string]json.RawMessage
		if err := json.Unmarshal(rawEntries, &byPlayer); err != nil {
			continue
		}

		rawSubmission, ok := byPlayer[callerID]
		if !ok {
			continue
		}
		var submission struct {
			Answer *string `json:"answer"`
		}
		if err := json.Unmarshal(rawSubmission, &submission); err != nil || submission.Answer == nil {
			continue
		}

		key := strconv.Itoa(idx)
		if room.Answers[key] == nil {
			room.Answers[key] = map[string]Answer{}
		}
		room.Answers[key][callerID] = Answer{
			Answer:  *submission.Answer,
			Correct: *submission.Answer == room.Questions[idx].Correct,
			At:      now,
		}
	}
}
