// The room API.
//
// One action-style endpoint carries the whole sync protocol: clients poll
// getRoom sub-second and submit partial updates through updateRoom. Each
// request is an independent read-modify-write cycle against the stored
// document with no cross-request locking; two overlapping updates resolve
// last-write-wins at document granularity. With at most ten players each
// only writing their own entries, the realistic collision window is narrow
// and confined to same-key overwrites.

package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"
)

const maxBodyBytes = 1 << 20

type apiServer struct {
	cfg   *Config
	store *roomStore
}

type apiRequest struct {
	Action   string          `json:"action"`
	Name     string          `json:"name"`
	PlayerID string          `json:"playerId"`
	Patch    json.RawMessage `json:"patch"`
}

type apiResponse struct {
	OK   bool  `json:"ok"`
	Room *Room `json:"room,omitempty"`
}

type apiErrorResponse struct {
	Error string `json:"error"`
}

func respondJSON(cfg *Config, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	securityHeaders(cfg, w)
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(cfg *Config, w http.ResponseWriter, err error) {
	apiErr := asAPIError(err)

	respondJSON(cfg, w, apiErr.status, apiErrorResponse{Error: apiErr.message})
}

// handleAPI decodes the action envelope and dispatches. The action may
// arrive in the query string or the body; the body is capped at 1 MiB.
func (a *apiServer) handleAPI() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		startTime := time.Now()

		var req apiRequest
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			respondError(a.cfg, w, badRequest("Invalid request body"))
			return
		}

		action := r.URL.Query().Get("action")
		if action == "" {
			action = req.Action
		}

		room, err := a.dispatch(r.Context(), action, &req)
		if err != nil {
			logf(a.cfg, "ROOMS: %s from %s failed: %v", action, realIP(r), err)
			respondError(a.cfg, w, err)
			return
		}

		logf(a.cfg, "ROOMS: %s from %s in %s",
			action,
			realIP(r),
			time.Since(startTime).Round(time.Microsecond),
		)

		respondJSON(a.cfg, w, http.StatusOK, apiResponse{OK: true, Room: room})
	}
}

// dispatch runs one action and returns the room to include in the
// response, or nil for room-less successes.
func (a *apiServer) dispatch(ctx context.Context, action string, req *apiRequest) (*Room, error) {
	switch action {
	case "joinOrCreate":
		return a.joinOrCreate(ctx, req)
	case "getRoom":
		return a.getRoom(ctx)
	case "updateRoom":
		return a.updateRoom(ctx, req)
	case "wipeAndReset":
		return a.wipeAndReset(ctx, req)
	case "nukeRoom":
		return nil, a.nukeRoom(ctx, req)
	}

	return nil, badRequest("Unknown action")
}

// joinOrCreate creates the room if absent (the caller becomes host) or
// upserts the caller into the roster. Rejoining under an existing identity
// always succeeds; new identities are rejected once ten players are in.
func (a *apiServer) joinOrCreate(ctx context.Context, req *apiRequest) (*Room, error) {
	name := sanitizeName(req.Name)
	playerID := req.PlayerID
	if playerID == "" {
		playerID = uuid.NewString()
	}

	room, ok, err := a.store.load(ctx)
	if err != nil {
		return nil, unavailable("Storage unavailable")
	}

	if !ok {
		if a.store.creationBlocked() {
			return nil, forbidden("Room creation is temporarily blocked")
		}

		room = newRoom(playerID, name, nowMillis())
		if err := a.store.save(ctx, room); err != nil {
			return nil, unavailable("Storage unavailable")
		}
		logf(a.cfg, "ROOMS: Player %q created the room as host", name)

		return room, nil
	}

	if len(room.Players) >= maxPlayers && room.Players[playerID] == nil {
		return nil, forbidden("Room is full")
	}

	if existing := room.Players[playerID]; existing != nil {
		existing.Name = name
	} else {
		room.Players[playerID] = &Player{ID: playerID, Name: name, Score: 0}
	}

	if err := a.store.save(ctx, room); err != nil {
		return nil, unavailable("Storage unavailable")
	}

	return room, nil
}

func (a *apiServer) getRoom(ctx context.Context) (*Room, error) {
	room, ok, err := a.store.load(ctx)
	if err != nil {
		return nil, unavailable("Storage unavailable")
	}
	if !ok {
		return nil, notFound("Room not found")
	}

	return room, nil
}

// updateRoom feeds the caller's patch through the patch engine and
// persists the result. Only the outer fields are hard-validated; the
// engine itself drops what it cannot or may not apply.
func (a *apiServer) updateRoom(ctx context.Context, req *apiRequest) (*Room, error) {
	if req.PlayerID == "" {
		return nil, badRequest("Missing playerId")
	}

	var patch Patch
	if len(req.Patch) == 0 || json.Unmarshal(req.Patch, &patch) != nil || patch == nil {
		return nil, badRequest("Missing patch")
	}

	room, ok, err := a.store.load(ctx)
	if err != nil {
		return nil, unavailable("Storage unavailable")
	}
	if !ok {
		return nil, notFound("Room not found")
	}

	host := room.isHost(req.PlayerID)
	if !host {
		if dropped := droppedHostFields(patch); len(dropped) > 0 {
			logf(a.cfg, "ROOMS: Dropped host-only fields %v from non-host patch", dropped)
		}
	}

	next := applyPatch(room, patch, req.PlayerID, host, nowMillis())
	if err := a.store.save(ctx, next); err != nil {
		return nil, unavailable("Storage unavailable")
	}

	return next, nil
}

// droppedHostFields lists the host-gated fields a patch touches, for
// verbose logging when a non-host submits them.
func droppedHostFields(patch Patch) []string {
	var dropped []string
	for field := range patch {
		if hostFields[field] {
			dropped = append(dropped, field)
		}
	}
	return dropped
}

// wipeAndReset is the host-only new-generation reset: roster and settings
// survive, scores and game progress do not, and gameNo increments so
// polling clients can tell the generations apart.
func (a *apiServer) wipeAndReset(ctx context.Context, req *apiRequest) (*Room, error) {
	room, ok, err := a.store.load(ctx)
	if err != nil {
		return nil, unavailable("Storage unavailable")
	}
	if !ok {
		return nil, notFound("Room not found")
	}
	if !room.isHost(req.PlayerID) {
		return nil, forbidden("Only host can reset")
	}

	next := room.reset(nowMillis())
	if err := a.store.save(ctx, next); err != nil {
		return nil, unavailable("Storage unavailable")
	}

	logf(a.cfg, "ROOMS: Host reset the room to generation %d", next.GameNo)

	return next, nil
}

// nukeRoom is the host-only room deletion. Deleting an absent room is a
// success so retries converge, but only an actual host-issued deletion
// starts the re-creation cooldown.
func (a *apiServer) nukeRoom(ctx context.Context, req *apiRequest) error {
	room, ok, err := a.store.load(ctx)
	if err != nil {
		return unavailable("Storage unavailable")
	}
	if !ok {
		return nil
	}
	if !room.isHost(req.PlayerID) {
		return forbidden("Only host can reset")
	}

	if err := a.store.delete(ctx); err != nil {
		return unavailable("Storage unavailable")
	}

	logf(a.cfg, "ROOMS: Room nuked")

	return nil
}
