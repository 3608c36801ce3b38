// Package api exposes the HTTP surface: the puzzle catalog, room
// stats, join QR codes, and the websocket upgrade endpoint.
package api

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/xwordlive/xword/internal/puzzle"
	"github.com/xwordlive/xword/internal/store"
	"github.com/xwordlive/xword/internal/ws"
)

const maxPuzzleUpload = 1 << 20

type API struct {
	hub   *ws.Hub
	store *store.Store

	// publicURL is the externally reachable base URL encoded into
	// join QR codes.
	publicURL string
}

func New(hub *ws.Hub, st *store.Store, publicURL string) *API {
	return &API{
		hub:       hub,
		store:     st,
		publicURL: publicURL,
	}
}

// Router builds the full HTTP handler, websocket endpoint included.
func (a *API) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", a.HealthHandler)
	r.Get("/ws", func(w http.ResponseWriter, req *http.Request) {
		ws.ServeWs(a.hub, w, req)
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/stats", a.StatsHandler)

		r.Route("/puzzles", func(r chi.Router) {
			r.Get("/", a.ListPuzzlesHandler)
			r.Post("/", a.CreatePuzzleHandler)
			r.Get("/{id}", a.GetPuzzleHandler)
			r.Get("/{id}/data", a.GetPuzzleDataHandler)
			r.Delete("/{id}", a.DeletePuzzleHandler)
		})

		r.Route("/rooms", func(r chi.Router) {
			r.Get("/", a.ListRoomsHandler)
			r.Get("/{code}", a.GetRoomHandler)
			r.Get("/{code}/qr", a.RoomQRHandler)
		})
	})

	return r
}

func jsonResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("Error encoding JSON response: %v", err)
	}
}

func errorResponse(w http.ResponseWriter, status int, message string) {
	jsonResponse(w, status, map[string]string{"error": message})
}

func (a *API) HealthHandler(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) StatsHandler(w http.ResponseWriter, r *http.Request) {
	stats := map[string]interface{}{
		"active_rooms":   a.hub.GetRoomCount(),
		"active_clients": a.hub.GetClientCount(),
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	}

	if a.store != nil {
		if count, err := a.store.CountPuzzles(); err == nil {
			stats["puzzle_count"] = count
		}
	}

	jsonResponse(w, http.StatusOK, stats)
}

// Puzzle handlers

type PuzzleResponse struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Author    string    `json:"author,omitempty"`
	Paper     string    `json:"paper,omitempty"`
	Date      string    `json:"date,omitempty"`
	Size      int       `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

func puzzleResponse(rec *store.Record) PuzzleResponse {
	return PuzzleResponse{
		ID:        rec.ID,
		Title:     rec.Title,
		Author:    rec.Author,
		Paper:     rec.Paper,
		Date:      rec.Date,
		Size:      rec.Size,
		CreatedAt: rec.CreatedAt,
	}
}

func (a *API) ListPuzzlesHandler(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if offset < 0 {
		offset = 0
	}

	records, err := a.store.ListPuzzles(limit, offset)
	if err != nil {
		errorResponse(w, http.StatusInternalServerError, "Failed to list puzzles")
		return
	}

	response := make([]PuzzleResponse, len(records))
	for i := range records {
		response[i] = puzzleResponse(&records[i])
	}

	total, _ := a.store.CountPuzzles()

	jsonResponse(w, http.StatusOK, map[string]interface{}{
		"puzzles": response,
		"total":   total,
		"limit":   limit,
		"offset":  offset,
	})
}

func (a *API) CreatePuzzleHandler(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxPuzzleUpload))
	if err != nil {
		errorResponse(w, http.StatusBadRequest, "Failed to read request body")
		return
	}

	p, err := puzzle.Parse(raw)
	if err != nil {
		errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	if p.ID == "" {
		errorResponse(w, http.StatusBadRequest, "Puzzle id is required")
		return
	}

	if err := a.store.CreatePuzzle(p.ID, raw); err != nil {
		errorResponse(w, http.StatusInternalServerError, "Failed to store puzzle")
		return
	}

	rec, err := a.store.GetPuzzle(p.ID)
	if err != nil || rec == nil {
		errorResponse(w, http.StatusInternalServerError, "Failed to get puzzle")
		return
	}

	jsonResponse(w, http.StatusCreated, puzzleResponse(rec))
}

func (a *API) GetPuzzleHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	rec, err := a.store.GetPuzzle(id)
	if err != nil {
		errorResponse(w, http.StatusInternalServerError, "Failed to get puzzle")
		return
	}
	if rec == nil {
		errorResponse(w, http.StatusNotFound, "Puzzle not found")
		return
	}

	jsonResponse(w, http.StatusOK, puzzleResponse(rec))
}

// GetPuzzleDataHandler serves the raw puzzle definition. Joining
// clients fetch this to compile the board locally.
func (a *API) GetPuzzleDataHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	data, err := a.store.GetPuzzleData(id)
	if err != nil {
		errorResponse(w, http.StatusInternalServerError, "Failed to get puzzle")
		return
	}
	if data == nil {
		errorResponse(w, http.StatusNotFound, "Puzzle not found")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (a *API) DeletePuzzleHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := a.store.DeletePuzzle(id); err != nil {
		errorResponse(w, http.StatusInternalServerError, "Failed to delete puzzle")
		return
	}

	jsonResponse(w, http.StatusOK, map[string]string{"message": "Puzzle deleted"})
}

// Room handlers

func (a *API) ListRoomsHandler(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, map[string]interface{}{
		"rooms": a.hub.GetActiveRooms(),
	})
}

func (a *API) GetRoomHandler(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	for _, info := range a.hub.GetActiveRooms() {
		if info.Code == code {
			jsonResponse(w, http.StatusOK, info)
			return
		}
	}
	errorResponse(w, http.StatusNotFound, "Room not found")
}

// RoomQRHandler renders a join link for an active room as a PNG.
func (a *API) RoomQRHandler(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	if !a.hub.RoomExists(code) {
		errorResponse(w, http.StatusNotFound, "Room not found")
		return
	}

	png, err := qrcode.Encode(a.publicURL+"/join/"+code, qrcode.Medium, 256)
	if err != nil {
		errorResponse(w, http.StatusInternalServerError, "Failed to render QR code")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}
