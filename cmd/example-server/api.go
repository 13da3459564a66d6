package main

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"tauben-gateway/internal/logger"
)

type pigeon struct {
	ID        int       `json:"id"`
	Name      string    `json:"name"`
	Color     string    `json:"color,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type sighting struct {
	PigeonID int       `json:"pigeonId"`
	Lat      float64   `json:"lat"`
	Lng      float64   `json:"lng"`
	SeenAt   time.Time `json:"seenAt"`
}

// catalog guarda pombos e avistamentos em memória.
type catalog struct {
	mu        sync.Mutex
	nextID    int
	pigeons   map[int]pigeon
	sightings []sighting
}

func newCatalog() *catalog {
	return &catalog{nextID: 1, pigeons: make(map[int]pigeon)}
}

func (c *catalog) add(p pigeon) pigeon {
	c.mu.Lock()
	defer c.mu.Unlock()
	p.ID = c.nextID
	c.nextID++
	c.pigeons[p.ID] = p
	return p
}

func (c *catalog) list() []pigeon {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]pigeon, 0, len(c.pigeons))
	for id := 1; id < c.nextID; id++ {
		if p, ok := c.pigeons[id]; ok {
			out = append(out, p)
		}
	}
	return out
}

func (c *catalog) get(id int) (pigeon, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.pigeons[id]
	return p, ok
}

func (c *catalog) remove(id int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.pigeons[id]; !ok {
		return false
	}
	delete(c.pigeons, id)
	return true
}

func (c *catalog) addSighting(s sighting) {
	c.mu.Lock()
	c.sightings = append(c.sightings, s)
	c.mu.Unlock()
}

func (c *catalog) listSightings() []sighting {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]sighting(nil), c.sightings...)
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newAPI(c *catalog, log *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			log.Debug("request", slog.String("method", req.Method), logger.Path(req.URL.Path))
			next.ServeHTTP(w, req)
		})
	})

	r.Route("/api", func(api chi.Router) {
		api.Route("/pigeons", func(pr chi.Router) {
			pr.Get("/", func(w http.ResponseWriter, _ *http.Request) {
				writeJSON(w, http.StatusOK, c.list())
			})
			pr.Post("/", func(w http.ResponseWriter, req *http.Request) {
				var p pigeon
				if err := json.NewDecoder(req.Body).Decode(&p); err != nil || p.Name == "" {
					writeJSON(w, http.StatusBadRequest, errorBody{"VALIDATION_ERROR", "name is required"})
					return
				}
				p.CreatedAt = time.Now().UTC()
				writeJSON(w, http.StatusCreated, c.add(p))
			})
			pr.Get("/{id}", func(w http.ResponseWriter, req *http.Request) {
				id, err := strconv.Atoi(chi.URLParam(req, "id"))
				p, ok := c.get(id)
				if err != nil || !ok {
					writeJSON(w, http.StatusNotFound, errorBody{"NOT_FOUND", "pigeon not found"})
					return
				}
				writeJSON(w, http.StatusOK, p)
			})
			pr.Delete("/{id}", func(w http.ResponseWriter, req *http.Request) {
				id, err := strconv.Atoi(chi.URLParam(req, "id"))
				if err != nil || !c.remove(id) {
					writeJSON(w, http.StatusNotFound, errorBody{"NOT_FOUND", "pigeon not found"})
					return
				}
				w.WriteHeader(http.StatusNoContent)
			})
		})

		api.Post("/images", func(w http.ResponseWriter, req *http.Request) {
			n, _ := io.Copy(io.Discard, http.MaxBytesReader(w, req.Body, 10<<20))
			writeJSON(w, http.StatusCreated, map[string]any{"received": n})
		})

		api.Get("/sightings", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, c.listSightings())
		})
		api.Post("/sightings", func(w http.ResponseWriter, req *http.Request) {
			var s sighting
			if err := json.NewDecoder(req.Body).Decode(&s); err != nil {
				writeJSON(w, http.StatusBadRequest, errorBody{"VALIDATION_ERROR", "invalid sighting"})
				return
			}
			if _, ok := c.get(s.PigeonID); !ok {
				writeJSON(w, http.StatusNotFound, errorBody{"NOT_FOUND", "pigeon not found"})
				return
			}
			if s.SeenAt.IsZero() {
				s.SeenAt = time.Now().UTC()
			}
			c.addSighting(s)
			writeJSON(w, http.StatusCreated, s)
		})

		api.Post("/auth/login", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})
	})

	return r
}
