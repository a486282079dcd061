package http

import (
	"encoding/json"
	"errors"
	"image/png"
	"log/slog"
	"net/http"
	"sort"
	"strconv"

	"github.com/go-chi/chi/v5"
	"reveal-challenge-service/internal/app"
	"reveal-challenge-service/internal/domain"
	"reveal-challenge-service/internal/render"
)

const (
	defaultImageSide = 256
	maxImageSide     = 2048
)

type RESTHandler struct {
	service  *app.ChallengeService
	variants []domain.Variant
	log      *slog.Logger
}

func NewRESTHandler(service *app.ChallengeService, variants map[string]domain.Variant, logger *slog.Logger) *RESTHandler {
	if logger == nil {
		logger = slog.Default()
	}
	list := make([]domain.Variant, 0, len(variants))
	for _, v := range variants {
		list = append(list, v)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return &RESTHandler{service: service, variants: list, log: logger}
}

type startRequest struct {
	UserID  string `json:"userId"`
	Variant string `json:"variant"`
}

type submitRequest struct {
	OptionID string `json:"optionId"`
}

type commandResponse struct {
	Accepted bool            `json:"accepted"`
	Snapshot domain.Snapshot `json:"snapshot"`
}

type variantView struct {
	Name    string             `json:"name"`
	Mode    string             `json:"mode"`
	Penalty int                `json:"penalty"`
	Stages  []domain.StageSpec `json:"stages"`
}

func (h *RESTHandler) ListVariants(w http.ResponseWriter, r *http.Request) {
	out := make([]variantView, 0, len(h.variants))
	for _, v := range h.variants {
		out = append(out, variantView{Name: v.Name, Mode: v.Mode.String(), Penalty: v.Penalty, Stages: v.Catalog})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *RESTHandler) StartSession(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "missing userId")
		return
	}
	snap, err := h.service.Start(r.Context(), req.UserID, req.Variant)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

func (h *RESTHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	snap, err := h.service.Snapshot(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *RESTHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	snap, accepted, err := h.service.Submit(r.Context(), chi.URLParam(r, "id"), req.OptionID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, commandResponse{Accepted: accepted, Snapshot: snap})
}

func (h *RESTHandler) Advance(w http.ResponseWriter, r *http.Request) {
	snap, accepted, err := h.service.Advance(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, commandResponse{Accepted: accepted, Snapshot: snap})
}

func (h *RESTHandler) Claim(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.Claim(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *RESTHandler) ExitSession(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.Exit(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// RenderImage draws the current round at ?w=&h= and encodes it as PNG.
// A missing source still yields the placeholder, flagged in X-Image-Error.
func (h *RESTHandler) RenderImage(w http.ResponseWriter, r *http.Request) {
	size, ok := parseSize(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "w and h must be between 1 and 2048")
		return
	}
	img, err := h.service.Render(r.Context(), chi.URLParam(r, "id"), size)
	if err != nil && !errors.Is(err, domain.ErrImageLoad) {
		h.fail(w, r, err)
		return
	}
	if err != nil {
		w.Header().Set("X-Image-Error", err.Error())
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	if err := png.Encode(w, img); err != nil {
		h.log.Warn("encode png failed", "error", err)
	}
}

func parseSize(r *http.Request) (render.Size, bool) {
	side := func(key string) (int, bool) {
		raw := r.URL.Query().Get(key)
		if raw == "" {
			return defaultImageSide, true
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxImageSide {
			return 0, false
		}
		return n, true
	}
	width, ok := side("w")
	if !ok {
		return render.Size{}, false
	}
	height, ok := side("h")
	if !ok {
		return render.Size{}, false
	}
	return render.Size{W: width, H: height}, true
}

func (h *RESTHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrSessionNotFound), errors.Is(err, domain.ErrVariantNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrNotFinished):
		return http.StatusConflict
	case errors.Is(err, domain.ErrEmptyPool):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrGrant):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorPayload{Message: msg})
}
