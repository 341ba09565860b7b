package httpserver

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"product_reviews/internal/app"
	"product_reviews/internal/domain"
)

type Handlers struct {
	Q *app.QueryService
	C *app.CommandService
}

type problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

func (s *Server) MountHandlers(h *Handlers) {
	s.mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); _, _ = w.Write([]byte("ok")) })

	s.mux.Post("/v1/products", h.createProduct)
	s.mux.Get("/v1/products", h.listProducts)
	s.mux.Get("/v1/products/{id}", h.getProduct)
	s.mux.Put("/v1/products/{id}", h.updateProduct)
	s.mux.Delete("/v1/products/{id}", h.deleteProduct)

	s.mux.Post("/v1/reviews", h.createReview)
	s.mux.Get("/v1/reviews", h.listReviews)
	s.mux.Get("/v1/reviews/{id}", h.getReview)
	s.mux.Get("/v1/reviews/{id}/status", h.reviewStatus)
	s.mux.Put("/v1/reviews/{id}", h.updateReview)
	s.mux.Delete("/v1/reviews/{id}", h.deleteReview)
}

// ---- wire payloads ----

type productPayload struct {
	Name        string  `json:"name"`
	Description *string `json:"description"`
	Price       float64 `json:"price"`
}

type productOut struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Description *string     `json:"description"`
	Price       float64     `json:"price"`
	CreatedAt   time.Time   `json:"created_at"`
	Reviews     []reviewOut `json:"reviews"`
}

type reviewPayload struct {
	ProductID string  `json:"product_id"`
	Author    *string `json:"author"`
	Text      string  `json:"text"`
}

type reviewUpdatePayload struct {
	Text string `json:"text"`
}

type reviewOut struct {
	ID               string    `json:"id"`
	ProductID        string    `json:"product_id"`
	Author           *string   `json:"author"`
	Text             string    `json:"text"`
	Status           string    `json:"status"`
	ModerationReason *string   `json:"moderation_reason"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func toReviewOut(rv domain.Review) reviewOut {
	return reviewOut{
		ID:               rv.ID,
		ProductID:        rv.ProductID,
		Author:           rv.Author,
		Text:             rv.Text,
		Status:           string(rv.Status),
		ModerationReason: rv.ModerationReason,
		CreatedAt:        rv.CreatedAt,
		UpdatedAt:        rv.UpdatedAt,
	}
}

func toProductOut(p domain.Product, rs []domain.Review) productOut {
	out := productOut{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price,
		CreatedAt:   p.CreatedAt,
		Reviews:     make([]reviewOut, 0, len(rs)),
	}
	for _, rv := range rs {
		out.Reviews = append(out.Reviews, toReviewOut(rv))
	}
	return out
}

// ---- helpers ----

func writeProblem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(problem{Type: "about:blank", Title: title, Status: status, Detail: detail}); err != nil {
		log.Error().Err(err).Msg("write JSON problem response failed")
	}
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeProblem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, domain.ErrQueueUnavailable):
		// The producer fails loudly rather than leaving the review silently
		// stuck in pending.
		writeProblem(w, http.StatusBadGateway, "Moderation Unavailable", err.Error())
	default:
		log.Error().Err(err).Msg("request failed")
		writeProblem(w, http.StatusInternalServerError, "Internal Server Error", "")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("write JSON response failed")
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid Body", "request body must be valid JSON")
		return false
	}
	return true
}

func validateProduct(p productPayload) string {
	if n := strings.TrimSpace(p.Name); n == "" || len(n) > 255 {
		return "name must be 1..255 characters"
	}
	if p.Price <= 0 {
		return "price must be greater than zero"
	}
	return ""
}

func validateReviewText(text string) string {
	if strings.TrimSpace(text) == "" {
		return "text must not be empty"
	}
	return ""
}

// calcETagAndBody marshals once and hashes once, returning both ETag and body.
func calcETagAndBody(v any) (string, []byte) {
	body, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal object for ETag/body")
		return "", nil
	}
	sum := sha1.Sum(body)
	etag := `W/"` + hex.EncodeToString(sum[:]) + `"`
	return etag, body
}

// ---- products ----

func (h *Handlers) createProduct(w http.ResponseWriter, r *http.Request) {
	var in productPayload
	if !decodeBody(w, r, &in) {
		return
	}
	if msg := validateProduct(in); msg != "" {
		writeProblem(w, http.StatusBadRequest, "Validation Failed", msg)
		return
	}
	p, err := h.C.CreateProduct(r.Context(), app.ProductInput{Name: in.Name, Description: in.Description, Price: in.Price})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toProductOut(p, nil))
}

func (h *Handlers) listProducts(w http.ResponseWriter, r *http.Request) {
	ps, err := h.Q.ListProducts(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]productOut, 0, len(ps))
	for _, p := range ps {
		out = append(out, toProductOut(p, nil))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) getProduct(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	includeUnpublished := r.URL.Query().Get("include_unpublished") == "true"
	pv, err := h.Q.GetProduct(r.Context(), id, includeUnpublished)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductOut(pv.Product, pv.Reviews))
}

func (h *Handlers) updateProduct(w http.ResponseWriter, r *http.Request) {
	var in productPayload
	if !decodeBody(w, r, &in) {
		return
	}
	if msg := validateProduct(in); msg != "" {
		writeProblem(w, http.StatusBadRequest, "Validation Failed", msg)
		return
	}
	p, err := h.C.UpdateProduct(r.Context(), chi.URLParam(r, "id"), app.ProductInput{Name: in.Name, Description: in.Description, Price: in.Price})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductOut(p, nil))
}

func (h *Handlers) deleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := h.C.DeleteProduct(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---- reviews ----

func (h *Handlers) createReview(w http.ResponseWriter, r *http.Request) {
	var in reviewPayload
	if !decodeBody(w, r, &in) {
		return
	}
	if in.ProductID == "" {
		writeProblem(w, http.StatusBadRequest, "Validation Failed", "product_id is required")
		return
	}
	if msg := validateReviewText(in.Text); msg != "" {
		writeProblem(w, http.StatusBadRequest, "Validation Failed", msg)
		return
	}
	if in.Author != nil && len(*in.Author) > 255 {
		writeProblem(w, http.StatusBadRequest, "Validation Failed", "author must be at most 255 characters")
		return
	}
	rv, err := h.C.CreateReview(r.Context(), app.ReviewInput{ProductID: in.ProductID, Author: in.Author, Text: in.Text})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toReviewOut(rv))
}

func (h *Handlers) updateReview(w http.ResponseWriter, r *http.Request) {
	var in reviewUpdatePayload
	if !decodeBody(w, r, &in) {
		return
	}
	if msg := validateReviewText(in.Text); msg != "" {
		writeProblem(w, http.StatusBadRequest, "Validation Failed", msg)
		return
	}
	rv, err := h.C.UpdateReviewText(r.Context(), chi.URLParam(r, "id"), in.Text)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toReviewOut(rv))
}

func (h *Handlers) listReviews(w http.ResponseWriter, r *http.Request) {
	q := domain.ReviewsQuery{PublishedOnly: true}
	if v := r.URL.Query().Get("published_only"); v != "" {
		q.PublishedOnly = v != "false"
	}
	if v := r.URL.Query().Get("product_id"); v != "" {
		pid := v
		q.ProductID = &pid
	}
	if ls := r.URL.Query().Get("limit"); ls != "" {
		l, err := strconv.Atoi(ls)
		if err != nil || l <= 0 || l > 200 {
			writeProblem(w, http.StatusBadRequest, "Invalid limit", "limit must be an integer between 1 and 200")
			return
		}
		q.Limit = l
	}

	rs, err := h.Q.ListReviews(r.Context(), q)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]reviewOut, 0, len(rs))
	for _, rv := range rs {
		out = append(out, toReviewOut(rv))
	}

	etag, body := calcETagAndBody(out)
	if inm := r.Header.Get("If-None-Match"); inm != "" && inm == etag {
		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("ETag", etag)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		log.Error().Err(err).Msg("failed to write listReviews body")
	}
}

func (h *Handlers) getReview(w http.ResponseWriter, r *http.Request) {
	rv, err := h.Q.GetReview(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toReviewOut(rv))
}

func (h *Handlers) reviewStatus(w http.ResponseWriter, r *http.Request) {
	rv, err := h.Q.GetReview(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(rv.Status)})
}

func (h *Handlers) deleteReview(w http.ResponseWriter, r *http.Request) {
	if err := h.C.DeleteReview(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
