package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/fairyhunter13/catalog-import-service/internal/catalog"
	"github.com/fairyhunter13/catalog-import-service/internal/config"
	"github.com/fairyhunter13/catalog-import-service/internal/importer"
	"github.com/fairyhunter13/catalog-import-service/internal/model"
	"github.com/fairyhunter13/catalog-import-service/internal/queue"
	"github.com/fairyhunter13/catalog-import-service/internal/store"
)

// BlobWriter is the slice of the blob store the upload endpoint needs.
type BlobWriter interface {
	Put(ctx context.Context, key string, r io.Reader) (int64, error)
}

// App wires the HTTP handlers to the pipeline components.
type App struct {
	Cfg        config.Config
	Issuer     *importer.Issuer
	Store      *store.Store
	Aggregator *catalog.Aggregator
	Queue      *queue.Queue
	Blob       BlobWriter
	started    time.Time
}

// NewApp constructs the handler set.
func NewApp(cfg config.Config, issuer *importer.Issuer, st *store.Store, agg *catalog.Aggregator, q *queue.Queue, b BlobWriter) *App {
	return &App{Cfg: cfg, Issuer: issuer, Store: st, Aggregator: agg, Queue: q, Blob: b, started: time.Now()}
}

type uploadCredentialResponse struct {
	Message   string `json:"message"`
	UploadURL string `json:"uploadUrl"`
	FileName  string `json:"fileName"`
	Key       string `json:"key"`
	ExpiresIn int    `json:"expiresIn"`
}

// handleImport issues an upload credential for the requested file name.
func (a *App) handleImport(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	cred, err := a.Issuer.IssueUploadCredential(name)
	switch {
	case err == nil:
	case errors.Is(err, importer.ErrNameRequired),
		errors.Is(err, importer.ErrInvalidFileType),
		errors.Is(err, importer.ErrInvalidFileName):
		WriteJSONMessage(w, http.StatusBadRequest, err.Error())
		return
	default:
		log.Error().Err(err).Str("name", name).Msg("upload credential issue failed")
		WriteJSONMessage(w, http.StatusInternalServerError, "Failed to generate upload URL")
		return
	}
	writeJSON(w, http.StatusOK, uploadCredentialResponse{
		Message:   "Upload URL generated successfully",
		UploadURL: cred.UploadURL,
		FileName:  cred.FileName,
		Key:       cred.Key,
		ExpiresIn: cred.ExpiresIn,
	})
}

// handleUpload is the blob-store write boundary: it accepts the body under
// the key the credential was minted for. The token must match the exact key.
func (a *App) handleUpload(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "*")
	token := r.URL.Query().Get("token")
	if token == "" {
		WriteJSONMessage(w, http.StatusUnauthorized, "Upload token is required")
		return
	}
	if err := a.Issuer.VerifyUploadToken(token, key); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("upload token rejected")
		WriteJSONMessage(w, http.StatusForbidden, "Invalid upload token")
		return
	}
	n, err := a.Blob.Put(r.Context(), key, r.Body)
	if err != nil {
		log.Error().Err(err).Str("key", key).Msg("upload store failed")
		WriteJSONMessage(w, http.StatusInternalServerError, "Failed to store upload")
		return
	}
	log.Info().Str("key", key).Int64("bytes", n).Msg("upload stored")
	WriteJSONMessage(w, http.StatusOK, "Upload accepted")
}

// handleListProducts serves the denormalized product list.
func (a *App) handleListProducts(w http.ResponseWriter, r *http.Request) {
	views, err := a.Aggregator.List(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("list products failed")
		WriteJSONError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if views == nil {
		views = []model.ProductView{}
	}
	writeJSON(w, http.StatusOK, views)
}

// handleGetProduct serves one denormalized product.
func (a *App) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		WriteJSONError(w, http.StatusBadRequest, "Missing productId in path parameters")
		return
	}
	view, err := a.Aggregator.GetByID(r.Context(), id)
	if errors.Is(err, catalog.ErrNotFound) {
		WriteJSONError(w, http.StatusNotFound, fmt.Sprintf("Product with ID %s not found", id))
		return
	}
	if err != nil {
		log.Error().Err(err).Str("product_id", id).Msg("get product failed")
		WriteJSONError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type createProductRequest struct {
	Title       *string  `json:"title"`
	Description *string  `json:"description"`
	Price       *float64 `json:"price"`
	Count       *int64   `json:"count"`
}

func (req createProductRequest) valid() bool {
	return req.Title != nil && *req.Title != "" &&
		req.Description != nil &&
		req.Price != nil && *req.Price > 0 &&
		req.Count != nil && *req.Count >= 0
}

// handleCreateProduct is the direct-create path: the same atomic dual-write
// the batch consumer performs, applied to a single validated request.
func (a *App) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	ct := r.Header.Get("Content-Type")
	if ct != "" && !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		WriteJSONError(w, http.StatusUnsupportedMediaType, "expected application/json")
		return
	}
	var req createProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteJSONError(w, http.StatusBadRequest, "Invalid product data")
		return
	}
	if !req.valid() {
		WriteJSONError(w, http.StatusBadRequest, "Invalid request")
		return
	}
	product := model.Product{
		ID:          uuid.NewString(),
		Title:       *req.Title,
		Description: *req.Description,
		Price:       *req.Price,
	}
	stock := model.Stock{ProductID: product.ID, Count: *req.Count}
	if err := a.Store.Commit(r.Context(), product, stock); err != nil {
		log.Error().Err(err).Str("product_id", product.ID).Msg("create product failed")
		WriteJSONError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	log.Info().Str("product_id", product.ID).Str("request_id", RequestIDFromContext(r.Context())).
		Msg("product created")
	writeJSON(w, http.StatusCreated, model.View(product, stock.Count))
}

func (a *App) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleStats reports queue counters for debugging.
func (a *App) handleStats(w http.ResponseWriter, r *http.Request) {
	sent, delivered, acked, depth := a.Queue.Metrics()
	writeJSON(w, http.StatusOK, map[string]any{
		"messages_sent":      sent,
		"messages_delivered": delivered,
		"messages_acked":     acked,
		"queue_depth":        depth,
		"products":           a.Store.Len(),
		"uptime_sec":         time.Since(a.started).Seconds(),
	})
}
