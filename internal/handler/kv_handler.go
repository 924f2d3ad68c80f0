package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/striver-24/ai-resume-analyser/internal/model"
)

// maxKVBodyBytes はPUTリクエストボディの上限。
const maxKVBodyBytes = 128 * 1024

// KVServiceInterface はキーバリューハンドラーが必要とするサービスインターフェース。
type KVServiceInterface interface {
	Get(ctx context.Context, userID, key string) (*model.KVEntry, error)
	Set(ctx context.Context, userID, key string, value json.RawMessage) (*model.KVEntry, error)
	Delete(ctx context.Context, userID, key string) error
	List(ctx context.Context, userID, pattern string) ([]string, error)
}

// KVHandler はユーザー単位のキーバリューストアのHTTPハンドラー。
type KVHandler struct {
	service KVServiceInterface
}

// NewKVHandler はKVHandlerを生成する。
func NewKVHandler(service KVServiceInterface) *KVHandler {
	return &KVHandler{service: service}
}

type kvEntryResponse struct {
	Key       string          `json:"key"`
	Value     json.RawMessage `json:"value"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type kvSetRequest struct {
	Value json.RawMessage `json:"value"`
}

type kvListResponse struct {
	Keys []string `json:"keys"`
}

// Get は値を返す。
// GET /api/kv/{key...}
func (h *KVHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	entry, err := h.service.Get(r.Context(), userID, kvKey(r))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toKVEntryResponse(entry))
}

// Set は値を保存する。
// PUT /api/kv/{key...}  body: {"value": <json>}
func (h *KVHandler) Set(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req kvSetRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxKVBodyBytes)).Decode(&req); err != nil {
		handleServiceError(w, model.NewInvalidValueError())
		return
	}

	entry, err := h.service.Set(r.Context(), userID, kvKey(r), req.Value)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toKVEntryResponse(entry))
}

// Delete はキーを削除する。存在しないキーでも204を返す。
// DELETE /api/kv/{key...}
func (h *KVHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), userID, kvKey(r)); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// List はglobパターンに一致するキーを返す。
// GET /api/kv?pattern=<glob>
func (h *KVHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	keys, err := h.service.List(r.Context(), userID, r.URL.Query().Get("pattern"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if keys == nil {
		keys = []string{}
	}

	writeJSON(w, http.StatusOK, kvListResponse{Keys: keys})
}

// kvKey はワイルドカード部分からキーを取り出す。キーは"/"を含んでもよい。
func kvKey(r *http.Request) string {
	raw := chi.URLParam(r, "*")
	if key, err := url.PathUnescape(raw); err == nil {
		return key
	}
	return raw
}

func toKVEntryResponse(entry *model.KVEntry) kvEntryResponse {
	return kvEntryResponse{
		Key:       entry.Key,
		Value:     entry.Value,
		UpdatedAt: entry.UpdatedAt,
	}
}
