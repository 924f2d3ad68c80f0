package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/striver-24/ai-resume-analyser/internal/model"
)

// multipartOverhead はファイル本体以外のmultipartヘッダー分として許容するバイト数。
const multipartOverhead = 64 * 1024

// ResumeServiceInterface は履歴書ハンドラーが必要とするサービスインターフェース。
type ResumeServiceInterface interface {
	Upload(ctx context.Context, userID, fileName string, r io.Reader, size int64) (*model.Resume, error)
	List(ctx context.Context, userID string) ([]*model.Resume, error)
	Get(ctx context.Context, userID, id string) (*model.Resume, error)
	Open(ctx context.Context, userID, id string) (*model.Resume, io.ReadCloser, error)
	Delete(ctx context.Context, userID, id string) error
	MaxSize() int64
}

// ResumeHandler は履歴書ファイルのHTTPハンドラー。
type ResumeHandler struct {
	service ResumeServiceInterface
}

// NewResumeHandler はResumeHandlerを生成する。
func NewResumeHandler(service ResumeServiceInterface) *ResumeHandler {
	return &ResumeHandler{service: service}
}

type resumeResponse struct {
	ID          string    `json:"id"`
	FileName    string    `json:"file_name"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	CreatedAt   time.Time `json:"created_at"`
}

type resumeListResponse struct {
	Resumes []resumeResponse `json:"resumes"`
}

// Upload はmultipartのfileフィールドを受け取り保存する。
// POST /api/resumes
func (h *ResumeHandler) Upload(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	maxSize := h.service.MaxSize()
	r.Body = http.MaxBytesReader(w, r.Body, maxSize+multipartOverhead)

	// ファイル本体はメモリに保持せず一時ファイルに逃がす
	if err := r.ParseMultipartForm(multipartOverhead); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			handleServiceError(w, model.NewResumeTooLargeError(maxSize))
			return
		}
		handleServiceError(w, model.NewMissingFileError())
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		handleServiceError(w, model.NewMissingFileError())
		return
	}
	defer file.Close()

	resume, err := h.service.Upload(r.Context(), userID, header.Filename, file, header.Size)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toResumeResponse(resume))
}

// List はユーザーの履歴書一覧を新しい順に返す。
// GET /api/resumes
func (h *ResumeHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	resumes, err := h.service.List(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := resumeListResponse{Resumes: make([]resumeResponse, 0, len(resumes))}
	for _, resume := range resumes {
		resp.Resumes = append(resp.Resumes, toResumeResponse(resume))
	}
	writeJSON(w, http.StatusOK, resp)
}

// Get は履歴書のメタデータを返す。
// GET /api/resumes/{id}
func (h *ResumeHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	resume, err := h.service.Get(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toResumeResponse(resume))
}

// Download は履歴書ファイル本体をストリーミングで返す。
// GET /api/resumes/{id}/file
func (h *ResumeHandler) Download(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	resume, body, err := h.service.Open(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", resume.ContentType)
	w.Header().Set("Content-Length", strconv.FormatInt(resume.SizeBytes, 10))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{
		"filename": resume.FileName,
	}))
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, body); err != nil {
		// ヘッダー送信後のため、ログのみ記録する
		slog.Warn("failed to stream resume",
			slog.String("resume_id", resume.ID),
			slog.String("error", err.Error()),
		)
	}
}

// Delete は履歴書を削除する。
// DELETE /api/resumes/{id}
func (h *ResumeHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func toResumeResponse(resume *model.Resume) resumeResponse {
	return resumeResponse{
		ID:          resume.ID,
		FileName:    resume.FileName,
		ContentType: resume.ContentType,
		SizeBytes:   resume.SizeBytes,
		CreatedAt:   resume.CreatedAt,
	}
}
