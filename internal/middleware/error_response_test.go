package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/striver-24/ai-resume-analyser/internal/model"
)

// TestWriteErrorResponse_WritesUnifiedFormat は統一エラーフォーマットでレスポンスが書き込まれることを検証する。
func TestWriteErrorResponse_WritesUnifiedFormat(t *testing.T) {
	w := httptest.NewRecorder()

	apiErr := &model.APIError{
		Code:     "TEST_ERROR",
		Message:  "テストエラーです。",
		Category: "validation",
		Action:   "正しい値を入力してください。",
	}

	WriteErrorResponse(w, http.StatusBadRequest, apiErr)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want %q", ct, "application/json")
	}

	var body ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}

	want := ErrorResponseBody{
		Code:     "TEST_ERROR",
		Message:  "テストエラーです。",
		Category: "validation",
		Action:   "正しい値を入力してください。",
	}
	if body != want {
		t.Errorf("body = %+v, want %+v", body, want)
	}
}

// JSONのキー名が固定であることを検証
func TestErrorResponseBody_AllFieldsPresent(t *testing.T) {
	w := httptest.NewRecorder()
	WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())

	var raw map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &raw); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	for _, key := range []string{"code", "message", "category", "action"} {
		if v, ok := raw[key].(string); !ok || v == "" {
			t.Errorf("field %q missing or empty: %v", key, raw[key])
		}
	}
}

func TestWriteAPIError_DerivesStatus(t *testing.T) {
	tests := []struct {
		name   string
		apiErr *model.APIError
		want   int
	}{
		{"invalid action", model.NewInvalidActionError("bogus"), http.StatusBadRequest},
		{"invalid key", model.NewInvalidKeyError("empty"), http.StatusBadRequest},
		{"invalid value", model.NewInvalidValueError(), http.StatusBadRequest},
		{"missing file", model.NewMissingFileError(), http.StatusBadRequest},
		{"invalid parameter", model.NewInvalidParameterError(&model.ValidationError{Field: "pattern", Message: "too long"}), http.StatusBadRequest},
		{"unauthorized", model.NewUnauthorizedError(), http.StatusUnauthorized},
		{"key not found", model.NewKeyNotFoundError("k"), http.StatusNotFound},
		{"resume not found", model.NewResumeNotFoundError("r"), http.StatusNotFound},
		{"method not allowed", model.NewMethodNotAllowedError("PUT", "status"), http.StatusMethodNotAllowed},
		{"too large", model.NewResumeTooLargeError(1024), http.StatusRequestEntityTooLarge},
		{"unsupported", model.NewUnsupportedFormatError("image/png"), http.StatusUnsupportedMediaType},
		{"rate limited", model.NewRateLimitedError(), http.StatusTooManyRequests},
		{"sign-in failed", model.NewSignInFailedError(), http.StatusInternalServerError},
		{"unknown code", &model.APIError{Code: "SOMETHING_ELSE"}, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteAPIError(w, tt.apiErr)

			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
			var body ErrorResponseBody
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode: %v", err)
			}
			if body.Code != tt.apiErr.Code {
				t.Errorf("code = %q, want %q", body.Code, tt.apiErr.Code)
			}
		})
	}
}

// TestInternalServerError_ReturnsSystemError は内部エラーが詳細を含まずに返されることを検証する。
func TestInternalServerError_ReturnsSystemError(t *testing.T) {
	w := httptest.NewRecorder()
	WriteInternalServerError(w)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}

	var body ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
	if body.Code != model.ErrCodeInternal {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeInternal)
	}
	if body.Category != "system" {
		t.Errorf("category = %q, want %q", body.Category, "system")
	}
}
