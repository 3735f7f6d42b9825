package apis

import (
	"encoding/json"
	"errors"
	"net/http"

	"workspace-live-go/internal/gemini"
	"workspace-live-go/internal/media"
	"workspace-live-go/internal/util"
)

// errBadRequest はリクエストの内容が不正な場合のエラーです。
var errBadRequest = errors.New("bad request")

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// statusFor はエラーを HTTP ステータスとエラーコードに対応付けます。
func statusFor(err error) (int, string) {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.Is(err, gemini.ErrMissingCredential):
		return http.StatusUnauthorized, "missing_credential"
	case errors.Is(err, gemini.ErrNoResult):
		return http.StatusUnprocessableEntity, "no_result"
	case errors.Is(err, gemini.ErrGenerationFailed):
		return http.StatusUnprocessableEntity, "generation_failed"
	case errors.Is(err, gemini.ErrSessionActive):
		return http.StatusConflict, "session_active"
	case errors.Is(err, errBadRequest), errors.Is(err, util.ErrInvalidDataURI):
		return http.StatusBadRequest, "bad_request"
	case errors.As(err, &maxBytes), errors.Is(err, media.ErrTooLarge):
		return http.StatusRequestEntityTooLarge, "too_large"
	case errors.Is(err, media.ErrNotFound):
		return http.StatusNotFound, "not_found"
	default:
		return http.StatusBadGateway, "upstream_error"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("リクエストの処理に失敗しました", "path", r.URL.Path, "status", status, "error", err)
	} else {
		s.logger.Warn("リクエストを処理できませんでした", "path", r.URL.Path, "status", status, "error", err)
	}
	writeJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: err.Error()}})
}
