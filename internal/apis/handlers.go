package apis

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

type codeRequest struct {
	Code        string `json:"code"`
	Filename    string `json:"filename"`
	Instruction string `json:"instruction"`
}

type codeResponse struct {
	Code string `json:"code"`
}

type chatRequest struct {
	Message string `json:"message"`
}

type imageRequest struct {
	Prompt      string `json:"prompt"`
	AspectRatio string `json:"aspect_ratio"`
	ImageSize   string `json:"image_size"`
}

type imageResponse struct {
	Image string `json:"image"`
}

type videoRequest struct {
	Prompt      string `json:"prompt"`
	AspectRatio string `json:"aspect_ratio"`
}

type videoResponse struct {
	VideoURL string `json:"video_url"`
}

type analyzeRequest struct {
	Image  string `json:"image"`
	Prompt string `json:"prompt"`
}

type analyzeResponse struct {
	Text string `json:"text"`
}

// decode はボディを v に読み込みます。未知のフィールドは拒否します。
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			return err
		}
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

func required(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%w: %s is required", errBadRequest, field)
	}
	return nil
}

func (s *Server) decodeCode(w http.ResponseWriter, r *http.Request, needInstruction bool) (codeRequest, bool) {
	var req codeRequest
	err := s.decode(w, r, &req)
	if err == nil {
		err = required("code", req.Code)
	}
	if err == nil && needInstruction {
		err = required("instruction", req.Instruction)
	}
	if err != nil {
		s.writeError(w, r, err)
		return req, false
	}
	return req, true
}

func (s *Server) handleEditCode(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeCode(w, r, true)
	if !ok {
		return
	}
	code, err := s.studio.EditCode(r.Context(), req.Code, req.Instruction, req.Filename)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, codeResponse{Code: code})
}

func (s *Server) handleExplainCode(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeCode(w, r, false)
	if !ok {
		return
	}
	code, err := s.studio.ExplainCode(r.Context(), req.Code, req.Filename)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, codeResponse{Code: code})
}

func (s *Server) handleFixBugs(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeCode(w, r, false)
	if !ok {
		return
	}
	code, err := s.studio.FixBugs(r.Context(), req.Code, req.Filename)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, codeResponse{Code: code})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	err := s.decode(w, r, &req)
	if err == nil {
		err = required("message", req.Message)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	res, err := s.studio.Chat(r.Context(), req.Message)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleGenerateImage(w http.ResponseWriter, r *http.Request) {
	req := imageRequest{AspectRatio: "1:1", ImageSize: "1K"}
	err := s.decode(w, r, &req)
	if err == nil {
		err = required("prompt", req.Prompt)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	uri, err := s.studio.GenerateImage(r.Context(), req.Prompt, req.AspectRatio, req.ImageSize)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, imageResponse{Image: uri})
}

func (s *Server) handleGenerateVideo(w http.ResponseWriter, r *http.Request) {
	req := videoRequest{AspectRatio: "16:9"}
	err := s.decode(w, r, &req)
	if err == nil {
		err = required("prompt", req.Prompt)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	url, err := s.studio.GenerateVideo(r.Context(), req.Prompt, req.AspectRatio)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, videoResponse{VideoURL: url})
}

func (s *Server) handleAnalyzeImage(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	err := s.decode(w, r, &req)
	if err == nil {
		err = required("image", req.Image)
	}
	if err == nil {
		err = required("prompt", req.Prompt)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	text, err := s.studio.AnalyzeImage(r.Context(), req.Image, req.Prompt)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, analyzeResponse{Text: text})
}

// handleBlob は保存済みの動画などを返します。Range リクエストに対応します。
func (s *Server) handleBlob(w http.ResponseWriter, r *http.Request) {
	data, meta, err := s.blobs.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", meta.MimeType)
	w.Header().Set("Cache-Control", "private, max-age="+strconv.Itoa(24*60*60))
	http.ServeContent(w, r, meta.ID, meta.CreatedAt, bytes.NewReader(data))
}
