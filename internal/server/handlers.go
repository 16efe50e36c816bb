package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/mwiater/concilium/internal/logging"
	"github.com/mwiater/concilium/internal/markdown"
	"github.com/mwiater/concilium/internal/pipeline"
	"github.com/mwiater/concilium/internal/store"
	"github.com/mwiater/concilium/internal/stream"
	"github.com/mwiater/concilium/internal/util"
)

// multipartMemory is the part of a multipart body kept in memory; the rest
// spills to temporary files.
const multipartMemory = 32 << 20

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(indexHTML)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	if s.metrics == nil {
		writeError(w, http.StatusNotFound, "metrics are disabled")
		return
	}
	writeJSON(w, http.StatusOK, s.metrics.Snapshot())
}

// handleProcess runs a pipeline and streams its events. In test mode the
// run is simulated and uploads are ignored.
func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	limit := s.cfg.MaxUploadBytes()
	tooLargeMsg := fmt.Sprintf("Arquivos excedem o limite de %d MB.", limit>>20)
	if r.ContentLength > limit {
		writeError(w, http.StatusRequestEntityTooLarge, tooLargeMsg)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := parseForm(r); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, tooLargeMsg)
			return
		}
		writeError(w, http.StatusBadRequest, "invalid form: "+err.Error())
		return
	}
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	mode := pipeline.ParseMode(r.FormValue("processing_mode"))
	output := pipeline.ParseOutput(r.FormValue("output"))

	if strings.EqualFold(r.FormValue("mode"), "test") {
		stream.PrepareHeaders(w)
		em := stream.NewEmitter(w, s.cfg.StreamMaxBytes)
		sim := pipeline.Simulation{Mode: mode, MockText: r.FormValue("mock_text"), Output: output}
		if err := pipeline.Simulate(sim, em); err != nil {
			logging.LogEvent("[HTTP] simulation stream: %v", err)
		}
		return
	}

	minChars, err := formInt(r, "min_chars")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	maxChars, err := formInt(r, "max_chars")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	paths, err := s.saveUploads(r)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to store uploads: "+err.Error())
		return
	}

	req := pipeline.Request{
		Instruction: r.FormValue("solicitacao"),
		Files:       paths,
		Mode:        mode,
		MinChars:    minChars,
		MaxChars:    maxChars,
		Output:      output,
	}

	ctx, release := s.cancels.Start(r.Context(), SessionID(r.Context()))
	defer release()

	stream.PrepareHeaders(w)
	s.orch.Run(ctx, req, stream.NewEmitter(w, s.cfg.StreamMaxBytes))
}

func parseForm(r *http.Request) error {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		return r.ParseMultipartForm(multipartMemory)
	}
	return r.ParseForm()
}

func formInt(r *http.Request, name string) (int, error) {
	raw := strings.TrimSpace(r.FormValue(name))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", name)
	}
	return n, nil
}

// saveUploads writes every uploaded file to the upload directory as
// <uuid>_<basename>. On error the files already written are removed.
func (s *Server) saveUploads(r *http.Request) ([]string, error) {
	if r.MultipartForm == nil {
		return nil, nil
	}
	var paths []string
	for _, fh := range r.MultipartForm.File["files"] {
		if fh == nil || fh.Filename == "" {
			continue
		}
		path := filepath.Join(s.cfg.UploadDir, uuid.NewString()+"_"+filepath.Base(fh.Filename))
		if err := saveUpload(fh, path); err != nil {
			for _, p := range paths {
				_ = os.Remove(p)
			}
			return nil, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func saveUpload(fh *multipart.FileHeader, path string) error {
	src, err := fh.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		_ = os.Remove(path)
		return err
	}
	return dst.Close()
}

type mergeBody struct {
	Instruction string `json:"solicitacao_usuario"`
	Grok        string `json:"grok_text"`
	Sonnet      string `json:"sonnet_text"`
	Gemini      string `json:"gemini_text"`
	MinChars    int    `json:"min_chars"`
	MaxChars    int    `json:"max_chars"`
	Output      string `json:"output"`
}

// handleMerge consolidates three atomic outputs and streams the result.
func (s *Server) handleMerge(w http.ResponseWriter, r *http.Request) {
	body, ok := s.readJSON(w, r)
	if !ok {
		return
	}
	if err := validateBody(mergeSchema, body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var in mergeBody
	if err := json.Unmarshal(body, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	output := in.Output
	if q := r.URL.Query().Get("output"); q != "" {
		output = q
	}
	session := SessionID(r.Context())
	ctx, release := s.cancels.Start(r.Context(), session)
	defer release()

	stream.PrepareHeaders(w)
	s.orch.Merge(ctx, session, pipeline.MergeRequest{
		Instruction: in.Instruction,
		Grok:        in.Grok,
		Sonnet:      in.Sonnet,
		Gemini:      in.Gemini,
		MinChars:    in.MinChars,
		MaxChars:    in.MaxChars,
		Output:      pipeline.ParseOutput(output),
	}, stream.NewEmitter(w, s.cfg.StreamMaxBytes))
}

type convertResponse struct {
	HTML string `json:"html"`
}

func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	body, ok := s.readJSON(w, r)
	if !ok {
		return
	}
	if err := validateBody(convertSchema, body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var in struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(body, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, convertResponse{HTML: markdown.Render(in.Text)})
}

type cancelResponse struct {
	Message   string `json:"message"`
	Cancelled int    `json:"cancelled"`
}

// handleCancel stops the caller's running pipelines. Other sessions are
// not affected.
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	n := s.cancels.Cancel(SessionID(r.Context()))
	msg := "Nenhum processamento em andamento."
	if n > 0 {
		msg = "Cancelamento solicitado."
	}
	writeJSON(w, http.StatusOK, cancelResponse{Message: msg, Cancelled: n})
}

type fullContentResponse struct {
	Content   string `json:"content"`
	WordCount int    `json:"word_count"`
}

// handleFullContent returns the caller's last merge result as raw text.
func (s *Server) handleFullContent(w http.ResponseWriter, r *http.Request) {
	text, err := s.store.Get(r.Context(), SessionID(r.Context()))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Nenhum conteúdo de merge disponível.")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, fullContentResponse{Content: text, WordCount: util.CountWords(text)})
}

func (s *Server) readJSON(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes()))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return nil, false
		}
		writeError(w, http.StatusBadRequest, "read body: "+err.Error())
		return nil, false
	}
	if len(body) == 0 {
		writeError(w, http.StatusBadRequest, "request body is empty")
		return nil, false
	}
	return body, true
}
