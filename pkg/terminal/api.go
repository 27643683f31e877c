package terminal

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/antibyte/stuck/pkg/auth"
	"github.com/antibyte/stuck/pkg/configuration"
	"github.com/antibyte/stuck/pkg/logger"
	"github.com/antibyte/stuck/pkg/storage"
)

// apiError is the body of every failed API request.
type apiError struct {
	Message string `json:"message"`
}

// SaveProgramRequest is the body of POST /api/programs.
type SaveProgramRequest struct {
	Name   string `json:"name"`
	Source string `json:"source"`
}

// StoredRunResponse is a run of a stored program.
type StoredRunResponse struct {
	RunID string `json:"runId"`
	RunResponse
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Warn(logger.AreaTerminal, "Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, apiError{Message: message})
}

// decodeBody reads a JSON body no larger than the source limit plus some room for the envelope.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, v interface{}, optional bool) bool {
	limit := int64(s.validator.maxSourceBytes) + 16*1024
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, limit)).Decode(v)
	if err == nil || (optional && errors.Is(err, io.EOF)) {
		return true
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, "request too large")
		return false
	}
	writeError(w, http.StatusBadRequest, "invalid request format")
	return false
}

func identity(r *http.Request) auth.Identity {
	id, _ := auth.IdentityFromContext(r.Context())
	return id
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats := s.sessions.GetSessionStats()
	stats["status"] = "ok"
	stats["clients"] = s.clients.GetClientCount()
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if !s.decodeBody(w, r, &req, false) {
		return
	}
	if err := s.validator.ValidateSource(req.Source); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, runProgram(r.Context(), req.Source, req.Input))
}

func (s *Server) handleListPrograms(w http.ResponseWriter, r *http.Request) {
	programs, err := s.store.ListPrograms(identity(r).Owner())
	if err != nil {
		logger.StorageError("List programs: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to list programs")
		return
	}
	writeJSON(w, http.StatusOK, programs)
}

func (s *Server) handleSaveProgram(w http.ResponseWriter, r *http.Request) {
	var req SaveProgramRequest
	if !s.decodeBody(w, r, &req, false) {
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if err := s.validator.ValidateProgramName(req.Name); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.validator.ValidateSource(req.Source); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	program, err := s.store.SaveProgram(identity(r).Owner(), req.Name, req.Source)
	if err != nil {
		logger.StorageError("Save program %q: %v", req.Name, err)
		writeError(w, http.StatusInternalServerError, "failed to save program")
		return
	}
	writeJSON(w, http.StatusCreated, program)
}

// loadProgram fetches the {id} program of the caller, answering 404 when it is not theirs.
func (s *Server) loadProgram(w http.ResponseWriter, r *http.Request) (*storage.Program, bool) {
	program, err := s.store.GetProgram(identity(r).Owner(), r.PathValue("id"))
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "program not found")
		return nil, false
	}
	if err != nil {
		logger.StorageError("Get program %s: %v", r.PathValue("id"), err)
		writeError(w, http.StatusInternalServerError, "failed to load program")
		return nil, false
	}
	return program, true
}

func (s *Server) handleGetProgram(w http.ResponseWriter, r *http.Request) {
	if program, ok := s.loadProgram(w, r); ok {
		writeJSON(w, http.StatusOK, program)
	}
}

func (s *Server) handleDeleteProgram(w http.ResponseWriter, r *http.Request) {
	err := s.store.DeleteProgram(identity(r).Owner(), r.PathValue("id"))
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "program not found")
	case err != nil:
		logger.StorageError("Delete program %s: %v", r.PathValue("id"), err)
		writeError(w, http.StatusInternalServerError, "failed to delete program")
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleRunProgram(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Input string `json:"input"`
	}
	if !s.decodeBody(w, r, &req, true) {
		return
	}
	program, ok := s.loadProgram(w, r)
	if !ok {
		return
	}

	started := time.Now()
	result := runProgram(r.Context(), program.Source, req.Input)

	run := &storage.Run{
		ProgramID: program.ID,
		StartedAt: started,
		Duration:  time.Duration(result.DurationMS) * time.Millisecond,
		Output:    result.Output,
	}
	if result.Error != nil {
		run.ErrorKind = result.Error.Kind
		run.ErrorMessage = result.Error.Message
		run.ErrorLine = result.Error.Line
	}
	if err := s.store.RecordRun(run); err != nil {
		logger.StorageError("Record run of %s: %v", program.ID, err)
		writeError(w, http.StatusInternalServerError, "failed to record run")
		return
	}
	writeJSON(w, http.StatusOK, StoredRunResponse{RunID: run.ID, RunResponse: result})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	program, ok := s.loadProgram(w, r)
	if !ok {
		return
	}
	runs, err := s.store.ListRuns(program.ID, configuration.GetInt("Storage", "max_runs_listed", 50))
	if err != nil {
		logger.StorageError("List runs of %s: %v", program.ID, err)
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	writeJSON(w, http.StatusOK, runs)
}
