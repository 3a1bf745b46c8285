package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/caffeineduck/codearena/activity"
	"github.com/caffeineduck/codearena/autosave"
	"github.com/caffeineduck/codearena/executor"
	"github.com/caffeineduck/codearena/judge"
	"github.com/caffeineduck/codearena/store"
)

const maxBody = 1 << 20

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(io.LimitReader(r.Body, maxBody)).Decode(v)
	if err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid json")
		return false
	}
	return true
}

// runtimeError maps interpreter errors to a status code.
func runtimeError(w http.ResponseWriter, err error) {
	if errors.Is(err, executor.ErrUnavailable) || errors.Is(err, executor.ErrClosed) {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug("request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

type runtimeResponse struct {
	State string `json:"state"`
	Ready bool   `json:"ready"`
	Error string `json:"error,omitempty"`
}

func (s *Server) runtimeStatus() runtimeResponse {
	st := s.cfg.Runtime.Status()
	resp := runtimeResponse{
		State: st.State.String(),
		Ready: st.State == executor.StateReady || st.State == executor.StateRunning,
	}
	if st.Err != nil {
		resp.Error = st.Err.Error()
	}
	return resp
}

func (s *Server) handleRuntime(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.runtimeStatus())
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	if err := s.cfg.Runtime.Load(r.Context()); err != nil {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, s.runtimeStatus())
}

type runRequest struct {
	Code  string `json:"code"`
	Input string `json:"input"`
}

type runResponse struct {
	Output     string `json:"output"`
	IsError    bool   `json:"is_error"`
	DurationMs int64  `json:"duration_ms"`
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if !decode(w, r, &req) {
		return
	}
	start := time.Now()
	out, err := s.cfg.Runtime.Run(r.Context(), req.Code, req.Input)
	if err != nil {
		runtimeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, runResponse{
		Output:     out,
		IsError:    executor.IsError(out),
		DurationMs: time.Since(start).Milliseconds(),
	})
}

type questionRunRequest struct {
	Code string `json:"code"`
	// Tests overrides the question's samples when present.
	Tests []judge.TestCase `json:"tests,omitempty"`
}

func (s *Server) handleQuestionRun(w http.ResponseWriter, r *http.Request) {
	var req questionRunRequest
	if !decode(w, r, &req) {
		return
	}
	cases := req.Tests
	if cases == nil {
		if s.cfg.Questions == nil {
			writeError(w, http.StatusBadRequest, "tests required")
			return
		}
		q, err := s.questions(r).Question(r.Context(), mux.Vars(r)["id"])
		if err != nil {
			writeError(w, http.StatusBadGateway, err.Error())
			return
		}
		cases = q.VisibleCases()
	}

	rep, err := judge.New(s.cfg.Runtime, judge.WithLogger(s.log)).RunVisible(r.Context(), req.Code, cases)
	if err != nil {
		runtimeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

type submitRequest struct {
	Code string `json:"code"`
}

// hiddenResult is all a contestant learns about a hidden case.
type hiddenResult struct {
	Passed bool `json:"passed"`
}

type submitResponse struct {
	AllPassed bool                    `json:"all_passed"`
	Tests     map[string]hiddenResult `json:"tests"`
	Error     string                  `json:"error,omitempty"`
}

func newSubmitResponse(v judge.Verdict) submitResponse {
	tests := make(map[string]hiddenResult, len(v.Results))
	for name, r := range v.Tests() {
		tests[name] = hiddenResult{Passed: r.Passed}
	}
	return submitResponse{AllPassed: v.AllPassed, Tests: tests}
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Questions == nil || s.cfg.Submitter == nil {
		writeError(w, http.StatusNotImplemented, "submissions are not configured")
		return
	}
	var req submitRequest
	if !decode(w, r, &req) {
		return
	}
	q, err := s.questions(r).Question(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	j := judge.New(s.cfg.Runtime, judge.WithLogger(s.log))
	v, err := j.Submit(r.Context(), s.submitter(r), q.Number, req.Code, q.HiddenCases())
	switch {
	case errors.Is(err, executor.ErrUnavailable), errors.Is(err, executor.ErrClosed):
		runtimeError(w, err)
	case err != nil:
		resp := newSubmitResponse(v)
		resp.Error = err.Error()
		writeJSON(w, http.StatusBadGateway, resp)
	default:
		writeJSON(w, http.StatusOK, newSubmitResponse(v))
	}
}

type codeResponse struct {
	Code  string `json:"code"`
	Saved bool   `json:"saved"`
}

func (s *Server) handleGetCode(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	code, err := s.storeFor(teamFrom(r.Context())).Get(r.Context(), store.Key(id))
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, codeResponse{Code: code, Saved: true})
	case errors.Is(err, store.ErrNotFound):
		writeJSON(w, http.StatusOK, codeResponse{Code: s.template(r, id)})
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) template(r *http.Request, id string) string {
	if s.cfg.Questions == nil {
		return ""
	}
	q, err := s.questions(r).Question(r.Context(), id)
	if err != nil {
		s.log.Warn("template lookup failed", "question", id, "error", err)
		return ""
	}
	return q.Template
}

type putCodeRequest struct {
	Code string `json:"code"`
}

func (s *Server) saver(team, id string) *autosave.Saver {
	key := team + "/" + id
	sv, _ := s.savers.LoadOrCompute(key, func() *autosave.Saver {
		return autosave.NewSaver(s.storeFor(team), store.Key(id),
			autosave.WithDelay(s.cfg.AutosaveDelay),
			autosave.WithLogger(s.log))
	})
	return sv
}

func (s *Server) handlePutCode(w http.ResponseWriter, r *http.Request) {
	var req putCodeRequest
	if !decode(w, r, &req) {
		return
	}
	s.saver(teamFrom(r.Context()), mux.Vars(r)["id"]).Schedule(req.Code)
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleResetCode(w http.ResponseWriter, r *http.Request) {
	team, id := teamFrom(r.Context()), mux.Vars(r)["id"]
	if err := s.saver(team, id).Clear(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, codeResponse{Code: s.template(r, id)})
}

type createSessionResponse struct {
	SessionID string `json:"session_id"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	id := uuid.NewString()
	sess := &session{
		team:    teamFrom(r.Context()),
		monitor: activity.NewMonitor(id, s.cfg.Sink, activity.WithLogger(s.log)),
	}
	sess.touch(time.Now())
	s.sessions.Store(id, sess)
	writeJSON(w, http.StatusCreated, createSessionResponse{SessionID: id})
}

// lookupSession enforces that a team only sees its own sessions.
func (s *Server) lookupSession(w http.ResponseWriter, r *http.Request) (string, *session, bool) {
	id := mux.Vars(r)["id"]
	sess, ok := s.sessions.Load(id)
	if !ok || sess.team != teamFrom(r.Context()) {
		writeError(w, http.StatusNotFound, "session not found")
		return "", nil, false
	}
	sess.touch(time.Now())
	return id, sess, true
}

type eventRequest struct {
	Event string `json:"event"`
}

func (s *Server) handleSessionEvent(w http.ResponseWriter, r *http.Request) {
	_, sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	var req eventRequest
	if !decode(w, r, &req) {
		return
	}
	e, err := activity.ParseEvent(req.Event)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sess.monitor.Handle(r.Context(), e)
	writeJSON(w, http.StatusOK, sess.monitor.State())
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	_, sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess.monitor.State())
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id, sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	sess.monitor.Close()
	s.sessions.Delete(id)
	writeJSON(w, http.StatusOK, sess.monitor.State())
}
