package server

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/fluentive/fluentive/internal/auth"
	"github.com/fluentive/fluentive/internal/evaluate"
	"github.com/fluentive/fluentive/internal/store"
	"github.com/fluentive/fluentive/internal/synthesis"
	"github.com/fluentive/fluentive/internal/transcript"
)

// credentials is the JSON body for signup and login.
type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// userDTO is the public view of a user record.
type userDTO struct {
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
}

func toUserDTO(u *store.User) userDTO {
	return userDTO{UserID: u.ID, Username: u.Username, CreatedAt: u.CreatedAt}
}

// sessionDTO is the public view of a session record.
type sessionDTO struct {
	SessionID string            `json:"session_id"`
	Status    string            `json:"status"`
	StartedAt time.Time         `json:"started_at"`
	EndedAt   *time.Time        `json:"ended_at,omitempty"`
	Summary   string            `json:"summary,omitempty"`
	Scores    *store.Aggregates `json:"final_scores,omitempty"`
}

func toSessionDTO(s *store.Session) sessionDTO {
	dto := sessionDTO{
		SessionID: s.ID,
		Status:    "active",
		StartedAt: s.StartedAt,
	}
	if s.Ended() {
		dto.Status = "completed"
		ended := s.EndedAt
		dto.EndedAt = &ended
		dto.Summary = s.Summary
		agg := s.Aggregates
		dto.Scores = &agg
	}
	return dto
}

// attemptDTO is the public view of an evaluated attempt.
type attemptDTO struct {
	Question   string       `json:"question"`
	Transcript string       `json:"transcript"`
	Correction string       `json:"correction"`
	Scores     store.Scores `json:"scores"`
	Mistakes   []string     `json:"mistakes"`
	Feedback   string       `json:"feedback"`
	Blocked    bool         `json:"blocked,omitempty"`
	Timestamp  time.Time    `json:"timestamp"`
}

func toAttemptDTO(a *store.Attempt) attemptDTO {
	return attemptDTO{
		Question:   a.Question,
		Transcript: a.Transcript,
		Correction: a.Correction,
		Scores:     a.Scores,
		Mistakes:   a.Mistakes,
		Feedback:   a.Feedback,
		Blocked:    a.Blocked,
		Timestamp:  a.CreatedAt,
	}
}

// ttsPayload is the synthesized-speech block returned by check and tts
// responses. An empty payload keeps the shape so clients can always fall
// back to /api/tts.
type ttsPayload struct {
	AudioB64 string          `json:"audio_b64"`
	MIME     string          `json:"mime"`
	Visemes  []synthesis.Cue `json:"visemes"`
	Duration float64         `json:"duration,omitempty"`
	Fallback bool            `json:"fallback,omitempty"`
	Text     string          `json:"text"`
}

func emptyTTS(text string) ttsPayload {
	return ttsPayload{MIME: "audio/wav", Visemes: []synthesis.Cue{}, Text: text}
}

func toTTSPayload(sp *synthesis.Speech, text string) ttsPayload {
	if sp == nil {
		return emptyTTS(text)
	}
	return ttsPayload{
		AudioB64: base64.StdEncoding.EncodeToString(sp.Audio),
		MIME:     "audio/wav",
		Visemes:  sp.Visemes,
		Duration: sp.Duration,
		Fallback: sp.Fallback,
		Text:     text,
	}
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var creds credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if creds.Username == "" || creds.Password == "" {
		respondError(w, http.StatusBadRequest, "username and password required")
		return
	}

	user, err := s.auth.Register(r.Context(), creds.Username, creds.Password)
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			respondError(w, http.StatusConflict, "username already registered")
			return
		}
		s.log.Error("server: signup failed", "error", err)
		respondError(w, http.StatusInternalServerError, "signup failed")
		return
	}

	// Issue a token right away so the client is logged in after signup.
	token, err := s.auth.Login(r.Context(), creds.Username, creds.Password)
	if err != nil {
		s.log.Error("server: post-signup login failed", "error", err)
		respondError(w, http.StatusInternalServerError, "signup failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"token": token, "user": toUserDTO(user)})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var creds credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if creds.Username == "" || creds.Password == "" {
		respondError(w, http.StatusBadRequest, "username and password required")
		return
	}

	token, err := s.auth.Login(r.Context(), creds.Username, creds.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			respondError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		s.log.Error("server: login failed", "error", err)
		respondError(w, http.StatusInternalServerError, "login failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFrom(r.Context())
	respondJSON(w, http.StatusOK, map[string]any{"user": toUserDTO(user)})
}

func (s *Server) handleSessionStart(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFrom(r.Context())
	sess, err := s.sessions.Start(r.Context(), user.ID)
	if err != nil {
		s.log.Error("server: session start failed", "error", err)
		respondError(w, http.StatusInternalServerError, "could not start session")
		return
	}
	if s.metrics != nil {
		s.metrics.ActiveSessions.Add(r.Context(), 1)
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"session_id": sess.ID,
		"message":    "session started",
	})
}

func (s *Server) handleSessionEnd(w http.ResponseWriter, r *http.Request) {
	var body struct {
		SessionID string `json:"session_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.SessionID == "" {
		respondError(w, http.StatusBadRequest, "session_id required")
		return
	}

	sess, ok := s.ownedSession(w, r, body.SessionID)
	if !ok {
		return
	}
	wasOpen := !sess.Ended()

	sess, err := s.sessions.End(r.Context(), body.SessionID)
	if err != nil {
		s.log.Error("server: session end failed", "session", body.SessionID, "error", err)
		respondError(w, http.StatusInternalServerError, "could not end session")
		return
	}
	if wasOpen && s.metrics != nil {
		s.metrics.ActiveSessions.Add(r.Context(), -1)
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"message":  "session ended",
		"scores":   sess.Aggregates,
		"feedback": sess.Summary,
	})
}

func (s *Server) handleSessionHistory(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFrom(r.Context())
	sessions, err := s.sessions.History(r.Context(), user.ID)
	if err != nil {
		s.log.Error("server: session history failed", "error", err)
		respondError(w, http.StatusInternalServerError, "could not load sessions")
		return
	}
	dtos := make([]sessionDTO, 0, len(sessions))
	for _, sess := range sessions {
		dtos = append(dtos, toSessionDTO(sess))
	}
	respondJSON(w, http.StatusOK, map[string]any{"sessions": dtos})
}

func (s *Server) handleSessionGet(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	sess, ok := s.ownedSession(w, r, id)
	if !ok {
		return
	}

	attempts, err := s.sessions.Attempts(r.Context(), id)
	if err != nil {
		s.log.Error("server: loading attempts failed", "session", id, "error", err)
		respondError(w, http.StatusInternalServerError, "could not load session")
		return
	}
	dtos := make([]attemptDTO, 0, len(attempts))
	for _, a := range attempts {
		dtos = append(dtos, toAttemptDTO(a))
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"session":  toSessionDTO(sess),
		"attempts": dtos,
	})
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		respondError(w, http.StatusBadRequest, "multipart form required")
		return
	}
	sessionID := r.FormValue("session_id")
	question := r.FormValue("question")
	if sessionID == "" || question == "" {
		respondError(w, http.StatusBadRequest, "session_id and question required")
		return
	}

	sess, ok := s.ownedSession(w, r, sessionID)
	if !ok {
		return
	}
	if sess.Ended() {
		respondError(w, http.StatusConflict, "session already ended")
		return
	}

	audio, err := s.formAudio(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "could not read audio upload")
		return
	}

	res, err := s.pipeline.Evaluate(r.Context(), evaluate.Request{
		Question: question,
		Input: transcript.Input{
			Text:     r.FormValue("transcript"),
			Audio:    audio,
			Language: r.FormValue("language"),
		},
		SkipSpeech: s.speechOff,
	})
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordEvaluation(r.Context(), "error")
		}
		if errors.Is(err, transcript.ErrNoInput) || errors.Is(err, transcript.ErrEmpty) {
			respondError(w, http.StatusBadRequest, "no transcript provided or derived")
			return
		}
		s.log.Error("server: evaluation failed", "session", sessionID, "error", err)
		respondError(w, http.StatusInternalServerError, "evaluation failed")
		return
	}

	if err := s.sessions.Record(r.Context(), sessionID, res.ToAttempt(question)); err != nil {
		s.log.Error("server: recording attempt failed", "session", sessionID, "error", err)
		respondError(w, http.StatusInternalServerError, "could not record attempt")
		return
	}
	if s.metrics != nil {
		status := "ok"
		if res.Blocked {
			status = "blocked"
		}
		s.metrics.RecordEvaluation(r.Context(), status)
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"transcript":    res.Transcript,
		"correction":    res.Correction,
		"mistakes":      res.Mistakes,
		"scores":        res.Scores,
		"tts":           toTTSPayload(res.Speech, res.Feedback),
		"feedback_text": res.Feedback,
	})
}

func (s *Server) handleTTS(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Text == "" {
		respondError(w, http.StatusBadRequest, "text is required")
		return
	}
	if s.synth == nil {
		respondError(w, http.StatusServiceUnavailable, "speech synthesis disabled")
		return
	}

	speech, err := s.synth.Speak(r.Context(), body.Text)
	if err != nil {
		s.log.Error("server: synthesis failed", "error", err)
		respondError(w, http.StatusInternalServerError, "synthesis failed")
		return
	}
	respondJSON(w, http.StatusOK, toTTSPayload(speech, body.Text))
}

// ownedSession loads a session and enforces that it belongs to the
// authenticated user, writing the error response itself when it does not.
func (s *Server) ownedSession(w http.ResponseWriter, r *http.Request, id string) (*store.Session, bool) {
	sess, err := s.sessions.Session(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(w, http.StatusNotFound, "session not found")
			return nil, false
		}
		s.log.Error("server: loading session failed", "session", id, "error", err)
		respondError(w, http.StatusInternalServerError, "could not load session")
		return nil, false
	}
	if user := auth.UserFrom(r.Context()); user == nil || sess.UserID != user.ID {
		respondError(w, http.StatusForbidden, "unauthorized")
		return nil, false
	}
	return sess, true
}

// formAudio reads the optional audio upload from the multipart form.
func (s *Server) formAudio(r *http.Request) ([]byte, error) {
	file, _, err := r.FormFile("audio")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return io.ReadAll(file)
}
