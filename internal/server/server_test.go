package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fluentive/fluentive/internal/auth"
	"github.com/fluentive/fluentive/internal/evaluate"
	"github.com/fluentive/fluentive/internal/grammar"
	"github.com/fluentive/fluentive/internal/semantic"
	"github.com/fluentive/fluentive/internal/session"
	"github.com/fluentive/fluentive/internal/store"
	"github.com/fluentive/fluentive/internal/synthesis"
	"github.com/fluentive/fluentive/internal/transcript"
)

func newTestServer(t *testing.T, opts ...Option) *httptest.Server {
	t.Helper()
	st := store.NewMemory()
	authSvc := auth.NewService(st, []byte("0123456789abcdef0123456789abcdef"))
	sessions := session.NewService(st, nil)
	pipeline := evaluate.New(
		transcript.NewResolver(nil),
		grammar.NewChain(grammar.NewRuleStrategy()),
		semantic.NewScorer(nil),
	)
	srv := New(authSvc, sessions, pipeline, opts...)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	t.Cleanup(func() { srv.Close() })
	return ts
}

func postJSON(t *testing.T, url, token string, body any) (*http.Response, map[string]any) {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshaling request: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return doJSON(t, req)
}

func getJSON(t *testing.T, url, token string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return doJSON(t, req)
}

func doJSON(t *testing.T, req *http.Request) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	var decoded map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	return resp, decoded
}

// postCheck submits a multipart check request with a text transcript.
func postCheck(t *testing.T, base, token, sessionID, question, transcriptText string) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.WriteField("session_id", sessionID)
	mw.WriteField("question", question)
	if transcriptText != "" {
		mw.WriteField("transcript", transcriptText)
	}
	mw.Close()

	req, err := http.NewRequest(http.MethodPost, base+"/api/check", &buf)
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	return doJSON(t, req)
}

func signup(t *testing.T, base, username string) string {
	t.Helper()
	resp, body := postJSON(t, base+"/api/auth/signup", "", map[string]string{
		"username": username,
		"password": "hunter2hunter2",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("signup status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	token, _ := body["token"].(string)
	if token == "" {
		t.Fatal("signup returned no token")
	}
	return token
}

func startSession(t *testing.T, base, token string) string {
	t.Helper()
	resp, body := postJSON(t, base+"/api/session/start", token, map[string]string{})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("session start status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	id, _ := body["session_id"].(string)
	if id == "" {
		t.Fatal("session start returned no session_id")
	}
	return id
}

func TestAuthFlow(t *testing.T) {
	ts := newTestServer(t)
	token := signup(t, ts.URL, "maria")

	resp, body := postJSON(t, ts.URL+"/api/auth/signup", "", map[string]string{
		"username": "maria", "password": "hunter2hunter2",
	})
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("duplicate signup status = %d, want %d", resp.StatusCode, http.StatusConflict)
	}

	resp, _ = postJSON(t, ts.URL+"/api/auth/login", "", map[string]string{
		"username": "maria", "password": "wrong-password",
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("bad login status = %d, want %d", resp.StatusCode, http.StatusUnauthorized)
	}

	resp, body = getJSON(t, ts.URL+"/api/auth/me", token)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("me status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	user, _ := body["user"].(map[string]any)
	if user["username"] != "maria" {
		t.Errorf("me username = %v, want %q", user["username"], "maria")
	}

	resp, _ = getJSON(t, ts.URL+"/api/auth/me", "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("unauthenticated me status = %d, want %d", resp.StatusCode, http.StatusUnauthorized)
	}
}

func TestSessionLifecycle(t *testing.T) {
	ts := newTestServer(t)
	token := signup(t, ts.URL, "noor")
	sessionID := startSession(t, ts.URL, token)

	resp, body := postCheck(t, ts.URL, token, sessionID, "Tell me about yourself", "I am student and like coding")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("check status = %d, want %d: %v", resp.StatusCode, http.StatusOK, body)
	}
	if body["correction"] != "I am a student and I like coding" {
		t.Errorf("correction = %v, want rewritten sentence", body["correction"])
	}
	scores, _ := body["scores"].(map[string]any)
	if scores["grammar"] != float64(75) {
		t.Errorf("grammar score = %v, want 75", scores["grammar"])
	}
	tts, _ := body["tts"].(map[string]any)
	if tts["audio_b64"] != "" {
		t.Error("check without a synthesizer should return an empty audio payload")
	}
	if tts["text"] != body["feedback_text"] {
		t.Errorf("tts text = %v, want the feedback line %v", tts["text"], body["feedback_text"])
	}

	resp, body = getJSON(t, ts.URL+"/api/session/"+sessionID, token)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("session get status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	attempts, _ := body["attempts"].([]any)
	if len(attempts) != 1 {
		t.Fatalf("attempts = %d, want 1", len(attempts))
	}

	resp, body = postJSON(t, ts.URL+"/api/session/end", token, map[string]string{"session_id": sessionID})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("session end status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	agg, _ := body["scores"].(map[string]any)
	if agg["grammar"] != float64(75) {
		t.Errorf("aggregate grammar = %v, want 75", agg["grammar"])
	}
	if body["feedback"] == "" {
		t.Error("session end returned no feedback summary")
	}

	resp, _ = postCheck(t, ts.URL, token, sessionID, "Another question", "hello there")
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("check on ended session status = %d, want %d", resp.StatusCode, http.StatusConflict)
	}

	resp, body = getJSON(t, ts.URL+"/api/session/history", token)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("history status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	sessions, _ := body["sessions"].([]any)
	if len(sessions) != 1 {
		t.Fatalf("history sessions = %d, want 1", len(sessions))
	}
	first, _ := sessions[0].(map[string]any)
	if first["status"] != "completed" {
		t.Errorf("session status = %v, want %q", first["status"], "completed")
	}
}

func TestCheckValidation(t *testing.T) {
	ts := newTestServer(t)
	token := signup(t, ts.URL, "pavel")
	sessionID := startSession(t, ts.URL, token)

	resp, _ := postCheck(t, ts.URL, token, sessionID, "", "hello")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing question status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}

	resp, _ = postCheck(t, ts.URL, token, "sess-does-not-exist", "Question?", "hello")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown session status = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}

	resp, _ = postCheck(t, ts.URL, token, sessionID, "Question?", "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("no input status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}

	otherToken := signup(t, ts.URL, "intruder")
	resp, _ = postCheck(t, ts.URL, otherToken, sessionID, "Question?", "hello")
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("foreign session status = %d, want %d", resp.StatusCode, http.StatusForbidden)
	}
}

func TestCheckBlockedAnswer(t *testing.T) {
	ts := newTestServer(t)
	token := signup(t, ts.URL, "sami")
	sessionID := startSession(t, ts.URL, token)

	resp, body := postCheck(t, ts.URL, token, sessionID, "How was the meeting?", "it was a damn mess")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("check status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if body["correction"] != "I am not sure about that, please retry." {
		t.Errorf("correction = %v, want the refusal sentence", body["correction"])
	}
	scores, _ := body["scores"].(map[string]any)
	for dim, v := range scores {
		if v != float64(0) {
			t.Errorf("score %s = %v, want 0", dim, v)
		}
	}
	mistakes, _ := body["mistakes"].([]any)
	if len(mistakes) != 1 || mistakes[0] != "inappropriate language" {
		t.Errorf("mistakes = %v, want [inappropriate language]", mistakes)
	}
}

func TestTTSEndpoint(t *testing.T) {
	ts := newTestServer(t)
	resp, _ := postJSON(t, ts.URL+"/api/tts", "", map[string]string{"text": "Hello learner"})
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("tts without synthesizer status = %d, want %d", resp.StatusCode, http.StatusServiceUnavailable)
	}

	withSynth := newTestServer(t, WithSynthesizer(synthesis.New(nil)))
	resp, body := postJSON(t, withSynth.URL+"/api/tts", "", map[string]string{"text": "Hello learner"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("tts status = %d, want %d: %v", resp.StatusCode, http.StatusOK, body)
	}
	if body["audio_b64"] == "" {
		t.Error("tts returned no audio")
	}
	if body["fallback"] != true {
		t.Error("engine-less synthesis should be marked as fallback")
	}

	resp, _ = postJSON(t, withSynth.URL+"/api/tts", "", map[string]string{})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("tts without text status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
}

func TestWebRTCOfferRejectsBadPayload(t *testing.T) {
	ts := newTestServer(t)
	for _, body := range []map[string]string{
		{},
		{"sdp": "v=0"},
		{"type": "offer"},
	} {
		resp, _ := postJSON(t, ts.URL+"/webrtc/offer", "", body)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("offer %v status = %d, want %d", body, resp.StatusCode, http.StatusBadRequest)
		}
	}
}

func TestRoutesRequireAuth(t *testing.T) {
	ts := newTestServer(t)
	for _, tc := range []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/api/check"},
		{http.MethodPost, "/api/session/start"},
		{http.MethodPost, "/api/session/end"},
		{http.MethodGet, "/api/session/history"},
		{http.MethodGet, "/api/session/some-id"},
		{http.MethodGet, "/api/auth/me"},
	} {
		t.Run(fmt.Sprintf("%s %s", tc.method, tc.path), func(t *testing.T) {
			req, err := http.NewRequest(tc.method, ts.URL+tc.path, strings.NewReader("{}"))
			if err != nil {
				t.Fatalf("building request: %v", err)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("request failed: %v", err)
			}
			resp.Body.Close()
			if resp.StatusCode != http.StatusUnauthorized {
				t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusUnauthorized)
			}
		})
	}
}
