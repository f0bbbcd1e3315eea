package api

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
	"github.com/tripnavi/tripnavi/internal/models"
	"github.com/tripnavi/tripnavi/internal/util"
)

const testChannelSecret = "test-channel-secret"

// mockHandler implements MessageHandler for testing.
type mockHandler struct {
	reply models.Reply
	err   error
	calls []struct{ userID, text string }
}

func (m *mockHandler) HandleMessage(ctx context.Context, userID, text string) (models.Reply, error) {
	m.calls = append(m.calls, struct{ userID, text string }{userID, text})
	return m.reply, m.err
}

// mockDispatcher implements dispatcher for testing.
type mockDispatcher struct {
	replyErr    error
	loadingErr  error
	replies     [][]messaging_api.MessageInterface
	replyTokens []string
	loadings    []string
}

func (m *mockDispatcher) Reply(replyToken string, messages []messaging_api.MessageInterface) error {
	m.replyTokens = append(m.replyTokens, replyToken)
	m.replies = append(m.replies, messages)
	return m.replyErr
}

func (m *mockDispatcher) ShowLoading(chatID string, seconds int32) error {
	m.loadings = append(m.loadings, chatID)
	return m.loadingErr
}

func newTestServer(handler MessageHandler, dispatch dispatcher, audioDir string) *Server {
	return &Server{
		handler:       handler,
		dispatch:      dispatch,
		channelSecret: testChannelSecret,
		publicBaseURL: "https://tripnavi.example.com",
		audioDir:      audioDir,
	}
}

func signBody(body string) string {
	mac := hmac.New(sha256.New, []byte(testChannelSecret))
	mac.Write([]byte(body))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func textEventBody(userID, text, replyToken string) string {
	return fmt.Sprintf(`{
		"destination": "xxx",
		"events": [{
			"type": "message",
			"mode": "active",
			"timestamp": 1700000000000,
			"webhookEventId": "01ABCDEFGHIJKLMNOPQRSTUVWX",
			"deliveryContext": {"isRedelivery": false},
			"replyToken": %q,
			"source": {"type": "user", "userId": %q},
			"message": {"type": "text", "id": "100001", "quoteToken": "q", "text": %q}
		}]
	}`, replyToken, userID, text)
}

func postCallback(t *testing.T, s *Server, body, signature string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/callback", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-line-signature", signature)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestCallback_TextMessageRepliesWithText(t *testing.T) {
	handler := &mockHandler{reply: models.Reply{Text: "hello traveler"}}
	dispatch := &mockDispatcher{}
	s := newTestServer(handler, dispatch, t.TempDir())

	body := textEventBody("U123", "TokyoPlan", "rtoken-1")
	rec := postCallback(t, s, body, signBody(body))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(handler.calls) != 1 {
		t.Fatalf("expected 1 handler call, got %d", len(handler.calls))
	}
	if handler.calls[0].userID != "U123" || handler.calls[0].text != "TokyoPlan" {
		t.Errorf("unexpected handler call: %+v", handler.calls[0])
	}
	if len(dispatch.replies) != 1 {
		t.Fatalf("expected 1 reply, got %d", len(dispatch.replies))
	}
	if dispatch.replyTokens[0] != "rtoken-1" {
		t.Errorf("expected reply token rtoken-1, got %q", dispatch.replyTokens[0])
	}
	messages := dispatch.replies[0]
	if len(messages) != 1 {
		t.Fatalf("expected 1 message for text-only reply, got %d", len(messages))
	}
	text, ok := messages[0].(*messaging_api.TextMessage)
	if !ok {
		t.Fatalf("expected TextMessage, got %T", messages[0])
	}
	if text.Text != "hello traveler" {
		t.Errorf("unexpected text: %q", text.Text)
	}
	if len(dispatch.loadings) != 1 || dispatch.loadings[0] != "U123" {
		t.Errorf("expected loading animation for U123, got %v", dispatch.loadings)
	}
}

func TestCallback_AudioReplyAddsAudioMessage(t *testing.T) {
	handler := &mockHandler{reply: models.Reply{
		Text:          "detailed answer",
		AudioName:     "voice_U123_00000000-0000-0000-0000-000000000000.mp3",
		AudioDuration: 2300,
	}}
	dispatch := &mockDispatcher{}
	s := newTestServer(handler, dispatch, t.TempDir())

	body := textEventBody("U123", "what about day two?", "rtoken-2")
	rec := postCallback(t, s, body, signBody(body))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	messages := dispatch.replies[0]
	if len(messages) != 2 {
		t.Fatalf("expected text plus audio, got %d messages", len(messages))
	}
	audio, ok := messages[1].(*messaging_api.AudioMessage)
	if !ok {
		t.Fatalf("expected AudioMessage, got %T", messages[1])
	}
	wantURL := "https://tripnavi.example.com/audio/voice_U123_00000000-0000-0000-0000-000000000000.mp3"
	if audio.OriginalContentUrl != wantURL {
		t.Errorf("unexpected audio URL: %q", audio.OriginalContentUrl)
	}
	if audio.Duration != 2300 {
		t.Errorf("unexpected duration: %d", audio.Duration)
	}
}

func TestCallback_InvalidSignatureRejected(t *testing.T) {
	handler := &mockHandler{reply: models.Reply{Text: "should not be sent"}}
	dispatch := &mockDispatcher{}
	s := newTestServer(handler, dispatch, t.TempDir())

	body := textEventBody("U123", "hi", "rtoken-3")
	rec := postCallback(t, s, body, "bogus-signature")

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid signature, got %d", rec.Code)
	}
	if len(handler.calls) != 0 {
		t.Errorf("handler must not run on invalid signature, got %d calls", len(handler.calls))
	}
	if len(dispatch.replies) != 0 {
		t.Errorf("no reply must be sent on invalid signature")
	}
}

func TestCallback_HandlerErrorDropsTurn(t *testing.T) {
	handler := &mockHandler{err: errors.New("pipeline broken")}
	dispatch := &mockDispatcher{}
	s := newTestServer(handler, dispatch, t.TempDir())

	body := textEventBody("U123", "hi", "rtoken-4")
	rec := postCallback(t, s, body, signBody(body))

	// The webhook still acknowledges; the failed turn is logged, not retried.
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(dispatch.replies) != 0 {
		t.Errorf("no reply expected when handling fails, got %d", len(dispatch.replies))
	}
}

func TestCallback_LoadingFailureDoesNotAbortTurn(t *testing.T) {
	handler := &mockHandler{reply: models.Reply{Text: "still answered"}}
	dispatch := &mockDispatcher{loadingErr: errors.New("loading unavailable")}
	s := newTestServer(handler, dispatch, t.TempDir())

	body := textEventBody("U123", "hi", "rtoken-5")
	postCallback(t, s, body, signBody(body))

	if len(handler.calls) != 1 {
		t.Errorf("expected handler to run despite loading failure, got %d calls", len(handler.calls))
	}
	if len(dispatch.replies) != 1 {
		t.Errorf("expected reply despite loading failure, got %d", len(dispatch.replies))
	}
}

func TestCallback_NonUserSourceSkipped(t *testing.T) {
	handler := &mockHandler{reply: models.Reply{Text: "nope"}}
	dispatch := &mockDispatcher{}
	s := newTestServer(handler, dispatch, t.TempDir())

	body := `{
		"destination": "xxx",
		"events": [{
			"type": "message",
			"mode": "active",
			"timestamp": 1700000000000,
			"webhookEventId": "01ABCDEFGHIJKLMNOPQRSTUVWX",
			"deliveryContext": {"isRedelivery": false},
			"replyToken": "rtoken-6",
			"source": {"type": "group", "groupId": "G1"},
			"message": {"type": "text", "id": "100002", "quoteToken": "q", "text": "hi"}
		}]
	}`
	rec := postCallback(t, s, body, signBody(body))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(handler.calls) != 0 {
		t.Errorf("group messages must be ignored, got %d calls", len(handler.calls))
	}
}

func TestCallback_MethodNotAllowed(t *testing.T) {
	s := newTestServer(&mockHandler{}, &mockDispatcher{}, t.TempDir())
	req := httptest.NewRequest(http.MethodGet, "/callback", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", rec.Code)
	}
}

func TestAudioHandler_ServesGeneratedFiles(t *testing.T) {
	dir := t.TempDir()
	name := util.AudioFileName("U123")
	if err := os.WriteFile(filepath.Join(dir, name), []byte("mp3-bytes"), 0644); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}
	s := newTestServer(&mockHandler{}, &mockDispatcher{}, dir)

	req := httptest.NewRequest(http.MethodGet, "/audio/"+name, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := rec.Body.String(); got != "mp3-bytes" {
		t.Errorf("unexpected body: %q", got)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "audio/mpeg" {
		t.Errorf("unexpected content type: %q", ct)
	}
}

func TestAudioHandler_RejectsUnknownNames(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "secrets.txt"), []byte("nope"), 0644); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}
	s := newTestServer(&mockHandler{}, &mockDispatcher{}, dir)

	for _, path := range []string{
		"/audio/secrets.txt",
		"/audio/voice_" + uuid.NewString() + ".wav",
	} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)
		if rec.Code != http.StatusNotFound {
			t.Errorf("expected 404 for %q, got %d", path, rec.Code)
		}
	}
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(&mockHandler{}, &mockDispatcher{}, t.TempDir())
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Errorf("unexpected health body: %q", rec.Body.String())
	}
}
