package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/line/line-bot-sdk-go/v7/linebot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leecheenbao/tripeak-b2b/internal/conversation"
	"github.com/leecheenbao/tripeak-b2b/internal/dispatch"
	"github.com/leecheenbao/tripeak-b2b/internal/nlu"
)

const testChannelSecret = "test-channel-secret"

func sign(secret, body string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(body))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func newTestRouter(t *testing.T) (http.Handler, *fakeConversations, *fakeReplier) {
	t.Helper()
	bot, err := linebot.New(testChannelSecret, "test-access-token")
	require.NoError(t, err)

	convs := &fakeConversations{registered: map[string]bool{"Uuser": true}}
	replier := newFakeReplier()
	h := NewHandler(convs,
		&fakeResolver{res: nlu.Result{Intent: nlu.IntentGreeting, Confidence: 0.9}},
		&fakeDispatcher{reply: dispatch.Reply{Text: nlu.MessageGreeting, NextState: conversation.StateIdle}},
		replier)
	return NewRouter(bot, h), convs, replier
}

func webhookBody() string {
	return `{"destination":"xxx","events":[{"type":"message","replyToken":"rt-1",` +
		`"source":{"type":"user","userId":"Uuser"},` +
		`"timestamp":1735700000000,"mode":"active",` +
		`"message":{"type":"text","id":"1001","text":"你好"}}]}`
}

func TestWebhook_AcceptsSignedRequest(t *testing.T) {
	router, convs, replier := newTestRouter(t)

	body := webhookBody()
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Line-Signature", sign(testChannelSecret, body))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, convs.saved, 1)
	assert.Equal(t, []string{nlu.MessageGreeting}, replier.replies["rt-1"])
}

func TestWebhook_RejectsBadSignature(t *testing.T) {
	router, convs, _ := newTestRouter(t)

	body := webhookBody()
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Line-Signature", sign("wrong-secret", body))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, convs.saved)
}

func TestWebhook_RejectsMissingSignature(t *testing.T) {
	router, _, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(webhookBody()))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthz(t *testing.T) {
	router, _, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")
}

func TestMetricsEndpoint(t *testing.T) {
	router, _, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "tripeak_")
}
