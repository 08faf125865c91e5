package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type botAPI struct {
	srv   *httptest.Server
	calls []string
	last  map[string]any
}

func newBotAPI(t *testing.T, results map[string]string) *botAPI {
	b := &botAPI{}
	b.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN", r.URL.Path[:len("/botTOKEN")])
		method := r.URL.Path[len("/botTOKEN/"):]
		b.calls = append(b.calls, method)
		b.last = map[string]any{}
		json.NewDecoder(r.Body).Decode(&b.last)

		result, ok := results[method]
		if !ok {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"ok":false,"error_code":400,"description":"Bad Request: message to delete not found"}`))
			return
		}
		w.Write([]byte(`{"ok":true,"result":` + result + `}`))
	}))
	t.Cleanup(b.srv.Close)
	return b
}

func TestSendMessage(t *testing.T) {
	api := newBotAPI(t, map[string]string{
		"sendMessage": `{"message_id":42,"chat":{"id":-100,"type":"supergroup"},"text":"ok"}`,
	})
	c := NewClient(api.srv.URL, "TOKEN")

	msg, err := c.SendMessage(context.Background(), -100, "<b>ok</b>", MessageOptions{ParseMode: ParseModeHTML, ReplyToMessageID: 7})
	require.NoError(t, err)
	assert.Equal(t, int64(42), msg.MessageID)
	assert.Equal(t, []string{"sendMessage"}, api.calls)
	assert.Equal(t, "HTML", api.last["parse_mode"])
	assert.Equal(t, float64(-100), api.last["chat_id"])
	assert.Equal(t, float64(7), api.last["reply_parameters"].(map[string]any)["message_id"])
}

func TestSendAndStopPoll(t *testing.T) {
	api := newBotAPI(t, map[string]string{
		"sendPoll": `{"message_id":5,"chat":{"id":1,"type":"group"},"poll":{"id":"p1","question":"q","options":[{"text":"Setuju","voter_count":0},{"text":"Tidak Setuju","voter_count":0}]}}`,
		"stopPoll": `{"id":"p1","question":"q","is_closed":true,"options":[{"text":"Setuju","voter_count":3},{"text":"Tidak Setuju","voter_count":1}]}`,
	})
	c := NewClient(api.srv.URL, "TOKEN")
	ctx := context.Background()

	msg, err := c.SendPoll(ctx, 1, "q", []string{"Setuju", "Tidak Setuju"}, false)
	require.NoError(t, err)
	require.NotNil(t, msg.Poll)
	assert.Equal(t, "p1", msg.Poll.ID)
	assert.Equal(t, false, api.last["is_anonymous"])

	poll, err := c.StopPoll(ctx, 1, 5)
	require.NoError(t, err)
	assert.True(t, poll.IsClosed)
	assert.Equal(t, 3, poll.Options[0].VoterCount)
}

func TestAPIError(t *testing.T) {
	api := newBotAPI(t, nil)
	c := NewClient(api.srv.URL, "TOKEN")

	err := c.DeleteMessage(context.Background(), 1, 99)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 400, apiErr.Code)
	assert.Equal(t, "deleteMessage", apiErr.Method)
	assert.Contains(t, apiErr.Description, "not found")
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		text, cmd, args string
		ok              bool
	}{
		{"/add_mod 2392709985", "add_mod", "2392709985", true},
		{"/active_player@ZomboidBot", "active_player", "", true},
		{"/add_mod@ZomboidBot   123  ", "add_mod", "123", true},
		{"hello", "", "", false},
		{"/", "", "", false},
	}
	for _, tt := range tests {
		cmd, args, ok := ParseCommand(tt.text)
		assert.Equal(t, tt.ok, ok, tt.text)
		assert.Equal(t, tt.cmd, cmd, tt.text)
		assert.Equal(t, tt.args, args, tt.text)
	}
}

func TestMentionHTML(t *testing.T) {
	assert.Equal(t, `<a href="tg://user?id=7">alice</a>`, MentionHTML(User{ID: 7, Username: "alice", FirstName: "Alice"}))
	assert.Equal(t, `<a href="tg://user?id=8">Bob &lt;3</a>`, MentionHTML(User{ID: 8, FirstName: "Bob", LastName: "<3"}))
}

func TestResponseDecodedRegardlessOfContentType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte(`{"ok":true,"result":{"message_id":9,"chat":{"id":1,"type":"group"}}}`))
	}))
	t.Cleanup(srv.Close)

	msg, err := NewClient(srv.URL, "TOKEN").SendMessage(context.Background(), 1, "hi", MessageOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(9), msg.MessageID)
}

func TestCallHonoursCanceledContext(t *testing.T) {
	api := newBotAPI(t, map[string]string{"deleteMessage": `true`})
	c := NewClient(api.srv.URL, "TOKEN")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.Error(t, c.DeleteMessage(ctx, 1, 2))
	assert.Empty(t, api.calls)
}
