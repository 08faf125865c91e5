package api

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"github.com/reedfamily/zomboidbot/internal/telegram"
	"go.uber.org/zap"
)

// SecretHeader carries the secret registered with setWebhook.
const SecretHeader = "X-Telegram-Bot-Api-Secret-Token"

// Enqueuer is satisfied by *bot.Bot.
type Enqueuer interface {
	Enqueue(u telegram.Update) bool
}

type WebhookHandler struct {
	secret string
	bot    Enqueuer
	log    *zap.Logger
}

func NewWebhookHandler(secret string, b Enqueuer, log *zap.Logger) *WebhookHandler {
	return &WebhookHandler{secret: secret, bot: b, log: log}
}

// ServeHTTP accepts one update from Telegram. Updates are handled
// asynchronously so Telegram is answered at once. Without a configured
// secret every delivery is refused.
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.secret == "" {
		writeError(w, http.StatusForbidden, "webhook secret not configured")
		return
	}
	if subtle.ConstantTimeCompare([]byte(r.Header.Get(SecretHeader)), []byte(h.secret)) != 1 {
		writeError(w, http.StatusUnauthorized, "bad webhook secret")
		return
	}

	var u telegram.Update
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&u); err != nil {
		writeError(w, http.StatusBadRequest, "invalid update")
		return
	}
	if !h.bot.Enqueue(u) {
		h.log.Warn("update queue full, dropping update", zap.Int64("update_id", u.UpdateID))
		writeError(w, http.StatusServiceUnavailable, "busy")
		return
	}
	w.WriteHeader(http.StatusOK)
}
