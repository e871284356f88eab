package gateway

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"

	"github.com/suzieq/ceo-office/internal/bus"
)

// CommandAck is the immediate reply to a slash command; the result is
// posted to the channel when the worker finishes.
const CommandAck = "On it. I'll post the result here."

// readSlack reads the body and checks the signature when a signing secret
// is configured. On failure it writes the response and returns nil.
func (s *Server) readSlack(w http.ResponseWriter, r *http.Request) []byte {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("read body: %w", err))
		return nil
	}
	if s.slack.SigningSecret == "" {
		return body
	}
	sv, err := slack.NewSecretsVerifier(r.Header, s.slack.SigningSecret)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return nil
	}
	if _, err := sv.Write(body); err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return nil
	}
	if err := sv.Ensure(); err != nil {
		writeError(w, http.StatusUnauthorized, errors.New("invalid slack signature"))
		return nil
	}
	return body
}

func (s *Server) handleSlackEvents(w http.ResponseWriter, r *http.Request) {
	body := s.readSlack(w, r)
	if body == nil {
		return
	}
	event, err := slackevents.ParseEvent(json.RawMessage(body), slackevents.OptionNoVerifyToken())
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("parse slack event: %w", err))
		return
	}

	switch event.Type {
	case slackevents.URLVerification:
		var challenge slackevents.ChallengeResponse
		if err := json.Unmarshal(body, &challenge); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		_, _ = io.WriteString(w, challenge.Challenge)
		return
	case slackevents.CallbackEvent:
	default:
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	// Slack retries events it thinks timed out; the first delivery is
	// already queued.
	if r.Header.Get("X-Slack-Retry-Num") != "" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "retry": true})
		return
	}

	var msg *bus.InboundMessage
	var ts string
	switch ev := event.InnerEvent.Data.(type) {
	case *slackevents.MessageEvent:
		if ev.BotID != "" || ev.SubType != "" || strings.TrimSpace(ev.Text) == "" {
			break
		}
		msg = &bus.InboundMessage{
			SenderID: ev.User,
			ChatID:   ev.Channel,
			ThreadID: threadOrTS(ev.ThreadTimeStamp, ev.TimeStamp),
			Content:  ev.Text,
		}
		ts = ev.TimeStamp
	case *slackevents.AppMentionEvent:
		if ev.BotID != "" {
			break
		}
		msg = &bus.InboundMessage{
			SenderID: ev.User,
			ChatID:   ev.Channel,
			ThreadID: threadOrTS(ev.ThreadTimeStamp, ev.TimeStamp),
			Content:  ev.Text,
		}
		ts = ev.TimeStamp
	}
	if msg == nil {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "ignored": true})
		return
	}
	// A mention arrives both as a message and as an app_mention with the
	// same ts; answer it once.
	if ts != "" {
		if seen, _ := s.seenSlack.ContainsOrAdd(msg.ChatID+":"+ts, struct{}{}); seen {
			writeJSON(w, http.StatusOK, map[string]any{"ok": true, "duplicate": true})
			return
		}
	}
	msg.Kind = bus.KindChat
	msg.Channel = "slack"
	msg.TraceID = event.InnerEvent.Type
	if !s.publish(w, msg) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleSlackCommand(w http.ResponseWriter, r *http.Request) {
	body := s.readSlack(w, r)
	if body == nil {
		return
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	cmd, err := slack.SlashCommandParse(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("parse slash command: %w", err))
		return
	}
	if !s.publish(w, &bus.InboundMessage{
		Kind:     bus.KindCommand,
		Channel:  "slack",
		SenderID: cmd.UserID,
		ChatID:   cmd.ChannelID,
		Command:  cmd.Command,
		Content:  cmd.Text,
		TraceID:  cmd.TriggerID,
	}) {
		return
	}
	writeJSON(w, http.StatusOK, slack.Msg{ResponseType: slack.ResponseTypeEphemeral, Text: CommandAck})
}

func (s *Server) handleTelegram(w http.ResponseWriter, r *http.Request) {
	if secret := s.telegram.WebhookSecret; secret != "" && r.Header.Get("X-Telegram-Bot-Api-Secret-Token") != secret {
		writeError(w, http.StatusUnauthorized, errors.New("invalid telegram secret"))
		return
	}
	var update tgbotapi.Update
	if !decode(w, r, &update) {
		return
	}
	m := update.Message
	if m == nil || m.Chat == nil || (m.From != nil && m.From.IsBot) || strings.TrimSpace(m.Text) == "" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "ignored": true})
		return
	}

	msg := &bus.InboundMessage{
		Kind:     bus.KindChat,
		Channel:  "telegram",
		ChatID:   strconv.FormatInt(m.Chat.ID, 10),
		ThreadID: strconv.Itoa(m.MessageID),
		Content:  m.Text,
		TraceID:  strconv.Itoa(update.UpdateID),
	}
	if m.From != nil {
		msg.SenderID = strconv.FormatInt(m.From.ID, 10)
	}
	if m.IsCommand() {
		msg.Kind = bus.KindCommand
		msg.Command = m.Command()
		msg.Content = m.CommandArguments()
	}
	if !s.publish(w, msg) {
		return
	}
	slog.Debug("Telegram update queued", "chat_id", msg.ChatID, "kind", msg.Kind)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// threadOrTS replies in the existing thread, or starts one on the message.
func threadOrTS(thread, ts string) string {
	if thread != "" {
		return thread
	}
	return ts
}
