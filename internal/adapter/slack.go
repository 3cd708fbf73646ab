package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/harunnryd/koe/internal/errors"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
)

type SlackAdapter struct {
	signingSecret string
	eventHandler  EventHandler
	port          int
	client        *slack.Client

	mu     sync.Mutex
	server *http.Server
}

func NewSlackAdapter(port int, signingSecret, botToken string, eventHandler EventHandler) *SlackAdapter {
	if signingSecret == "" {
		signingSecret = os.Getenv("SLACK_SIGNING_SECRET")
	}
	if botToken == "" {
		botToken = os.Getenv("SLACK_BOT_TOKEN")
	}
	return &SlackAdapter{
		signingSecret: signingSecret,
		eventHandler:  eventHandler,
		port:          port,
		client:        slack.New(botToken),
	}
}

func (s *SlackAdapter) Name() string {
	return "slack"
}

// Start serves the Events API callback until ctx is cancelled.
func (s *SlackAdapter) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/slack/events", s.handleEvents)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: mux,
	}
	s.mu.Lock()
	s.server = srv
	s.mu.Unlock()

	go func() {
		slog.Info("Slack adapter listening", "port", s.port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Slack server failed", "error", err)
		}
	}()

	<-ctx.Done()
	return srv.Shutdown(context.WithoutCancel(ctx))
}

func (s *SlackAdapter) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// Send posts into the session's channel, inside its thread when there is one.
func (s *SlackAdapter) Send(ctx context.Context, out Outbound) error {
	channel := out.Metadata["channel_id"]
	if channel == "" {
		return errors.InvalidInput("session has no slack channel: " + out.SessionID)
	}

	opts := []slack.MsgOption{slack.MsgOptionText(out.Content, false)}
	if thread := out.Metadata["thread_ts"]; thread != "" {
		opts = append(opts, slack.MsgOptionTS(thread))
	}

	if _, _, err := s.client.PostMessageContext(ctx, channel, opts...); err != nil {
		return errors.Wrap(err, "failed to send Slack message")
	}
	slog.Debug("Slack message sent", "channel", channel)
	return nil
}

func (s *SlackAdapter) Health(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()
	if srv == nil {
		return errors.Transient("Slack server not started")
	}
	if _, err := s.client.AuthTestContext(ctx); err != nil {
		return errors.Transient("Slack connection failed")
	}
	return nil
}

func (s *SlackAdapter) handleEvents(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	sv, err := slack.NewSecretsVerifier(r.Header, s.signingSecret)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if _, err := sv.Write(body); err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	if err := sv.Ensure(); err != nil {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	apiEvent, err := slackevents.ParseEvent(json.RawMessage(body), slackevents.OptionNoVerifyToken())
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	switch apiEvent.Type {
	case slackevents.URLVerification:
		var challenge slackevents.ChallengeResponse
		if err := json.Unmarshal(body, &challenge); err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte(challenge.Challenge))
		return

	case slackevents.CallbackEvent:
		if ev, ok := apiEvent.InnerEvent.Data.(*slackevents.MessageEvent); ok && ev.BotID == "" && ev.Text != "" {
			s.dispatch(r.Context(), ev)
		}
	}

	w.WriteHeader(http.StatusOK)
}

func (s *SlackAdapter) dispatch(ctx context.Context, ev *slackevents.MessageEvent) {
	if s.eventHandler == nil {
		return
	}
	metadata := map[string]string{
		"channel_id": ev.Channel,
		"user_id":    ev.User,
		"ts":         ev.TimeStamp,
	}
	if ev.ThreadTimeStamp != "" {
		metadata["thread_ts"] = ev.ThreadTimeStamp
	}

	in := Inbound{
		ID:       ev.Channel + ":" + ev.TimeStamp,
		Source:   "slack",
		Content:  ev.Text,
		Metadata: metadata,
	}
	if err := s.eventHandler(ctx, in); err != nil {
		slog.Error("Failed to handle Slack message", "error", err)
	}
}
