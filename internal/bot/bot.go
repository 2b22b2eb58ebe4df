// Package bot connects the command router to Telegram via long polling.
package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
	tb "gopkg.in/tucnak/telebot.v2"

	"pairwatch/internal/command"
)

const defaultPollTimeout = 10 * time.Second

// Handler produces the reply for one command message.
type Handler interface {
	Handle(ctx context.Context, chatID int64, text string) string
}

// Options configure the Telegram connection.
type Options struct {
	Token       string
	APIBase     string
	PollTimeout time.Duration
	// Allowed filters chats; nil allows everyone.
	Allowed func(chatID int64) bool
}

// Bot receives commands over Telegram and answers them.
type Bot struct {
	client  *tb.Bot
	handler Handler
	logger  zerolog.Logger
}

// New creates the bot client. It contacts Telegram to validate the token.
func New(opts Options, handler Handler, logger zerolog.Logger) (*Bot, error) {
	if opts.Token == "" {
		return nil, fmt.Errorf("telegram bot token is empty")
	}
	timeout := opts.PollTimeout
	if timeout <= 0 {
		timeout = defaultPollTimeout
	}

	log := logger.With().Str("component", "telegram_bot").Logger()
	poller := tb.NewMiddlewarePoller(&tb.LongPoller{Timeout: timeout}, acceptUpdate(opts.Allowed, log))

	client, err := tb.NewBot(tb.Settings{
		URL:    opts.APIBase,
		Token:  opts.Token,
		Poller: poller,
		Reporter: func(err error) {
			log.Warn().Err(err).Msg("telegram poller error")
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}

	return &Bot{client: client, handler: handler, logger: log}, nil
}

// Run registers handlers and polls until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	if err := b.client.SetCommands(menu()); err != nil {
		b.logger.Warn().Err(err).Msg("failed to publish command menu")
	}

	for _, entry := range command.Entries() {
		b.client.Handle("/"+entry.Name, b.respond(ctx))
	}
	b.client.Handle(tb.OnText, func(m *tb.Message) {
		if bareCommand(m) {
			b.respond(ctx)(m)
		}
	})

	go func() {
		<-ctx.Done()
		b.client.Stop()
	}()

	b.logger.Info().Str("username", b.client.Me.Username).Msg("telegram bot polling")
	b.client.Start()
	b.logger.Info().Msg("telegram bot stopped")
	return nil
}

func (b *Bot) respond(ctx context.Context) func(*tb.Message) {
	return func(m *tb.Message) {
		if m.Chat == nil {
			return
		}
		started := time.Now()
		reply := b.handler.Handle(ctx, m.Chat.ID, m.Text)
		if reply == "" {
			return
		}
		if _, err := b.client.Send(m.Chat, reply, &tb.SendOptions{DisableWebPagePreview: true}); err != nil {
			b.logger.Warn().Err(err).Int64("chat_id", m.Chat.ID).Msg("reply failed")
			return
		}
		b.logger.Debug().Int64("chat_id", m.Chat.ID).
			Str("command", firstWord(m.Text)).
			Dur("took", time.Since(started)).
			Msg("command answered")
	}
}

func acceptUpdate(allowed func(int64) bool, logger zerolog.Logger) func(*tb.Update) bool {
	return func(u *tb.Update) bool {
		if u.Message == nil || u.Message.Chat == nil {
			return false
		}
		if allowed != nil && !allowed(u.Message.Chat.ID) {
			logger.Warn().Int64("chat_id", u.Message.Chat.ID).Msg("ignoring message from chat outside allow-list")
			return false
		}
		return true
	}
}

// bareCommand reports whether a slash-less message should be treated as a
// command. Only private chats qualify; group chatter like "price is up"
// must not trigger replies.
func bareCommand(m *tb.Message) bool {
	if m == nil || m.Chat == nil || m.Chat.Type != tb.ChatPrivate {
		return false
	}
	verb, _ := command.Parse(m.Text)
	return command.Known(verb)
}

func menu() []tb.Command {
	return lo.Map(command.Entries(), func(s command.Entry, _ int) tb.Command {
		return tb.Command{Text: s.Name, Description: s.Description}
	})
}

func firstWord(text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
