package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/gorilla/websocket"

	"github.com/florianilch/devbadge/internal/lifecycle"
	"github.com/florianilch/devbadge/internal/observability"
)

// ErrAuthentication is returned by Connect when Discord rejects the token.
var ErrAuthentication = lifecycle.ErrAuthentication

// authScheme prefixes bot tokens in the Authorization header.
const authScheme = "Bot "

// DefaultIntents are the gateway capabilities requested when none are configured.
const DefaultIntents = discordgo.IntentGuilds | discordgo.IntentGuildMessages | discordgo.IntentMessageContent

// Spawner runs tracked background work. Go reports false when the work was
// refused because shutdown has begun.
type Spawner interface {
	Go(name string, fn func(ctx context.Context) error) bool
}

// Option configures a Client.
type Option func(*config)

type config struct {
	guildID string
	intents discordgo.Intent
	onReady func()
}

// WithGuildID registers commands in a single guild instead of globally.
// Guild commands become available immediately, global ones may take up to an hour.
func WithGuildID(guildID string) Option {
	return func(c *config) {
		c.guildID = guildID
	}
}

// WithMessageContent toggles the privileged message content intent.
func WithMessageContent(enabled bool) Option {
	return func(c *config) {
		if enabled {
			c.intents |= discordgo.IntentMessageContent
		} else {
			c.intents &^= discordgo.IntentMessageContent
		}
	}
}

// WithReadyHook registers fn to run once the gateway reports Ready.
func WithReadyHook(fn func()) Option {
	return func(c *config) {
		c.onReady = fn
	}
}

// Client is a Discord gateway connection serving the badge command.
type Client struct {
	cfg   config
	tasks Spawner

	// websocket handshake and teardown; replaced in tests
	open         func(*discordgo.Session) error
	closeSession func(*discordgo.Session) error

	mu      sync.Mutex
	session *discordgo.Session
}

// Compile-time check that Client implements lifecycle.Gateway
var _ lifecycle.Gateway = (*Client)(nil)

// New creates a Client. Handlers are run through tasks.
func New(tasks Spawner, opts ...Option) (*Client, error) {
	if tasks == nil {
		return nil, fmt.Errorf("missing task spawner")
	}

	cfg := config{intents: DefaultIntents}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Client{
		cfg:          cfg,
		tasks:        tasks,
		open:         (*discordgo.Session).Open,
		closeSession: (*discordgo.Session).Close,
	}, nil
}

// Connect authenticates with token, opens the gateway and blocks until ctx is done.
func (c *Client) Connect(ctx context.Context, token string) error {
	session, err := discordgo.New(authScheme + token)
	if err != nil {
		return fmt.Errorf("creating session: %w", err)
	}
	session.Identify.Intents = c.cfg.intents

	if _, err := session.User("@me", discordgo.WithContext(ctx)); err != nil {
		if isUnauthorized(err) {
			return fmt.Errorf("%w: %v", ErrAuthentication, err)
		}
		return fmt.Errorf("verifying token: %w", err)
	}

	session.AddHandler(c.onReady)
	session.AddHandler(c.onInteraction)
	session.AddHandler(func(_ *discordgo.Session, _ *discordgo.Disconnect) {
		slog.Warn("gateway disconnected")
	})

	return c.serve(ctx, session)
}

// serve opens session and holds it until ctx is done. The session is published
// before the handshake so a concurrent Close always reaches it.
func (c *Client) serve(ctx context.Context, session *discordgo.Session) error {
	c.mu.Lock()
	c.session = session
	c.mu.Unlock()

	if err := c.open(session); err != nil {
		if isAuthenticationClose(err) {
			return fmt.Errorf("%w: %v", ErrAuthentication, err)
		}
		return fmt.Errorf("opening gateway: %w", err)
	}

	c.mu.Lock()
	detached := c.session != session
	c.mu.Unlock()

	// Close ran while the handshake was in flight and could not reach the websocket
	if detached {
		if err := c.closeSession(session); err != nil {
			slog.WarnContext(ctx, "closing gateway session after late handshake failed", "error", err)
		}
		return fmt.Errorf("gateway closed during handshake: %w", context.Canceled)
	}

	<-ctx.Done()
	return ctx.Err()
}

// Close closes the gateway session if one is open. Safe to call repeatedly.
func (c *Client) Close() error {
	c.mu.Lock()
	session := c.session
	c.session = nil
	c.mu.Unlock()

	if session == nil {
		return nil
	}
	if err := c.closeSession(session); err != nil {
		return fmt.Errorf("closing gateway session: %w", err)
	}
	return nil
}

func (c *Client) onReady(s *discordgo.Session, r *discordgo.Ready) {
	observability.OK(context.Background(), "authenticated", "user", r.User.String(), "id", r.User.ID)
	if c.cfg.onReady != nil {
		c.cfg.onReady()
	}

	c.tasks.Go("command sync", func(ctx context.Context) error {
		synced, err := s.ApplicationCommandBulkOverwrite(r.Application.ID, c.cfg.guildID, Commands, discordgo.WithContext(ctx))
		if err != nil {
			slog.ErrorContext(ctx, "failed to sync commands", "error", err)
			return err
		}
		observability.OK(ctx, "synced slash commands", "count", len(synced))
		return nil
	})
}

func (c *Client) onInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}

	c.tasks.Go("interaction", func(ctx context.Context) error {
		var iconURL string
		if s.State != nil && s.State.User != nil {
			iconURL = s.State.User.AvatarURL("")
		}

		response, ok := Respond(i, iconURL)
		if !ok {
			return nil
		}

		if err := s.InteractionRespond(i.Interaction, response, discordgo.WithContext(ctx)); err != nil {
			slog.ErrorContext(ctx, "failed to respond to interaction", "error", err)
			return err
		}
		if i.GuildID != "" {
			slog.InfoContext(ctx, "badge command executed", "user", invoker(i), "guild", i.GuildID)
		}
		return nil
	})
}

// invoker names the user behind an interaction.
func invoker(i *discordgo.InteractionCreate) string {
	switch {
	case i.Member != nil && i.Member.User != nil:
		return i.Member.User.String()
	case i.User != nil:
		return i.User.String()
	default:
		return ""
	}
}

// isUnauthorized reports whether err is a REST 401 response.
func isUnauthorized(err error) bool {
	var restErr *discordgo.RESTError
	return errors.As(err, &restErr) && restErr.Response != nil && restErr.Response.StatusCode == http.StatusUnauthorized
}

// closeAuthenticationFailed is the gateway close code for an invalid token.
const closeAuthenticationFailed = 4004

// isAuthenticationClose reports whether err carries the gateway's
// authentication-failed close code.
func isAuthenticationClose(err error) bool {
	var closeErr *websocket.CloseError
	return errors.As(err, &closeErr) && closeErr.Code == closeAuthenticationFailed
}
