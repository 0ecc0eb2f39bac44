// Package bootstrap resolves the plaintext bot token at startup.
//
// On first run it generates the local secret, prompts the operator for the
// token, encrypts it and persists it. On later runs it decrypts the stored
// token silently. A stored token that no longer decrypts (corruption, or a
// regenerated secret) is deleted and the operator is prompted again.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/florianilch/devbadge/internal/observability"
	"github.com/florianilch/devbadge/internal/secretstore"
	"github.com/florianilch/devbadge/internal/tokenvault"
)

// State is a step of the credential resolution state machine.
type State int

const (
	StateNoSecretOnDisk State = iota
	StateSecretPresentNoToken
	StateBothPresent
	StateDecryptFailed
	StateReady
)

func (s State) String() string {
	switch s {
	case StateNoSecretOnDisk:
		return "NoSecretOnDisk"
	case StateSecretPresentNoToken:
		return "SecretPresentNoToken"
	case StateBothPresent:
		return "BothPresent"
	case StateDecryptFailed:
		return "DecryptFailed"
	case StateReady:
		return "Ready"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Encrypter is the subset of tokenvault.Vault used during bootstrap.
type Encrypter interface {
	Encrypt(plaintext, password string) (string, error)
	Decrypt(blob, password string) (string, error)
}

// Compile-time check to ensure tokenvault.Vault satisfies Encrypter
var _ Encrypter = (*tokenvault.Vault)(nil)

// Option configures a Bootstrap.
type Option func(*Bootstrap)

// WithSecretGenerator replaces GenerateSecret.
func WithSecretGenerator(generate func() (string, error)) Option {
	return func(b *Bootstrap) {
		b.generateSecret = generate
	}
}

// WithTransitionHook registers a callback invoked on every state change.
func WithTransitionHook(hook func(from, to State)) Option {
	return func(b *Bootstrap) {
		b.onTransition = hook
	}
}

// Bootstrap drives the credential state machine.
type Bootstrap struct {
	secrets  secretstore.Store
	tokens   secretstore.Store
	vault    Encrypter
	prompter Prompter

	generateSecret func() (string, error)
	onTransition   func(from, to State)
}

// New creates a Bootstrap. secrets and tokens must be distinct stores.
func New(secrets, tokens secretstore.Store, vault Encrypter, prompter Prompter, opts ...Option) (*Bootstrap, error) {
	if secrets == nil {
		return nil, fmt.Errorf("missing secret store")
	}
	if tokens == nil {
		return nil, fmt.Errorf("missing token store")
	}
	if vault == nil {
		return nil, fmt.Errorf("missing token vault")
	}
	if prompter == nil {
		return nil, fmt.Errorf("missing prompter")
	}

	b := &Bootstrap{
		secrets:        secrets,
		tokens:         tokens,
		vault:          vault,
		prompter:       prompter,
		generateSecret: GenerateSecret,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Run resolves the plaintext token. Storage failures are returned and are fatal;
// invalid operator input and undecryptable stored tokens are recovered internally.
func (b *Bootstrap) Run(ctx context.Context) (string, error) {
	var (
		state  State
		secret string
		blob   string
		token  string
		err    error
	)

	secret, err = b.secrets.Read(ctx)
	switch {
	case errors.Is(err, secretstore.ErrNotFound):
		state = StateNoSecretOnDisk
	case err != nil:
		return "", fmt.Errorf("reading secret: %w", err)
	default:
		if state, blob, err = b.probeToken(ctx); err != nil {
			return "", err
		}
	}

	for state != StateReady {
		var next State

		switch state {
		case StateNoSecretOnDisk:
			if secret, err = b.createSecret(ctx); err != nil {
				return "", err
			}
			// A token left over from a previous secret is probed like any other and
			// will fail to decrypt.
			if next, blob, err = b.probeToken(ctx); err != nil {
				return "", err
			}

		case StateSecretPresentNoToken:
			if token, err = b.promptAndStore(ctx, secret); err != nil {
				return "", err
			}
			next = StateReady

		case StateBothPresent:
			token, err = b.vault.Decrypt(blob, secret)
			switch {
			case errors.Is(err, tokenvault.ErrInvalidToken):
				slog.ErrorContext(ctx, "token decryption failed - corrupted data")
				next = StateDecryptFailed
			case err != nil:
				return "", fmt.Errorf("decrypting token: %w", err)
			default:
				next = StateReady
			}

		case StateDecryptFailed:
			if err := b.tokens.Delete(ctx); err != nil {
				return "", fmt.Errorf("deleting undecryptable token: %w", err)
			}
			next = StateSecretPresentNoToken

		default:
			return "", fmt.Errorf("unexpected bootstrap state %s", state)
		}

		b.transition(state, next)
		state = next
	}

	return token, nil
}

func (b *Bootstrap) transition(from, to State) {
	slog.Debug("bootstrap state change", "from", from, "to", to)
	if b.onTransition != nil {
		b.onTransition(from, to)
	}
}

// probeToken reports whether a stored token exists alongside the secret.
func (b *Bootstrap) probeToken(ctx context.Context) (State, string, error) {
	blob, err := b.tokens.Read(ctx)
	switch {
	case errors.Is(err, secretstore.ErrNotFound):
		return StateSecretPresentNoToken, "", nil
	case err != nil:
		return 0, "", fmt.Errorf("reading token: %w", err)
	default:
		return StateBothPresent, blob, nil
	}
}

func (b *Bootstrap) createSecret(ctx context.Context) (string, error) {
	secret, err := b.generateSecret()
	if err != nil {
		return "", err
	}
	if err := b.secrets.Write(ctx, secret); err != nil {
		return "", fmt.Errorf("persisting secret: %w", err)
	}
	slog.InfoContext(ctx, "generated new local secret")
	return secret, nil
}

// promptAndStore prompts until the operator enters a well-formed token, then
// encrypts and persists it.
func (b *Bootstrap) promptAndStore(ctx context.Context, secret string) (string, error) {
	slog.InfoContext(ctx, "first-time setup - token required")

	var token string
	for {
		raw, err := b.prompter.PromptToken(ctx)
		if err != nil {
			return "", fmt.Errorf("prompting for token: %w", err)
		}

		token, err = ValidateToken(raw)
		if err == nil {
			break
		}
		slog.ErrorContext(ctx, err.Error())
	}

	blob, err := b.vault.Encrypt(token, secret)
	if err != nil {
		return "", fmt.Errorf("encrypting token: %w", err)
	}
	if err := b.tokens.Write(ctx, blob); err != nil {
		return "", fmt.Errorf("persisting token: %w", err)
	}

	observability.OK(ctx, "token encrypted and stored securely")
	return token, nil
}
