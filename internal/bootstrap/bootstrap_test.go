package bootstrap

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/florianilch/devbadge/internal/keyderive"
	"github.com/florianilch/devbadge/internal/secretstore"
	"github.com/florianilch/devbadge/internal/tokenvault"
)

const validToken = "Bot abcdefghijklmnopqrstuvwxyzABCDEFGHIJK1234567890.XYZ"

// scriptedPrompter returns the queued answers in order.
type scriptedPrompter struct {
	answers []string
	calls   int
}

func (p *scriptedPrompter) PromptToken(context.Context) (string, error) {
	if p.calls >= len(p.answers) {
		return "", errors.New("no more answers")
	}
	answer := p.answers[p.calls]
	p.calls++
	return answer, nil
}

type fixture struct {
	dir     string
	secrets *secretstore.FileStore
	tokens  *secretstore.FileStore
	vault   *tokenvault.Vault
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	dir := t.TempDir()
	secrets, err := secretstore.NewFileStore(filepath.Join(dir, ".master"), secretstore.ModeOwnerReadOnly)
	require.NoError(t, err)
	tokens, err := secretstore.NewFileStore(filepath.Join(dir, ".token"), secretstore.ModeOwnerReadWrite)
	require.NoError(t, err)
	vault, err := tokenvault.New(keyderive.PBKDF2{Iterations: keyderive.MinPBKDF2Iterations})
	require.NoError(t, err)

	return &fixture{dir: dir, secrets: secrets, tokens: tokens, vault: vault}
}

// run executes one bootstrap and returns the token, the recorded transitions and the prompter.
func (f *fixture) run(t *testing.T, answers ...string) (string, []State, *scriptedPrompter) {
	t.Helper()

	prompter := &scriptedPrompter{answers: answers}
	var transitions []State
	b, err := New(f.secrets, f.tokens, f.vault, prompter, WithTransitionHook(func(_, to State) {
		transitions = append(transitions, to)
	}))
	require.NoError(t, err)

	token, err := b.Run(context.Background())
	require.NoError(t, err)
	return token, transitions, prompter
}

func TestRun_FirstRunWithEmptySecretFile(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.WriteFile(f.secrets.Path(), nil, 0600))

	token, transitions, prompter := f.run(t, validToken)

	assert.Equal(t, NormalizeToken(validToken), token)
	assert.Equal(t, []State{StateSecretPresentNoToken, StateReady}, transitions)
	assert.Equal(t, 1, prompter.calls)

	info, err := os.Stat(f.secrets.Path())
	require.NoError(t, err)
	assert.Equal(t, secretstore.ModeOwnerReadOnly, info.Mode().Perm())

	info, err = os.Stat(f.tokens.Path())
	require.NoError(t, err)
	assert.Equal(t, secretstore.ModeOwnerReadWrite, info.Mode().Perm())

	blob, err := f.tokens.Read(context.Background())
	require.NoError(t, err)
	assert.NotContains(t, blob, token)
}

func TestRun_InvalidInputIsReprompted(t *testing.T) {
	f := newFixture(t)

	token, transitions, prompter := f.run(t, "short", "", "has spaces in the middle of a long enough token value !!!", validToken)

	assert.Equal(t, NormalizeToken(validToken), token)
	assert.Equal(t, 4, prompter.calls)
	assert.Equal(t, []State{StateSecretPresentNoToken, StateReady}, transitions)
}

func TestRun_SubsequentRunIsSilent(t *testing.T) {
	f := newFixture(t)
	first, _, _ := f.run(t, validToken)

	second, transitions, prompter := f.run(t)

	assert.Equal(t, first, second)
	assert.Equal(t, 0, prompter.calls)
	assert.Equal(t, []State{StateReady}, transitions)
}

func TestRun_SelfHealsAfterSecretRegenerated(t *testing.T) {
	f := newFixture(t)
	f.run(t, validToken)

	replacement, err := GenerateSecret()
	require.NoError(t, err)
	require.NoError(t, f.secrets.Write(context.Background(), replacement))

	token, transitions, prompter := f.run(t, validToken)

	assert.Equal(t, NormalizeToken(validToken), token)
	assert.Equal(t, 1, prompter.calls)
	assert.Equal(t, []State{StateDecryptFailed, StateSecretPresentNoToken, StateReady}, transitions)

	// healed state decrypts silently
	_, transitions, prompter = f.run(t)
	assert.Equal(t, 0, prompter.calls)
	assert.Equal(t, []State{StateReady}, transitions)
}

func TestRun_StaleTokenWithoutSecret(t *testing.T) {
	f := newFixture(t)
	f.run(t, validToken)
	require.NoError(t, f.secrets.Delete(context.Background()))

	_, transitions, prompter := f.run(t, validToken)

	assert.Equal(t, 1, prompter.calls)
	assert.Equal(t, []State{StateBothPresent, StateDecryptFailed, StateSecretPresentNoToken, StateReady}, transitions)
}

func TestRun_CorruptedTokenFile(t *testing.T) {
	f := newFixture(t)
	f.run(t, validToken)
	require.NoError(t, f.tokens.Write(context.Background(), "corrupted-blob"))

	_, transitions, prompter := f.run(t, validToken)

	assert.Equal(t, 1, prompter.calls)
	assert.Equal(t, []State{StateDecryptFailed, StateSecretPresentNoToken, StateReady}, transitions)
}

func TestRun_SecretIsStable(t *testing.T) {
	f := newFixture(t)
	f.run(t, validToken)

	first, err := f.secrets.Read(context.Background())
	require.NoError(t, err)
	second, err := f.secrets.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, second)

	f.run(t)
	third, err := f.secrets.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, third)

	info, err := os.Stat(f.secrets.Path())
	require.NoError(t, err)
	assert.Zero(t, info.Mode().Perm()&0077)
}

func TestRun_SecretWriteFailureIsFatal(t *testing.T) {
	f := newFixture(t)
	t.Setenv("DEVBADGE_TEST_MISSING_SECRET", "")
	secrets, err := secretstore.NewEnvStore("DEVBADGE_TEST_MISSING_SECRET")
	require.NoError(t, err)

	prompter := &scriptedPrompter{answers: []string{validToken}}
	b, err := New(secrets, f.tokens, f.vault, prompter)
	require.NoError(t, err)

	_, err = b.Run(context.Background())
	assert.Error(t, err)
	assert.Equal(t, 0, prompter.calls)
}

func TestRun_PromptFailureIsReturned(t *testing.T) {
	f := newFixture(t)

	b, err := New(f.secrets, f.tokens, f.vault, &scriptedPrompter{})
	require.NoError(t, err)

	_, err = b.Run(context.Background())
	assert.Error(t, err)
}

func TestNew_RequiresDependencies(t *testing.T) {
	f := newFixture(t)

	_, err := New(nil, f.tokens, f.vault, &scriptedPrompter{})
	assert.Error(t, err)
	_, err = New(f.secrets, nil, f.vault, &scriptedPrompter{})
	assert.Error(t, err)
	_, err = New(f.secrets, f.tokens, nil, &scriptedPrompter{})
	assert.Error(t, err)
	_, err = New(f.secrets, f.tokens, f.vault, nil)
	assert.Error(t, err)
}
