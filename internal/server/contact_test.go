package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/denisenanni/portfolio/internal/config"
	"github.com/denisenanni/portfolio/internal/contact"
	"github.com/denisenanni/portfolio/internal/ratelimit"
)

// funcSender adapts a function to contact.Sender.
type funcSender func(context.Context, contact.Message) error

func (f funcSender) Send(ctx context.Context, m contact.Message) error { return f(ctx, m) }

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string) (bool, error) {
	return false, errors.New("redis: connection refused")
}

func postContact(env *testEnv, name, email, message string) *httptest.ResponseRecorder {
	form := url.Values{"name": {name}, "email": {email}, "message": {message}}
	req := httptest.NewRequest(http.MethodPost, "/contact", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return env.do(req)
}

func TestContactDelivered(t *testing.T) {
	var sent []contact.Message
	env := newTestEnv(t, func(_ *config.Config, d *Deps) {
		d.Sender = funcSender(func(_ context.Context, m contact.Message) error {
			sent = append(sent, m)
			return nil
		})
	})

	rec := postContact(env, "Ada", "ada@example.com", "Hello there")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Thank you for your message")

	require.Len(t, sent, 1)
	assert.Equal(t, "Ada", sent[0].Name)
	assert.Equal(t, epoch, sent[0].SubmittedAt)

	messages, err := env.store.Messages(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, sent[0].ID, messages[0].ID)
	assert.Equal(t, contact.StatusSent, messages[0].Status)
	assert.Equal(t, "Hello there", messages[0].Body)
}

func TestContactDeliveryFailure(t *testing.T) {
	env := newTestEnv(t, func(_ *config.Config, d *Deps) {
		d.Sender = funcSender(func(context.Context, contact.Message) error {
			return contact.ErrDelivery
		})
	})

	rec := postContact(env, "Ada", "ada@example.com", "Hello there")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "there was an error sending your message")

	messages, err := env.store.Messages(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, contact.StatusFailed, messages[0].Status)
	assert.Contains(t, messages[0].Error, "contact delivery failed")
}

func TestContactValidation(t *testing.T) {
	called := false
	env := newTestEnv(t, func(_ *config.Config, d *Deps) {
		d.Sender = funcSender(func(context.Context, contact.Message) error {
			called = true
			return nil
		})
	})

	rec := postContact(env, "", "not-an-email", "hi")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `data-field="name"`)
	assert.Contains(t, body, `data-field="email"`)
	assert.NotContains(t, body, `data-field="body"`)
	assert.False(t, called)

	messages, err := env.store.Messages(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, messages)
}

func TestContactRateLimited(t *testing.T) {
	sends := 0
	env := newTestEnv(t, func(_ *config.Config, d *Deps) {
		d.Limiter = ratelimit.NewLocal(ratelimit.Config{PerMinute: 1, Burst: 2})
		d.Sender = funcSender(func(context.Context, contact.Message) error {
			sends++
			return nil
		})
	})

	for i := 0; i < 2; i++ {
		require.Equal(t, http.StatusOK, postContact(env, "Ada", "ada@example.com", "hi").Code)
	}
	rec := postContact(env, "Ada", "ada@example.com", "hi")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "try again in a minute")
	assert.Equal(t, 2, sends)
}

func TestContactLimiterOutageFailsOpen(t *testing.T) {
	env := newTestEnv(t, func(_ *config.Config, d *Deps) {
		d.Limiter = failingLimiter{}
	})

	rec := postContact(env, "Ada", "ada@example.com", "hi")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Thank you")
}

func TestContactStoreFailure(t *testing.T) {
	called := false
	env := newTestEnv(t, func(_ *config.Config, d *Deps) {
		d.Sender = funcSender(func(context.Context, contact.Message) error {
			called = true
			return nil
		})
	})
	require.NoError(t, env.store.Close())

	rec := postContact(env, "Ada", "ada@example.com", "hi")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "there was an error")
	assert.False(t, called)
}
