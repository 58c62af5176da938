package provider

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"integrator-go/internal/accounts"
	"integrator-go/internal/flow"
)

// fakeTokens is an in-memory TokenSource.
type fakeTokens struct {
	rec *accounts.TokenRecord
	err error
}

func (f *fakeTokens) Tokens(_ context.Context) (*accounts.TokenRecord, error) {
	return f.rec, f.err
}

func (f *fakeTokens) DeleteTokens(_ context.Context) error {
	f.rec = nil
	return nil
}

func newAtlassianStrategy(tokens TokenSource) *HostMediatedStrategy {
	return NewHostMediatedStrategy("atlassian", "Atlassian", tokens,
		"https://id.atlassian.com/authorize", flow.NewCoordinator(zap.NewNop()), zap.NewNop())
}

func TestHostMediatedStrategy_StartFlow(t *testing.T) {
	s := newAtlassianStrategy(&fakeTokens{})

	result, err := s.StartFlow(context.Background(), "")
	require.NoError(t, err)

	assert.True(t, result.RequiresOpenCode)
	assert.Equal(t, "https://id.atlassian.com/authorize", result.OpenCodeURL)
	assert.NotEmpty(t, result.Instructions)
	assert.Empty(t, result.AuthURL)

	// Starting again while pending is harmless and returns the same shape.
	again, err := s.StartFlow(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, result.OpenCodeURL, again.OpenCodeURL)
}

func TestHostMediatedStrategy_CompleteFlow(t *testing.T) {
	tokens := &fakeTokens{}
	s := newAtlassianStrategy(tokens)

	_, err := s.StartFlow(context.Background(), "")
	require.NoError(t, err)

	// Pending while the broker has written nothing.
	result, err := s.CompleteFlow(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Pending())

	// Terminal success once an access token appears.
	tokens.rec = &accounts.TokenRecord{Provider: "atlassian", AccessToken: "atk"}
	result, err = s.CompleteFlow(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Connected)

	connected, err := s.CheckConnected(context.Background())
	require.NoError(t, err)
	assert.True(t, connected)
}

func TestHostMediatedStrategy_CompleteFlowError(t *testing.T) {
	tokens := &fakeTokens{err: errors.New("token store unreachable")}
	s := newAtlassianStrategy(tokens)

	result, err := s.CompleteFlow(context.Background())
	require.NoError(t, err)
	assert.False(t, result.Pending())
	assert.Contains(t, result.Error, "token store unreachable")
}

func TestHostMediatedStrategy_CheckConnected(t *testing.T) {
	tokens := &fakeTokens{}
	s := newAtlassianStrategy(tokens)

	connected, err := s.CheckConnected(context.Background())
	require.NoError(t, err)
	assert.False(t, connected)

	// A record without an access token is not a connection.
	tokens.rec = &accounts.TokenRecord{Provider: "atlassian"}
	connected, err = s.CheckConnected(context.Background())
	require.NoError(t, err)
	assert.False(t, connected)

	tokens.rec.AccessToken = "atk"
	connected, err = s.CheckConnected(context.Background())
	require.NoError(t, err)
	assert.True(t, connected)
}

func TestRegistry_IsConnected(t *testing.T) {
	registry := NewRegistry(zap.NewNop())
	registry.Register(newAtlassianStrategy(&fakeTokens{rec: &accounts.TokenRecord{AccessToken: "atk"}}))

	connected, err := registry.IsConnected(context.Background(), "atlassian")
	require.NoError(t, err)
	assert.True(t, connected)

	// Unregistered providers are simply never connected.
	connected, err = registry.IsConnected(context.Background(), "slack")
	require.NoError(t, err)
	assert.False(t, connected)
}
