package memory

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testServiceConfig(dir, backend string) Config {
	return Config{
		Workspace:         dir,
		UserID:            "user-1",
		RecognizerEnabled: true,
		FuzzyMatch:        true,
		RehydrateMessages: 10,
		Backend:           backend,
		BreakerTimeout:    time.Second,
	}
}

func TestService_PersistsAcrossRestarts(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	svc, err := NewService(ctx, testServiceConfig(dir, BackendSQLite))
	require.NoError(t, err)
	svc.Process(ctx, SpeakerUser, "I need to meet with Jon next week about the project")
	svc.Process(ctx, SpeakerUser, "Jon said his address is 123 Main St, Suite 400")
	require.NoError(t, svc.Close())
	require.NoError(t, svc.Close())

	restarted, err := NewService(ctx, testServiceConfig(dir, BackendSQLite))
	require.NoError(t, err)
	defer restarted.Close()

	assert.Len(t, restarted.System().Context(), 2, "window rehydrated from SQLite")
	c, ok := restarted.System().Contacts().Lookup("Jon")
	require.True(t, ok)
	assert.Equal(t, 2, c.InteractionCount)
	assert.Equal(t, "123 Main St, Suite 400", c.Address)

	ans := restarted.Query(ctx, "Did Jon send his address?")
	assert.Equal(t, "Yes, Jon sent their address", ans.Answer)

	related := restarted.Query(ctx, "anything about the project?")
	assert.Equal(t, QueryGeneral, related.QueryType)
	require.NotEmpty(t, related.Related)
	assert.Contains(t, related.Related[0].Content, "project")

	st, err := restarted.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, BackendSQLite, st.Backend)
	assert.Equal(t, 1, st.Contacts)
	assert.Equal(t, "closed", st.BreakerState)
	require.NotNil(t, st.Stored)
	assert.Equal(t, 2, st.Stored.Messages)
}

func TestService_ChromemBackendSearchesByVector(t *testing.T) {
	ctx := context.Background()
	svc, err := NewService(ctx, testServiceConfig(t.TempDir(), BackendChromem))
	require.NoError(t, err)
	defer svc.Close()

	svc.Process(ctx, SpeakerUser, "Sarah booked the flight to Lisbon")
	svc.Process(ctx, SpeakerUser, "the quarterly budget needs review")

	// Writes are asynchronous; poll until both are indexed.
	var hits []SearchHit
	require.Eventually(t, func() bool {
		hits, err = svc.System().searcher().SearchMessages(ctx, "Lisbon flight", 5)
		return err == nil && len(hits) == 2
	}, 2*time.Second, 20*time.Millisecond)
	assert.Contains(t, hits[0].Content, "Lisbon")
}

func TestService_NoBackendKeepsStateInMemory(t *testing.T) {
	ctx := context.Background()
	cfg := testServiceConfig(t.TempDir(), BackendNone)
	cfg.Registerer = prometheus.NewRegistry()
	svc, err := NewService(ctx, cfg)
	require.NoError(t, err)
	defer svc.Close()

	res := svc.Process(ctx, SpeakerUser, "Jon called")
	require.Len(t, res.ContactUpdates, 1)
	st, err := svc.Status(ctx)
	require.NoError(t, err)
	assert.Nil(t, st.Stored)
	assert.Empty(t, st.BreakerState)
}

func TestService_RejectsBadConfig(t *testing.T) {
	_, err := NewService(context.Background(), Config{})
	assert.Error(t, err)

	_, err = NewService(context.Background(), Config{Workspace: t.TempDir(), Backend: "redis"})
	assert.Error(t, err)
}

func TestService_RecognizerDisabled(t *testing.T) {
	ctx := context.Background()
	cfg := testServiceConfig(t.TempDir(), BackendNone)
	cfg.RecognizerEnabled = false
	svc, err := NewService(ctx, cfg)
	require.NoError(t, err)
	defer svc.Close()

	res := svc.Process(ctx, SpeakerUser, "Jon is at jon@example.com")
	require.Len(t, res.Entities, 1)
	assert.Equal(t, EntityEmail, res.Entities[0].Type)
	assert.Empty(t, res.ContactUpdates)
}
