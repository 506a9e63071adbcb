package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 3, 11, 15, 30, 0, 0, time.UTC)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "portfolio.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "portfolio.db")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.RecordVisit(context.Background(), Visitor{HashedIP: "h", Path: "/", VisitedAt: now}))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.Ping(context.Background()))

	visitors, err := s.RecentVisitors(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, visitors, 1)
}

func TestHashIP(t *testing.T) {
	a := HashIP("203.0.113.7", "salt")
	assert.Len(t, a, 16)
	assert.Equal(t, a, HashIP("203.0.113.7", "salt"))
	assert.NotEqual(t, a, HashIP("203.0.113.7", "pepper"))
	assert.NotEqual(t, a, HashIP("203.0.113.8", "salt"))
	assert.NotContains(t, a, "203")
}

func TestVisitors(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)

	for i, path := range []string{"/", "/behind-the-scenes", "/"} {
		require.NoError(t, s.RecordVisit(ctx, Visitor{
			HashedIP:  HashIP("ip", "salt"),
			UserAgent: "test",
			Path:      path,
			VisitedAt: now.Add(time.Duration(i) * time.Minute),
		}))
	}

	visitors, err := s.RecentVisitors(ctx, 2)
	require.NoError(t, err)
	require.Len(t, visitors, 2)
	assert.Equal(t, "/", visitors[0].Path)
	assert.Equal(t, now.Add(2*time.Minute), visitors[0].VisitedAt)
	assert.Equal(t, "/behind-the-scenes", visitors[1].Path)
}

func TestCleanupVisitors(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)

	old := now.AddDate(-1, 0, -1)
	require.NoError(t, s.RecordVisit(ctx, Visitor{HashedIP: "a", Path: "/", VisitedAt: old}))
	require.NoError(t, s.RecordVisit(ctx, Visitor{HashedIP: "b", Path: "/", VisitedAt: now}))

	n, err := s.CleanupVisitors(ctx, now.AddDate(-1, 0, 0))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	visitors, err := s.RecentVisitors(ctx, 10)
	require.NoError(t, err)
	require.Len(t, visitors, 1)
	assert.Equal(t, "b", visitors[0].HashedIP)
}

func TestMessages(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)

	first := Message{ID: "m1", Name: "Ada", Email: "ada@example.com", Body: "hi", Status: "pending", CreatedAt: now}
	second := Message{ID: "m2", Name: "Bob", Email: "bob@example.com", Body: "hey", Status: "pending", CreatedAt: now.Add(time.Hour)}
	require.NoError(t, s.CreateMessage(ctx, first))
	require.NoError(t, s.CreateMessage(ctx, second))
	assert.Error(t, s.CreateMessage(ctx, first), "duplicate id")

	require.NoError(t, s.UpdateMessageStatus(ctx, "m1", "failed", "smtp: 535"))
	require.NoError(t, s.UpdateMessageStatus(ctx, "m2", "sent", ""))

	messages, err := s.Messages(ctx, 10)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "m2", messages[0].ID)
	assert.Equal(t, "sent", messages[0].Status)
	assert.Equal(t, "failed", messages[1].Status)
	assert.Equal(t, "smtp: 535", messages[1].Error)
	assert.Equal(t, now, messages[1].CreatedAt)

	require.NoError(t, s.DeleteMessage(ctx, "m1"))
	assert.ErrorIs(t, s.DeleteMessage(ctx, "m1"), ErrNotFound)
	assert.ErrorIs(t, s.UpdateMessageStatus(ctx, "nope", "sent", ""), ErrNotFound)

	messages, err = s.Messages(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, messages, 1)
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)

	visits := []Visitor{
		{HashedIP: "a", Path: "/", VisitedAt: now},
		{HashedIP: "a", Path: "/pipeline.svg", VisitedAt: now.Add(-time.Hour)},
		{HashedIP: "b", Path: "/", VisitedAt: now.AddDate(0, 0, -3)},
		{HashedIP: "c", Path: "/", VisitedAt: now.AddDate(0, 0, -30)},
	}
	for _, v := range visits {
		require.NoError(t, s.RecordVisit(ctx, v))
	}
	require.NoError(t, s.CreateMessage(ctx, Message{ID: "m1", Name: "n", Email: "e", Body: "b", Status: "failed", CreatedAt: now}))
	require.NoError(t, s.CreateMessage(ctx, Message{ID: "m2", Name: "n", Email: "e", Body: "b", Status: "sent", CreatedAt: now}))

	stats, err := s.Stats(ctx, now)
	require.NoError(t, err)

	assert.EqualValues(t, 4, stats.TotalVisitors)
	assert.EqualValues(t, 3, stats.UniqueVisitors)
	assert.EqualValues(t, 2, stats.VisitorsToday)
	assert.EqualValues(t, 3, stats.VisitorsThisWeek)
	assert.EqualValues(t, 2, stats.TotalMessages)
	assert.EqualValues(t, 1, stats.FailedMessages)
	assert.Equal(t, []PathCount{{Path: "/", Views: 3}, {Path: "/pipeline.svg", Views: 1}}, stats.TopPaths)
	assert.Len(t, stats.RecentVisitors, 4)
}

func TestStatsEmpty(t *testing.T) {
	stats, err := openTemp(t).Stats(context.Background(), now)
	require.NoError(t, err)
	assert.Zero(t, stats.TotalVisitors)
	assert.Empty(t, stats.TopPaths)
	assert.Empty(t, stats.RecentVisitors)
}
