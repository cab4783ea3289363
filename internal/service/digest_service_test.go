package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDigestDueUsers(t *testing.T) {
	f := newFixture(t, laZone, "2024-03-10")
	berlin, err := f.users.Register(f.ctx, "berlin@example.com", "Europe/Berlin")
	require.NoError(t, err)

	digest, err := NewDigestService(f.store.Users, f.tasks, f.clock, "08:00")
	require.NoError(t, err)
	assert.Equal(t, 0, digest.Minute())

	// 07:00 UTC is 08:00 in Berlin and midnight in Los Angeles.
	f.clock.Set(time.Date(2024, 3, 11, 7, 0, 0, 0, time.UTC))
	due, err := digest.DueUsers(f.ctx)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, berlin.ID, due[0].ID)

	f.clock.Set(time.Date(2024, 3, 11, 15, 30, 0, 0, time.UTC))
	due, err = digest.DueUsers(f.ctx)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, f.user.ID, due[0].ID)

	_, err = NewDigestService(f.store.Users, f.tasks, f.clock, "8 o'clock")
	assert.Error(t, err)
}

func TestDigestSummary(t *testing.T) {
	f := newFixture(t, laZone, "2024-03-10")
	f.create("walk every day", "2024-03-10")
	f.create("pay <rent>", "2024-03-10")
	done := f.create("email Bob", "2024-03-11")
	_, err := f.tasks.Complete(f.ctx, f.user.ID, id(done))
	require.NoError(t, err)

	digest, err := NewDigestService(f.store.Users, f.tasks, f.clock, "08:15")
	require.NoError(t, err)
	assert.Equal(t, 15, digest.Minute())

	f.setDay("2024-03-11")
	text, err := digest.Summary(f.ctx, f.user)
	require.NoError(t, err)

	assert.Contains(t, text, "<b>План на день</b>")
	assert.Contains(t, text, "11.03.2024")
	assert.Contains(t, text, "↪️ pay &lt;rent&gt;")
	assert.Contains(t, text, "♻️ walk")
	assert.Contains(t, text, "✅ email Bob")
	assert.Contains(t, text, "Открыто: 2 · Выполнено: 1 · Перенесено: 1 · Регулярных: 1")

	// Building the digest rolled the user over.
	assert.Empty(t, f.stored("2024-03-10"))
}

func TestDigestSummaryEmptyDay(t *testing.T) {
	f := newFixture(t, laZone, "2024-03-10")
	digest, err := NewDigestService(f.store.Users, f.tasks, f.clock, "08:00")
	require.NoError(t, err)

	text, err := digest.Summary(f.ctx, f.user)
	require.NoError(t, err)
	assert.Contains(t, text, "задач нет")
	assert.Contains(t, text, "Открыто: 0 · Выполнено: 0")
	assert.NotContains(t, text, "Перенесено")
}
