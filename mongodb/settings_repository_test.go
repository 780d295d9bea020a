package mongodb

import (
	"context"
	"testing"
	"time"

	"github.com/pilab-dev/glass-analytics/domain"
	"github.com/pilab-dev/glass-analytics/mongodb/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettingsRepository(t *testing.T) {
	db, cleanup := testutil.SetupTestMongoDB(t, "test_glass_settings")
	defer cleanup()

	ctx := context.Background()
	repo := NewSettingsRepository(db)

	t.Run("empty before first save", func(t *testing.T) {
		s, err := repo.GetSettings(ctx)
		require.NoError(t, err)
		assert.False(t, s.Configured())
	})

	t.Run("save replaces the document", func(t *testing.T) {
		first := &domain.Settings{PropertyID: "111", ServiceAccountJSON: `{"a":1}`, Revision: "r1"}
		require.NoError(t, repo.SaveSettings(ctx, first))
		assert.False(t, first.UpdatedAt.IsZero())

		second := &domain.Settings{
			PropertyID:         "222",
			ServiceAccountJSON: `{"b":2}`,
			ClarityEmbedURL:    "https://clarity.microsoft.com/embed/x",
			Revision:           "r2",
			UpdatedAt:          time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		}
		require.NoError(t, repo.SaveSettings(ctx, second))

		got, err := repo.GetSettings(ctx)
		require.NoError(t, err)
		assert.Equal(t, "222", got.PropertyID)
		assert.Equal(t, `{"b":2}`, got.ServiceAccountJSON)
		assert.Equal(t, "https://clarity.microsoft.com/embed/x", got.ClarityEmbedURL)
		assert.Equal(t, "r2", got.Revision)
		assert.True(t, got.UpdatedAt.Equal(second.UpdatedAt))

		n, err := db.Collection(SettingsCollection).EstimatedDocumentCount(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
	})

	t.Run("nil settings", func(t *testing.T) {
		assert.Error(t, repo.SaveSettings(ctx, nil))
	})
}
