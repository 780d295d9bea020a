package mongodb

import (
	"context"
	"errors"
	"time"

	"github.com/pilab-dev/glass-analytics/domain"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// SettingsRepository implements domain.SettingsRepository with one document
// in SettingsCollection.
type SettingsRepository struct {
	collection *mongo.Collection
}

var _ domain.SettingsRepository = (*SettingsRepository)(nil)

type settingsDocument struct {
	ID              string `bson:"_id"`
	domain.Settings `bson:",inline"`
}

// NewSettingsRepository creates a SettingsRepository on db.
func NewSettingsRepository(db *mongo.Database) *SettingsRepository {
	return &SettingsRepository{collection: db.Collection(SettingsCollection)}
}

// GetSettings returns the stored settings, or empty settings if none were
// saved yet.
func (r *SettingsRepository) GetSettings(ctx context.Context) (*domain.Settings, error) {
	var doc settingsDocument
	err := r.collection.FindOne(ctx, bson.M{"_id": settingsDocumentID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return &domain.Settings{}, nil
		}
		log.Error().Err(err).Msg("Error retrieving settings from MongoDB")
		return nil, err
	}
	return &doc.Settings, nil
}

// SaveSettings replaces the stored settings.
func (r *SettingsRepository) SaveSettings(ctx context.Context, settings *domain.Settings) error {
	if settings == nil {
		return errors.New("settings cannot be nil")
	}
	if settings.UpdatedAt.IsZero() {
		settings.UpdatedAt = time.Now().UTC()
	}

	doc := settingsDocument{ID: settingsDocumentID, Settings: *settings}
	_, err := r.collection.ReplaceOne(ctx, bson.M{"_id": settingsDocumentID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		log.Error().Err(err).Msg("Error saving settings to MongoDB")
		return err
	}
	return nil
}
