package store

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/keywatch/keywatch/internal/model"
)

func TestRecordFromDoc(t *testing.T) {
	oid := primitive.NewObjectID()

	tests := []struct {
		name      string
		doc       bson.M
		wantID    string
		wantKey   string
		wantCount int64
	}{
		{
			name:      "object id with int64 counter",
			doc:       bson.M{"_id": oid, "keyword": "alpha", "frequency": int64(7)},
			wantID:    oid.Hex(),
			wantKey:   "alpha",
			wantCount: 7,
		},
		{
			name:      "int32 counter",
			doc:       bson.M{"_id": oid, "keyword": "beta", "frequency": int32(3)},
			wantID:    oid.Hex(),
			wantKey:   "beta",
			wantCount: 3,
		},
		{
			name:      "double counter",
			doc:       bson.M{"_id": oid, "keyword": "gamma", "frequency": float64(12)},
			wantID:    oid.Hex(),
			wantKey:   "gamma",
			wantCount: 12,
		},
		{
			name:    "string id and missing counter",
			doc:     bson.M{"_id": "legacy-1", "keyword": "delta"},
			wantID:  "legacy-1",
			wantKey: "delta",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := recordFromDoc(model.Keywords, tt.doc)
			assert.Equal(t, tt.wantID, r.ID)
			assert.Equal(t, tt.wantKey, r.Key)
			assert.Equal(t, tt.wantCount, r.Count)
			assert.Equal(t, model.Keywords.Name, r.Kind.Name)
		})
	}
}

func TestIDFilter(t *testing.T) {
	oid := primitive.NewObjectID()

	assert.Equal(t,
		bson.D{{Key: "_id", Value: "legacy-1"}},
		idFilter("legacy-1"),
		"non-hex ids match the raw string")

	assert.Equal(t,
		bson.D{{Key: "_id", Value: bson.D{{Key: "$in", Value: bson.A{oid, oid.Hex()}}}}},
		idFilter(oid.Hex()),
		"hex ids match either an ObjectID or the same string")
}

func TestInsertError(t *testing.T) {
	dup := mongo.WriteException{
		WriteErrors: mongo.WriteErrors{{Code: 11000, Message: "E11000 duplicate key error"}},
	}
	assert.ErrorIs(t, insertError(model.Channels, dup), ErrDuplicate)

	other := errors.New("socket closed")
	err := insertError(model.Channels, other)
	assert.ErrorIs(t, err, other)
	assert.NotErrorIs(t, err, ErrDuplicate)
	assert.Contains(t, err.Error(), "insert channels")
}
