// domain/season.go
package domain

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// SeasonPinger checks that a college's season database answers before a
// college-scoped mutation is dispatched.
type SeasonPinger struct {
	client *mongo.Client
}

func NewSeasonPinger(client *mongo.Client) *SeasonPinger {
	return &SeasonPinger{client: client}
}

func (s *SeasonPinger) Reachable(ctx context.Context, seasonDB string) error {
	if seasonDB == "" {
		return errors.New("no season database assigned")
	}
	return s.client.Database(seasonDB).RunCommand(ctx, bson.D{{Key: "ping", Value: 1}}).Err()
}
