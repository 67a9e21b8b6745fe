package mongo

import (
	"context"

	"github.com/geocoder89/accounthub/internal/domain/contact"
	"github.com/geocoder89/accounthub/internal/observability"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type ContactsRepo struct {
	coll *mongo.Collection
	prom *observability.Prom
}

func NewContactsRepo(db *mongo.Database, prom *observability.Prom) *ContactsRepo {
	return &ContactsRepo{coll: db.Collection(contactsCollection), prom: prom}
}

func (r *ContactsRepo) Create(ctx context.Context, s contact.Submission) (contact.Submission, error) {
	err := r.prom.ObserveDB("contacts.create", func() error {
		_, err := r.coll.InsertOne(ctx, s)
		return err
	})
	if err != nil {
		return contact.Submission{}, err
	}

	return s, nil
}

func (r *ContactsRepo) List(ctx context.Context, limit int) ([]contact.Submission, error) {
	if limit <= 0 {
		limit = 100
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetLimit(int64(limit))

	var out []contact.Submission
	err := r.prom.ObserveDB("contacts.list", func() error {
		cur, err := r.coll.Find(ctx, bson.M{}, opts)
		if err != nil {
			return err
		}
		return cur.All(ctx, &out)
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []contact.Submission{}
	}

	return out, nil
}
