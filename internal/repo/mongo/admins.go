package mongo

import (
	"context"
	"errors"
	"time"

	"github.com/geocoder89/accounthub/internal/domain/admin"
	"github.com/geocoder89/accounthub/internal/domain/user"
	"github.com/geocoder89/accounthub/internal/observability"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

type AdminsRepo struct {
	coll *mongo.Collection
	prom *observability.Prom
}

func NewAdminsRepo(db *mongo.Database, prom *observability.Prom) *AdminsRepo {
	return &AdminsRepo{coll: db.Collection(adminsCollection), prom: prom}
}

func (r *AdminsRepo) Create(ctx context.Context, email, passwordHash string) (admin.Admin, error) {
	a := admin.Admin{
		ID:           uuid.NewString(),
		Email:        user.NormalizeEmail(email),
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC().Truncate(time.Millisecond),
	}

	err := r.prom.ObserveDB("admins.create", func() error {
		_, err := r.coll.InsertOne(ctx, a)
		return err
	})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return admin.Admin{}, admin.ErrEmailTaken
		}
		return admin.Admin{}, err
	}

	return a, nil
}

func (r *AdminsRepo) GetByEmail(ctx context.Context, email string) (a admin.Admin, err error) {
	err = r.prom.ObserveDB("admins.get_by_email", func() error {
		return r.coll.FindOne(ctx, bson.M{"email": user.NormalizeEmail(email)}).Decode(&a)
	})
	if errors.Is(err, mongo.ErrNoDocuments) {
		return admin.Admin{}, admin.ErrNotFound
	}

	return a, err
}
