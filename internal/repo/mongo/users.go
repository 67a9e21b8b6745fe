package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/geocoder89/accounthub/internal/domain/user"
	"github.com/geocoder89/accounthub/internal/observability"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type UsersRepo struct {
	coll *mongo.Collection
	prom *observability.Prom
}

func NewUsersRepo(db *mongo.Database, prom *observability.Prom) *UsersRepo {
	return &UsersRepo{coll: db.Collection(usersCollection), prom: prom}
}

func (r *UsersRepo) Create(ctx context.Context, in user.NewUser) (user.User, error) {
	now := time.Now().UTC().Truncate(time.Millisecond)
	u := user.User{
		ID:           uuid.NewString(),
		Email:        user.NormalizeEmail(in.Email),
		PasswordHash: in.PasswordHash,
		Verified:     in.Verified,
		Profile:      in.Profile,
		Payment:      user.Payment{PaymentStatus: user.PaymentUnpaid},
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err := r.prom.ObserveDB("users.create", func() error {
		_, err := r.coll.InsertOne(ctx, u)
		return err
	})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return user.User{}, user.ErrEmailTaken
		}
		return user.User{}, err
	}

	return u, nil
}

func (r *UsersRepo) GetByID(ctx context.Context, id string) (user.User, error) {
	return r.findOne(ctx, "users.get_by_id", bson.M{"_id": id})
}

func (r *UsersRepo) GetByEmail(ctx context.Context, email string) (user.User, error) {
	return r.findOne(ctx, "users.get_by_email", bson.M{"email": user.NormalizeEmail(email)})
}

func (r *UsersRepo) findOne(ctx context.Context, op string, filter bson.M) (u user.User, err error) {
	err = r.prom.ObserveDB(op, func() error {
		return r.coll.FindOne(ctx, filter).Decode(&u)
	})

	return u, mapNotFound(err)
}

func (r *UsersRepo) List(ctx context.Context, filter user.ListFilter) ([]user.User, error) {
	limit := int64(filter.Limit)
	if limit <= 0 {
		limit = 1000
	}

	q := bson.M{}
	if !filter.AfterCreatedAt.IsZero() {
		q = bson.M{"$or": bson.A{
			bson.M{"createdAt": bson.M{"$gt": filter.AfterCreatedAt}},
			bson.M{"createdAt": filter.AfterCreatedAt, "_id": bson.M{"$gt": filter.AfterID}},
		}}
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}}).
		SetLimit(limit)

	var out []user.User
	err := r.prom.ObserveDB("users.list", func() error {
		cur, err := r.coll.Find(ctx, q, opts)
		if err != nil {
			return err
		}
		return cur.All(ctx, &out)
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []user.User{}
	}

	return out, nil
}

func (r *UsersRepo) SaveCode(ctx context.Context, id string, flow user.Flow, code user.PendingCode) error {
	field, err := codeField(flow)
	if err != nil {
		return err
	}

	var res *mongo.UpdateResult
	err = r.prom.ObserveDB("users.save_code", func() error {
		var uerr error
		res, uerr = r.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{
			field:       code,
			"updatedAt": time.Now().UTC(),
		}})
		return uerr
	})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return user.ErrNotFound
	}

	return nil
}

// ConsumeCode matches on the stored hash so only one caller can clear a
// given code.
func (r *UsersRepo) ConsumeCode(ctx context.Context, id string, flow user.Flow, hash string, change user.Change) error {
	field, err := codeField(flow)
	if err != nil {
		return err
	}

	set := bson.M{"updatedAt": time.Now().UTC()}
	if change.Verified != nil {
		set["verified"] = *change.Verified
	}
	if change.PasswordHash != nil {
		set["passwordHash"] = *change.PasswordHash
	}

	var res *mongo.UpdateResult
	err = r.prom.ObserveDB("users.consume_code", func() error {
		var uerr error
		res, uerr = r.coll.UpdateOne(ctx,
			bson.M{"_id": id, field + ".hash": hash},
			bson.M{"$set": set, "$unset": bson.M{field: ""}},
		)
		return uerr
	})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return user.ErrCodeNotPending
	}

	return nil
}

func (r *UsersRepo) UpdatePassword(ctx context.Context, id, oldHash, newHash string) error {
	var res *mongo.UpdateResult
	err := r.prom.ObserveDB("users.update_password", func() error {
		var uerr error
		res, uerr = r.coll.UpdateOne(ctx,
			bson.M{"_id": id, "passwordHash": oldHash},
			bson.M{"$set": bson.M{"passwordHash": newHash, "updatedAt": time.Now().UTC()}},
		)
		return uerr
	})
	if err != nil {
		return err
	}

	if res.MatchedCount == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return user.ErrStaleWrite
	}

	return nil
}

func (r *UsersRepo) UpdateProfile(ctx context.Context, id string, c user.ProfileChange) (user.User, error) {
	set := bson.M{"updatedAt": time.Now().UTC()}
	if c.Email != nil {
		set["email"] = user.NormalizeEmail(*c.Email)
	}
	for key, v := range map[string]*string{
		"firstName":      c.FirstName,
		"lastName":       c.LastName,
		"companyName":    c.CompanyName,
		"contactName":    c.ContactName,
		"title":          c.Title,
		"division":       c.Division,
		"phoneNumber":    c.PhoneNumber,
		"companyWebsite": c.CompanyWebsite,
		"howDidYouHear":  c.HowDidYouHear,
	} {
		if v != nil {
			set[key] = *v
		}
	}
	if c.Verified != nil {
		set["verified"] = *c.Verified
	}

	u, err := r.findOneAndSet(ctx, "users.update_profile", id, set)
	if mongo.IsDuplicateKeyError(err) {
		return user.User{}, user.ErrEmailTaken
	}

	return u, err
}

func (r *UsersRepo) ApplyPayment(ctx context.Context, id string, p user.Payment) (user.User, error) {
	status := p.PaymentStatus
	if status == "" {
		status = user.PaymentUnpaid
	}

	return r.findOneAndSet(ctx, "users.apply_payment", id, bson.M{
		"stripeSessionId":    p.StripeSessionID,
		"subscriptionPlan":   p.SubscriptionPlan,
		"subscriptionStatus": p.SubscriptionStatus,
		"lastPaymentDate":    p.LastPaymentDate,
		"paymentStatus":      status,
		"amountTotal":        p.AmountTotal,
		"currency":           p.Currency,
		"paymentIntentId":    p.PaymentIntentID,
		"paymentMethodTypes": p.PaymentMethodTypes,
		"paymentDate":        p.PaymentDate,
		"lineItems":          p.LineItems,
		"updatedAt":          time.Now().UTC(),
	})
}

func (r *UsersRepo) findOneAndSet(ctx context.Context, op, id string, set bson.M) (u user.User, err error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	err = r.prom.ObserveDB(op, func() error {
		return r.coll.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set}, opts).Decode(&u)
	})

	return u, mapNotFound(err)
}

func (r *UsersRepo) Delete(ctx context.Context, id string) error {
	var res *mongo.DeleteResult
	err := r.prom.ObserveDB("users.delete", func() error {
		var derr error
		res, derr = r.coll.DeleteOne(ctx, bson.M{"_id": id})
		return derr
	})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return user.ErrNotFound
	}

	return nil
}

func codeField(flow user.Flow) (string, error) {
	switch flow {
	case user.FlowEmailVerify:
		return "verificationCode", nil
	case user.FlowPasswordReset:
		return "forgotPasswordCode", nil
	default:
		return "", fmt.Errorf("unknown flow %q", flow)
	}
}

func mapNotFound(err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return user.ErrNotFound
	}

	return err
}
