package contact

import (
	"strings"
	"time"

	"github.com/geocoder89/accounthub/internal/domain/user"
	"github.com/google/uuid"
)

type Submission struct {
	ID        string    `json:"id" bson:"_id"`
	FirstName string    `json:"firstName" bson:"firstName"`
	LastName  string    `json:"lastName" bson:"lastName"`
	Email     string    `json:"email" bson:"email"`
	Phone     string    `json:"phone" bson:"phone"`
	Company   string    `json:"company" bson:"company"`
	Reason    string    `json:"reason" bson:"reason"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
}

type CreateRequest struct {
	FirstName string     `json:"firstName" binding:"required,min=1,max=100"`
	LastName  string     `json:"lastName" binding:"required,min=1,max=100"`
	Email     user.Email `json:"email" binding:"required,email,max=254"`
	Phone     string     `json:"phone" binding:"required,min=5,max=40"`
	Company   string     `json:"company" binding:"required,max=200"`
	Reason    string     `json:"reason" binding:"required,max=4000"`
}

func NewFromRequest(req CreateRequest) Submission {
	return Submission{
		ID:        uuid.NewString(),
		FirstName: strings.TrimSpace(req.FirstName),
		LastName:  strings.TrimSpace(req.LastName),
		Email:     req.Email.String(),
		Phone:     strings.TrimSpace(req.Phone),
		Company:   strings.TrimSpace(req.Company),
		Reason:    strings.TrimSpace(req.Reason),
		CreatedAt: time.Now().UTC(),
	}
}
