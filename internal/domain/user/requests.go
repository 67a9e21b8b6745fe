package user

import "encoding/json"

// Email is a request email that arrives trimmed and lowercased, so binding
// rules see the same value the stores do.
type Email string

func (e *Email) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	*e = Email(NormalizeEmail(s))

	return nil
}

func (e Email) String() string { return string(e) }

type UpdateProfileRequest struct {
	FirstName      *string `json:"firstName" binding:"omitempty,min=2,max=100"`
	LastName       *string `json:"lastName" binding:"omitempty,min=2,max=100"`
	CompanyName    *string `json:"companyName" binding:"omitempty,max=200"`
	ContactName    *string `json:"contactName" binding:"omitempty,max=200"`
	Title          *string `json:"title" binding:"omitempty,max=200"`
	Division       *string `json:"division" binding:"omitempty,max=200"`
	PhoneNumber    *string `json:"phoneNumber" binding:"omitempty,max=40"`
	CompanyWebsite *string `json:"companyWebsite" binding:"omitempty,max=300"`
	HowDidYouHear  *string `json:"howDidYouHear" binding:"omitempty,max=300"`
}

func (r UpdateProfileRequest) Change() ProfileChange {
	return ProfileChange{
		FirstName:      r.FirstName,
		LastName:       r.LastName,
		CompanyName:    r.CompanyName,
		ContactName:    r.ContactName,
		Title:          r.Title,
		Division:       r.Division,
		PhoneNumber:    r.PhoneNumber,
		CompanyWebsite: r.CompanyWebsite,
		HowDidYouHear:  r.HowDidYouHear,
	}
}

type UpdateUserRequest struct {
	FirstName *string `json:"firstName" binding:"omitempty,min=2,max=100"`
	LastName  *string `json:"lastName" binding:"omitempty,min=2,max=100"`
	Email     *Email  `json:"email" binding:"omitempty,email,min=5,max=254"`
}

func (r UpdateUserRequest) Change() ProfileChange {
	c := ProfileChange{
		FirstName: r.FirstName,
		LastName:  r.LastName,
	}

	if r.Email != nil {
		e := NormalizeEmail(string(*r.Email))
		c.Email = &e
	}

	return c
}

type AdminUpdateUserRequest struct {
	UpdateUserRequest
	Verified *bool `json:"verified"`
}

func (r AdminUpdateUserRequest) Change() ProfileChange {
	c := r.UpdateUserRequest.Change()
	c.Verified = r.Verified

	return c
}
