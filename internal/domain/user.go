package domain

import (
	"encoding/json"
	"fmt"
)

// UserID is the opaque identifier of a notice recipient.
type UserID string

// User is a recipient as resolved by the host application's user directory.
type User struct {
	ID    UserID `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// RefKindUser is the ref kind resolved to a User at render time.
const RefKindUser = "user"

// Ref is an opaque reference to an application object. It may be stored in
// a notice context and is resolved into the object itself at render time.
type Ref struct {
	Kind string `json:"kind"`
	ID   string `json:"id"`
}

// UserRef returns a reference to the given user.
func UserRef(id UserID) Ref {
	return Ref{Kind: RefKindUser, ID: string(id)}
}

func (r Ref) Validate() error {
	if r.Kind == "" || r.ID == "" {
		return ErrInvalidRef
	}
	return nil
}

func (r Ref) String() string {
	return fmt.Sprintf("%s:%s", r.Kind, r.ID)
}

type refBody struct {
	Kind string `json:"kind"`
	ID   string `json:"id"`
}

type refEnvelope struct {
	Ref *refBody `json:"$ref"`
}

// MarshalJSON wraps the ref in a "$ref" envelope so that it can be told
// apart from ordinary objects when a stored context is decoded.
func (r Ref) MarshalJSON() ([]byte, error) {
	body := refBody(r)
	return json.Marshal(refEnvelope{Ref: &body})
}

// UnmarshalJSON accepts both the envelope form and a bare {"kind","id"} object.
func (r *Ref) UnmarshalJSON(data []byte) error {
	var env refEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	if env.Ref != nil {
		*r = Ref(*env.Ref)
		return nil
	}
	var body refBody
	if err := json.Unmarshal(data, &body); err != nil {
		return err
	}
	*r = Ref(body)
	return nil
}
