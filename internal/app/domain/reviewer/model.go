// Package reviewer holds the DSA reviewer directory model.
package reviewer

import "time"

// Reviewer is a reviewer-capable identity that can be assigned to loan
// applications.
type Reviewer struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Email          string    `json:"email"`
	Specialization string    `json:"specialization,omitempty"`
	Active         bool      `json:"active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Profile is the public subset exposed to application owners when choosing a
// point of contact.
type Profile struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Email          string `json:"email"`
	Specialization string `json:"specialization,omitempty"`
}

// PublicProfile strips directory-internal fields.
func (r Reviewer) PublicProfile() Profile {
	return Profile{
		ID:             r.ID,
		Name:           r.Name,
		Email:          r.Email,
		Specialization: r.Specialization,
	}
}
