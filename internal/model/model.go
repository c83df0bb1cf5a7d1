// Package model defines domain entities shared by the client components, services and repositories.
package model

import (
	"time"

	"github.com/and161185/grovi/internal/geo"
	"github.com/gofrs/uuid/v5"
)

// Tokens collects an issued access token and its expiry.
type Tokens struct {
	AccessToken string
	ExpiresAt   time.Time // access token expiry (for diagnostics)
}

// User is the public account record. Password material never leaves the server.
type User struct {
	ID          uuid.UUID  `json:"id"`
	Name        string     `json:"name"`
	Username    string     `json:"username"`
	Email       string     `json:"email"`
	DateOfBirth *time.Time `json:"date_of_birth,omitempty"`
	Age         *int       `json:"age,omitempty"`
	IsActive    bool       `json:"is_active"`
	CreatedAt   time.Time  `json:"created_at"`

	PwdHash  []byte `json:"-"` // Argon2id(password, SaltAuth)
	SaltAuth []byte `json:"-"` // per-user auth salt
}

// AgeOn returns the age in full years at the given moment, or nil without a date of birth.
func (u User) AgeOn(now time.Time) *int {
	if u.DateOfBirth == nil {
		return nil
	}
	dob := u.DateOfBirth.UTC()
	now = now.UTC()
	age := now.Year() - dob.Year()
	if now.Month() < dob.Month() || (now.Month() == dob.Month() && now.Day() < dob.Day()) {
		age--
	}
	if age < 0 {
		age = 0
	}
	return &age
}

// AuthResponse is returned by login and registration.
type AuthResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	User        User   `json:"user"`
}

// Field is a user-owned agricultural plot. Geometry, area and centroid are fixed at creation.
type Field struct {
	ID             uuid.UUID    `json:"id"`
	UserID         uuid.UUID    `json:"user_id"`
	Name           string       `json:"name"`
	CropType       string       `json:"crop_type,omitempty"`
	Variety        string       `json:"variety,omitempty"`
	PlantingSeason string       `json:"planting_season,omitempty"`
	PlantingDate   string       `json:"planting_date,omitempty"` // YYYY-MM-DD
	Geometry       geo.Geometry `json:"geometry"`
	AreaM2         float64      `json:"area_m2"`
	CentroidLat    float64      `json:"centroid_lat"`
	CentroidLng    float64      `json:"centroid_lng"`
	Address        string       `json:"address,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
}

// FieldInput is the create payload.
type FieldInput struct {
	Name           string       `json:"name"`
	CropType       string       `json:"crop_type,omitempty"`
	Variety        string       `json:"variety,omitempty"`
	PlantingSeason string       `json:"planting_season,omitempty"`
	PlantingDate   string       `json:"planting_date,omitempty"`
	Geometry       geo.Geometry `json:"geometry"`
	Address        string       `json:"address,omitempty"`
}

// FieldUpdate changes descriptive attributes only; nil members are left untouched.
type FieldUpdate struct {
	Name           *string `json:"name,omitempty"`
	CropType       *string `json:"crop_type,omitempty"`
	Variety        *string `json:"variety,omitempty"`
	PlantingSeason *string `json:"planting_season,omitempty"`
	PlantingDate   *string `json:"planting_date,omitempty"`
	Address        *string `json:"address,omitempty"`
}

// Apply copies the set members of u onto f.
func (u FieldUpdate) Apply(f *Field) {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	set(&f.Name, u.Name)
	set(&f.CropType, u.CropType)
	set(&f.Variety, u.Variety)
	set(&f.PlantingSeason, u.PlantingSeason)
	set(&f.PlantingDate, u.PlantingDate)
	set(&f.Address, u.Address)
}

// IsEmpty reports whether the update carries no change.
func (u FieldUpdate) IsEmpty() bool {
	return u.Name == nil && u.CropType == nil && u.Variety == nil &&
		u.PlantingSeason == nil && u.PlantingDate == nil && u.Address == nil
}

// Thumbnail is the single preview image attached to a field.
type Thumbnail struct {
	FieldID   uuid.UUID `json:"field_id"`
	ImageData string    `json:"image_data"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// Place is a geocoding result.
type Place struct {
	DisplayName string  `json:"display_name"`
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	Type        string  `json:"type,omitempty"`
	Class       string  `json:"class,omitempty"`
}
