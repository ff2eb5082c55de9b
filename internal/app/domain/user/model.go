// Package user defines the authenticated identity and profile types.
package user

// UserType distinguishes customers from service providers.
type UserType string

const (
	TypeCustomer UserType = "customer"
	TypeBusiness UserType = "business"
)

// User is the authenticated account record returned by the auth endpoints.
type User struct {
	ID            string           `json:"id"`
	Email         string           `json:"email"`
	FirstName     string           `json:"firstName"`
	LastName      string           `json:"lastName"`
	Phone         string           `json:"phone"`
	UserType      UserType         `json:"userType"`
	Avatar        string           `json:"avatar,omitempty"`
	Verified      bool             `json:"verified"`
	EmailVerified bool             `json:"emailVerified"`
	PhoneVerified bool             `json:"phoneVerified"`
	CreatedAt     string           `json:"createdAt"`
	UpdatedAt     string           `json:"updatedAt"`
	Profile       *Profile         `json:"profile,omitempty"`
	Business      *BusinessProfile `json:"business,omitempty"`
}

// Profile holds customer-facing profile fields.
type Profile struct {
	Bio         string       `json:"bio,omitempty"`
	DateOfBirth string       `json:"dateOfBirth,omitempty"`
	Gender      string       `json:"gender,omitempty"`
	Preferences *Preferences `json:"preferences,omitempty"`
	Location    *Location    `json:"location,omitempty"`
}

// Preferences are per-user client settings.
type Preferences struct {
	Language      string              `json:"language"`
	Currency      string              `json:"currency"`
	Notifications NotificationOptions `json:"notifications"`
}

// NotificationOptions toggles delivery channels.
type NotificationOptions struct {
	Email bool `json:"email"`
	Push  bool `json:"push"`
	SMS   bool `json:"sms"`
}

// BusinessProfile describes a provider's public listing.
type BusinessProfile struct {
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Category    string            `json:"category"`
	Subcategory string            `json:"subcategory,omitempty"`
	Website     string            `json:"website,omitempty"`
	Location    Location          `json:"location"`
	Rating      float64           `json:"rating,omitempty"`
	ReviewCount int               `json:"reviewCount,omitempty"`
	Verified    bool              `json:"verified"`
	Features    []string          `json:"features,omitempty"`
	Gallery     []string          `json:"gallery,omitempty"`
	SocialMedia map[string]string `json:"socialMedia,omitempty"`
}

// Location is a postal location with optional coordinates.
type Location struct {
	Address     string       `json:"address,omitempty"`
	City        string       `json:"city"`
	Region      string       `json:"region"`
	Country     string       `json:"country"`
	Coordinates *Coordinates `json:"coordinates,omitempty"`
}

// Coordinates is a WGS84 point.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Credentials are the sign-in inputs.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Registration are the sign-up inputs.
type Registration struct {
	FirstName        string    `json:"firstName"`
	LastName         string    `json:"lastName"`
	Email            string    `json:"email"`
	Phone            string    `json:"phone"`
	Password         string    `json:"password"`
	ConfirmPassword  string    `json:"confirmPassword"`
	UserType         UserType  `json:"userType"`
	BusinessName     string    `json:"businessName,omitempty"`
	BusinessCategory string    `json:"businessCategory,omitempty"`
	Location         *Location `json:"location,omitempty"`
}

// Tokens is the credential pair governing API access. The refresh token is
// single use: a successful refresh atomically replaces the pair.
type Tokens struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
}

// AuthPayload is the data field of a successful login/register envelope.
type AuthPayload struct {
	User   User   `json:"user"`
	Tokens Tokens `json:"tokens"`
}
