package store

import (
	"encoding/json"
	"strings"
	"time"
)

// User is the account owning every other entity.
type User struct {
	ID              string     `json:"id"`
	Email           *string    `json:"email"`
	FirstName       *string    `json:"firstName"`
	LastName        *string    `json:"lastName"`
	ProfileImageURL *string    `json:"profileImageUrl"`
	PasswordHash    string     `json:"-"`
	LastSeenAt      *time.Time `json:"lastSeenAt,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

// UserPatch carries the fields a profile update may change; nil means untouched.
type UserPatch struct {
	Email           *string `json:"email"`
	FirstName       *string `json:"firstName"`
	LastName        *string `json:"lastName"`
	ProfileImageURL *string `json:"profileImageUrl"`
}

// OAuthConnection links a user to a third-party platform account. AccessToken and
// RefreshToken hold plaintext in memory and are sealed by the store before they
// reach SQL; they are never serialised.
type OAuthConnection struct {
	ID             string     `json:"id"`
	UserID         string     `json:"userId"`
	Platform       string     `json:"platform"`
	PlatformUserID *string    `json:"platformUserId"`
	DisplayName    *string    `json:"displayName"`
	Email          *string    `json:"email"`
	AccessToken    string     `json:"-"`
	RefreshToken   string     `json:"-"`
	TokenExpiry    *time.Time `json:"tokenExpiry"`
	Scope          *string    `json:"scope"`
	IsActive       bool       `json:"isActive"`
	LastSync       *time.Time `json:"lastSync"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

type OAuthConnectionPatch struct {
	PlatformUserID *string    `json:"platformUserId"`
	DisplayName    *string    `json:"displayName"`
	Email          *string    `json:"email"`
	AccessToken    *string    `json:"-"`
	RefreshToken   *string    `json:"-"`
	TokenExpiry    *time.Time `json:"-"`
	Scope          *string    `json:"-"`
	IsActive       *bool      `json:"isActive"`
	LastSync       *time.Time `json:"-"`
}

// LeadStatus is the sales pipeline position of a lead.
type LeadStatus string

const (
	LeadNew       LeadStatus = "new"
	LeadContacted LeadStatus = "contacted"
	LeadQualified LeadStatus = "qualified"
	LeadConverted LeadStatus = "converted"
	LeadLost      LeadStatus = "lost"
)

// Valid reports whether s is one of the enumerated statuses.
func (s LeadStatus) Valid() bool {
	switch s {
	case LeadNew, LeadContacted, LeadQualified, LeadConverted, LeadLost:
		return true
	}
	return false
}

// ParseLeadStatus normalises user input; empty input yields LeadNew.
func ParseLeadStatus(raw string) (LeadStatus, error) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" {
		return LeadNew, nil
	}
	s := LeadStatus(raw)
	if !s.Valid() {
		return "", invalidf("status must be one of new, contacted, qualified, converted, lost")
	}
	return s, nil
}

type Lead struct {
	ID        string          `json:"id"`
	UserID    string          `json:"userId"`
	Name      *string         `json:"name"`
	Email     *string         `json:"email"`
	Phone     *string         `json:"phone"`
	Source    *string         `json:"source"`
	Status    LeadStatus      `json:"status"`
	Notes     *string         `json:"notes"`
	Metadata  json.RawMessage `json:"metadata"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

type LeadPatch struct {
	Name     *string         `json:"name"`
	Email    *string         `json:"email"`
	Phone    *string         `json:"phone"`
	Source   *string         `json:"source"`
	Status   *LeadStatus     `json:"status"`
	Notes    *string         `json:"notes"`
	Metadata json.RawMessage `json:"metadata"`
}

// Automation is a user-configured workflow. RunCount only moves when the
// automation itself executes, which happens outside this service.
type Automation struct {
	ID          string          `json:"id"`
	UserID      string          `json:"userId"`
	Name        string          `json:"name"`
	Description *string         `json:"description"`
	Type        string          `json:"type"`
	Config      json.RawMessage `json:"config"`
	IsActive    bool            `json:"isActive"`
	LastRun     *time.Time      `json:"lastRun"`
	RunCount    int64           `json:"runCount"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

type AutomationPatch struct {
	Name        *string         `json:"name"`
	Description *string         `json:"description"`
	Type        *string         `json:"type"`
	Config      json.RawMessage `json:"config"`
	IsActive    *bool           `json:"isActive"`
}

// Activity is an append-only dashboard feed entry.
type Activity struct {
	ID          string          `json:"id"`
	UserID      string          `json:"userId"`
	Type        string          `json:"type"`
	Title       string          `json:"title"`
	Description *string         `json:"description"`
	Metadata    json.RawMessage `json:"metadata"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// Metric is the daily snapshot for one user. Revenue is kept in cents.
type Metric struct {
	ID               string    `json:"id"`
	UserID           string    `json:"userId"`
	Date             time.Time `json:"date"`
	LeadsCount       int64     `json:"leadsCount"`
	ConversionsCount int64     `json:"conversionsCount"`
	AutomationsCount int64     `json:"automationsCount"`
	RevenueCents     int64     `json:"revenueCents"`
	CreatedAt        time.Time `json:"createdAt"`
}

// DashboardStats aggregates one user's data at a single instant.
type DashboardStats struct {
	TotalLeads        int64   `json:"totalLeads"`
	TotalConversions  int64   `json:"totalConversions"`
	ActiveAutomations int64   `json:"activeAutomations"`
	TotalRevenue      float64 `json:"totalRevenue"`
}

// Session is a server-side login session keyed by the hash of its cookie value.
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// OAuthState is an authorization request this service issued and has not yet seen
// come back through the callback.
type OAuthState struct {
	State        string
	UserID       string
	Platform     string
	CodeVerifier string
	ExpiresAt    time.Time
	CreatedAt    time.Time
	ConsumedAt   *time.Time
}

// OwnedCounts is the number of rows a user owns per table.
type OwnedCounts struct {
	Connections int64 `json:"connections"`
	Leads       int64 `json:"leads"`
	Automations int64 `json:"automations"`
	Activities  int64 `json:"activities"`
	Metrics     int64 `json:"metrics"`
	Sessions    int64 `json:"sessions"`
}

// Page bounds list operations. Zero Limit selects the per-entity default.
type Page struct {
	Limit  int
	Offset int
}

const maxPageLimit = 100

func (p Page) normalize(def int) Page {
	if p.Limit <= 0 {
		p.Limit = def
	}
	if p.Limit > maxPageLimit {
		p.Limit = maxPageLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}
