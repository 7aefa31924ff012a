package store

import (
	"time"

	"github.com/shopspring/decimal"
)

type User struct {
	ID                    string
	Email                 string
	DisplayName           string
	PasswordHash          string
	Role                  string
	IsEmailVerified       bool
	VerificationToken     string
	VerificationExpiresAt *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

type Development struct {
	ID               string
	Slug             string
	Name             string
	DeveloperID      string
	Status           string
	Description      string
	ShortDescription string
	MainImage        string
	Address          string
	City             string
	County           string
	Eircode          string
	Latitude         *float64
	Longitude        *float64
	TotalUnits       int
	Features         []string
	Published        bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// DevelopmentFilter narrows List. Zero values match everything.
type DevelopmentFilter struct {
	Status        string
	County        string
	DeveloperID   string
	PublishedOnly bool
	Query         string
	Limit         int
	Offset        int
}

// DevelopmentPatch carries the fields an update may change; nil means unchanged.
type DevelopmentPatch struct {
	Name             *string
	Status           *string
	Description      *string
	ShortDescription *string
	MainImage        *string
	Address          *string
	City             *string
	County           *string
	Eircode          *string
	Latitude         *float64
	Longitude        *float64
	TotalUnits       *int
	Features         *[]string
	Published        *bool
}

type UnitCounts struct {
	Total       int
	Available   int
	Reserved    int
	SaleAgreed  int
	Sold        int
	Unavailable int
}

type PriceRange struct {
	Min decimal.Decimal
	Max decimal.Decimal
}

type Unit struct {
	ID            string
	DevelopmentID string
	UnitNumber    string
	Name          string
	Type          string
	Bedrooms      int
	Bathrooms     int
	SizeSqm       float64
	BasePrice     decimal.Decimal
	Status        string
	BERRating     string
	Block         string
	Floor         int
	Features      []string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type UnitFilter struct {
	DevelopmentID string
	Status        string
	Type          string
	MinBedrooms   int
	MaxBedrooms   int
	MinPrice      *decimal.Decimal
	MaxPrice      *decimal.Decimal
	// Query matches unit number or name, case-insensitively.
	Query string
	// PublishedOnly drops units of unpublished developments.
	PublishedOnly bool
	Limit         int
	Offset        int
}

type UnitPatch struct {
	Name      *string
	Type      *string
	Bedrooms  *int
	Bathrooms *int
	SizeSqm   *float64
	BasePrice *decimal.Decimal
	Status    *string
	BERRating *string
	Block     *string
	Floor     *int
	Features  *[]string
}

type PriceUpdate struct {
	UnitID string          `json:"unitId"`
	Price  decimal.Decimal `json:"price"`
}

type Document struct {
	ID          string
	EntityType  string
	EntityID    string
	Name        string
	Type        string
	Status      string
	ObjectKey   string
	ContentType string
	SizeBytes   int64
	Checksum    string
	Version     int
	UploadedBy  string
	ReviewedBy  string
	ReviewNote  string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type DocumentFilter struct {
	EntityType string
	EntityID   string
	Type       string
	Status     string
}

type Sale struct {
	ID              string
	UnitID          string
	BuyerID         string
	AgentID         string
	Status          string
	AgreedPrice     decimal.NullDecimal
	Deposit         decimal.NullDecimal
	MortgageAmount  decimal.NullDecimal
	EnquiryDate     time.Time
	ReservationDate *time.Time
	ContractDate    *time.Time
	CompletionDate  *time.Time
	Notes           string
	Tags            []string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type SaleFilter struct {
	Status        string
	BuyerID       string
	AgentID       string
	UnitID        string
	DevelopmentID string
	MinPrice      *decimal.Decimal
	MaxPrice      *decimal.Decimal
	Limit         int
	Offset        int
}

type SalePatch struct {
	AgreedPrice    *decimal.Decimal
	Deposit        *decimal.Decimal
	MortgageAmount *decimal.Decimal
	Notes          *string
	Tags           *[]string
}

type SaleStatusChange struct {
	ID             string
	SaleID         string
	PreviousStatus string
	NewStatus      string
	ChangedBy      string
	Note           string
	ChangedAt      time.Time
}

type SalesSummary struct {
	TotalSales      int
	TotalValue      decimal.Decimal
	CompletedSales  int
	CompletedValue  decimal.Decimal
	ActiveSales     int
	StatusBreakdown map[string]int
}

type Professional struct {
	ID                 string
	Name               string
	Email              string
	Phone              string
	Profession         string
	Organisation       string
	RegistrationNumber string
	Status             string
	VerifiedBy         string
	VerifiedAt         *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

type ProfessionalFilter struct {
	Profession string
	Status     string
	Limit      int
	Offset     int
}

type TeamMember struct {
	DevelopmentID  string
	ProfessionalID string
	Role           string
	Status         string
	AppointedBy    string
	AppointedAt    time.Time
	Professional   Professional
}

type AuditEntry struct {
	ID           string
	ActorID      string
	ActorName    string
	Action       string
	ResourceType string
	ResourceID   string
	Outcome      string
	Severity     string
	IP           string
	UserAgent    string
	RequestID    string
	Metadata     map[string]any
	CreatedAt    time.Time
}

type AuditFilter struct {
	ActorID      string
	ResourceType string
	ResourceID   string
	Action       string
	Since        *time.Time
	Limit        int
}
