package models

import "time"

// Rep is a sales representative; customers point to at most one primary rep
type Rep struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Name      string    `gorm:"not null" json:"name"`
	Email     string    `json:"email"`
	Active    bool      `gorm:"default:true" json:"active"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (Rep) TableName() string { return "reps" }

// Customer is the canonical identity for a shipping/billing destination.
// CompanyKey is derived once at creation and stays stable across facility renames.
type Customer struct {
	ID           int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	CompanyKey   string `gorm:"uniqueIndex;not null;size:255" json:"companyKey"`
	FacilityName string `gorm:"not null" json:"facilityName"`

	Address1 string `json:"address1"`
	Address2 string `json:"address2"`
	City     string `gorm:"index:idx_customers_city_state_zip,priority:1" json:"city"`
	State    string `gorm:"index:idx_customers_city_state_zip,priority:2" json:"state"`
	Zip      string `gorm:"index:idx_customers_city_state_zip,priority:3" json:"zip"`

	ContactName  string `json:"contactName"`
	ContactPhone string `json:"contactPhone"`
	ContactEmail string `gorm:"index" json:"contactEmail"`

	PrimaryRepID *int64 `gorm:"index" json:"primaryRepId"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	// Relations
	PrimaryRep *Rep `gorm:"foreignKey:PrimaryRepID" json:"primaryRep,omitempty"`
}

func (Customer) TableName() string { return "customers" }
