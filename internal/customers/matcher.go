// Package customers resolves inbound ship-to data to a canonical Customer.
package customers

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/silq-qms/qmsgo/internal/database"
	"github.com/silq-qms/qmsgo/internal/models"
	"github.com/silq-qms/qmsgo/internal/normalize"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned when a customer id does not exist
	ErrNotFound = errors.New("customer not found")
	// ErrNoFacilityName is returned when ship-to data carries no usable name
	ErrNoFacilityName = errors.New("facility name is required")
)

// Tier records which resolution step produced a match
type Tier string

const (
	TierExact       Tier = "exact"
	TierAddress     Tier = "address"
	TierEmailDomain Tier = "email_domain"
	TierCreated     Tier = "created"
)

// consumer webmail domains never identify an organization
var blockedEmailDomains = map[string]bool{
	"gmail.com":   true,
	"yahoo.com":   true,
	"hotmail.com": true,
	"outlook.com": true,
	"aol.com":     true,
}

// ShipTo is the extracted destination block of an inbound event
type ShipTo struct {
	FacilityName string `json:"facilityName"`
	Address1     string `json:"address1"`
	Address2     string `json:"address2"`
	City         string `json:"city"`
	State        string `json:"state"`
	Zip          string `json:"zip"`
	ContactName  string `json:"contactName"`
	ContactPhone string `json:"contactPhone"`
	ContactEmail string `json:"contactEmail"`
}

// Match is the outcome of a resolution
type Match struct {
	Customer *models.Customer
	Tier     Tier
	// Changed lists the columns overwritten on an existing customer
	Changed []string
}

// Matcher resolves ship-to blocks to customers inside the caller's transaction
type Matcher struct {
	log         logrus.FieldLogger
	phoneRegion string
}

// NewMatcher creates a Matcher. Phone numbers are parsed against the US region.
func NewMatcher(log logrus.FieldLogger) *Matcher {
	return &Matcher{
		log:         log.WithField("module", "customers"),
		phoneRegion: "US",
	}
}

// FindOrCreate runs the tiered resolution: exact company key, then
// city/state/zip, then organizational email domain, then create.
// A hit is updated in place with any materially different incoming fields.
func (m *Matcher) FindOrCreate(ctx context.Context, tx *gorm.DB, in ShipTo) (*Match, error) {
	in = m.clean(in)
	key := normalize.CustomerKey(in.FacilityName)
	if key == "" {
		return nil, ErrNoFacilityName
	}
	db := tx.WithContext(ctx)

	// Tier 1: exact key
	c, err := byKey(db, key)
	if err != nil {
		return nil, err
	}
	if c != nil {
		return m.update(db, c, in, TierExact)
	}

	// Tier 2a: address tuple
	if in.City != "" && in.State != "" && in.Zip != "" {
		var found models.Customer
		err := db.Where("LOWER(city) = LOWER(?) AND LOWER(state) = LOWER(?) AND zip = ?", in.City, in.State, in.Zip).
			Order("id").First(&found).Error
		if err == nil {
			return m.update(db, &found, in, TierAddress)
		}
		if !database.IsNotFound(err) {
			return nil, fmt.Errorf("address lookup: %w", err)
		}
	}

	// Tier 2b: organizational email domain
	if domain := EmailDomain(in.ContactEmail); domain != "" && !blockedEmailDomains[domain] {
		var found models.Customer
		err := db.Where(`LOWER(contact_email) LIKE ? ESCAPE '\'`, "%@"+escapeLike(domain)).
			Order("id").First(&found).Error
		if err == nil {
			return m.update(db, &found, in, TierEmailDomain)
		}
		if !database.IsNotFound(err) {
			return nil, fmt.Errorf("email domain lookup: %w", err)
		}
	}

	// Tier 3: create
	return m.create(db, key, in)
}

// FindOrCreateByKey resolves by a precomputed company key only, creating the
// customer when absent. Used for keys derived from sales-order fields.
func (m *Matcher) FindOrCreateByKey(ctx context.Context, tx *gorm.DB, key string, in ShipTo) (*Match, error) {
	if key == "" {
		return nil, ErrNoFacilityName
	}
	in = m.clean(in)
	if in.FacilityName == "" {
		in.FacilityName = key
	}
	db := tx.WithContext(ctx)

	c, err := byKey(db, key)
	if err != nil {
		return nil, err
	}
	if c != nil {
		return m.update(db, c, in, TierExact)
	}
	return m.create(db, key, in)
}

// create inserts under a savepoint so a lost race on company_key leaves the
// enclosing transaction usable; the loser re-reads the winner's row.
func (m *Matcher) create(db *gorm.DB, key string, in ShipTo) (*Match, error) {
	c := &models.Customer{
		CompanyKey:   key,
		FacilityName: in.FacilityName,
		Address1:     in.Address1,
		Address2:     in.Address2,
		City:         in.City,
		State:        in.State,
		Zip:          in.Zip,
		ContactName:  in.ContactName,
		ContactPhone: in.ContactPhone,
		ContactEmail: in.ContactEmail,
	}
	err := db.Transaction(func(sp *gorm.DB) error {
		return sp.Create(c).Error
	})
	if err == nil {
		m.log.WithFields(logrus.Fields{"customer_id": c.ID, "company_key": key}).Info("created customer")
		return &Match{Customer: c, Tier: TierCreated}, nil
	}
	if !database.IsDuplicateKey(err) {
		return nil, fmt.Errorf("create customer: %w", err)
	}

	m.log.WithField("company_key", key).Warn("concurrent customer create, retrying as lookup")
	existing, lerr := byKey(db, key)
	if lerr != nil {
		return nil, lerr
	}
	if existing == nil {
		return nil, fmt.Errorf("create customer: %w", err)
	}
	return m.update(db, existing, in, TierExact)
}

// update overwrites stored fields with non-empty, materially different input.
// Last write wins; company_key is never recomputed.
func (m *Matcher) update(db *gorm.DB, c *models.Customer, in ShipTo, tier Tier) (*Match, error) {
	updates := map[string]interface{}{}
	set := func(col string, stored *string, incoming string) {
		if incoming == "" || strings.EqualFold(strings.TrimSpace(*stored), incoming) {
			return
		}
		*stored = incoming
		updates[col] = incoming
	}
	set("facility_name", &c.FacilityName, in.FacilityName)
	set("address1", &c.Address1, in.Address1)
	set("address2", &c.Address2, in.Address2)
	set("city", &c.City, in.City)
	set("state", &c.State, in.State)
	set("zip", &c.Zip, in.Zip)
	set("contact_name", &c.ContactName, in.ContactName)
	set("contact_phone", &c.ContactPhone, in.ContactPhone)
	set("contact_email", &c.ContactEmail, in.ContactEmail)

	match := &Match{Customer: c, Tier: tier}
	if len(updates) == 0 {
		return match, nil
	}
	if err := db.Model(c).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("update customer %d: %w", c.ID, err)
	}
	for col := range updates {
		match.Changed = append(match.Changed, col)
	}
	sort.Strings(match.Changed)
	m.log.WithFields(logrus.Fields{
		"customer_id": c.ID,
		"tier":        tier,
		"changed":     match.Changed,
	}).Debug("updated customer from inbound data")
	return match, nil
}

func (m *Matcher) clean(in ShipTo) ShipTo {
	in.FacilityName = strings.TrimSpace(in.FacilityName)
	in.Address1 = strings.TrimSpace(in.Address1)
	in.Address2 = strings.TrimSpace(in.Address2)
	in.City = strings.TrimSpace(in.City)
	in.State = strings.TrimSpace(in.State)
	in.Zip = strings.TrimSpace(in.Zip)
	in.ContactName = strings.TrimSpace(in.ContactName)
	in.ContactEmail = strings.ToLower(strings.TrimSpace(in.ContactEmail))
	in.ContactPhone = NormalizePhone(in.ContactPhone, m.phoneRegion)
	return in
}

func byKey(db *gorm.DB, key string) (*models.Customer, error) {
	var c models.Customer
	err := db.Where("company_key = ?", key).First(&c).Error
	if database.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup company_key %q: %w", key, err)
	}
	return &c, nil
}

// EmailDomain returns the lowercased domain of an address, or ""
func EmailDomain(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 || at == len(email)-1 {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(email[at+1:]))
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
