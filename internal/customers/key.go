package customers

import (
	"strings"

	"github.com/silq-qms/qmsgo/internal/normalize"
)

// OrderParty is the customer-identifying part of a sales order
type OrderParty struct {
	CustomerNumber string `json:"customerNumber"`
	AccountNumber  string `json:"accountNumber"`
	Name           string `json:"name"`
	Address1       string `json:"address1"`
	City           string `json:"city"`
	State          string `json:"state"`
	Zip            string `json:"zip"`
}

// KeyFromSalesOrder derives a company key from sales-order fields.
// Priority: customer/account number, full address, name+city+state, name.
// It never touches the store.
func KeyFromSalesOrder(p OrderParty) string {
	number := strings.TrimSpace(p.CustomerNumber)
	if number == "" {
		number = strings.TrimSpace(p.AccountNumber)
	}
	if n := normalize.Token(number); n != "" {
		return "CUST:" + n
	}

	name := strings.TrimSpace(p.Name)
	addr := strings.TrimSpace(p.Address1)
	city := strings.TrimSpace(p.City)
	state := strings.TrimSpace(p.State)
	zip := strings.TrimSpace(p.Zip)

	switch {
	case name != "" && addr != "" && city != "" && state != "" && zip != "":
		return normalize.CustomerKey(strings.Join([]string{name, addr, city, state, zip}, " "))
	case name != "" && city != "" && state != "":
		// state is appended after suffix stripping; "PA" and "CO" are also entity suffixes
		return normalize.CustomerKey(name+" "+city) + normalize.Token(state)
	case name != "":
		return normalize.CustomerKey(name)
	}
	return normalize.CustomerKey("UNKNOWN")
}
