package mercadona

import (
	"github.com/aganoob/mercadona-mcp/internal/profile"
)

// DefaultWarehouse is the fallback catalog partition (Valencia) used when no
// location has been configured.
const DefaultWarehouse = "4115"

// Session is the explicit, re-derivable view of the profile that remote
// calls are made under. It is a value, recomputed from the profile whenever
// a client is built; it carries no lazy-reload behavior of its own.
type Session struct {
	Token       string
	CustomerID  string
	WarehouseID string
	PostalCode  string
}

// NewSession derives a Session from a loaded profile. defaultWarehouse is
// used when the profile carries no location; pass "" for the built-in
// fallback region.
func NewSession(p profile.Profile, defaultWarehouse string) Session {
	if defaultWarehouse == "" {
		defaultWarehouse = DefaultWarehouse
	}
	s := Session{WarehouseID: defaultWarehouse}
	if p.Credential != nil {
		s.Token = p.Credential.Token
		s.CustomerID = p.Credential.CustomerID
	}
	if p.Location != nil {
		s.PostalCode = p.Location.PostalCode
		if p.Location.WarehouseID != "" {
			s.WarehouseID = p.Location.WarehouseID
		}
	}
	return s
}

// Authenticated reports whether the session can make customer-scoped calls.
func (s Session) Authenticated() bool {
	return s.Token != "" && s.CustomerID != ""
}
