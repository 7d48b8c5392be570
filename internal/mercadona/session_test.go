package mercadona

import (
	"testing"

	"github.com/aganoob/mercadona-mcp/internal/profile"
)

func TestNewSessionDefaults(t *testing.T) {
	s := NewSession(profile.Profile{}, "")

	if s.Authenticated() {
		t.Error("empty profile should not be authenticated")
	}
	if s.WarehouseID != DefaultWarehouse {
		t.Errorf("WarehouseID = %q, want fallback %q", s.WarehouseID, DefaultWarehouse)
	}
}

func TestNewSessionFromProfile(t *testing.T) {
	p := profile.Profile{
		Credential: &profile.Credential{Token: "tok", CustomerID: "cust"},
		Location:   &profile.Location{PostalCode: "46001", WarehouseID: "3211"},
	}
	s := NewSession(p, "4115")

	if !s.Authenticated() {
		t.Error("session with token and customer id should be authenticated")
	}
	if s.WarehouseID != "3211" {
		t.Errorf("WarehouseID = %q, want profile value 3211", s.WarehouseID)
	}
	if s.PostalCode != "46001" {
		t.Errorf("PostalCode = %q, want 46001", s.PostalCode)
	}
}

// A credential alone is not enough: both token and customer id are required.
func TestAuthenticatedNeedsBothHalves(t *testing.T) {
	s := NewSession(profile.Profile{Credential: &profile.Credential{Token: "tok"}}, "")
	if s.Authenticated() {
		t.Error("token without customer id should not count as authenticated")
	}

	s = NewSession(profile.Profile{Credential: &profile.Credential{CustomerID: "cust"}}, "")
	if s.Authenticated() {
		t.Error("customer id without token should not count as authenticated")
	}
}

func TestNewSessionLocationWithoutWarehouse(t *testing.T) {
	p := profile.Profile{Location: &profile.Location{PostalCode: "46001"}}
	s := NewSession(p, "")

	if s.WarehouseID != DefaultWarehouse {
		t.Errorf("WarehouseID = %q, want fallback when location has no warehouse", s.WarehouseID)
	}
}
