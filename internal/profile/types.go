package profile

// Credential is the session identity extracted from the retailer's web
// storefront ("MO-user" local storage entry).
type Credential struct {
	Token      string `json:"token"`
	CustomerID string `json:"uuid"`
}

// Location pins search and pricing to a regional warehouse.
type Location struct {
	PostalCode  string `json:"postal_code"`
	WarehouseID string `json:"warehouse_id"`
}

// Profile is the merged local view of what the auth file holds. Credential
// and Location are independently optional; either may be nil.
type Profile struct {
	Credential *Credential
	Location   *Location
}

// authFile mirrors the on-disk JSON layout. The credential is kept under
// local_storage as a stringified JSON value so the file stays compatible
// with the browser-extraction login flow that writes it.
type authFile struct {
	LocalStorage map[string]string `json:"local_storage,omitempty"`
	Location     *Location         `json:"location,omitempty"`
	Cookies      map[string]string `json:"cookies,omitempty"`
}

const (
	credentialKey     = "MO-user"
	locationCookieKey = "__mo_da"
)
