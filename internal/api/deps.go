package api

import (
	"github.com/aganoob/mercadona-mcp/internal/config"
	"github.com/aganoob/mercadona-mcp/internal/mercadona"
	"github.com/aganoob/mercadona-mcp/internal/profile"
	"github.com/aganoob/mercadona-mcp/internal/replenish"
)

// Deps holds the dependencies shared by the MCP and HTTP surfaces.
type Deps struct {
	Config  config.Config
	Profile *profile.Store
	Cache   replenish.LineCache // may be nil; recommendations then always refetch
}

// newClient derives a fresh session from the profile file and builds a
// client under it. Rebuilding per invocation means a login that lands
// mid-session is picked up without restarting the server.
func (d Deps) newClient() *mercadona.Client {
	session := mercadona.NewSession(d.Profile.Load(), d.Config.API.DefaultWarehouse)
	return mercadona.New(mercadona.Options{
		BaseURL:       d.Config.API.BaseURL,
		SearchAppID:   d.Config.API.SearchAppID,
		SearchAPIKey:  d.Config.API.SearchAPIKey,
		SearchBaseURL: d.Config.API.SearchBaseURL,
	}, session)
}
