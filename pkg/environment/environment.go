// Package environment names the deployment environments the service runs in
// and normalises the short aliases operators tend to put into APP_ENV.
package environment

import "strings"

type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Production  Environment = "production"
)

// Parse maps APP_ENV values onto a known environment.
// Unknown and empty values resolve to Development so a missing variable never
// enables production-only behaviour by accident.
func Parse(s string) Environment {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "production", "prod":
		return Production
	case "staging", "stage":
		return Staging
	default:
		return Development
	}
}

func (e Environment) IsProduction() bool  { return e == Production }
func (e Environment) IsDevelopment() bool { return e == Development }

func (e Environment) String() string { return string(e) }
