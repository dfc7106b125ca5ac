package domain

// ApplicationConfiguration holds the parts of the application's config
// file that the sandbox and the contract clauses care about. Produced once
// by the appconfig adapter and consumed read-only.
type ApplicationConfiguration struct {
	HealthChecksEnabled bool
	IsJava              bool
}
