package config

// Default paths and endpoints
const (
	// DefaultDatabasePath is the default path for the local state database
	DefaultDatabasePath = "./shelfscan.db"

	// DefaultBackendURL is the book service the client syncs with
	DefaultBackendURL = "http://localhost:3000"

	// DefaultIdentityProvider names the identity exchange endpoint (/auth/<provider>/mobile)
	DefaultIdentityProvider = "google"

	// DefaultResyncSchedule refreshes the mirror every 15 minutes
	DefaultResyncSchedule = "*/15 * * * *"
)
