// Package database owns the local SQLite file used for durable client state.
//
// The layer is split into domain-specific sub-packages:
//
//	database/
//	├── database.go      # Connection setup and migrations
//	├── kv/              # Durable key/value capability (credential record lives here)
//	└── scans/           # Scan history
//
// Usage:
//
//	db, err := database.NewDatabase("./shelfscan.db")
//	kvRepo := kv.NewRepository(db.DB)
//	scansRepo := scans.NewRepository(db.DB)
package database
