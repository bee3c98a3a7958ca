package platform

import (
	"strings"
)

// Drivers understood by dbschema.Connect.
const (
	PGX = "pgx"
	PQ  = "pq"
)

// NormalizeDriver maps the accepted driver spellings to PGX or PQ.
// An empty name selects PGX.
func NormalizeDriver(driver string) string {
	switch strings.ToLower(driver) {
	case "", "pgx", "pgxpool", "pgx/v5":
		return PGX
	case "pq", "lib/pq", "postgres", "postgresql":
		return PQ
	default:
		return ""
	}
}
