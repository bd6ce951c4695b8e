package config

import (
	"os"
	"strings"
)

// ForceDatabaseLock makes card mutations take the MySQL advisory lock even
// when redis is configured. Useful when the redis deployment is shared and
// lock churn there is unwelcome.
//
// Set via env:
// - TRACKING_DB_LOCK=true
func ForceDatabaseLock() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("TRACKING_DB_LOCK")))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}
