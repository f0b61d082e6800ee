package database

import (
	"fmt"
	"strings"
)

// ConstructDatabaseURL appends databaseName to baseURL, keeping any query
// parameters already on the base and defaulting sslmode to disable. An empty
// databaseName leaves the base URL untouched.
func ConstructDatabaseURL(baseURL, databaseName string) string {
	if databaseName == "" {
		return baseURL
	}

	baseURL = strings.TrimRight(baseURL, "/")

	var databaseURL string
	if idx := strings.Index(baseURL, "?"); idx >= 0 {
		// Database name goes on the path, ahead of the query string
		databaseURL = fmt.Sprintf("%s/%s?%s", baseURL[:idx], databaseName, baseURL[idx+1:])
	} else {
		databaseURL = fmt.Sprintf("%s/%s", baseURL, databaseName)
	}

	if !strings.Contains(databaseURL, "sslmode=") {
		separator := "&"
		if !strings.Contains(databaseURL, "?") {
			separator = "?"
		}
		databaseURL += separator + "sslmode=disable"
	}

	return databaseURL
}
