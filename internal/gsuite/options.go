// Package gsuite adapts Google Sheets and Google Calendar to the ledger and
// calendar contracts.
package gsuite

import (
	"fmt"
	"os"
	"strings"

	calendarapi "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"
)

// Credentials selects how the service account is loaded. JSON wins over File.
type Credentials struct {
	JSON string
	File string
}

// ClientOptions builds the API options for the service account.
func ClientOptions(creds Credentials) ([]option.ClientOption, error) {
	scopes := option.WithScopes(sheetsapi.SpreadsheetsScope, calendarapi.CalendarScope)
	switch {
	case strings.TrimSpace(creds.JSON) != "":
		return []option.ClientOption{option.WithCredentialsJSON([]byte(creds.JSON)), scopes}, nil
	case strings.TrimSpace(creds.File) != "":
		if _, err := os.Stat(creds.File); err != nil {
			return nil, fmt.Errorf("gsuite: credentials file: %w", err)
		}
		return []option.ClientOption{option.WithCredentialsFile(creds.File), scopes}, nil
	default:
		return nil, fmt.Errorf("gsuite: no service account credentials configured")
	}
}
