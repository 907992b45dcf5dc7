package backend

import (
	"fmt"

	"prestiti/internal/config"
)

// Config carries everything the factory needs to build an export sink.
type Config struct {
	Kind Kind

	// Google Sheets target and credentials
	GoogleSpreadsheetID   string
	LoanSheetPrefix       string
	GoogleOAuthClientFile string
	GoogleOAuthClientJSON string
	GoogleOAuthTokenFile  string
	GoogleOAuthTokenJSON  string
}

// FromAppConfig converts the application config to a backend config.
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	kind := Kind(appConfig.ExportBackend)
	if !kind.IsValid() {
		return Config{}, fmt.Errorf("invalid export backend in config: %s", appConfig.ExportBackend)
	}

	return Config{
		Kind: kind,

		GoogleSpreadsheetID:   appConfig.GoogleSpreadsheetID,
		LoanSheetPrefix:       appConfig.LoanSheetPrefix,
		GoogleOAuthClientFile: appConfig.GoogleOAuthClientFile,
		GoogleOAuthClientJSON: appConfig.GoogleOAuthClientJSON,
		GoogleOAuthTokenFile:  appConfig.GoogleOAuthTokenFile,
		GoogleOAuthTokenJSON:  appConfig.GoogleOAuthTokenJSON,
	}, nil
}
