package backend

import (
	"context"
	"fmt"
	"log/slog"

	gsheet "prestiti/internal/sheets/google"
	"prestiti/internal/sheets/memory"
)

// Factory creates export sinks based on configuration.
type Factory struct {
	logger *slog.Logger
}

func NewFactory(logger *slog.Logger) *Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Factory{logger: logger}
}

// CreateWriter returns the schedule export sink for the given configuration.
func (f *Factory) CreateWriter(ctx context.Context, cfg Config) (*Result, error) {
	switch cfg.Kind {
	case SheetsBackend:
		cli, err := gsheet.New(ctx, gsheet.Config{
			SpreadsheetID: cfg.GoogleSpreadsheetID,
			SheetPrefix:   cfg.LoanSheetPrefix,
			OAuth: gsheet.OAuthCredentials{
				ClientJSON: cfg.GoogleOAuthClientJSON,
				ClientFile: cfg.GoogleOAuthClientFile,
				TokenJSON:  cfg.GoogleOAuthTokenJSON,
				TokenFile:  cfg.GoogleOAuthTokenFile,
			},
		})
		if err != nil {
			return nil, fmt.Errorf("initialize Google Sheets client: %w", err)
		}
		f.logger.Info("Initialized Google Sheets export backend", "spreadsheet_id", cfg.GoogleSpreadsheetID)
		return &Result{Writer: cli}, nil

	case MemoryBackend:
		f.logger.Info("Initialized memory export backend")
		return &Result{Writer: memory.New()}, nil

	default:
		return nil, fmt.Errorf("invalid export backend: %q (valid: %v)", cfg.Kind, Kinds())
	}
}
