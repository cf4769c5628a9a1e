package sheets

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	gsheets "google.golang.org/api/sheets/v4"

	"social-pipeline/internal/config"
	"social-pipeline/internal/domain"
)

type googleValues struct {
	svc *gsheets.Service
	id  string
}

// Open connects to the configured spreadsheet with a service account file
// (or application default credentials when none is set).
func Open(ctx context.Context, cfg config.SheetsConfig, logger *zerolog.Logger) (*Store, error) {
	opts := []option.ClientOption{option.WithScopes(gsheets.SpreadsheetsScope)}
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	svc, err := gsheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return NewStore(&googleValues{svc: svc, id: cfg.SpreadsheetID}, cfg.Worksheet, cfg.AutoAppendColumns, logger), nil
}

func (g *googleValues) Get(ctx context.Context, rng string) ([][]string, error) {
	resp, err := g.svc.Spreadsheets.Values.Get(g.id, rng).Context(ctx).Do()
	if err != nil {
		return nil, mapErr(err)
	}
	out := make([][]string, len(resp.Values))
	for i, row := range resp.Values {
		out[i] = make([]string, len(row))
		for j, v := range row {
			if v != nil {
				out[i][j] = fmt.Sprint(v)
			}
		}
	}
	return out, nil
}

func (g *googleValues) BatchUpdate(ctx context.Context, data []CellRange) error {
	req := &gsheets.BatchUpdateValuesRequest{ValueInputOption: "RAW"}
	for _, d := range data {
		vals := make([][]interface{}, len(d.Values))
		for i, row := range d.Values {
			vals[i] = make([]interface{}, len(row))
			for j, v := range row {
				vals[i][j] = v
			}
		}
		req.Data = append(req.Data, &gsheets.ValueRange{Range: d.Range, Values: vals})
	}
	_, err := g.svc.Spreadsheets.Values.BatchUpdate(g.id, req).Context(ctx).Do()
	return mapErr(err)
}

func mapErr(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch gerr.Code {
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%w: %s", domain.ErrUnauthorized, gerr.Message)
		case http.StatusNotFound:
			return fmt.Errorf("%w: %s", domain.ErrNotFound, gerr.Message)
		}
	}
	return err
}
