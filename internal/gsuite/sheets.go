package gsuite

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"

	"github.com/wolfman30/dental-whatsapp-bot/internal/appointments"
	"github.com/wolfman30/dental-whatsapp-bot/internal/leads"
	"github.com/wolfman30/dental-whatsapp-bot/pkg/logging"
)

var sheetsTracer = otel.Tracer("dental.internal.gsuite.sheets")

const (
	appointmentsSheet = "appointments"
	leadsSheet        = "leads"
	// RAW keeps creation stamps and ISO times as literal strings.
	valueInputOption = "RAW"
)

// SheetsLedger stores appointment rows in the "appointments" tab (A:N).
type SheetsLedger struct {
	values        *sheetsapi.SpreadsheetsValuesService
	spreadsheetID string
	loc           *time.Location
	logger        *logging.Logger
}

// NewSheetsLedger connects to the spreadsheet.
func NewSheetsLedger(ctx context.Context, spreadsheetID string, loc *time.Location, logger *logging.Logger, opts ...option.ClientOption) (*SheetsLedger, error) {
	if spreadsheetID == "" {
		return nil, fmt.Errorf("gsuite: spreadsheet id required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if loc == nil {
		loc = time.UTC
	}
	svc, err := sheetsapi.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gsuite: sheets service: %w", err)
	}
	return &SheetsLedger{
		values:        svc.Spreadsheets.Values,
		spreadsheetID: spreadsheetID,
		loc:           loc,
		logger:        logger,
	}, nil
}

func (l *SheetsLedger) Append(ctx context.Context, r appointments.Record) error {
	ctx, span := sheetsTracer.Start(ctx, "gsuite.sheets.append")
	defer span.End()

	_, err := l.values.Append(l.spreadsheetID, appointmentsSheet+"!A:N", &sheetsapi.ValueRange{
		Values: [][]interface{}{toCells(appointments.EncodeRow(r, l.loc))},
	}).ValueInputOption(valueInputOption).InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("gsuite: append appointment: %w", err)
	}
	l.logger.Debug("appointment row appended", "phone", r.Phone, "created_at", r.CreatedAt)
	return nil
}

func (l *SheetsLedger) List(ctx context.Context) ([]appointments.Row, error) {
	ctx, span := sheetsTracer.Start(ctx, "gsuite.sheets.list")
	defer span.End()

	resp, err := l.values.Get(l.spreadsheetID, appointmentsSheet+"!A:N").Context(ctx).Do()
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("gsuite: read appointments: %w", err)
	}
	rows := make([]appointments.Row, 0, len(resp.Values))
	for i, raw := range resp.Values {
		rows = append(rows, appointments.Row{
			Index:  i + 1,
			Record: appointments.DecodeRow(fromCells(raw), l.loc),
		})
	}
	span.SetAttributes(attribute.Int("dental.rows", len(rows)))
	return rows, nil
}

func (l *SheetsLedger) Update(ctx context.Context, index int, r appointments.Record) error {
	if index < 1 {
		return appointments.ErrRowNotFound
	}
	ctx, span := sheetsTracer.Start(ctx, "gsuite.sheets.update")
	defer span.End()
	span.SetAttributes(attribute.Int("dental.row", index))

	rng := fmt.Sprintf("%s!A%d:N%d", appointmentsSheet, index, index)
	_, err := l.values.Update(l.spreadsheetID, rng, &sheetsapi.ValueRange{
		Values: [][]interface{}{toCells(appointments.EncodeRow(r, l.loc))},
	}).ValueInputOption(valueInputOption).Context(ctx).Do()
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("gsuite: update appointment row %d: %w", index, err)
	}
	return nil
}

// AppendLead writes an advisor lead to the "leads" tab (A:E).
func (l *SheetsLedger) AppendLead(ctx context.Context, lead leads.Lead) error {
	ctx, span := sheetsTracer.Start(ctx, "gsuite.sheets.append_lead")
	defer span.End()

	row := []interface{}{
		lead.CreatedAt.UTC().Format(time.RFC3339),
		lead.Name,
		lead.Phone,
		lead.Message,
		string(lead.Status),
	}
	_, err := l.values.Append(l.spreadsheetID, leadsSheet+"!A:E", &sheetsapi.ValueRange{
		Values: [][]interface{}{row},
	}).ValueInputOption(valueInputOption).InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("gsuite: append lead: %w", err)
	}
	return nil
}

func toCells(values []string) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

func fromCells(raw []interface{}) []string {
	out := make([]string, len(raw))
	for i, v := range raw {
		if v == nil {
			continue
		}
		out[i] = fmt.Sprint(v)
	}
	return out
}

var _ appointments.Ledger = (*SheetsLedger)(nil)
