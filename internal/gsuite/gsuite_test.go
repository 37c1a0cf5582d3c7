package gsuite

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"github.com/wolfman30/dental-whatsapp-bot/internal/appointments"
	"github.com/wolfman30/dental-whatsapp-bot/internal/calendar"
	"github.com/wolfman30/dental-whatsapp-bot/internal/clinic"
)

var tijuana = time.FixedZone("UTC-7", -7*60*60)

type recordedRequest struct {
	Method string
	Path   string
	Query  string
	Body   map[string]any
}

func fakeGoogle(t *testing.T, respond func(r *http.Request) any) (*httptest.Server, func() []recordedRequest) {
	t.Helper()
	var (
		mu   sync.Mutex
		reqs []recordedRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		rec := recordedRequest{Method: r.Method, Path: r.URL.Path, Query: r.URL.RawQuery}
		if len(raw) > 0 {
			_ = json.Unmarshal(raw, &rec.Body)
		}
		mu.Lock()
		reqs = append(reqs, rec)
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(respond(r))
	}))
	t.Cleanup(srv.Close)
	return srv, func() []recordedRequest {
		mu.Lock()
		defer mu.Unlock()
		return append([]recordedRequest(nil), reqs...)
	}
}

func testOptions(srv *httptest.Server) []option.ClientOption {
	return []option.ClientOption{option.WithEndpoint(srv.URL + "/"), option.WithoutAuthentication()}
}

func TestSheetsLedgerRoundTrip(t *testing.T) {
	start := time.Date(2026, 10, 15, 9, 0, 0, 0, tijuana)
	stored := appointments.EncodeRow(appointments.Record{
		CreatedAt: "2026-10-14T16:00:00.000000000Z",
		Name:      "Ana Lopez",
		Phone:     "5216641234567",
		StartTime: start,
		Procedure: clinic.Cleaning,
		Status:    appointments.Confirmed,
	}, tijuana)

	srv, requests := fakeGoogle(t, func(r *http.Request) any {
		if r.Method == http.MethodGet {
			return map[string]any{
				"range":  "appointments!A1:N2",
				"values": [][]string{{"TIMESTAMP", "NAME"}, stored[:6]},
			}
		}
		return map[string]any{"spreadsheetId": "sheet-1"}
	})

	ledger, err := NewSheetsLedger(context.Background(), "sheet-1", tijuana, nil, testOptions(srv)...)
	require.NoError(t, err)

	require.NoError(t, ledger.Append(context.Background(), appointments.Record{Name: "Luis", StartTime: start}))
	rows, err := ledger.List(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.False(t, rows[0].Record.Active())
	assert.Equal(t, 2, rows[1].Index)
	assert.Equal(t, "Ana Lopez", rows[1].Record.Name)
	assert.True(t, rows[1].Record.StartTime.Equal(start))

	require.NoError(t, ledger.Update(context.Background(), 2, rows[1].Record))

	reqs := requests()
	require.Len(t, reqs, 3)
	assert.True(t, strings.HasSuffix(reqs[0].Path, ":append"), reqs[0].Path)
	assert.Contains(t, reqs[0].Query, "valueInputOption=RAW")
	assert.Equal(t, http.MethodPut, reqs[2].Method)
	assert.Contains(t, reqs[2].Path, "appointments!A2:N2")
}

func TestCalendarCreateCarriesKey(t *testing.T) {
	srv, requests := fakeGoogle(t, func(r *http.Request) any {
		if r.Method == http.MethodPost {
			return map[string]any{
				"id":    "evt-1",
				"start": map[string]string{"dateTime": "2026-10-15T09:00:00-07:00"},
				"end":   map[string]string{"dateTime": "2026-10-15T09:40:00-07:00"},
				"extendedProperties": map[string]any{
					"private": map[string]string{"apptKey": "ts__521"},
				},
			}
		}
		return map[string]any{"items": []map[string]any{{
			"id":    "holiday",
			"start": map[string]string{"date": "2026-10-15"},
			"end":   map[string]string{"date": "2026-10-16"},
		}}}
	})

	cal, err := NewCalendar(context.Background(), "primary", tijuana, nil, testOptions(srv)...)
	require.NoError(t, err)

	start := time.Date(2026, 10, 15, 9, 0, 0, 0, tijuana)
	created, err := cal.CreateEvent(context.Background(), calendar.Event{
		Summary:   "🧼 Limpieza dental – Ana Lopez – 5216641234567",
		Start:     start,
		End:       start.Add(40 * time.Minute),
		Key:       "ts__521",
		ColorID:   "10",
		Reminders: []time.Duration{60 * time.Minute, 10 * time.Minute},
	})
	require.NoError(t, err)
	assert.Equal(t, "evt-1", created.ID)
	assert.Equal(t, "ts__521", created.Key)

	events, err := cal.ListEventsByDate(context.Background(), "2026-10-15")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.True(t, events[0].AllDay)
	assert.True(t, events[0].Overlaps(start, start.Add(30*time.Minute)))

	reqs := requests()
	require.Len(t, reqs, 2)
	props := reqs[0].Body["extendedProperties"].(map[string]any)["private"].(map[string]any)
	assert.Equal(t, "ts__521", props["apptKey"])
	reminders := reqs[0].Body["reminders"].(map[string]any)
	assert.Equal(t, false, reminders["useDefault"])
	assert.Contains(t, reqs[1].Query, "singleEvents=true")
}
