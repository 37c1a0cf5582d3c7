package leads

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateValidates(t *testing.T) {
	repo := NewInMemoryRepository()
	_, err := repo.Create(context.Background(), &CreateLeadRequest{Phone: "521"})
	assert.ErrorIs(t, err, ErrInvalidName)
	_, err = repo.Create(context.Background(), &CreateLeadRequest{Name: "Ana"})
	assert.ErrorIs(t, err, ErrMissingContact)

	lead, err := repo.Create(context.Background(), &CreateLeadRequest{Name: "Ana", Phone: "521", Message: "¿Aceptan tarjeta?"})
	require.NoError(t, err)
	assert.Equal(t, StatusPending, lead.Status)
	assert.Equal(t, "whatsapp", lead.Source)

	got, err := repo.GetByID(context.Background(), lead.ID)
	require.NoError(t, err)
	assert.Equal(t, lead, got)
}

type sheetStub struct {
	appended []Lead
	err      error
}

func (s *sheetStub) AppendLead(_ context.Context, l Lead) error {
	if s.err != nil {
		return s.err
	}
	s.appended = append(s.appended, l)
	return nil
}

func TestMirroredRepositoryCopiesToSheet(t *testing.T) {
	sheet := &sheetStub{}
	repo := NewMirroredRepository(NewInMemoryRepository(), sheet, nil)

	lead, err := repo.Create(context.Background(), &CreateLeadRequest{Name: "Ana", Phone: "521", Message: "hola"})
	require.NoError(t, err)
	require.Len(t, sheet.appended, 1)
	assert.Equal(t, lead.ID, sheet.appended[0].ID)

	sheet.err = errors.New("quota")
	_, err = repo.Create(context.Background(), &CreateLeadRequest{Name: "Luis", Phone: "522"})
	require.NoError(t, err, "mirror failures never lose the lead")

	all, err := repo.List(context.Background(), ListFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestPostgresRepositoryCreate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	created := time.Date(2026, 10, 14, 17, 0, 0, 0, time.UTC)
	mock.ExpectQuery("INSERT INTO leads").
		WithArgs(pgxmock.AnyArg(), "Ana", "521", "hola", "PENDIENTE", "whatsapp").
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(created))

	repo := NewPostgresRepository(mock)
	lead, err := repo.Create(context.Background(), &CreateLeadRequest{Name: "Ana", Phone: "521", Message: "hola"})
	require.NoError(t, err)
	assert.Equal(t, created, lead.CreatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepositoryListAndGet(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	created := time.Date(2026, 10, 14, 17, 0, 0, 0, time.UTC)
	columns := []string{"id", "name", "phone", "message", "status", "source", "created_at"}

	mock.ExpectQuery("SELECT id, name, phone").
		WithArgs("PENDIENTE", 100).
		WillReturnRows(pgxmock.NewRows(columns).AddRow(id, "Ana", "521", "hola", "PENDIENTE", "whatsapp", created))
	mock.ExpectQuery("SELECT id, name, phone").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows(columns))

	repo := NewPostgresRepository(mock)
	list, err := repo.List(context.Background(), ListFilter{Status: StatusPending})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, id.String(), list[0].ID)

	_, err = repo.GetByID(context.Background(), id.String())
	assert.ErrorIs(t, err, ErrLeadNotFound)

	_, err = repo.GetByID(context.Background(), "not-a-uuid")
	assert.ErrorIs(t, err, ErrLeadNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHandlerListAndGet(t *testing.T) {
	repo := NewInMemoryRepository()
	lead, err := repo.Create(context.Background(), &CreateLeadRequest{Name: "Ana", Phone: "521"})
	require.NoError(t, err)

	h := NewHandler(repo, nil)
	r := chi.NewRouter()
	r.Get("/admin/leads", h.ListLeads)
	r.Get("/admin/leads/{leadID}", h.GetLead)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/leads?status=pendiente", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var resp ListLeadsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, 1, resp.Count)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/leads/"+lead.ID, nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/leads/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
