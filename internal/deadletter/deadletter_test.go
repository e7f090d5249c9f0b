package deadletter

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trivago/geolocator/internal/model"
	"github.com/trivago/geolocator/internal/resilience"
)

func TestPut_InsertsEntry(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("INSERT INTO geo.dispatch_dead_letters").
		WithArgs(pgxmock.AnyArg(), "accommodation", "permanent", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	store := NewPostgresStore(mock, "geo.dispatch_dead_letters")
	err = store.Put(context.Background(), resilience.DLQEntry{
		Entity:    model.EntityKey{EntityID: 7, EntityType: "accommodation"},
		Error:     "quota exhausted",
		ErrorType: "permanent",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// nonEmptyString matches any non-empty string argument.
type nonEmptyString struct{}

func (nonEmptyString) Match(v interface{}) bool {
	s, ok := v.(string)
	return ok && s != ""
}

func TestPut_GeneratesIDWhenAbsent(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("INSERT INTO geo.dispatch_dead_letters").
		WithArgs(nonEmptyString{}, "poi", "", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	store := NewPostgresStore(mock, "geo.dispatch_dead_letters")
	err = store.Put(context.Background(), resilience.DLQEntry{
		Entity: model.EntityKey{EntityID: 1, EntityType: "poi"},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestList_FiltersByEntityTypeAndErrorType(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	entry := resilience.DLQEntry{
		ID:        "abc",
		Entity:    model.EntityKey{EntityID: 7, EntityType: "accommodation"},
		ErrorType: "permanent",
	}
	payload, err := json.Marshal(entry)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT payload FROM geo.dispatch_dead_letters").
		WithArgs("accommodation", "permanent", 100).
		WillReturnRows(pgxmock.NewRows([]string{"payload"}).AddRow(payload))

	store := NewPostgresStore(mock, "geo.dispatch_dead_letters")
	got, err := store.List(context.Background(), resilience.DLQFilter{EntityType: "accommodation", ErrorType: "permanent"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "abc", got[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
