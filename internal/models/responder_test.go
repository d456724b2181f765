package models

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"GreenCorridor/pkg/errors"
	"GreenCorridor/pkg/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := util.InitDatabase("sqlite", fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()))
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&Responder{}))
	return db
}

func TestUpsertResponderLocation(t *testing.T) {
	db := newTestDB(t)

	r, err := UpsertResponderLocation(db, "p1", LocationUpdate{Name: "Officer K", Area: "north", Lat: 12.97, Lng: 77.59})
	require.NoError(t, err)
	assert.True(t, r.Active)
	assert.Equal(t, "north", r.Area)

	r, err = UpsertResponderLocation(db, "p1", LocationUpdate{Lat: 12.98, Lng: 77.60})
	require.NoError(t, err)
	assert.Equal(t, "Officer K", r.Name, "empty name keeps the stored one")
	assert.Equal(t, 12.98, r.Lat)

	r, err = UpsertResponderLocation(db, "p2", LocationUpdate{Lat: 1, Lng: 1})
	require.NoError(t, err)
	assert.Equal(t, DefaultArea, r.Area)

	_, err = UpsertResponderLocation(db, "p3", LocationUpdate{Lat: 95, Lng: 0})
	assert.True(t, errors.IsValidation(err))
	_, err = UpsertResponderLocation(db, " ", LocationUpdate{})
	assert.True(t, errors.IsValidation(err))
}

func TestListActiveResponders(t *testing.T) {
	db := newTestDB(t)
	for _, id := range []string{"p2", "p1", "p3"} {
		_, err := UpsertResponderLocation(db, id, LocationUpdate{Area: "north", Lat: 12.9, Lng: 77.5})
		require.NoError(t, err)
	}
	require.NoError(t, DeactivateResponder(db, "p3"))

	list, err := ListActiveResponders(db, "", time.Time{})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "p1", list[0].ID)

	list, err = ListActiveResponders(db, "south", time.Time{})
	require.NoError(t, err)
	assert.Empty(t, list)

	list, err = ListActiveResponders(db, "", time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, list, "stale positions are filtered")

	assert.True(t, errors.IsNotFound(DeactivateResponder(db, "nobody")))
}

func TestGetResponder(t *testing.T) {
	db := newTestDB(t)
	_, err := GetResponder(db, "p1")
	assert.True(t, errors.IsNotFound(err))

	_, err = UpsertResponderLocation(db, "p1", LocationUpdate{Name: "K", Lat: 1, Lng: 2})
	require.NoError(t, err)
	r, err := GetResponder(db, "p1")
	require.NoError(t, err)
	assert.Equal(t, 2.0, r.Position().Lng)
}

// queryErrors records every statement error gorm would log.
type queryErrors struct {
	mu   sync.Mutex
	errs []error
}

func (q *queryErrors) LogMode(gormlogger.LogLevel) gormlogger.Interface { return q }
func (q *queryErrors) Info(context.Context, string, ...interface{})    {}
func (q *queryErrors) Warn(context.Context, string, ...interface{})    {}
func (q *queryErrors) Error(context.Context, string, ...interface{})   {}

func (q *queryErrors) Trace(_ context.Context, _ time.Time, _ func() (string, int64), err error) {
	if err != nil {
		q.mu.Lock()
		q.errs = append(q.errs, err)
		q.mu.Unlock()
	}
}

func TestFirstReportLogsNoQueryError(t *testing.T) {
	logged := &queryErrors{}
	db := newTestDB(t).Session(&gorm.Session{Logger: logged})

	_, err := UpsertResponderLocation(db, "p1", LocationUpdate{Name: "Officer K", Lat: 12.97, Lng: 77.59})
	require.NoError(t, err)
	_, err = GetResponder(db, "nobody")
	assert.True(t, errors.IsNotFound(err))

	assert.Empty(t, logged.errs)
}
