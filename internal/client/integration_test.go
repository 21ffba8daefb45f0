package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"osteria/internal/api"
	"osteria/internal/booking"
	"osteria/internal/database"
	"osteria/internal/events"
	"osteria/internal/models"
	"osteria/internal/selection"
	"osteria/internal/slot"
	"osteria/internal/widget"
)

type fixedProviders struct {
	min, max, current slot.DateKey
	hour              string
}

func (p *fixedProviders) MinDate() slot.DateKey     { return p.min }
func (p *fixedProviders) MaxDate() slot.DateKey     { return p.max }
func (p *fixedProviders) CurrentDate() slot.DateKey { return p.current }
func (p *fixedProviders) CurrentHour() string       { return p.hour }

type fixedRegistry struct {
	tables []models.TableID
}

func (r *fixedRegistry) Tables() []models.TableID     { return r.tables }
func (r *fixedRegistry) Apply([]selection.TableState) {}

// Runs the full stack: sqlite store, HTTP API, this client and the
// widget on top. A reservation on another day of the window must
// survive the occupancy rebuild that follows a successful submission.
func TestSubmitKeepsOtherWindowDays(t *testing.T) {
	logger := zerolog.Nop()
	store, err := database.NewStore(filepath.Join(t.TempDir(), "test.db"), &logger)
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	_, err = store.CreateReservation(ctx, models.Reservation{
		Record:  models.Record{Date: "2024-02-04", Hour: "12:00", Duration: 1, Table: "1"},
		People:  2,
		Phone:   "123456789",
		Address: "Via Roma 1",
	})
	require.NoError(t, err)

	srv := httptest.NewServer(api.NewServer(store, api.Config{}, logger).Handler())
	defer srv.Close()

	c := New(srv.URL, "")
	providers := &fixedProviders{
		min:     "2024-02-01",
		max:     "2024-02-07",
		current: "2024-02-03",
		hour:    "12:00",
	}
	registry := &fixedRegistry{tables: []models.TableID{"1", "2"}}
	w := widget.New(providers, providers, registry, c, c, events.NewBus(), logger)

	require.NoError(t, w.Load(ctx))

	noon, _ := slot.ParseHour("12:00")
	require.False(t, w.IsFree("2024-02-04", noon, "1"))

	require.NoError(t, w.OnTableClick("2"))
	_, err = w.Submit(ctx, booking.Inputs{
		People: 4, Hours: 1, Phone: "987654321", Address: "Via Milano 2",
	})
	require.NoError(t, err)

	assert.False(t, w.IsFree("2024-02-03", noon, "2"))
	assert.False(t, w.IsFree("2024-02-04", noon, "1"), "occupancy on other window days survives the submit snapshot")
}

// A successful submission invalidates the cached GET bodies so the
// next load fetches fresh records instead of replaying the pre-booking
// state.
func TestSubmitInvalidatesRedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	var bookingFetches int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.Method == http.MethodPost {
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(booking.Result{})
			return
		}
		bookingFetches++
		_ = json.NewEncoder(w).Encode([]models.Record{})
	}))
	defer srv.Close()

	c := New(srv.URL, "")
	c.UseRedisCache(rdb, time.Minute)

	ctx := context.Background()
	window := slot.Window{Min: "2024-02-01", Max: "2024-02-07"}

	_, err := c.FetchBookings(ctx, window)
	require.NoError(t, err)
	_, err = c.FetchBookings(ctx, window)
	require.NoError(t, err)
	assert.Equal(t, 1, bookingFetches, "second fetch is served from cache")

	_, err = c.SubmitReservation(ctx, models.Reservation{
		Record: models.Record{Date: "2024-02-03", Hour: "12:00", Duration: 1, Table: "2"},
	}, window)
	require.NoError(t, err)

	_, err = c.FetchBookings(ctx, window)
	require.NoError(t, err)
	assert.Equal(t, 2, bookingFetches, "cache was dropped by the submission")
}
