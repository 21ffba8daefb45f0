package audit

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"osteria/internal/models"
)

func TestWriteReservations(t *testing.T) {
	reservations := []models.Reservation{
		{
			Record:   models.Record{ID: 1, Date: "2024-02-03", Hour: "12:00", Duration: 1, Table: "2"},
			People:   4,
			Starters: []string{"water", "bread"},
			Phone:    "123456789",
			Address:  "Via Roma 1",
		},
		{
			Record:  models.Record{ID: 2, Date: "2024-02-03", Hour: "18:00", Duration: 2, Table: "5"},
			People:  2,
			Phone:   "987654321",
			Address: "Via Milano 9",
		},
		{
			Record:  models.Record{ID: 3, Date: "2024-02-04", Hour: "12:30", Duration: 1, Table: "1"},
			People:  6,
			Phone:   "555555555",
			Address: "Via Napoli 3",
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteReservations(&buf, reservations))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.ElementsMatch(t, []string{"2024-02-03", "2024-02-04"}, f.GetSheetList())

	rows, err := f.GetRows("2024-02-03")
	require.NoError(t, err)
	require.Len(t, rows, 3, "header plus two reservations")
	assert.Equal(t, "Date", rows[0][1])
	assert.Equal(t, "12:00", rows[1][2])
	assert.Equal(t, "water, bread", rows[1][6])
}

func TestWriteReservationsEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteReservations(&buf, nil))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{"empty"}, f.GetSheetList())
}
