package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderDateRangeWidensBareDates(t *testing.T) {
	start, end, err := orderDateRange("2024-05-01", "2024-05-01")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), *start)
	assert.Equal(t, time.Date(2024, 5, 1, 23, 59, 59, 999999999, time.UTC), *end)

	start, end, err = orderDateRange("2024-05-01T08:30:00+07:00", "")
	require.NoError(t, err)
	assert.True(t, start.Equal(time.Date(2024, 5, 1, 1, 30, 0, 0, time.UTC)))
	assert.Nil(t, end)
}

func TestOrderDateRangeNamesBadField(t *testing.T) {
	_, _, err := orderDateRange("", "05/01/2024")
	vErr := asValidationErrors(err)
	require.NotNil(t, vErr)
	require.Len(t, vErr.Errors, 1)
	assert.Equal(t, "endDate", vErr.Errors[0].Field)
	assert.Equal(t, "invalid_end_date", vErr.Errors[0].Code)
}
