package reference

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orgfinder/internal/model"
)

const sampleYAML = `
times:
  - Monday
  - Tuesday
  - Wednesday
  - Saturday
  - Monday - Friday
  - 9:00 AM - 5:00 PM
  - 10:00 AM - 8:00 PM
  - 6:00 PM - 2:00 AM
addresses:
  - 1901 Vine Street
  - 1500 Market Street
  - "19103"
  - "19104"
  - 3401 Walnut Street, 19104
services:
  - Public Computers
  - Wi-Fi
  - Public Computers, Wi-Fi
  - Printing
  - Food Pantry
  - Emergency Food
  - ESL Classes
  - Printing
`

func testFinder(t *testing.T) *Finder {
	k, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)
	// Wednesday
	now := time.Date(2026, 10, 14, 15, 30, 0, 0, time.UTC)
	return NewFinder(k).WithClock(func() time.Time { return now })
}

func TestParseDropsDuplicates(t *testing.T) {
	k, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)
	times, addresses, services := k.Size()
	assert.Equal(t, 8, times)
	assert.Equal(t, 5, addresses)
	assert.Equal(t, 7, services)

	_, err = Parse([]byte("times: [unclosed"))
	assert.Error(t, err)
}

func TestTimes(t *testing.T) {
	f := testFinder(t)

	tests := []struct {
		phrase string
		want   []string
	}{
		{"monday", []string{"Monday", "Monday - Friday"}},
		{"on mondays", []string{"Monday", "Monday - Friday"}},
		{"tues", []string{"Tuesday", "Monday - Friday"}},
		{"weekend", []string{"Saturday"}},
		{"today", []string{"Wednesday", "Monday - Friday"}},
		{"tomorrow", []string{"Monday - Friday"}},
		{"7pm", []string{"10:00 AM - 8:00 PM", "6:00 PM - 2:00 AM"}},
		{"at 9:30 am", []string{"9:00 AM - 5:00 PM"}},
		{"late at 1am", []string{"6:00 PM - 2:00 AM"}},
		{"morning", []string{"9:00 AM - 5:00 PM"}},
		{"evening", []string{"10:00 AM - 8:00 PM", "6:00 PM - 2:00 AM"}},
		{"soon", nil},
	}

	for _, tt := range tests {
		t.Run(tt.phrase, func(t *testing.T) {
			assert.Equal(t, tt.want, f.Times(tt.phrase))
		})
	}
}

func TestAddresses(t *testing.T) {
	f := testFinder(t)

	assert.Equal(t, []string{"19104", "3401 Walnut Street, 19104"}, f.Addresses("19104"))
	assert.Equal(t, []string{"1500 Market Street"}, f.Addresses("Market Street"))
	assert.Equal(t, []string{"1901 Vine Street"}, f.Addresses("near 1901 vine street"))
	assert.Empty(t, f.Addresses("city hall"))
	assert.Empty(t, f.Addresses(""))
}

func TestServices(t *testing.T) {
	f := testFinder(t)

	got := f.Services("free wi-fi", model.CanonicalServiceSet{Primary: "wi-fi", All: []string{"wi-fi"}})
	assert.Equal(t, []string{"public computers, wi-fi", "wi-fi", "free"}, got)

	got = f.Services("food", model.CanonicalServiceSet{Primary: "food", All: []string{"food"}})
	assert.Equal(t, []string{"emergency food", "food pantry"}, got)

	got = f.Services("paid printing", model.CanonicalServiceSet{})
	assert.Equal(t, []string{"printing", "paid"}, got)

	assert.Empty(t, f.Services("haircut", model.CanonicalServiceSet{}))
}

func TestMatchCounts(t *testing.T) {
	f := testFinder(t)

	c := f.Match(model.ExtractedIntent{LocationPhrase: "19104", ServicePhrase: "printing"},
		model.CanonicalServiceSet{Primary: "print", All: []string{"print"}})
	assert.Equal(t, model.CandidateCounts{Time: 0, Location: 2, Service: 1}, c.Counts())

	assert.Equal(t, model.CandidateCounts{}, NewFinder(nil).Match(
		model.ExtractedIntent{TimePhrase: "monday"}, model.CanonicalServiceSet{}).Counts())
}

type fakeQuerier struct {
	results map[string][]model.Record
	err     error
}

func (q *fakeQuerier) Execute(ctx context.Context, query string, params map[string]interface{}) ([]model.Record, error) {
	if q.err != nil {
		return nil, q.err
	}
	return q.results[query], nil
}

func TestLoadFromGraph(t *testing.T) {
	q := &fakeQuerier{results: map[string][]model.Record{
		serviceNamesQuery: {{"value": "Printing"}, {"value": nil}},
		addressesQuery:    {{"value": "1901 Vine Street"}},
		zipCodesQuery:     {{"value": "19103"}},
		daysQuery:         {{"value": "Monday"}},
		hoursQuery:        {{"value": "9:00 AM - 5:00 PM"}, {"value": "Monday"}},
	}}

	k, err := LoadFromGraph(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, []string{"Printing"}, k.Services)
	assert.Equal(t, []string{"1901 Vine Street", "19103"}, k.Addresses)
	assert.Equal(t, []string{"Monday", "9:00 AM - 5:00 PM"}, k.Times)

	_, err = LoadFromGraph(context.Background(), &fakeQuerier{err: errors.New("down")})
	assert.Error(t, err)
}
