package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validPayload() SnapshotPayload {
	end := time.Date(2026, 2, 20, 0, 0, 0, 0, time.UTC)
	return SnapshotPayload{
		Year:     2026,
		Month:    2,
		FrozenAt: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC),
		Contracts: []FrozenContract{{
			ContractID:        11,
			AdvertiserID:      7,
			Status:            "active",
			MonthlyPriceExVat: decimal.RequireFromString("299.00"),
			StartDate:         time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
			EndDate:           &end,
		}},
		Locations: []FrozenLocation{{
			LocationID:          3,
			City:                "Utrecht",
			RegionCode:          "ut",
			RevenueSharePercent: decimal.RequireFromString("30"),
			Screens:             []FrozenScreen{{ScreenID: 5, LoopSlotSeconds: 10, PlaysPerHour: 60}},
		}},
	}
}

func TestSnapshotPayloadRoundTrip(t *testing.T) {
	raw, err := EncodeSnapshotPayload(validPayload())
	require.NoError(t, err)

	got, err := DecodeSnapshotPayload(raw)
	require.NoError(t, err)
	assert.Equal(t, SnapshotSchemaVersion, got.SchemaVersion, "encode stamps the current schema version")
	assert.Equal(t, 2026, got.Year)
	assert.Equal(t, 2, got.Month)
	require.Len(t, got.Contracts, 1)
	assert.True(t, got.Contracts[0].MonthlyPriceExVat.Equal(decimal.RequireFromString("299.00")),
		"decimal amounts survive the round trip exactly")
}

func TestDecodeSnapshotPayloadRejectsBadData(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*SnapshotPayload)
	}{
		{"unknown schema version", func(p *SnapshotPayload) { p.SchemaVersion = 99 }},
		{"month out of range", func(p *SnapshotPayload) { p.Month = 13 }},
		{"implausible year", func(p *SnapshotPayload) { p.Year = 1999 }},
		{"contract without id", func(p *SnapshotPayload) { p.Contracts[0].ContractID = 0 }},
		{"contract without advertiser", func(p *SnapshotPayload) { p.Contracts[0].AdvertiserID = 0 }},
		{"negative price", func(p *SnapshotPayload) {
			p.Contracts[0].MonthlyPriceExVat = decimal.RequireFromString("-1")
		}},
		{"location without id", func(p *SnapshotPayload) { p.Locations[0].LocationID = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := validPayload()
			raw, err := EncodeSnapshotPayload(p)
			require.NoError(t, err)
			decoded, err := DecodeSnapshotPayload(raw)
			require.NoError(t, err)

			tc.mutate(&decoded)
			// re-encode without stamping so the mutation survives
			raw2, err := json.Marshal(decoded)
			require.NoError(t, err)
			_, err = DecodeSnapshotPayload(raw2)
			assert.Error(t, err)
		})
	}

	_, err := DecodeSnapshotPayload([]byte(`{"schema_version":`))
	assert.Error(t, err, "truncated JSON must fail")
}

func TestPeriodBounds(t *testing.T) {
	snap := MonthlySnapshot{Year: 2026, Month: 2}
	start, end := snap.PeriodBounds()
	assert.Equal(t, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC), end)

	snap = MonthlySnapshot{Year: 2024, Month: 2} // leap year
	_, end = snap.PeriodBounds()
	assert.Equal(t, 29, end.Day())

	snap = MonthlySnapshot{Year: 2026, Month: 12}
	start, end = snap.PeriodBounds()
	assert.Equal(t, time.December, start.Month())
	assert.Equal(t, 31, end.Day())
}

func TestSnapshotLocked(t *testing.T) {
	assert.False(t, MonthlySnapshot{Status: SnapshotStatusOpen}.Locked())
	assert.False(t, MonthlySnapshot{Status: SnapshotStatusPayoutsGenerated}.Locked())
	assert.True(t, MonthlySnapshot{Status: SnapshotStatusLocked}.Locked())
}
