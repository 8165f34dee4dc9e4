package candles

import (
	"errors"
	"testing"
)

func raw(closeValue float64, begin, end string) RawCandle {
	return RawCandle{Open: closeValue, Close: closeValue, High: closeValue, Low: closeValue, Volume: 1, Begin: begin, End: end}
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{in: "2000-02-01 00:00:00", want: DefaultEpoch},
		{in: "2000-02-01T00:00:00Z", want: DefaultEpoch},
		{in: "2000-02-01", want: DefaultEpoch},
		{in: "949363200", want: DefaultEpoch},
		{in: "949363200.0", want: DefaultEpoch},
	}
	for _, tc := range tests {
		got, err := ParseTimestamp(tc.in)
		if err != nil {
			t.Fatalf("parse %q: %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("parse %q: got=%d want=%d", tc.in, got, tc.want)
		}
	}
	for _, bad := range []string{"", "yesterday", "2000-13-45"} {
		if _, err := ParseTimestamp(bad); !errors.Is(err, ErrTimestamp) {
			t.Fatalf("parse %q: expected ErrTimestamp, got %v", bad, err)
		}
	}
}

func TestNormalizeFiltersTrimsAndIndexes(t *testing.T) {
	series := []RawSeries{
		{Ticker: "ZZZ", Candles: []RawCandle{
			raw(10, "2000-01-01 00:00:00", "2000-01-31 23:59:59"),
			raw(11, "2000-02-01 00:00:00", "2000-02-29 23:59:59"),
			raw(12, "2000-03-01 00:00:00", "2000-03-31 23:59:59"),
		}},
		{Ticker: "PRICY", Candles: []RawCandle{
			raw(500000, "2001-01-01 00:00:00", "2001-01-31 23:59:59"),
			raw(450000, "2001-02-01 00:00:00", "2001-02-28 23:59:59"),
		}},
		{Ticker: "MIXED", Candles: []RawCandle{
			raw(500000, "2001-01-01 00:00:00", "2001-01-31 23:59:59"),
			raw(400000, "2001-02-01 00:00:00", "2001-02-28 23:59:59"),
		}},
		{Ticker: "OLD", Candles: []RawCandle{
			raw(5, "1999-01-01 00:00:00", "1999-01-31 23:59:59"),
		}},
	}

	ds, report, err := Normalize(series, DefaultOptions())
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	wantTickers := []string{"ZZZ", "MIXED", "OLD"}
	if ds.Len() != len(wantTickers) {
		t.Fatalf("unexpected security count: got=%d want=%d", ds.Len(), len(wantTickers))
	}
	for i, ticker := range wantTickers {
		if ds.Context.SecurityIDs[i] != ticker {
			t.Fatalf("id %d: got=%s want=%s", i, ds.Context.SecurityIDs[i], ticker)
		}
	}
	if len(ds.Candles[0]) != 2 || ds.Candles[0][0].Close != 11 {
		t.Fatalf("expected pre-epoch candle trimmed, got %+v", ds.Candles[0])
	}
	if ds.Candles[0][0].Begin != DefaultEpoch {
		t.Fatalf("unexpected begin: got=%d want=%d", ds.Candles[0][0].Begin, DefaultEpoch)
	}
	if len(ds.Candles[1]) != 2 {
		t.Fatalf("expected mixed ticker kept whole, got %d candles", len(ds.Candles[1]))
	}
	if ds.Candles[2] == nil || len(ds.Candles[2]) != 0 {
		t.Fatalf("expected inert empty series, got %+v", ds.Candles[2])
	}
	if report.Total != 4 || report.Kept != 3 || len(report.Dropped) != 1 || report.Dropped[0] != "PRICY" {
		t.Fatalf("unexpected report: %+v", report)
	}
	if len(report.Empty) != 1 || report.Empty[0] != "OLD" {
		t.Fatalf("unexpected empty list: %+v", report.Empty)
	}
}

func TestNormalizeRejectsBadTimestamp(t *testing.T) {
	series := []RawSeries{{Ticker: "BAD", Candles: []RawCandle{raw(1, "2001-01-01", "not-a-date")}}}
	if _, _, err := Normalize(series, DefaultOptions()); !errors.Is(err, ErrTimestamp) {
		t.Fatalf("expected ErrTimestamp, got %v", err)
	}
}

func TestNormalizeRejectsDuplicateTicker(t *testing.T) {
	series := []RawSeries{
		{Ticker: "A", Candles: []RawCandle{raw(1, "2001-01-01", "2001-01-02")}},
		{Ticker: "A", Candles: []RawCandle{raw(1, "2001-01-01", "2001-01-02")}},
	}
	if _, _, err := Normalize(series, DefaultOptions()); err == nil {
		t.Fatal("expected duplicate ticker error")
	}
}
