// Package candles turns raw per-ticker candle data into the dense,
// index-addressed dataset the simulator consumes.
package candles

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"evotrader/internal/model"
)

const (
	// DefaultPriceCeiling drops tickers that never closed at or below it.
	DefaultPriceCeiling = 400000.0
	// DefaultEpoch is 2000-02-01T00:00:00Z; earlier candles are trimmed.
	DefaultEpoch int64 = 949363200
)

var ErrTimestamp = errors.New("invalid candle timestamp")

var timestampLayouts = []string{
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

type Options struct {
	PriceCeiling float64
	Epoch        int64
}

func DefaultOptions() Options {
	return Options{PriceCeiling: DefaultPriceCeiling, Epoch: DefaultEpoch}
}

// RawCandle is a source candle whose timestamps are still text.
// Numeric timestamps are kept as their decimal text.
type RawCandle struct {
	Open   float64
	Close  float64
	High   float64
	Low    float64
	Volume float64
	Begin  string
	End    string
}

// UnmarshalJSON reads the 7-tuple [open, close, high, low, volume, begin, end].
func (c *RawCandle) UnmarshalJSON(data []byte) error {
	var tuple []json.RawMessage
	if err := json.Unmarshal(data, &tuple); err != nil {
		return err
	}
	if len(tuple) != model.CandleWidth {
		return fmt.Errorf("candle tuple width: got=%d want=%d", len(tuple), model.CandleWidth)
	}
	numbers := []*float64{&c.Open, &c.Close, &c.High, &c.Low, &c.Volume}
	for i, dst := range numbers {
		if err := json.Unmarshal(tuple[i], dst); err != nil {
			return fmt.Errorf("candle field %d: %w", i, err)
		}
	}
	var err error
	if c.Begin, err = timestampText(tuple[5]); err != nil {
		return err
	}
	if c.End, err = timestampText(tuple[6]); err != nil {
		return err
	}
	return nil
}

func (c RawCandle) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{c.Open, c.Close, c.High, c.Low, c.Volume, c.Begin, c.End})
}

func timestampText(raw json.RawMessage) (string, error) {
	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, `"`) {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		return s, nil
	}
	if _, err := strconv.ParseFloat(trimmed, 64); err != nil {
		return "", fmt.Errorf("%w: %s", ErrTimestamp, trimmed)
	}
	return trimmed, nil
}

type RawSeries struct {
	Ticker  string
	Candles []RawCandle
}

type Report struct {
	Total   int      `json:"total"`
	Kept    int      `json:"kept"`
	Dropped []string `json:"dropped,omitempty"`
	Empty   []string `json:"empty,omitempty"`
}

// ParseTimestamp accepts epoch seconds or one of the supported UTC layouts.
func ParseTimestamp(value string) (int64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, fmt.Errorf("%w: empty", ErrTimestamp)
	}
	if n, err := strconv.ParseInt(value, 10, 64); err == nil {
		return n, nil
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return int64(f), nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			return t.Unix(), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrTimestamp, value)
}

// Normalize filters, parses and trims the raw series and assigns dense ids in input order.
func Normalize(series []RawSeries, opts Options) (model.Dataset, Report, error) {
	if opts.PriceCeiling <= 0 {
		opts.PriceCeiling = DefaultPriceCeiling
	}
	if opts.Epoch == 0 {
		opts.Epoch = DefaultEpoch
	}

	report := Report{Total: len(series)}
	dataset := model.Dataset{
		Candles: make([][]model.Candle, 0, len(series)),
		Context: model.NormalizationContext{SecurityIDs: make([]string, 0, len(series))},
	}
	seen := make(map[string]struct{}, len(series))

	for _, raw := range series {
		if _, dup := seen[raw.Ticker]; dup {
			return model.Dataset{}, Report{}, fmt.Errorf("duplicate ticker %q", raw.Ticker)
		}
		seen[raw.Ticker] = struct{}{}

		if !withinCeiling(raw.Candles, opts.PriceCeiling) {
			report.Dropped = append(report.Dropped, raw.Ticker)
			continue
		}

		parsed := make([]model.Candle, len(raw.Candles))
		for i, c := range raw.Candles {
			begin, err := ParseTimestamp(c.Begin)
			if err != nil {
				return model.Dataset{}, Report{}, fmt.Errorf("ticker %s candle %d begin: %w", raw.Ticker, i, err)
			}
			end, err := ParseTimestamp(c.End)
			if err != nil {
				return model.Dataset{}, Report{}, fmt.Errorf("ticker %s candle %d end: %w", raw.Ticker, i, err)
			}
			parsed[i] = model.Candle{
				Open:   c.Open,
				Close:  c.Close,
				High:   c.High,
				Low:    c.Low,
				Volume: c.Volume,
				Begin:  begin,
				End:    end,
			}
		}

		trimmed := trim(parsed, opts.Epoch)
		if len(trimmed) == 0 {
			report.Empty = append(report.Empty, raw.Ticker)
		}
		dataset.Candles = append(dataset.Candles, trimmed)
		dataset.Context.SecurityIDs = append(dataset.Context.SecurityIDs, raw.Ticker)
	}

	report.Kept = dataset.Len()
	return dataset, report, nil
}

func withinCeiling(candles []RawCandle, ceiling float64) bool {
	for _, c := range candles {
		if c.Close <= ceiling {
			return true
		}
	}
	return false
}

// trim drops candles that end before the epoch. A series that never reaches it becomes empty.
func trim(candles []model.Candle, epoch int64) []model.Candle {
	for i, c := range candles {
		if c.End >= epoch {
			return candles[i:]
		}
	}
	return []model.Candle{}
}
