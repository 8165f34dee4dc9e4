package candles

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"evotrader/internal/model"
)

var ErrDatasetShape = errors.New("dataset candles and ticker map differ in length")

// DecodeRaw reads a {ticker: [[o,c,h,l,v,begin,end], ...]} object, keeping the
// tickers in source order so ids are assigned in first-seen order.
func DecodeRaw(r io.Reader) ([]RawSeries, error) {
	dec := json.NewDecoder(r)
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("raw candles: expected object, got %v", tok)
	}

	var series []RawSeries
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		ticker, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("raw candles: expected ticker key, got %v", tok)
		}
		var candles []RawCandle
		if err := dec.Decode(&candles); err != nil {
			return nil, fmt.Errorf("raw candles %s: %w", ticker, err)
		}
		series = append(series, RawSeries{Ticker: ticker, Candles: candles})
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return series, nil
}

func LoadRaw(path string) ([]RawSeries, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return DecodeRaw(f)
}

func LoadDataset(path string) (model.Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.Dataset{}, err
	}
	var ds model.Dataset
	if err := json.Unmarshal(data, &ds); err != nil {
		return model.Dataset{}, fmt.Errorf("decode dataset %s: %w", path, err)
	}
	if len(ds.Candles) != len(ds.Context.SecurityIDs) {
		return model.Dataset{}, fmt.Errorf("%w: candles=%d tickers=%d", ErrDatasetShape, len(ds.Candles), len(ds.Context.SecurityIDs))
	}
	for i := range ds.Candles {
		if ds.Candles[i] == nil {
			ds.Candles[i] = []model.Candle{}
		}
	}
	return ds, nil
}

func SaveDataset(path string, ds model.Dataset) error {
	if len(ds.Candles) != len(ds.Context.SecurityIDs) {
		return fmt.Errorf("%w: candles=%d tickers=%d", ErrDatasetShape, len(ds.Candles), len(ds.Context.SecurityIDs))
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.Marshal(ds)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// LoadOrNormalize reads the normalized cache when it exists; otherwise it
// normalizes the raw file and writes the cache. The bool reports a cache hit.
func LoadOrNormalize(rawPath, cachePath string, opts Options) (model.Dataset, Report, bool, error) {
	if cachePath != "" {
		if _, err := os.Stat(cachePath); err == nil {
			ds, err := LoadDataset(cachePath)
			if err != nil {
				return model.Dataset{}, Report{}, false, err
			}
			return ds, Report{Total: ds.Len(), Kept: ds.Len()}, true, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return model.Dataset{}, Report{}, false, err
		}
	}
	if rawPath == "" {
		return model.Dataset{}, Report{}, false, fmt.Errorf("no normalized cache at %q and no raw candle path", cachePath)
	}

	series, err := LoadRaw(rawPath)
	if err != nil {
		return model.Dataset{}, Report{}, false, err
	}
	ds, report, err := Normalize(series, opts)
	if err != nil {
		return model.Dataset{}, Report{}, false, err
	}
	if cachePath != "" {
		if err := SaveDataset(cachePath, ds); err != nil {
			return model.Dataset{}, Report{}, false, err
		}
	}
	return ds, report, false, nil
}
