package model

import (
	"encoding/json"
	"fmt"
)

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// SecurityID is the dense index assigned to a ticker at normalization time.
type SecurityID int

// CandleWidth is the number of numeric fields a candle contributes to a policy input.
const CandleWidth = 7

// Candle is one OHLCV bar with begin/end timestamps in epoch seconds.
type Candle struct {
	Open   float64
	Close  float64
	High   float64
	Low    float64
	Volume float64
	Begin  int64
	End    int64
}

// EmptyCandle stands in for a missing candle in policy inputs.
var EmptyCandle = Candle{}

// Fields returns the candle in tuple order.
func (c Candle) Fields() [CandleWidth]float64 {
	return [CandleWidth]float64{c.Open, c.Close, c.High, c.Low, c.Volume, float64(c.Begin), float64(c.End)}
}

// MarshalJSON encodes the candle as [open, close, high, low, volume, begin, end].
func (c Candle) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{c.Open, c.Close, c.High, c.Low, c.Volume, c.Begin, c.End})
}

func (c *Candle) UnmarshalJSON(data []byte) error {
	var tuple []float64
	if err := json.Unmarshal(data, &tuple); err != nil {
		return err
	}
	if len(tuple) != CandleWidth {
		return fmt.Errorf("candle tuple width: got=%d want=%d", len(tuple), CandleWidth)
	}
	*c = Candle{
		Open:   tuple[0],
		Close:  tuple[1],
		High:   tuple[2],
		Low:    tuple[3],
		Volume: tuple[4],
		Begin:  int64(tuple[5]),
		End:    int64(tuple[6]),
	}
	return nil
}

type NormalizationContext struct {
	SecurityIDs []string `json:"securityIdsMap"`
}

// Dataset is the normalized, index-addressed candle collection. Read-only after creation.
type Dataset struct {
	Candles [][]Candle           `json:"candles"`
	Context NormalizationContext `json:"normalizationContext"`
}

func (d Dataset) Len() int {
	return len(d.Candles)
}

// Ticker maps a security index back to its ticker, or "" when out of range.
func (d Dataset) Ticker(id SecurityID) string {
	if int(id) < 0 || int(id) >= len(d.Context.SecurityIDs) {
		return ""
	}
	return d.Context.SecurityIDs[id]
}

// Transaction is one ledger entry; a positive amount is a buy, negative a sell.
type Transaction struct {
	Time       int64      `json:"time"`
	SecurityID SecurityID `json:"security_id"`
	Amount     int64      `json:"amount"`
}

type MatrixRecord struct {
	Rows int       `json:"rows"`
	Cols int       `json:"cols"`
	Data []float64 `json:"data"`
}

// PolicyRecord is the serialized form of a policy's weight stack.
type PolicyRecord struct {
	VersionedRecord
	Name       string         `json:"name"`
	RunID      string         `json:"run_id,omitempty"`
	Generation int            `json:"generation"`
	Activation string         `json:"activation"`
	Layers     []MatrixRecord `json:"layers"`
}

// GenerationRecord is appended for every generation whose winner beat its starting cash.
type GenerationRecord struct {
	VersionedRecord
	RunID        string               `json:"run_id"`
	Generation   int                  `json:"generation"`
	ModelName    string               `json:"model_name"`
	Efficiency   float64              `json:"efficiency"`
	Wealth       float64              `json:"wealth"`
	StartingCash float64              `json:"starting_cash"`
	MutationRate float64              `json:"mutation_rate"`
	StartTime    int64                `json:"start_time"`
	EndTime      int64                `json:"end_time"`
	Securities   map[SecurityID]int64 `json:"securities"`
	Transactions []Transaction        `json:"transactions,omitempty"`
}
