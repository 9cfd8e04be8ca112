package export

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sdlab1/n-ohlcv/internal/indicator"
	"github.com/sdlab1/n-ohlcv/internal/model"
)

// Checkpoint records where an incremental bar export stopped: the next
// candle to consume, the candles of the unfinished bar and the RSI state
// after the last closed bar.
type Checkpoint struct {
	Symbol    string          `json:"symbol"`
	Timeframe int             `json:"timeframe"`
	Next      int64           `json:"next"`
	Remainder []model.Candle  `json:"remainder"`
	RSI       json.RawMessage `json:"rsi,omitempty"`
}

// IndicatorState decodes the carried RSI state; the zero State when none
// was recorded.
func (c *Checkpoint) IndicatorState() (indicator.State, error) {
	if len(c.RSI) == 0 {
		return indicator.State{}, nil
	}
	return indicator.UnmarshalState(c.RSI)
}

// NewCheckpoint captures the carry of a bar export whose last consumed
// candle opened at lastOpen.
func NewCheckpoint(symbol string, timeframe int, lastOpen int64, remainder []model.Candle, st indicator.State) (Checkpoint, error) {
	cp := Checkpoint{
		Symbol:    symbol,
		Timeframe: timeframe,
		Next:      lastOpen + model.MinuteMs,
		Remainder: remainder,
	}
	if st.Type != "" {
		raw, err := indicator.MarshalState(st)
		if err != nil {
			return Checkpoint{}, err
		}
		cp.RSI = raw
	}
	return cp, nil
}

// LoadCheckpoint reads path. ok is false when the file does not exist.
func LoadCheckpoint(path string) (cp Checkpoint, ok bool, err error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Checkpoint{}, false, nil
	}
	if err != nil {
		return Checkpoint{}, false, fmt.Errorf("read checkpoint: %w", err)
	}
	if err := json.Unmarshal(data, &cp); err != nil {
		return Checkpoint{}, false, fmt.Errorf("decode checkpoint %s: %w", path, err)
	}
	if len(cp.Remainder) >= cp.Timeframe && cp.Timeframe > 0 {
		return Checkpoint{}, false, fmt.Errorf("checkpoint %s: remainder of %d candles for a %dm timeframe", path, len(cp.Remainder), cp.Timeframe)
	}
	return cp, true, nil
}

// SaveCheckpoint writes cp to path, replacing it atomically.
func SaveCheckpoint(path string, cp Checkpoint) error {
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write checkpoint: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}
