package ingest

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Yusufzhafir/hftsim/pkg/model"
	"github.com/Yusufzhafir/hftsim/pkg/util"
)

// wireTick accepts both the market stream's "volume" and the strategy
// clients' "quantity".
type wireTick struct {
	Timestamp *string  `json:"timestamp"`
	Symbol    *string  `json:"symbol"`
	Price     *float64 `json:"price"`
	Volume    *float64 `json:"volume"`
	Quantity  *float64 `json:"quantity"`
}

type wireSignal struct {
	Signal   *string  `json:"signal"`
	Action   *string  `json:"action"`
	Symbol   *string  `json:"symbol"`
	Price    *float64 `json:"price"`
	Volume   *float64 `json:"volume"`
	Quantity *float64 `json:"quantity"`
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", model.ErrMalformedMessage, fmt.Sprintf(format, args...))
}

// NewTickDecoder decodes a JSON tick. A tick without a timestamp is stamped
// with the receive time from clock.
func NewTickDecoder(clock util.Clock) Decoder[model.MarketTick] {
	return func(raw []byte) (model.MarketTick, error) {
		var w wireTick
		if err := json.Unmarshal(raw, &w); err != nil {
			return model.MarketTick{}, malformed("tick: %v", err)
		}
		if w.Symbol == nil || strings.TrimSpace(*w.Symbol) == "" {
			return model.MarketTick{}, malformed("tick: missing symbol")
		}
		if w.Price == nil {
			return model.MarketTick{}, malformed("tick %s: missing price", *w.Symbol)
		}
		volume := firstOf(w.Volume, w.Quantity)
		if volume == nil {
			return model.MarketTick{}, malformed("tick %s: missing volume", *w.Symbol)
		}

		tick := model.MarketTick{
			Symbol: strings.TrimSpace(*w.Symbol),
			Price:  *w.Price,
			Volume: *volume,
		}
		if w.Timestamp != nil && *w.Timestamp != "" {
			tick.Timestamp = *w.Timestamp
		} else {
			tick.Timestamp = model.FormatTimestamp(clock.Now())
		}
		return tick, nil
	}
}

// DecodeSignal decodes a JSON trade signal. The kind may be sent as "signal"
// or "action". NONE needs no price or volume.
func DecodeSignal(raw []byte) (model.TradeSignal, error) {
	var w wireSignal
	if err := json.Unmarshal(raw, &w); err != nil {
		return model.TradeSignal{}, malformed("signal: %v", err)
	}

	kindRaw := w.Signal
	if kindRaw == nil {
		kindRaw = w.Action
	}
	if kindRaw == nil {
		return model.TradeSignal{}, malformed("signal: missing signal kind")
	}
	kind, err := model.ParseSignalKind(*kindRaw)
	if err != nil {
		return model.TradeSignal{}, malformed("signal: %v", err)
	}

	sig := model.TradeSignal{Signal: kind}
	if w.Symbol != nil {
		sig.Symbol = strings.TrimSpace(*w.Symbol)
	}
	volume := firstOf(w.Volume, w.Quantity)
	if kind == model.SignalNone {
		if w.Price != nil {
			sig.Price = *w.Price
		}
		if volume != nil {
			sig.Volume = *volume
		}
		return sig, nil
	}

	if w.Price == nil {
		return model.TradeSignal{}, malformed("%s signal: missing price", kind)
	}
	if volume == nil {
		return model.TradeSignal{}, malformed("%s signal: missing volume", kind)
	}
	sig.Price = *w.Price
	sig.Volume = *volume
	return sig, nil
}

func firstOf(vals ...*float64) *float64 {
	for _, v := range vals {
		if v != nil {
			return v
		}
	}
	return nil
}
