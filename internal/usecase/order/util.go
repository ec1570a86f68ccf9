package order

import (
	"fmt"

	"github.com/Yusufzhafir/hftsim/pkg/model"
)

// orderTerms converts a signal's wire price and volume into book units.
func orderTerms(signal model.TradeSignal) (model.Price, model.Quantity, error) {
	quantity, err := model.QuantityFromVolume(signal.Volume)
	if err != nil {
		return model.Price{}, 0, fmt.Errorf("%s signal: %w", signal.Signal, err)
	}
	price, err := model.PriceFromFloat(signal.Price)
	if err != nil {
		return model.Price{}, 0, fmt.Errorf("%s signal: %w", signal.Signal, err)
	}
	return price, quantity, nil
}
