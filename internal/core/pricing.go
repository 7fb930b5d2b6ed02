package core

const (
	colorPagePrice         = 10.0
	blackAndWhitePagePrice = 5.0
	legalSurcharge         = 1.2
	duplexSurcharge        = 1.5
)

// ComputeAmount prices a print configuration. Multipliers are applied in a
// fixed order (color, copies, legal, duplex) so non-integer results are
// reproducible.
func ComputeAmount(cfg PrintConfig) float64 {
	amount := blackAndWhitePagePrice
	if cfg.ColorMode == ColorModeColor {
		amount = colorPagePrice
	}
	amount *= float64(cfg.Copies)
	if cfg.PaperSize == PaperSizeLegal {
		amount *= legalSurcharge
	}
	if cfg.DoubleSided {
		amount *= duplexSurcharge
	}
	return amount
}

// PriceTable is the public breakdown of ComputeAmount.
type PriceTable struct {
	Color           float64 `json:"color"`
	BlackAndWhite   float64 `json:"black_and_white"`
	LegalSurcharge  float64 `json:"legal_multiplier"`
	DuplexSurcharge float64 `json:"double_sided_multiplier"`
}

func Prices() PriceTable {
	return PriceTable{
		Color:           colorPagePrice,
		BlackAndWhite:   blackAndWhitePagePrice,
		LegalSurcharge:  legalSurcharge,
		DuplexSurcharge: duplexSurcharge,
	}
}
