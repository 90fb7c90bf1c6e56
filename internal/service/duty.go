package service

import (
	"errors"
	"math"

	"douane-rag/internal/models"
)

// defaultVATRate applies when the tariff carries no VAT rate of its
// own; the common-law rate covers the vast majority of lines.
const defaultVATRate = 20.0

// ErrNoRateAvailable is returned when neither a rate nor a range could
// be established for the code.
var ErrNoRateAvailable = errors.New("no duty rate available for code")

// CalculateDuties itemizes the import cost of a CIF value: duty on the
// CIF, VAT on the duty-inclusive base, every amount rounded to 2
// decimals.
func CalculateDuties(cif, dutyRate, vatRate float64) (*models.DutyBreakdown, error) {
	if cif <= 0 {
		return nil, errors.New("CIF value must be positive")
	}
	if dutyRate < 0 || vatRate < 0 {
		return nil, errors.New("rates must not be negative")
	}

	duty := round2(cif * dutyRate / 100)
	taxableBase := round2(cif + duty)
	vat := round2(taxableBase * vatRate / 100)
	totalDuties := round2(duty + vat)

	return &models.DutyBreakdown{
		CIFValue:    round2(cif),
		DutyRate:    dutyRate,
		VATRate:     vatRate,
		DutyAmount:  duty,
		TaxableBase: taxableBase,
		VATAmount:   vat,
		TotalDuties: totalDuties,
		TotalCost:   round2(cif + totalDuties),
	}, nil
}

// CalculateForTariff derives the calculation rates from a resolved
// tariff. A rate range uses the arithmetic mean of its bounds; the
// caller is expected to present the result as an estimate.
func CalculateForTariff(cif float64, tariff *models.EffectiveTariff) (*models.DutyBreakdown, error) {
	dutyRate, err := rateForCalculation(tariff)
	if err != nil {
		return nil, err
	}

	vatRate := defaultVATRate
	if tariff.VATRate != nil {
		vatRate = *tariff.VATRate
	}
	return CalculateDuties(cif, dutyRate, vatRate)
}

func rateForCalculation(tariff *models.EffectiveTariff) (float64, error) {
	switch tariff.RateSource {
	case models.RateSourceDirect, models.RateSourceInherited:
		if tariff.DutyRate == nil {
			return 0, ErrNoRateAvailable
		}
		return *tariff.DutyRate, nil
	case models.RateSourceRange:
		return (tariff.DutyRateMin + tariff.DutyRateMax) / 2, nil
	default:
		return 0, ErrNoRateAvailable
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
