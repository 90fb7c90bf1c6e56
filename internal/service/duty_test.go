package service

import (
	"testing"

	"douane-rag/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateDuties(t *testing.T) {
	got, err := CalculateDuties(10000, 2.5, 20)

	require.NoError(t, err)
	assert.Equal(t, 250.0, got.DutyAmount)
	assert.Equal(t, 10250.0, got.TaxableBase)
	assert.Equal(t, 2050.0, got.VATAmount)
	assert.Equal(t, 2300.0, got.TotalDuties)
	assert.Equal(t, 12300.0, got.TotalCost)
}

func TestCalculateDutiesRounding(t *testing.T) {
	got, err := CalculateDuties(999.99, 2.5, 20)

	require.NoError(t, err)
	assert.Equal(t, 25.0, got.DutyAmount)
	assert.Equal(t, 1024.99, got.TaxableBase)
	assert.Equal(t, 205.0, got.VATAmount)
}

func TestCalculateDutiesInvalidInput(t *testing.T) {
	_, err := CalculateDuties(0, 2.5, 20)
	assert.Error(t, err)

	_, err = CalculateDuties(-100, 2.5, 20)
	assert.Error(t, err)

	_, err = CalculateDuties(100, -1, 20)
	assert.Error(t, err)
}

func TestCalculateForTariffDirect(t *testing.T) {
	tariff := &models.EffectiveTariff{
		RateSource: models.RateSourceDirect,
		DutyRate:   rate(2.5),
		VATRate:    rate(20),
	}

	got, err := CalculateForTariff(10000, tariff)

	require.NoError(t, err)
	assert.Equal(t, 2300.0, got.TotalDuties)
}

func TestCalculateForTariffRangeUsesMean(t *testing.T) {
	tariff := &models.EffectiveTariff{
		RateSource:  models.RateSourceRange,
		DutyRateMin: 2.5,
		DutyRateMax: 17.5,
	}

	got, err := CalculateForTariff(1000, tariff)

	require.NoError(t, err)
	assert.Equal(t, 10.0, got.DutyRate)
	assert.Equal(t, 100.0, got.DutyAmount)
	assert.Equal(t, 20.0, got.VATRate, "missing VAT rate falls back to the common-law rate")
}

func TestCalculateForTariffNotFound(t *testing.T) {
	tariff := &models.EffectiveTariff{RateSource: models.RateSourceNotFound}

	_, err := CalculateForTariff(1000, tariff)

	assert.ErrorIs(t, err, ErrNoRateAvailable)
}
