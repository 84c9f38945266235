package service

import (
	"context"
	"testing"
	"time"

	"github.com/lorenzodonini/ocpp-go/ocpp1.6/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"csms/backend/services/ocpp-server/internal/models"
)

func TestEnergyConsumedKWh(t *testing.T) {
	assert.Equal(t, 1.5, EnergyConsumedKWh(1000, 2500))
	assert.Equal(t, 0.0, EnergyConsumedKWh(1000, 900))
	assert.Equal(t, 0.001, EnergyConsumedKWh(0, 1.4))
}

func TestNewTransactionIDRange(t *testing.T) {
	for i := 0; i < 1000; i++ {
		id := NewTransactionID()
		assert.GreaterOrEqual(t, id, 1)
		assert.Less(t, id, MaxTransactionID)
	}
}

func TestCompleteTransaction(t *testing.T) {
	tx := &models.Transaction{ID: 7, MeterStart: 1000, Status: models.TransactionActive}
	at := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, CompleteTransaction(context.Background(), tx, 3000, at, "Local"))
	assert.Equal(t, models.TransactionCompleted, tx.Status)
	assert.Equal(t, 2.0, tx.EnergyConsumed)
	require.NotNil(t, tx.MeterStop)
	assert.Equal(t, 3000, *tx.MeterStop)
	assert.Equal(t, at, *tx.StopTime)
	assert.Equal(t, "Local", tx.StopReason)

	err := CompleteTransaction(context.Background(), tx, 5000, at, "Local")
	require.Error(t, err)
	assert.Equal(t, 3000, *tx.MeterStop)
}

func TestTransactionLifecycle(t *testing.T) {
	assert.True(t, NewTransactionLifecycle("").Active())
	assert.False(t, NewTransactionLifecycle(models.TransactionStopped).Active())

	l := NewTransactionLifecycle(models.TransactionActive)
	require.NoError(t, l.Trigger(context.Background(), EventComplete))
	assert.Equal(t, models.TransactionCompleted, l.Status())
	assert.False(t, l.Active())
}

func sample(value string, measurand types.Measurand, unit types.UnitOfMeasure) types.SampledValue {
	return types.SampledValue{Value: value, Measurand: measurand, Unit: unit}
}

func TestExtractReading(t *testing.T) {
	values := []types.MeterValue{
		{SampledValue: []types.SampledValue{
			sample("1200", "", ""),
			sample("7400", types.MeasurandPowerActiveImport, types.UnitOfMeasureW),
		}},
		{SampledValue: []types.SampledValue{
			sample("2.5", types.MeasurandEnergyActiveImportRegister, types.UnitOfMeasureKWh),
			sample("45", types.MeasurandSoC, types.UnitOfMeasurePercent),
			sample("garbage", types.MeasurandSoC, ""),
		}},
	}

	reading := ExtractReading(values)
	require.NotNil(t, reading.EnergyWh)
	assert.Equal(t, 2500.0, *reading.EnergyWh)
	require.NotNil(t, reading.PowerKW)
	assert.InDelta(t, 7.4, *reading.PowerKW, 1e-9)
	require.NotNil(t, reading.SoC)
	assert.Equal(t, 45.0, *reading.SoC)

	assert.True(t, ExtractReading(nil).Empty())
}

func TestApplyReadingKeepsMaxPower(t *testing.T) {
	tx := &models.Transaction{MeterStart: 1000, MaxPower: 11}

	low, energy := 7.0, 2500.0
	ApplyReading(tx, MeterReading{EnergyWh: &energy, PowerKW: &low})
	assert.Equal(t, 1.5, tx.EnergyConsumed)
	assert.Equal(t, 11.0, tx.MaxPower)
	assert.Nil(t, tx.StateOfCharge)

	high, soc := 22.0, 80.0
	ApplyReading(tx, MeterReading{PowerKW: &high, SoC: &soc})
	assert.Equal(t, 22.0, tx.MaxPower)
	assert.Equal(t, 80.0, *tx.StateOfCharge)
	assert.Equal(t, 1.5, tx.EnergyConsumed)
}
