package service

import (
	"strconv"
	"strings"

	"github.com/lorenzodonini/ocpp-go/ocpp1.6/types"

	"csms/backend/services/ocpp-server/internal/models"
)

// MeterReading holds the latest value of each tracked measurand in accounting units.
type MeterReading struct {
	EnergyWh *float64
	PowerKW  *float64
	SoC      *float64
}

// Empty reports whether no tracked measurand was present.
func (r MeterReading) Empty() bool {
	return r.EnergyWh == nil && r.PowerKW == nil && r.SoC == nil
}

// ExtractReading scans every sampled value of every meter value. The last sample of each
// measurand wins. Samples without a measurand are energy register readings.
func ExtractReading(values []types.MeterValue) MeterReading {
	var reading MeterReading
	for _, mv := range values {
		for _, sv := range mv.SampledValue {
			v, err := strconv.ParseFloat(strings.TrimSpace(sv.Value), 64)
			if err != nil {
				continue
			}

			measurand := sv.Measurand
			if measurand == "" {
				measurand = types.MeasurandEnergyActiveImportRegister
			}

			switch measurand {
			case types.MeasurandEnergyActiveImportRegister:
				if sv.Unit == types.UnitOfMeasureKWh {
					v *= 1000
				}
				reading.EnergyWh = &v
			case types.MeasurandPowerActiveImport:
				if sv.Unit == types.UnitOfMeasureW {
					v /= 1000
				}
				reading.PowerKW = &v
			case types.MeasurandSoC:
				reading.SoC = &v
			}
		}
	}
	return reading
}

// ApplyReading folds a reading into the transaction. Power is kept as a running maximum.
func ApplyReading(tx *models.Transaction, reading MeterReading) {
	if reading.EnergyWh != nil {
		tx.EnergyConsumed = EnergyConsumedKWh(tx.MeterStart, *reading.EnergyWh)
	}
	if reading.PowerKW != nil && *reading.PowerKW > tx.MaxPower {
		tx.MaxPower = *reading.PowerKW
	}
	if reading.SoC != nil {
		soc := *reading.SoC
		tx.StateOfCharge = &soc
	}
}
