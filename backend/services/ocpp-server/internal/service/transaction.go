package service

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/looplab/fsm"

	"csms/backend/services/ocpp-server/internal/models"
)

// Transaction ids are drawn from [1, MaxTransactionID). 0 is the id of a rejected start.
const MaxTransactionID = 1_000_000

// EventComplete closes an active transaction.
const EventComplete = "complete"

// NewTransactionID returns a random transaction id. Uniqueness is enforced by the store.
var NewTransactionID = func() int {
	return rand.IntN(MaxTransactionID-1) + 1
}

// TransactionLifecycle guards the status transitions of a transaction. Only active
// transactions can be completed; completed and stopped are terminal.
type TransactionLifecycle struct {
	fsm *fsm.FSM
}

// NewTransactionLifecycle starts the machine at the stored status.
func NewTransactionLifecycle(status string) *TransactionLifecycle {
	if status == "" {
		status = models.TransactionActive
	}
	return &TransactionLifecycle{
		fsm: fsm.NewFSM(
			status,
			fsm.Events{
				{Name: EventComplete, Src: []string{models.TransactionActive}, Dst: models.TransactionCompleted},
			},
			fsm.Callbacks{},
		),
	}
}

// Active reports whether meter values may still be applied.
func (l *TransactionLifecycle) Active() bool {
	return l.fsm.Is(models.TransactionActive)
}

// Status returns the current status.
func (l *TransactionLifecycle) Status() string {
	return l.fsm.Current()
}

// Trigger fires a lifecycle event.
func (l *TransactionLifecycle) Trigger(ctx context.Context, event string) error {
	if err := l.fsm.Event(ctx, event); err != nil {
		return fmt.Errorf("transaction %s: %w", event, err)
	}
	return nil
}

// EnergyConsumedKWh converts a cumulative register reading in Wh to the energy charged since
// meterStart, in kWh rounded to Wh precision. Readings below meterStart count as zero.
func EnergyConsumedKWh(meterStart int, readingWh float64) float64 {
	delta := readingWh - float64(meterStart)
	if delta < 0 {
		return 0
	}
	return math.Round(delta) / 1000
}

// CompleteTransaction records the stop reading and moves the transaction to completed.
func CompleteTransaction(ctx context.Context, tx *models.Transaction, meterStop int, at time.Time, reason string) error {
	lifecycle := NewTransactionLifecycle(tx.Status)
	if err := lifecycle.Trigger(ctx, EventComplete); err != nil {
		return err
	}

	stopTime := at.UTC()
	tx.MeterStop = &meterStop
	tx.StopTime = &stopTime
	tx.StopReason = reason
	tx.EnergyConsumed = EnergyConsumedKWh(tx.MeterStart, float64(meterStop))
	tx.Status = lifecycle.Status()
	return nil
}
