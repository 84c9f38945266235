package ocpp

import (
	"sync"
	"time"
)

// PendingRequest is an outbound Call still waiting for its reply.
type PendingRequest struct {
	ChargePointID string
	MessageID     string
	Action        string
	SentAt        time.Time
}

// PendingRequests correlates replies from charge points with the Calls that caused them.
// Entries are kept per charge point and dropped when its session ends.
type PendingRequests struct {
	mu      sync.Mutex
	entries map[string]map[string]PendingRequest
	now     func() time.Time
}

// NewPendingRequests returns an empty correlation table.
func NewPendingRequests() *PendingRequests {
	return &PendingRequests{
		entries: make(map[string]map[string]PendingRequest),
		now:     time.Now,
	}
}

// Add records an outbound Call.
func (p *PendingRequests) Add(chargePointID, messageID, action string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	perStation, ok := p.entries[chargePointID]
	if !ok {
		perStation = make(map[string]PendingRequest)
		p.entries[chargePointID] = perStation
	}
	perStation[messageID] = PendingRequest{
		ChargePointID: chargePointID,
		MessageID:     messageID,
		Action:        action,
		SentAt:        p.now().UTC(),
	}
}

// Take removes and returns the request matching the reply.
func (p *PendingRequests) Take(chargePointID, messageID string) (PendingRequest, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	perStation, ok := p.entries[chargePointID]
	if !ok {
		return PendingRequest{}, false
	}
	req, ok := perStation[messageID]
	if !ok {
		return PendingRequest{}, false
	}
	delete(perStation, messageID)
	if len(perStation) == 0 {
		delete(p.entries, chargePointID)
	}
	return req, true
}

// DropAll forgets every request of the charge point and returns how many were pending.
func (p *PendingRequests) DropAll(chargePointID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := len(p.entries[chargePointID])
	delete(p.entries, chargePointID)
	return n
}

// Len returns the number of requests pending for the charge point.
func (p *PendingRequests) Len(chargePointID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries[chargePointID])
}
