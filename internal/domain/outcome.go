package domain

import "time"

// DeliveryStatus classifies one delivery attempt.
type DeliveryStatus string

const (
	DeliveryDelivered        DeliveryStatus = "DELIVERED"
	DeliveryTransientFailure DeliveryStatus = "TRANSIENT_FAILURE"
	DeliveryPermanentFailure DeliveryStatus = "PERMANENT_FAILURE"
)

func (s DeliveryStatus) String() string { return string(s) }

func (s DeliveryStatus) IsValid() bool {
	switch s {
	case DeliveryDelivered, DeliveryTransientFailure, DeliveryPermanentFailure:
		return true
	}
	return false
}

// DeliveryOutcome is the result of one attempt against one endpoint.
type DeliveryOutcome struct {
	Endpoint   string
	Status     DeliveryStatus
	StatusCode int
	Error      string
	Duration   time.Duration
}

// DispatchReport summarizes one dispatch cycle.
type DispatchReport struct {
	ID           string
	Attempted    int
	Delivered    int
	Transient    int
	Permanent    int
	Pruned       []string
	Outcomes     []DeliveryOutcome
	StorageError error
	PruneError   error
	Duration     time.Duration
}

// Tally recomputes the counters from the collected outcomes.
func (r *DispatchReport) Tally() {
	r.Attempted = len(r.Outcomes)
	r.Delivered, r.Transient, r.Permanent = 0, 0, 0
	for _, outcome := range r.Outcomes {
		switch outcome.Status {
		case DeliveryDelivered:
			r.Delivered++
		case DeliveryTransientFailure:
			r.Transient++
		case DeliveryPermanentFailure:
			r.Permanent++
		}
	}
}

// PermanentEndpoints lists the endpoints that must be pruned.
func (r *DispatchReport) PermanentEndpoints() []string {
	endpoints := make([]string, 0, r.Permanent)
	for _, outcome := range r.Outcomes {
		if outcome.Status == DeliveryPermanentFailure {
			endpoints = append(endpoints, outcome.Endpoint)
		}
	}
	return endpoints
}
