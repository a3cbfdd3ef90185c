package domain

import "time"

// CycleStatus represents the end state of a dispatch cycle.
type CycleStatus string

const (
	CycleStatusCompleted      CycleStatus = "COMPLETED"
	CycleStatusPartialFailure CycleStatus = "PARTIAL_FAILURE"
	CycleStatusSkipped        CycleStatus = "SKIPPED"
)

func (s CycleStatus) String() string { return string(s) }

func (s CycleStatus) IsValid() bool {
	switch s {
	case CycleStatusCompleted, CycleStatusPartialFailure, CycleStatusSkipped:
		return true
	}
	return false
}

// DispatchCycle is the persisted summary of a dispatch report.
type DispatchCycle struct {
	ID        string
	Trigger   string
	Attempted int
	Delivered int
	Transient int
	Permanent int
	Pruned    int
	Status    CycleStatus
	Error     *string
	CreatedAt time.Time
}

// CycleFromReport builds the persisted summary of a report.
func CycleFromReport(trigger string, report DispatchReport) DispatchCycle {
	cycle := DispatchCycle{
		ID:        report.ID,
		Trigger:   trigger,
		Attempted: report.Attempted,
		Delivered: report.Delivered,
		Transient: report.Transient,
		Permanent: report.Permanent,
		Pruned:    len(report.Pruned),
		Status:    CycleStatusCompleted,
	}

	switch {
	case report.StorageError != nil:
		cycle.Status = CycleStatusSkipped
		msg := report.StorageError.Error()
		cycle.Error = &msg
	case report.PruneError != nil:
		cycle.Status = CycleStatusPartialFailure
		msg := report.PruneError.Error()
		cycle.Error = &msg
	case report.Transient > 0 || report.Permanent > 0:
		cycle.Status = CycleStatusPartialFailure
	}

	return cycle
}
