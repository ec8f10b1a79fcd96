package section

// Status is the lifecycle state of a section.
type Status string

const (
	StatusPending           Status = "pending"
	StatusRendering         Status = "rendering"
	StatusCompleted         Status = "completed"
	StatusApproved          Status = "approved"
	StatusRevisionRequested Status = "revision_requested"
	StatusFailed            Status = "failed"
)

// IsValid returns true if the status is a known value.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusRendering, StatusCompleted, StatusApproved,
		StatusRevisionRequested, StatusFailed:
		return true
	}
	return false
}

// CanTransitionTo returns true if this status can transition to the target status.
// Approved sections only go back to pending through a reopen.
func (s Status) CanTransitionTo(target Status) bool {
	switch s {
	case StatusPending:
		return target == StatusRendering
	case StatusRendering:
		return target == StatusCompleted || target == StatusFailed
	case StatusCompleted:
		return target == StatusApproved || target == StatusRevisionRequested
	case StatusRevisionRequested:
		return target == StatusRendering
	case StatusFailed:
		return target == StatusRendering || target == StatusRevisionRequested
	case StatusApproved:
		return target == StatusPending
	}
	return false
}

// Dispatchable reports whether a section in this status may be rendered.
func (s Status) Dispatchable() bool {
	return s == StatusPending || s == StatusRevisionRequested || s == StatusFailed
}
