package shipments

import (
	"github.com/BearBump/ShipBox/internal/models"
	"github.com/pkg/errors"
)

// TransitionPolicy decides whether a shipment may move from one status to another.
// A non-nil error aborts the status update before anything is written.
type TransitionPolicy func(from, to models.ShipmentStatus) error

// Permissive allows every transition.
func Permissive(_, _ models.ShipmentStatus) error {
	return nil
}

// TerminalLocked refuses to move a delivered or rejected shipment to any other status.
// Re-recording the same status (for example a corrected location) is still allowed.
func TerminalLocked(from, to models.ShipmentStatus) error {
	if from == to {
		return nil
	}
	switch from {
	case models.StatusDelivered, models.StatusRejected:
		return errors.Wrapf(models.ErrTransitionNotAllowed, "%s -> %s", from, to)
	}
	return nil
}

func PolicyFor(strictTerminal bool) TransitionPolicy {
	if strictTerminal {
		return TerminalLocked
	}
	return Permissive
}
