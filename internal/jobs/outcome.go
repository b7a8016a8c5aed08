package jobs

import (
	"github.com/ternarybob/voicenote/internal/models"
)

type outcomeKind int

const (
	outcomeOK outcomeKind = iota
	outcomeCancelled
	outcomeFailed
)

// stageOutcome is the result of one stage wrapper: Ok, Cancelled or Failed(err)
type stageOutcome struct {
	kind outcomeKind
	err  error
}

func okOutcome() stageOutcome {
	return stageOutcome{kind: outcomeOK}
}

func cancelledOutcome() stageOutcome {
	return stageOutcome{kind: outcomeCancelled}
}

func failedOutcome(err error) stageOutcome {
	return stageOutcome{kind: outcomeFailed, err: err}
}

// classify maps a stage function error to an outcome by type, never by text
func classify(err error) stageOutcome {
	switch {
	case err == nil:
		return okOutcome()
	case models.IsCancelled(err):
		return cancelledOutcome()
	default:
		return failedOutcome(err)
	}
}
