package interview

import (
	"fmt"

	apperrors "jobchaja-interviews/internal/common/errors"
	"jobchaja-interviews/internal/models"
)

// Operation is one of the five transitions the engine performs.
type Operation string

const (
	OpPropose    Operation = "PROPOSE"
	OpConfirm    Operation = "CONFIRM"
	OpReportPass Operation = "REPORT_PASS"
	OpReportFail Operation = "REPORT_FAIL"
	OpCancel     Operation = "CANCEL"
)

var allOperations = []Operation{OpPropose, OpConfirm, OpReportPass, OpReportFail, OpCancel}

// validTransitions is the whole state machine. Terminal statuses map to an
// empty set. PROPOSE from a status outside this table is handled in Next.
var validTransitions = map[models.InterviewStatus]map[Operation]models.InterviewStatus{
	models.StatusCoordinationNeeded: {
		OpPropose: models.StatusInterviewRequested,
	},
	models.StatusInterviewRequested: {
		OpConfirm: models.StatusConfirmed,
		OpCancel:  models.StatusCancelled,
	},
	models.StatusConfirmed: {
		OpReportPass: models.StatusAccepted,
		OpReportFail: models.StatusRejected,
		OpCancel:     models.StatusCancelled,
	},
	models.StatusAccepted:  {},
	models.StatusRejected:  {},
	models.StatusCancelled: {},
}

// ParseStatus parses an interview status. Matching is exact.
func ParseStatus(s string) (models.InterviewStatus, error) {
	st := models.InterviewStatus(s)
	if _, ok := validTransitions[st]; !ok {
		return "", fmt.Errorf("unknown interview status: %q", s)
	}
	return st, nil
}

// IsInterviewStatus reports whether s is one of the six interview statuses.
func IsInterviewStatus(s models.InterviewStatus) bool {
	_, ok := validTransitions[s]
	return ok
}

func IsTerminal(s models.InterviewStatus) bool {
	next, ok := validTransitions[s]
	return ok && len(next) == 0
}

// Next returns the status op leads to from from, or an INVALID_TRANSITION
// error. A status that is not an interview status (an earlier application
// stage, or empty) only admits PROPOSE, the entry into the lifecycle.
func Next(from models.InterviewStatus, op Operation) (models.InterviewStatus, error) {
	next, ok := validTransitions[from]
	if !ok {
		if op == OpPropose {
			return models.StatusInterviewRequested, nil
		}
		return "", apperrors.NewInvalidTransitionError(string(from), string(op))
	}
	to, ok := next[op]
	if !ok {
		return "", apperrors.NewInvalidTransitionError(string(from), string(op))
	}
	return to, nil
}

// AllowedOperations lists the operations legal from s, in a stable order.
func AllowedOperations(s models.InterviewStatus) []Operation {
	ops := make([]Operation, 0, 3)
	for _, op := range allOperations {
		if _, err := Next(s, op); err == nil {
			ops = append(ops, op)
		}
	}
	return ops
}

func ParseOperation(s string) (Operation, error) {
	for _, op := range allOperations {
		if string(op) == s {
			return op, nil
		}
	}
	return "", fmt.Errorf("unknown operation: %q", s)
}
