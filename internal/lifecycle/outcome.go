package lifecycle

import (
	"errors"
)

// Kind classifies the failure of a step.
type Kind int

const (
	// Fatal failures abort the operation.
	Fatal Kind = iota
	// BestEffort failures are logged and the operation continues.
	BestEffort
	// Unexpected failures are panics or errors from steps that should not
	// fail; they abort the operation.
	Unexpected
)

func (k Kind) String() string {
	switch k {
	case Fatal:
		return "fatal"
	case BestEffort:
		return "best_effort"
	case Unexpected:
		return "unexpected"
	default:
		return "unknown"
	}
}

// Steps recorded in reports.
const (
	StepSetup       = "setup"
	StepProvision   = "provision_config"
	StepCoordinator = "coordinator_init"
	StepRefresh     = "coordinator_refresh"
	StepRegister    = "register"
	StepForward     = "forward_platforms"
	StepActivate    = "activate_services"
	StepBind        = "bind_automations"
	StepUnbind      = "unbind_automations"
	StepUnload      = "unload_platforms"
	StepCloseConn   = "close_connection"
	StepShutdown    = "coordinator_shutdown"
	StepDeactivate  = "deactivate_services"
)

// Outcome is a failed step.
type Outcome struct {
	Step string
	Kind Kind
	Err  error
}

// Report collects the failed steps of one operation.
type Report struct {
	EntryID  string
	Outcomes []Outcome
}

func (r *Report) add(step string, kind Kind, err error) {
	r.Outcomes = append(r.Outcomes, Outcome{Step: step, Kind: kind, Err: err})
}

// OK reports whether no step failed fatally or unexpectedly.
func (r Report) OK() bool {
	for _, o := range r.Outcomes {
		if o.Kind != BestEffort {
			return false
		}
	}
	return true
}

// Has reports whether step failed.
func (r Report) Has(step string) bool {
	for _, o := range r.Outcomes {
		if o.Step == step {
			return true
		}
	}
	return false
}

// Err joins the errors of all failed steps.
func (r Report) Err() error {
	errs := make([]error, 0, len(r.Outcomes))
	for _, o := range r.Outcomes {
		errs = append(errs, o.Err)
	}
	return errors.Join(errs...)
}
