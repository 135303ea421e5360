/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package service

import (
	"strings"
	"sync"

	"go.uber.org/atomic"
)

// CompositeUnit starts and stops a group of units as one.
type CompositeUnit struct {
	Units []Unit

	// StopInOrder makes Stop halt units one by one in the order they are listed
	// instead of concurrently. The gateway relies on it to stop accepting requests
	// before the dispatcher is drained.
	StopInOrder bool
}

// NewCompositeUnit creates a new composite unit whose members are stopped concurrently.
func NewCompositeUnit(units ...Unit) *CompositeUnit {
	return &CompositeUnit{Units: units}
}

// NewOrderedCompositeUnit creates a new composite unit whose members are stopped in the listed order.
func NewOrderedCompositeUnit(units ...Unit) *CompositeUnit {
	return &CompositeUnit{Units: units, StopInOrder: true}
}

// Start launches every unit in its own goroutine and blocks until all Start calls return.
// If one of the units fails, the others are stopped non-gracefully
// and a CompositeUnitError with all collected errors is sent to fatalErr.
func (cu *CompositeUnit) Start(fatalErr chan<- error) {
	unitErrs := make([]chan error, len(cu.Units))
	for i := range unitErrs {
		unitErrs[i] = make(chan error, 1)
	}

	ok := make(chan bool, len(cu.Units))
	running := atomic.NewInt32(int32(len(cu.Units))) //nolint:gosec // unit count is small
	for i := range cu.Units {
		go func(i int) {
			cu.Units[i].Start(unitErrs[i])
			if len(unitErrs[i]) != 0 {
				ok <- false
				return
			}
			if running.Dec() == 0 {
				ok <- true
			}
		}(i)
	}
	if len(cu.Units) == 0 || <-ok {
		return
	}

	stopErr := cu.Stop(false)
	var errs []error
	for _, unitErr := range unitErrs {
		select {
		case err := <-unitErr:
			errs = append(errs, err)
		default:
		}
	}
	if stopErr != nil {
		errs = append(errs, stopErr.(*CompositeUnitError).UnitErrors...)
	}
	fatalErr <- &CompositeUnitError{errs}
}

// Stop halts all units and joins their errors into a single CompositeUnitError.
func (cu *CompositeUnit) Stop(gracefully bool) error {
	var errs []error
	if cu.StopInOrder {
		for _, u := range cu.Units {
			if err := u.Stop(gracefully); err != nil {
				errs = append(errs, err)
			}
		}
	} else {
		var mu sync.Mutex
		var wg sync.WaitGroup
		for _, u := range cu.Units {
			wg.Add(1)
			go func(u Unit) {
				defer wg.Done()
				if err := u.Stop(gracefully); err != nil {
					mu.Lock()
					errs = append(errs, err)
					mu.Unlock()
				}
			}(u)
		}
		wg.Wait()
	}
	if len(errs) > 0 {
		return &CompositeUnitError{errs}
	}
	return nil
}

// MustRegisterMetrics registers metrics of every member that has them.
func (cu *CompositeUnit) MustRegisterMetrics() {
	for _, u := range cu.Units {
		if mr, ok := u.(MetricsRegisterer); ok {
			mr.MustRegisterMetrics()
		}
	}
}

// UnregisterMetrics unregisters metrics of every member that has them.
func (cu *CompositeUnit) UnregisterMetrics() {
	for _, u := range cu.Units {
		if mr, ok := u.(MetricsRegisterer); ok {
			mr.UnregisterMetrics()
		}
	}
}

// CompositeUnitError holds errors of individual units.
type CompositeUnitError struct {
	UnitErrors []error
}

func (cue *CompositeUnitError) Error() string {
	msgs := make([]string, 0, len(cue.UnitErrors))
	for _, err := range cue.UnitErrors {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}
