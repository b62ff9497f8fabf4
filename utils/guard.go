package utils

// Guard manages cleanup for a constructor that acquires several resources in sequence and may
// fail part way through. Correct usage of a Guard uses the following pattern:
//
//	guard := NewGuard(func() { device.Close() })
//	defer guard.OnFail()
//	if (error) { return error }
//	guard.Success()
//	return nil
//
// Additional cleanups registered with Add run in reverse order of registration.
type Guard struct {
	cleanups []func()
	success  bool
}

// NewGuard returns a Guard that runs onFailCleanup unless Success is called.
func NewGuard(onFailCleanup func()) *Guard {
	ret := &Guard{}
	if onFailCleanup != nil {
		ret.cleanups = append(ret.cleanups, onFailCleanup)
	}
	return ret
}

// Add registers another failure cleanup.
func (guard *Guard) Add(onFailCleanup func()) {
	guard.cleanups = append(guard.cleanups, onFailCleanup)
}

// OnFail runs the registered cleanups, most recent first, if Success was never called.
func (guard *Guard) OnFail() {
	if guard.success {
		return
	}
	for i := len(guard.cleanups) - 1; i >= 0; i-- {
		guard.cleanups[i]()
	}
}

// Success declares the function succeeded and the "failure" cleanup code does not need to be
// executed.
func (guard *Guard) Success() {
	guard.success = true
}
