package pipeline

var LockRun = lockRun

// HeldRunLocks reports how many runs currently have a lock entry.
func HeldRunLocks() int {
	runLocks.Lock()
	defer runLocks.Unlock()
	return len(runLocks.m)
}
