// Package detector answers whether an interpreter process is alive.
//
// Interpreter launchers record the pid of each process in a marker file inside the
// project's run directory. Probing lists that directory, picks the markers whose name
// contains the interpreter group, reads the stored pid and asks the operating system
// whether it still names a live process. Probing never fails: anything that prevents an
// answer is folded into a boolean according to fixed policies.
package detector

// Detector is a strategy that determines if a process is running.
// It must be safe for concurrent use.
type Detector interface {
	// Alive returns true if the process is detected as running.
	Alive() (bool, error)
	// Describe returns a human-readable description of the detection method.
	Describe() string
}
