// Package process owns the lifecycle of the long-lived child processes the
// harness supervises: the service under test and the hardware emulator.
//
// Each started child is wrapped in a ManagedProcess that captures its stdout
// and stderr and observes its exit. The Supervisor enforces at most one
// running process per role, delivers reload and stop signals, and provides a
// last-resort reap by executable name for cleanup. Readiness is checked by
// probes (see probe.go): a minimum settle wait followed by polling until the
// process is observably alive, or serving its socket, or the timeout fires.
package process
