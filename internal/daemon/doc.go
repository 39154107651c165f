// Package daemon assembles the scod runtime.
//
// Ownership boundary:
// - the simulated link bus and its adapters
// - the single sco protocol instance shared by every adapter
// - echo listeners and their accept loops
// - the diag HTTP server and signal-driven shutdown
package daemon
