// Package sim binds peripheral behaviour to a regfile.Sim so drivers can
// be exercised without silicon. Each model installs register hooks; all
// model state is guarded by the Sim's lock.
package sim

// InterruptRaiser receives interrupt requests from models.
type InterruptRaiser interface {
	RaiseIRQ(line uint8)
}
