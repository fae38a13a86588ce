package display

import "time"

// RefreshRate is the refresh rate of the reference display in Hz.
const RefreshRate = 59.7275

// Ticker is a vertical blank source driven by the wall clock. It implements
// the metamap.VBlanker interface.
type Ticker struct {
	t *time.Ticker
}

// NewTicker returns a ticker firing hz times a second. A rate of zero or
// less uses RefreshRate.
func NewTicker(hz float64) *Ticker {
	if hz <= 0 {
		hz = RefreshRate
	}
	return &Ticker{
		t: time.NewTicker(time.Duration(float64(time.Second) / hz)),
	}
}

// WaitForVBlank blocks until the next tick.
func (t *Ticker) WaitForVBlank() {
	<-t.t.C
}

// Stop turns off the ticker. WaitForVBlank must not be called afterwards.
func (t *Ticker) Stop() {
	t.t.Stop()
}
