package emu

// Config contains settings that affect the machine, not the host shell.
type Config struct {
	// Verbose switches the machine logger to debug level (ROM metadata,
	// battery RAM traffic, save states).
	Verbose bool
}
