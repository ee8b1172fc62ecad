package mapping

// Directory is the read-only view of the hardware context that mappings are
// checked against.
type Directory interface {
	FindDevice(name string) (Device, bool)
}

// Device is a hardware device with attribute namespaces and channels.
type Device interface {
	FindChannel(name string, isOutput bool) (Channel, bool)
	AttributeNames() []string
	DebugAttributeNames() []string
}

// Channel is one input or output channel of a device.
type Channel interface {
	AttributeNames() []string
}
