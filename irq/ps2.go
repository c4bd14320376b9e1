package irq

import "github.com/calint/uefi-os/config"

const (
	ps2StatusOutputFull = 1 << 0
	ps2StatusInputFull  = 1 << 1

	ps2CmdEnableScanning = 0xF4
	ps2AckEnableScanning = 0xFA
)

// InitPS2 drains any stale byte sitting in the controller's output buffer,
// waits for the input buffer to go empty, then sends "enable scanning" and
// waits for its acknowledgement. There is no timeout on either wait: the
// controller is assumed present and correct, the same assumption the rest
// of bring-up makes about every other piece of fixed hardware.
func InitPS2() {
	for portReadByteFn(config.PS2StatusPort)&ps2StatusOutputFull != 0 {
		portReadByteFn(config.PS2DataPort)
	}

	for portReadByteFn(config.PS2StatusPort)&ps2StatusInputFull != 0 {
		pauseFn()
	}
	portWriteByteFn(config.PS2DataPort, ps2CmdEnableScanning)

	for portReadByteFn(config.PS2DataPort) != ps2AckEnableScanning {
		pauseFn()
	}
}
