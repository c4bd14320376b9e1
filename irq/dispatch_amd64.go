package irq

// Handler processes one interrupt. frame is the CPU's own iret frame;
// regs is the general-register snapshot saved by the entry stub. Neither
// pointer remains valid once the handler returns.
type Handler func(frame *Frame, regs *Regs)

var (
	timerHandler    Handler
	keyboardHandler Handler
)

// HandleTimer installs the handler invoked on every LAPIC timer tick.
func HandleTimer(h Handler) { timerHandler = h }

// HandleKeyboard installs the handler invoked on every keyboard GSI.
func HandleKeyboard(h Handler) { keyboardHandler = h }

// pendingRegs and pendingFrame are filled in by the entry stubs in
// entry_amd64.s before they call into dispatchTimer/dispatchKeyboard.
// Entries never nest on one core (interrupts stay disabled for the
// handler's duration), so a single staging pair is enough.
var (
	pendingRegs  Regs
	pendingFrame Frame
)

func dispatchTimer() {
	if timerHandler != nil {
		timerHandler(&pendingFrame, &pendingRegs)
	}
}

func dispatchKeyboard() {
	if keyboardHandler != nil {
		keyboardHandler(&pendingFrame, &pendingRegs)
	}
}
