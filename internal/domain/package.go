package domain

// RunAs tells the scheduler how to wait for a package's Execute to
// settle a task (§4.6). Irq blocks the task in Interrupt until an
// external Action arrives; Msg fires a retried Message and returns
// immediately; Func runs synchronously inline.
type RunAs string

const (
	RunAsIrq  RunAs = "irq"
	RunAsMsg  RunAs = "msg"
	RunAsFunc RunAs = "func"
)

// PackageMeta describes a registered Package's identity and execution
// contract (§4.6).
type PackageMeta struct {
	Name    string
	Desc    string
	Version string
	RunAs   RunAs
	// Icon/Schema are accepted for parity with the model file format
	// but unused by the scheduler itself.
	Icon   string
	Schema map[string]any
}
