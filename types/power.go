package types

// ------------------------
// Cell monitor chain (ltc6811)
// ------------------------

// Retained info: hal/cap/power/cells/<name>/info (Detail)
type CellsInfo struct {
	Bus        string `json:"bus"`
	Devices    int    `json:"devices"`
	CellsPer   int    `json:"cells_per_device"`
	Mode       string `json:"mode"`   // "422hz" | "1khz" | "2khz" | "7khz" | "26hz" | "14khz" | "3khz" | "27khz"
	VUV_mV     int32  `json:"vuv_mV"` // effective threshold after code rounding
	VOV_mV     int32  `json:"vov_mV"`
	PollLimit  int    `json:"poll_limit"`
}

// Retained value: hal/cap/power/cells/<name>/value
// Cells is flat in chain order: Cells[dev*CellsPer+cell].
type CellsValue struct {
	Cells    []int32 `json:"cells_mV"`
	CellsPer int     `json:"cells_per_device"`
	GPIO     []int32 `json:"gpio_mV,omitempty"` // 5 GPIO + REF per device
	MinMV    int32   `json:"min_mV"`
	MaxMV    int32   `json:"max_mV"`
	Rejected uint64  `json:"rejected,omitempty"` // bit i = device i failed PEC
}

// Retained value: hal/cap/power/temperature/<name>/value
type DieTempValue struct {
	DieMilliC []int32 `json:"die_mC"` // one per device
	MaxMilliC int32   `json:"max_mC"`
}

// StackDevice is the status of one chain device.
type StackDevice struct {
	SumMilliV int32      `json:"sum_mV"`
	VA_mV     int32      `json:"va_mV"`
	VD_mV     int32      `json:"vd_mV"`
	Flags     StackFlags `json:"flags"`
	CUV       uint16     `json:"cuv"` // bit 0 = cell 1
	COV       uint16     `json:"cov"`
	Rev       uint8      `json:"rev"`
}

// Retained value: hal/cap/power/stack/<name>/value
type StackValue struct {
	Devices   []StackDevice `json:"devices"`
	SumMilliV int32         `json:"sum_mV"` // whole chain
}

// Events on hal/cap/power/cells/<name>/event/<tag> (not retained).
const (
	EventBalance  = "balance"   // SetBalance or ClearBalance applied
	EventSelfTest = "self_test" // SelfTestResult
	EventMuxFail  = "mux_fail"  // SelfTestResult from the mux diagnostic
)

// Controls (verb "read" and "self_test" take no payload)

// SetBalance sets the discharge switches of one device. verb: "set_balance"
type SetBalance struct {
	Device   int    `json:"device"`    // chain position, 0 = nearest the host
	Cells    uint16 `json:"cells"`     // bit 0 = cell 1
	TimeoutS uint32 `json:"timeout_s"` // 0 => no discharge timer
}

// ClearBalance opens every discharge switch on the chain. verb: "clear_balance"
type ClearBalance struct{}

// SelfTestResult is published as an event after "self_test" (tag self_test)
// or when the power-on multiplexer test fails (tag mux_fail).
type SelfTestResult struct {
	Test   string `json:"test"` // "cvst" | "diagn"
	Passed bool   `json:"passed"`
	Failed []int  `json:"failed,omitempty"` // chain positions
}

// StackFlags summarises status register B of one device.
type StackFlags uint16

const (
	StackUnderVoltage StackFlags = 1 << 0 // any CUV
	StackOverVoltage  StackFlags = 1 << 1 // any COV
	StackMuxFail      StackFlags = 1 << 2
	StackThermalSD    StackFlags = 1 << 3
	StackRejected     StackFlags = 1 << 4 // last read failed PEC
)

// Generic pairing of a bit value with a printable name.
type BitName[T ~uint16] struct {
	Bit  T
	Name string
}

// BitIter is a zero-alloc iterator over set bits in a value, filtered by a table.
// Caller advances with Next(); no callbacks, no closures.
type BitIter[T ~uint16] struct {
	v     uint16
	i     int
	table []BitName[T]
}

// NewBitIter constructs an iterator over set bits present in v that also exist in table.
func NewBitIter[T ~uint16](v T, table []BitName[T]) BitIter[T] {
	return BitIter[T]{v: uint16(v), i: 0, table: table}
}

// Next returns the next SET bit: (name, ok). ok=false when done.
func (it *BitIter[T]) Next() (string, bool) {
	for it.i < len(it.table) {
		e := it.table[it.i]
		it.i++
		if (it.v & uint16(e.Bit)) != 0 {
			return e.Name, true
		}
	}
	return "", false
}

// Reset allows reusing the iterator.
func (it *BitIter[T]) Reset() { it.i = 0 }

// StackFlags display.
var StackFlagsTable = [...]BitName[StackFlags]{
	{StackUnderVoltage, "under_voltage"},
	{StackOverVoltage, "over_voltage"},
	{StackMuxFail, "mux_fail"},
	{StackThermalSD, "thermal_shutdown"},
	{StackRejected, "pec_rejected"},
}
