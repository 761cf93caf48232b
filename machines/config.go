package machines

import "fmt"

const (
	SegmentCode  = "code"
	SegmentStack = "stack"
	SegmentHeap  = "heap"
)

const (
	DefaultRegisters   = 16
	DefaultSegmentSize = 1 << 20
)

// Config is read from the "machine" path of the configuration files.
type Config struct {
	Registers int   `json:"registers"`
	CodeSize  int64 `json:"code_size"`
	StackSize int64 `json:"stack_size"`
	HeapSize  int64 `json:"heap_size"`
	// MaxSteps limits Run. Zero means no limit.
	MaxSteps int `json:"max_steps"`
	// Verify checks the segment table against the trail after every step back and rewind.
	Verify bool `json:"verify"`
}

const ConfigSchema = `
machine?: close({
	registers?:  int & >0 & <=256
	code_size?:  int & >0
	stack_size?: int & >0
	heap_size?:  int & >0
	max_steps?:  int & >=0
	verify?:     bool
})
`

func (c Config) WithDefaults() Config {
	if c.Registers == 0 {
		c.Registers = DefaultRegisters
	}
	if c.CodeSize == 0 {
		c.CodeSize = DefaultSegmentSize
	}
	if c.StackSize == 0 {
		c.StackSize = DefaultSegmentSize
	}
	if c.HeapSize == 0 {
		c.HeapSize = DefaultSegmentSize
	}
	return c
}

func (c Config) validate() error {
	if c.Registers <= 0 || c.Registers > 256 {
		return fmt.Errorf("bad register count: %d", c.Registers)
	}
	if c.CodeSize <= 0 || c.StackSize <= 0 || c.HeapSize <= 0 {
		return fmt.Errorf("bad segment sizes: code %d, stack %d, heap %d",
			c.CodeSize, c.StackSize, c.HeapSize)
	}
	return nil
}
