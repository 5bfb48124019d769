package kernel

import (
	"fmt"

	"github.com/jamestiotio/microospp/internal/klog"
	"github.com/jamestiotio/microospp/memres"
	"github.com/jamestiotio/microospp/port"
)

// Config collects the kernel's build-time configuration surface,
// realized as Go fields + functional options instead of the C
// preprocessor macros an embedded build would use.
type Config struct {
	dynamicMemory           bool
	rtosArenaBytes          int
	poolSizes               map[string]int
	memoryResourceKind      MemoryResourceKind
	tickFrequencyHz         int
	criticalSectionPriority int // 0 means "disable all interrupts"
	stackSizes              map[string]int
	statsCPUCycles          bool
	statsContextSwitches    bool
	messageQueue16BitSize   bool
	idleBelowIdlePriority   bool
	preemptive              bool
	port                    port.Port
	mutexInheritChainLimit  int
	logger                  *klog.Logger
}

// MemoryResourceKind selects the allocator shape the
// type_rtos_memory_resource / type_application_memory_resource options
// pick between.
type MemoryResourceKind int

const (
	MemoryResourceNewDelete MemoryResourceKind = iota
	MemoryResourceLifo
	MemoryResourceFirstFit
	MemoryResourceNull
)

// Option configures a Config during NewScheduler.
type Option func(*Config)

func defaultConfig() *Config {
	return &Config{
		dynamicMemory:          true,
		poolSizes:              make(map[string]int),
		memoryResourceKind:     MemoryResourceNewDelete,
		tickFrequencyHz:        1000,
		stackSizes:             make(map[string]int),
		preemptive:             true,
		mutexInheritChainLimit: 8,
		logger:                 klog.Default(),
	}
}

// WithoutDynamicMemory installs the null memory resource as default
// (exclude_dynamic_memory_allocations).
func WithoutDynamicMemory() Option {
	return func(c *Config) {
		c.dynamicMemory = false
		c.memoryResourceKind = MemoryResourceNull
	}
}

// WithRTOSArenaBytes carves a private arena of the given size for RTOS
// objects (rtos_dynamic_memory_size_bytes).
func WithRTOSArenaBytes(n int) Option {
	return func(c *Config) { c.rtosArenaBytes = n }
}

// WithPoolSize records a pool size n for the named object kind
// (rtos_alloc_<kind>_pool_size). Only kind "thread" has an effect: it
// caps the number of live threads NewThread admits. No objects are
// pre-created, and other kinds are stored but not read.
func WithPoolSize(kind string, n int) Option {
	return func(c *Config) { c.poolSizes[kind] = n }
}

// WithMemoryResourceKind picks the allocator shape backing the RTOS and
// application memory resources.
func WithMemoryResourceKind(kind MemoryResourceKind) Option {
	return func(c *Config) { c.memoryResourceKind = kind }
}

// WithTickFrequencyHz sets the tick rate, default 1000
// (systick_frequency_hz).
func WithTickFrequencyHz(hz int) Option {
	return func(c *Config) { c.tickFrequencyHz = hz }
}

// WithCriticalSectionPriority records a BASEPRI-style interrupt priority
// threshold, 0 (the default) meaning disable all interrupts
// (critical_section_interrupt_priority). The value is stored in Config
// only; neither the kernel nor the Sim port reads it.
func WithCriticalSectionPriority(priority int) Option {
	return func(c *Config) { c.criticalSectionPriority = priority }
}

// WithStackSize sets the default stack size (bytes, advisory only on the
// simulated port) for the named thread kind: "default", "main", "idle"
// (*_default_stack_size_bytes / *_main_ / *_idle_).
func WithStackSize(kind string, bytes int) Option {
	return func(c *Config) { c.stackSizes[kind] = bytes }
}

// WithStatistics enables the optional per-thread cpu-cycle and
// context-switch counters
// (statistics_thread_cpu_cycles/context_switches).
func WithStatistics(cpuCycles, contextSwitches bool) Option {
	return func(c *Config) {
		c.statsCPUCycles = cpuCycles
		c.statsContextSwitches = contextSwitches
	}
}

// WithMessageQueue16BitSize enables 65536-byte messages instead of the
// default 256-byte limit (message_queue_size_16bits).
func WithMessageQueue16BitSize(enabled bool) Option {
	return func(c *Config) { c.messageQueue16BitSize = enabled }
}

// WithIdleBelowIdlePriority gives the idle thread a sub-idle level
// (thread_idle_priority_below_idle).
func WithIdleBelowIdlePriority(enabled bool) Option {
	return func(c *Config) { c.idleBelowIdlePriority = enabled }
}

// WithPreemptive sets the scheduler's initial preemption flag
// (scheduler_preemptive).
func WithPreemptive(enabled bool) Option {
	return func(c *Config) { c.preemptive = enabled }
}

// WithPort swaps in a different Port implementation, the
// use_rtos_port_* family: a compile-time swap on an embedded build, a
// constructor-time one here, since Go has no macro layer.
func WithPort(p port.Port) Option {
	return func(c *Config) { c.port = p }
}

// WithMutexInheritChainLimit bounds transitive priority-inheritance
// propagation through chains of owners blocked on each other's mutexes.
func WithMutexInheritChainLimit(n int) Option {
	return func(c *Config) { c.mutexInheritChainLimit = n }
}

// WithLogger installs a structured logger other than the package default,
// e.g. one built with a different logiface backend.
func WithLogger(l *klog.Logger) Option {
	return func(c *Config) { c.logger = l }
}

// resolveMemoryResource builds the memory resource described by c.
func (c *Config) resolveMemoryResource() memres.Resource {
	if !c.dynamicMemory || c.memoryResourceKind == MemoryResourceNull {
		n := memres.NewNullResource()
		n.OnAllocate = func(bytes, align int) {
			klog.Assert(fmt.Sprintf("allocation from null memory resource (bytes=%d align=%d)", bytes, align))
		}
		return n
	}
	switch c.memoryResourceKind {
	case MemoryResourceLifo:
		size := c.rtosArenaBytes
		if size <= 0 {
			size = 64 * 1024
		}
		return memres.NewLifo(make([]byte, size))
	case MemoryResourceFirstFit:
		size := c.rtosArenaBytes
		if size <= 0 {
			size = 64 * 1024
		}
		return memres.NewFirstFit(make([]byte, size))
	default:
		return memres.NewDeleteResource()
	}
}
