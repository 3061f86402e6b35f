// Package sim provides the core of the multi-core process scheduler simulator.
//
// # Reading Guide
//
// Start with these three files to understand the kernel:
//   - instruction.go: the eight-opcode instruction set, byte costs and FOR unrolling
//   - process.go: Process lifecycle (ready → running → finished) and the Step interpreter
//   - scheduler.go: admission, the core worker loop, FCFS/RR dispatch and reporting
//
// # Architecture
//
// The sim package defines the scheduler and process model; supporting
// implementations live in sub-packages:
//   - sim/memory/: demand-paged physical memory with a global FIFO victim
//     policy, a backing store and an akita-backed residency cache
//   - sim/workload/: the batch process generator and random program synthesis
//   - sim/trace/: admission and dispatch decision recording
//
// # Key Interfaces
//
// The extension points are small interfaces:
//   - Memory: page access, registration and release of process footprints
//   - AdmissionPolicy: accept or reject a process before it enters the ready queue
//
// # Concurrency
//
// One goroutine per core runs the worker loop. The scheduler mutex guards the
// process table, the ready queue, the running map, the finished list and the
// core pool; a sync.Cond wakes idle workers on admission and release. The
// cycle counter is a lock-free atomic shared with the generator.
package sim
