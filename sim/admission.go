package sim

import "fmt"

// FrameCounter is what admission policies may inspect about memory.
type FrameCounter interface {
	FreeFrames() int
	PagesFor(memSize int) int
}

// AdmissionPolicy decides whether a process of memSize bytes may enter the
// ready queue. Called with the scheduler mutex held.
type AdmissionPolicy interface {
	Admit(memSize int, mem FrameCounter) (admitted bool, reason string)
}

// AlwaysAdmit admits all processes unconditionally. Overcommitted memory is
// then absorbed by paging.
type AlwaysAdmit struct{}

func (a *AlwaysAdmit) Admit(_ int, _ FrameCounter) (bool, string) {
	return true, ""
}

// FrameAdmission admits a process only while enough free frames remain to
// hold its whole footprint.
type FrameAdmission struct{}

func (f *FrameAdmission) Admit(memSize int, mem FrameCounter) (bool, string) {
	need, free := mem.PagesFor(memSize), mem.FreeFrames()
	if free >= need {
		return true, ""
	}
	return false, fmt.Sprintf("insufficient frames (need %d, free %d)", need, free)
}

// NewAdmissionPolicy creates an admission policy by name.
// Valid names are defined in ValidAdmissionPolicies (config.go).
// An empty string defaults to FrameAdmission.
// Panics on unrecognized names.
func NewAdmissionPolicy(name string) AdmissionPolicy {
	if !ValidAdmissionPolicies[name] {
		panic(fmt.Sprintf("unknown admission policy %q", name))
	}
	switch name {
	case "", AdmissionFrames:
		return &FrameAdmission{}
	case AdmissionAlways:
		return &AlwaysAdmit{}
	default:
		panic(fmt.Sprintf("unhandled admission policy %q", name))
	}
}
