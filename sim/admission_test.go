package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/inference-sim/procsim/sim/memory"
)

// TestAlwaysAdmit_AdmitsAll verifies AlwaysAdmit always returns (true, "").
func TestAlwaysAdmit_AdmitsAll(t *testing.T) {
	policy := &AlwaysAdmit{}
	mem := memory.NewManager(1024, 256)
	for _, size := range []int{64, 1024, 1 << 20} {
		admitted, reason := policy.Admit(size, mem)
		assert.True(t, admitted)
		assert.Empty(t, reason)
	}
}

// TestFrameAdmission_RejectsOnExhaustion uses 16KB of 4KB frames.
func TestFrameAdmission_RejectsOnExhaustion(t *testing.T) {
	mem := memory.NewManager(16384, 4096)
	policy := &FrameAdmission{}

	// GIVEN A (8KB) registered and its two pages resident
	assert.NoError(t, mem.Register(1, "A", 8192))
	for _, page := range []int{0, 1} {
		_, err := mem.AccessPage(1, page)
		assert.NoError(t, err)
	}

	// THEN B (8KB) still fits in the two free frames
	admitted, _ := policy.Admit(8192, mem)
	assert.True(t, admitted)

	// WHEN a third frame is taken
	assert.NoError(t, mem.Register(2, "B", 8192))
	_, err := mem.AccessPage(2, 0)
	assert.NoError(t, err)

	// THEN an 8KB process no longer fits and the reason names the shortfall
	admitted, reason := policy.Admit(8192, mem)
	assert.False(t, admitted)
	assert.Contains(t, reason, "need 2, free 1")
}

func TestNewAdmissionPolicy_ValidNames(t *testing.T) {
	assert.IsType(t, &FrameAdmission{}, NewAdmissionPolicy(""))
	assert.IsType(t, &FrameAdmission{}, NewAdmissionPolicy(AdmissionFrames))
	assert.IsType(t, &AlwaysAdmit{}, NewAdmissionPolicy(AdmissionAlways))
}

// TestNewAdmissionPolicy_InvalidName_Panics verifies unknown names cause a panic.
func TestNewAdmissionPolicy_InvalidName_Panics(t *testing.T) {
	for _, name := range []string{"token-bucket", "FRAMES"} {
		t.Run(name, func(t *testing.T) {
			assert.Panics(t, func() { NewAdmissionPolicy(name) })
		})
	}
}
