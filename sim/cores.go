package sim

import "fmt"

// corePool tracks which core ids are free. Claims always take the lowest
// free id. Guarded by the scheduler mutex.
type corePool struct {
	busy  []bool
	nbusy int
}

func newCorePool(n int) *corePool {
	return &corePool{busy: make([]bool, n)}
}

// claim marks the lowest free core busy and returns its id, or -1 when all are busy.
func (cp *corePool) claim() int {
	for id, b := range cp.busy {
		if !b {
			cp.busy[id] = true
			cp.nbusy++
			return id
		}
	}
	return -1
}

func (cp *corePool) release(id int) {
	if id < 0 || id >= len(cp.busy) || !cp.busy[id] {
		panic(fmt.Sprintf("corePool.release: core %d is not busy", id))
	}
	cp.busy[id] = false
	cp.nbusy--
}

func (cp *corePool) size() int      { return len(cp.busy) }
func (cp *corePool) busyCount() int { return cp.nbusy }
func (cp *corePool) freeCount() int { return len(cp.busy) - cp.nbusy }
