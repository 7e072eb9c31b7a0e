package websocket

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistryBindResolve(t *testing.T) {
	reg := NewRegistry()
	assert.Nil(t, reg.Resolve(RoleRobot))

	p := &Peer{Role: RoleRobot}
	assert.Nil(t, reg.Bind(RoleRobot, p))
	assert.Same(t, p, reg.Resolve(RoleRobot))
	assert.Nil(t, reg.Resolve(RoleController))
}

func TestRegistryBindEvictsPrevious(t *testing.T) {
	reg := NewRegistry()
	first := &Peer{Role: RoleController}
	second := &Peer{Role: RoleController}

	reg.Bind(RoleController, first)
	evicted := reg.Bind(RoleController, second)

	assert.Same(t, first, evicted)
	assert.False(t, first.Open(), "evicted peer should be closed")
	assert.True(t, second.Open())
	assert.Same(t, second, reg.Resolve(RoleController))
}

func TestRegistryClearIsCompareAndClear(t *testing.T) {
	reg := NewRegistry()
	stale := &Peer{Role: RoleRobot}
	fresh := &Peer{Role: RoleRobot}

	reg.Bind(RoleRobot, stale)
	reg.Bind(RoleRobot, fresh)

	assert.False(t, reg.Clear(RoleRobot, stale), "stale loop must not clear a rebound slot")
	assert.Same(t, fresh, reg.Resolve(RoleRobot))

	assert.True(t, reg.Clear(RoleRobot, fresh))
	assert.Nil(t, reg.Resolve(RoleRobot))
	assert.False(t, reg.Clear(RoleRobot, nil))
}

func TestRegistryInvalidRole(t *testing.T) {
	reg := NewRegistry()
	assert.Nil(t, reg.Bind(Role(9), &Peer{}))
	assert.Nil(t, reg.Resolve(Role(-1)))
	assert.False(t, reg.Clear(Role(9), &Peer{}))
}

func TestRegistrySnapshot(t *testing.T) {
	reg := NewRegistry()
	robot := &Peer{Role: RoleRobot}
	ping := &Peer{Role: RoleControllerPing}
	reg.Bind(RoleRobot, robot)
	reg.Bind(RoleControllerPing, ping)

	snap := reg.Snapshot()
	assert.Len(t, snap, 2)
	assert.Same(t, robot, snap[RoleRobot])
	assert.Same(t, ping, snap[RoleControllerPing])
}

func TestRegistryConcurrentAccess(t *testing.T) {
	reg := NewRegistry()
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			p := &Peer{Role: RoleRobot}
			reg.Bind(RoleRobot, p)
			reg.Clear(RoleRobot, p)
		}()
		go func() {
			defer wg.Done()
			if p := reg.Resolve(RoleRobot); p != nil {
				assert.Equal(t, RoleRobot, p.Role)
			}
		}()
	}
	wg.Wait()
}
