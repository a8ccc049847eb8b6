package mutex

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyedMutex_SerializesSameKey(t *testing.T) {
	var m KeyedMutex[string]
	a, b := 0, 0
	counters := map[string]*int{"a": &a, "b": &b}
	var wg sync.WaitGroup

	for i := 0; i < 200; i++ {
		key := "a"
		if i%2 == 0 {
			key = "b"
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Lock(key)
			defer m.Unlock(key)
			*counters[key]++
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, a)
	assert.Equal(t, 100, b)
	assert.Equal(t, 0, m.Len())
}

func TestKeyedMutex_UnlockUnknownKeyPanics(t *testing.T) {
	var m KeyedMutex[int]
	assert.Panics(t, func() { m.Unlock(1) })
}
