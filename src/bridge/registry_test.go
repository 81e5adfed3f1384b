package bridge

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubStream struct {
	id string
}

func (s *stubStream) SessionID() string                      { return s.id }
func (s *stubStream) Dispatch(context.Context, []byte) error { return nil }

func TestRegistryLookupAfterRemoveFails(t *testing.T) {
	r := NewRegistry()
	r.Add(&stubStream{id: "abc"})

	got, err := r.Lookup("abc")
	require.NoError(t, err)
	assert.Equal(t, "abc", got.SessionID())

	r.Remove("abc")
	_, err = r.Lookup("abc")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRegistryUnknownID(t *testing.T) {
	r := NewRegistry()
	_, err := r.Lookup("never-registered")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRegistryConcurrentAccess(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("sess-%d", i)
			r.Add(&stubStream{id: id})
			if _, err := r.Lookup(id); err != nil {
				t.Errorf("lookup %s: %v", id, err)
			}
			r.Remove(id)
			if _, err := r.Lookup(id); err == nil {
				t.Errorf("lookup %s after remove should fail", id)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 0, r.Len())
}
