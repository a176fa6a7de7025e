package blob

import (
	"sync"

	memorystore "featurecore/internal/infra/blob/memory"
)

// NewMemory returns an empty private memory store.
func NewMemory() Store { return memorystore.New() }

var named sync.Map // name -> Store

// NamedMemory returns the memory store registered under name. Every
// registry opened with the same memory:// location in this process shares
// it.
func NamedMemory(name string) Store {
	if s, ok := named.Load(name); ok {
		return s.(Store)
	}
	s, _ := named.LoadOrStore(name, NewMemory())
	return s.(Store)
}
