// Package errcode implements the RPC runtime's categorized error codes: a
// (category index, integer value) pair resolved through a per-stream-context
// category registry, plus the RPC-runtime category's own taxonomy.
package errcode

import (
	"sync"

	"github.com/roadrunner-server/errors"
)

// Reserved category indices. OS and POSIX are always present at 0 and 1;
// RPC is always present at index 2 (see Registry.RPCCategory), ahead of
// every user category.
const (
	OS    = 0
	POSIX = 1
)

// Category names a registered error domain. Value() renders the integer
// value as a human string for debugging; it never affects wire encoding.
type Category struct {
	Name  string
	Value func(v int32) string
}

// Code is a (category, value) pair -- the wire representation of an error.
type Code struct {
	Category int
	Value    int32
}

func (c Code) String() string {
	return errors.E(errors.Op("errcode"), errors.Errorf("category=%d value=%d", c.Category, c.Value)).Error()
}

// Registry assigns small integer indices to error categories for a given
// stream context. It is built once by NewRegistry and is not modified
// afterward; IndexOf and Valid still read under a read lock.
type Registry struct {
	mu         sync.RWMutex
	categories []Category
	byName     map[string]int
	rpcIndex   int
}

// NewRegistry builds a registry with OS and POSIX pre-seeded at indices 0 and
// 1, the RPC-runtime category appended next, followed by any user categories
// passed here, in order. This matches spec.md section 6: "Index 0 = OS/system
// category... Index 1 = POSIX-generic... Subsequent indices = user-declared
// categories in the order passed at context construction" with the RPC
// category guaranteed present.
func NewRegistry(userCategories ...Category) *Registry {
	r := &Registry{
		byName: make(map[string]int, 3+len(userCategories)),
	}
	r.categories = append(r.categories, Category{Name: "os"}, Category{Name: "posix"}, Category{Name: "rpc"})
	r.byName["os"] = OS
	r.byName["posix"] = POSIX
	r.rpcIndex = 2
	r.byName["rpc"] = r.rpcIndex
	for _, c := range userCategories {
		r.register(c)
	}
	return r
}

func (r *Registry) register(c Category) int {
	idx := len(r.categories)
	r.categories = append(r.categories, c)
	if c.Name != "" {
		r.byName[c.Name] = idx
	}
	return idx
}

// RPCCategory returns the index reserved for the RPC-runtime category.
func (r *Registry) RPCCategory() int { return r.rpcIndex }

// IndexOf resolves a category by name. ok is false if it was never
// registered with this registry.
func (r *Registry) IndexOf(name string) (int, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	idx, ok := r.byName[name]
	return idx, ok
}

// Valid reports whether idx names a registered category in this registry.
func (r *Registry) Valid(idx int) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return idx >= 0 && idx < len(r.categories)
}

// Make builds a Code for the named category, substituting the RPC-runtime
// InvalidErrCategory code if name is unregistered -- spec.md section 4.1:
// "Encoding an error whose category is not registered emits a substitute
// [index_of_runtime_category, invalid_err_category]."
func (r *Registry) Make(name string, value int32) Code {
	idx, ok := r.IndexOf(name)
	if !ok {
		return Code{Category: r.RPCCategory(), Value: int32(InvalidErrCategory)}
	}
	return Code{Category: idx, Value: value}
}
