package vm

import (
	"sync"
)

// ExecContext is the live state of a context that can own frames
type ExecContext struct {
	ID      ContextID
	PageDir PageDirectory
	Suppl   SupplementalTable
}

// NewExecContext creates a context with an empty page table and
// supplemental page table
func NewExecContext(id ContextID) *ExecContext {
	return &ExecContext{
		ID:      id,
		PageDir: NewPageTable(),
		Suppl:   NewSupplPageTable(),
	}
}

// ContextResolver maps an owner identifier to its live context
type ContextResolver interface {
	Resolve(id ContextID) (*ExecContext, bool)
}

// Registry tracks live execution contexts
type Registry struct {
	contexts map[ContextID]*ExecContext
	mutex    sync.RWMutex
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		contexts: make(map[ContextID]*ExecContext),
	}
}

// Add registers ctx, replacing any context with the same ID
func (r *Registry) Add(ctx *ExecContext) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.contexts[ctx.ID] = ctx
}

// Remove forgets the context with the given ID
func (r *Registry) Remove(id ContextID) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	delete(r.contexts, id)
}

// Resolve returns the live context for id
func (r *Registry) Resolve(id ContextID) (*ExecContext, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	ctx, exists := r.contexts[id]
	return ctx, exists
}

// Len returns the number of live contexts
func (r *Registry) Len() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return len(r.contexts)
}
