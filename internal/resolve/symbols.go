package resolve

import "github.com/CodeAtlas-hq/codeatlas/pkg/model"

// SymbolTable indexes a project's declared functions and classes by FQN.
// Classes are callable targets too: constructor calls, decorators, and
// inheritance all resolve against them. Insertion order is preserved for the
// short-name fallback.
type SymbolTable struct {
	funcs   map[string]*model.Function
	classes map[string]*model.Class
	order   []string
}

func NewSymbolTable() *SymbolTable {
	return &SymbolTable{
		funcs:   make(map[string]*model.Function),
		classes: make(map[string]*model.Class),
	}
}

// AddFunction registers a function. The first declaration of an FQN wins;
// later duplicates are kept out of the index but still count as duplicates
// for the metrics layer, which works from the full function list.
func (t *SymbolTable) AddFunction(fn *model.Function) {
	if _, exists := t.funcs[fn.FQN]; exists {
		return
	}
	t.funcs[fn.FQN] = fn
	t.order = append(t.order, fn.FQN)
}

func (t *SymbolTable) AddClass(cls *model.Class) {
	if _, exists := t.classes[cls.FQN]; exists {
		return
	}
	t.classes[cls.FQN] = cls
	t.order = append(t.order, cls.FQN)
}

// Has reports whether any symbol is declared under the FQN.
func (t *SymbolTable) Has(fqn string) bool {
	if _, ok := t.funcs[fqn]; ok {
		return true
	}
	_, ok := t.classes[fqn]
	return ok
}

// Function returns the declared function for an FQN, if any.
func (t *SymbolTable) Function(fqn string) (*model.Function, bool) {
	fn, ok := t.funcs[fqn]
	return fn, ok
}

// Class returns the declared class for an FQN, if any.
func (t *SymbolTable) Class(fqn string) (*model.Class, bool) {
	cls, ok := t.classes[fqn]
	return cls, ok
}

// IsClass reports whether the FQN names a class rather than a function.
func (t *SymbolTable) IsClass(fqn string) bool {
	_, ok := t.classes[fqn]
	return ok
}

// Order returns all declared FQNs in discovery order.
func (t *SymbolTable) Order() []string {
	return t.order
}

// Len is the number of declared symbols.
func (t *SymbolTable) Len() int {
	return len(t.order)
}
