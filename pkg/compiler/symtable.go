package compiler

import (
	"fmt"
	"strings"
)

// Variable is a declared program variable. Address is its frame address:
// the slot index, counted in words from the bottom of the frame, of its
// first word.
type Variable struct {
	Name         string
	Line         int
	Type         *TypeDescriptor
	PointerDepth int
	Address      int
	Scope        int
}

// Size returns the number of stack words the variable occupies.
func (v Variable) Size() int { return v.Type.SizeAt(v.PointerDepth) }

type scopeMark struct {
	id    int
	depth int
}

// Frame is the append-only variable table of one compilation together with
// the compile-time depth of the evaluation stack. Variables of closed scopes
// stay in the table but are no longer visible to Lookup.
type Frame struct {
	vars   []Variable
	open   []scopeMark
	closed map[int]bool
	next   int
	depth  int
}

func NewFrame() *Frame {
	return &Frame{
		open:   []scopeMark{{id: 0}},
		closed: make(map[int]bool),
		next:   1,
	}
}

// Depth returns the number of words currently on the evaluation stack.
func (f *Frame) Depth() int { return f.depth }

// Push records n words pushed onto the evaluation stack.
func (f *Frame) Push(n int) { f.depth += n }

// Pop records n words popped from the evaluation stack.
func (f *Frame) Pop(n int) {
	f.depth -= n
	if f.depth < 0 {
		panic(fmt.Sprintf("frame: evaluation stack underflow (%d)", f.depth))
	}
}

// Scope returns the id of the innermost open scope.
func (f *Frame) Scope() int { return f.open[len(f.open)-1].id }

// Nested reports whether a scope other than the outermost one is open.
func (f *Frame) Nested() bool { return len(f.open) > 1 }

// EnterScope opens a new scope and returns its id.
func (f *Frame) EnterScope() int {
	id := f.next
	f.next++
	f.open = append(f.open, scopeMark{id: id, depth: f.depth})
	return id
}

// ExitScope closes the innermost scope and returns how many stack words
// its variables occupied.
func (f *Frame) ExitScope() int {
	if !f.Nested() {
		panic("ExitScope called on the outermost scope")
	}
	mark := f.open[len(f.open)-1]
	f.open = f.open[:len(f.open)-1]
	f.closed[mark.id] = true
	words := f.depth - mark.depth
	f.depth = mark.depth
	return words
}

// Declare appends a variable in the current scope at the given frame
// address. Addresses must grow with declaration order.
func (f *Frame) Declare(name string, line int, t *TypeDescriptor, pointerDepth, address int) (Variable, error) {
	if last, ok := f.lastLive(); ok && address < last.Address+last.Size() {
		return Variable{}, fmt.Errorf("frame address %d for %s overlaps %s at %d", address, name, last.Name, last.Address)
	}
	v := Variable{
		Name:         name,
		Line:         line,
		Type:         t,
		PointerDepth: pointerDepth,
		Address:      address,
		Scope:        f.Scope(),
	}
	f.vars = append(f.vars, v)
	return v, nil
}

func (f *Frame) lastLive() (Variable, bool) {
	for i := len(f.vars) - 1; i >= 0; i-- {
		if !f.closed[f.vars[i].Scope] {
			return f.vars[i], true
		}
	}
	return Variable{}, false
}

// Lookup returns the most recently declared live variable called name.
func (f *Frame) Lookup(name string) (Variable, bool) {
	for i := len(f.vars) - 1; i >= 0; i-- {
		v := f.vars[i]
		if v.Name == name && !f.closed[v.Scope] {
			return v, true
		}
	}
	return Variable{}, false
}

// Live returns the visible variables in declaration order.
func (f *Frame) Live() []Variable {
	var live []Variable
	for _, v := range f.vars {
		if !f.closed[v.Scope] {
			live = append(live, v)
		}
	}
	return live
}

// LiveWords returns the stack words held by visible variables.
func (f *Frame) LiveWords() int {
	n := 0
	for _, v := range f.Live() {
		n += v.Size()
	}
	return n
}

// String returns a dump of the live variables in declaration order.
func (f *Frame) String() string {
	live := f.Live()
	if len(live) == 0 {
		return "Variables: (empty)\n"
	}
	var sb strings.Builder
	sb.WriteString("Variables:\n")
	for _, v := range live {
		fmt.Fprintf(&sb, "  %-20s  Address: %d (Size: %d, Type: %s, Scope: %d)\n",
			v.Name, v.Address, v.Size(), TypeString(v.Type, v.PointerDepth), v.Scope)
	}
	return sb.String()
}
