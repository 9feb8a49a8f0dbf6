package compiler

import (
	"fmt"
	"sort"
	"strings"

	"github.com/oklog/ulid/v2"
)

// Primitive is the base kind of a TypeDescriptor.
type Primitive int

const (
	PrimVoid Primitive = iota
	PrimU16
	PrimI16
	PrimStruct
	// PrimUntyped is the kind of integer literals and call results. It is
	// never declared; it adopts the type of the operand it meets.
	PrimUntyped
)

func (p Primitive) String() string {
	switch p {
	case PrimVoid:
		return "void"
	case PrimU16:
		return "u16"
	case PrimI16:
		return "i16"
	case PrimStruct:
		return "struct"
	case PrimUntyped:
		return "untyped"
	}
	return fmt.Sprintf("Primitive(%d)", int(p))
}

// Field is one member of a struct layout. Offset is in words from the start
// of the struct.
type Field struct {
	Name         string
	Type         *TypeDescriptor
	Offset       int
	PointerDepth int
}

// TypeDescriptor describes a builtin or struct type. Size is in words and
// describes a value of the type itself; a pointer to it is always one word.
// Descriptors are shared and must not be modified once registered.
type TypeDescriptor struct {
	Primitive Primitive
	Size      int
	Name      string
	ID        ulid.ULID // zero for builtins
	Fields    []Field
}

// Builtin singletons.
var (
	VoidType    = &TypeDescriptor{Primitive: PrimVoid, Size: 0, Name: "void"}
	U16Type     = &TypeDescriptor{Primitive: PrimU16, Size: 1, Name: "u16"}
	I16Type     = &TypeDescriptor{Primitive: PrimI16, Size: 1, Name: "i16"}
	UntypedType = &TypeDescriptor{Primitive: PrimUntyped, Size: 1, Name: "untyped int"}
)

// SizeAt returns the storage size of the type at the given pointer depth.
func (t *TypeDescriptor) SizeAt(pointerDepth int) int {
	if pointerDepth > 0 {
		return 1
	}
	return t.Size
}

// Field returns the named member of a struct type.
//
// Member access is not compiled yet; this lookup is the place where it will
// get its offsets from.
func (t *TypeDescriptor) Field(name string) (Field, bool) {
	return findField(t.Fields, name)
}

// Same reports whether t and o denote the same type. Struct types are
// compared by identity.
func (t *TypeDescriptor) Same(o *TypeDescriptor) bool {
	if t == nil || o == nil {
		return t == o
	}
	if t.Primitive != o.Primitive {
		return false
	}
	if t.Primitive == PrimStruct {
		return t.ID == o.ID
	}
	return true
}

// TypeString formats a type at a pointer depth, e.g. "u16**".
func TypeString(t *TypeDescriptor, pointerDepth int) string {
	if t == nil {
		return "<nil>"
	}
	return t.Name + strings.Repeat("*", pointerDepth)
}

func (t *TypeDescriptor) String() string {
	if t.Primitive != PrimStruct {
		return t.Name
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "struct %s (Size: %d) {", t.Name, t.Size)
	for i, f := range t.Fields {
		if i > 0 {
			sb.WriteString(";")
		}
		fmt.Fprintf(&sb, " %s %s @%d", TypeString(f.Type, f.PointerDepth), f.Name, f.Offset)
	}
	sb.WriteString(" }")
	return sb.String()
}

// TypeRegistry maps type names to descriptors for one compilation.
type TypeRegistry struct {
	types map[string]*TypeDescriptor
}

func NewTypeRegistry() *TypeRegistry {
	return &TypeRegistry{types: make(map[string]*TypeDescriptor)}
}

// Register adds a named type. Names are write-once.
func (r *TypeRegistry) Register(name string, t *TypeDescriptor) error {
	if _, ok := r.types[name]; ok {
		return fmt.Errorf("%w: type %s already defined", ErrDuplicate, name)
	}
	r.types[name] = t
	return nil
}

// Lookup returns a registered struct type by name.
func (r *TypeRegistry) Lookup(name string) (*TypeDescriptor, bool) {
	t, ok := r.types[name]
	return t, ok
}

// Resolve maps a type token to its descriptor: builtin keywords resolve to
// the singletons, identifiers to registered struct types.
func (r *TypeRegistry) Resolve(tok Token) (*TypeDescriptor, bool) {
	switch tok.Type {
	case VOID:
		return VoidType, true
	case U16:
		return U16Type, true
	case I16:
		return I16Type, true
	case IDENTIFIER:
		return r.Lookup(tok.Name)
	}
	return nil, false
}

// Names returns the registered type names in sorted order.
func (r *TypeRegistry) Names() []string {
	names := make([]string, 0, len(r.types))
	for name := range r.types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *TypeRegistry) String() string {
	if len(r.types) == 0 {
		return "Structs: (empty)\n"
	}
	var sb strings.Builder
	sb.WriteString("Structs:\n")
	for _, name := range r.Names() {
		fmt.Fprintf(&sb, "  %s\n", r.types[name])
	}
	return sb.String()
}
