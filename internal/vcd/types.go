package vcd

// ValueKind tells how a value change is encoded on the wire.
type ValueKind uint8

const (
	// Scalar is a single-character value immediately followed by the identifier ("1!").
	Scalar ValueKind = iota
	// Vector is a binary vector literal ("b1010 !").
	Vector
	// Real is a real number literal ("r1.5 !").
	Real
	// String is a string literal ("shello !"), a common simulator extension.
	String
)

// String returns the string representation of ValueKind.
func (k ValueKind) String() string {
	switch k {
	case Scalar:
		return "scalar"
	case Vector:
		return "vector"
	case Real:
		return "real"
	case String:
		return "string"
	default:
		return "unknown"
	}
}

// prefix returns the literal prefix written before vector-like values.
func (k ValueKind) prefix() byte {
	switch k {
	case Vector:
		return 'b'
	case Real:
		return 'r'
	case String:
		return 's'
	default:
		return 0
	}
}

// Change is one value change of one signal.
type Change struct {
	ID    string    // identifier code
	Kind  ValueKind // wire encoding
	Value string    // literal without the kind prefix
}

// Group holds all value changes that happen at one instant.
type Group struct {
	Time    uint64
	Changes []Change
}

// Var is a `$var` declaration.
type Var struct {
	Type  string // wire, reg, real, integer, ...
	Width uint32
	ID    string
	Ref   string // display name
	Range string // optional bit range, e.g. "[7:0]"
}

// Scope is a `$scope` declaration with everything declared inside it.
type Scope struct {
	Kind  string // module, task, function, begin, fork
	Name  string
	Items []Item
}

// Item is either a nested scope or a variable. Exactly one field is set.
type Item struct {
	Scope *Scope
	Var   *Var
}

// Header is the declaration section of a trace.
type Header struct {
	Date      string
	Version   string
	Timescale *Timescale
	Items     []Item
	// BodyOffset is the byte offset right after `$enddefinitions $end`.
	BodyOffset int64
}

// Walk calls fn for every variable in declaration order together with the
// names of the scopes enclosing it. path is only valid during the call.
func (h *Header) Walk(fn func(path []string, v *Var)) {
	walkItems(h.Items, nil, fn)
}

// Vars returns the number of variable declarations.
func (h *Header) Vars() int {
	n := 0
	h.Walk(func([]string, *Var) { n++ })
	return n
}

// Scopes returns the number of scopes, nested ones included.
func (h *Header) Scopes() int {
	return countScopes(h.Items)
}

func walkItems(items []Item, path []string, fn func(path []string, v *Var)) {
	for _, it := range items {
		switch {
		case it.Var != nil:
			fn(path, it.Var)
		case it.Scope != nil:
			walkItems(it.Scope.Items, append(path, it.Scope.Name), fn)
		}
	}
}

func countScopes(items []Item) int {
	n := 0
	for _, it := range items {
		if it.Scope != nil {
			n += 1 + countScopes(it.Scope.Items)
		}
	}
	return n
}
