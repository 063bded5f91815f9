// Package cvars implements configuration variables that are
// read from the environment.
//
// Each variable has a name, a type, a default and a
// description.
// Values are read when a Registry is loaded, so a process
// sees a consistent configuration until it reloads.
package cvars

import (
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/unixpickle/essentials"
)

// A Var is a configuration variable of any type.
type Var interface {
	Name() string
	Type() string
	Default() string
	Description() string

	load(raw string, set bool)
}

// A Registry holds a set of variables and the source they
// are read from.
type Registry struct {
	lookup func(name string) (string, bool)

	lock   sync.Mutex
	vars   []Var
	names  map[string]bool
	loaded bool
}

// Default is the registry backed by the process
// environment.
var Default = NewRegistry(os.LookupEnv)

// NewRegistry creates a registry that reads raw values
// with lookup.
func NewRegistry(lookup func(name string) (string, bool)) *Registry {
	return &Registry{lookup: lookup, names: map[string]bool{}}
}

// Load reads every registered variable from the source.
func (r *Registry) Load() {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.loadLocked()
}

// Vars returns the registered variables in registration
// order.
func (r *Registry) Vars() []Var {
	r.lock.Lock()
	defer r.lock.Unlock()
	return append([]Var{}, r.vars...)
}

// Describe writes a human-readable summary of every
// variable.
func (r *Registry) Describe(w io.Writer) error {
	for _, v := range r.Vars() {
		_, err := fmt.Fprintf(w, "\n%s\nDescription:\n", v.Name())
		if err != nil {
			return err
		}
		for _, line := range strings.Split(v.Description(), "\n") {
			if _, err := fmt.Fprintf(w, "    %s\n", line); err != nil {
				return err
			}
		}
		_, err = fmt.Fprintf(w, "Type: %s\nDefault: %s\n", v.Type(), v.Default())
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) loadLocked() {
	for _, v := range r.vars {
		raw, ok := r.lookup(v.Name())
		v.load(raw, ok)
	}
	r.loaded = true
}

func (r *Registry) ensureLoaded() {
	r.lock.Lock()
	defer r.lock.Unlock()
	if !r.loaded {
		r.loadLocked()
	}
}

func (r *Registry) register(v Var) {
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.names[v.Name()] {
		panic("duplicate cvar: " + v.Name())
	}
	r.names[v.Name()] = true
	r.vars = append(r.vars, v)
	if r.loaded {
		raw, ok := r.lookup(v.Name())
		v.load(raw, ok)
	}
}

type base struct {
	reg         *Registry
	name        string
	def         string
	description string
}

func (b *base) Name() string        { return b.name }
func (b *base) Default() string     { return b.def }
func (b *base) Description() string { return b.description }

func (b *base) warn(raw, msg string) {
	logrus.WithFields(logrus.Fields{"cvar": b.name, "value": raw}).Warn(msg)
}

// A BoolVar is a boolean variable.
//
// It accepts y, yes, t, true and 1 or n, no, f, false and
// 0, ignoring case.
// Any other value is treated as true.
type BoolVar struct {
	base
	lock  sync.Mutex
	value bool
}

// Bool registers a boolean variable.
func (r *Registry) Bool(name string, def bool, description string) *BoolVar {
	v := &BoolVar{base: base{reg: r, name: name, def: strconv.FormatBool(def),
		description: description}, value: def}
	r.register(v)
	return v
}

func (b *BoolVar) Type() string { return "bool" }

// Get returns the loaded value.
func (b *BoolVar) Get() bool {
	b.reg.ensureLoaded()
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.value
}

func (b *BoolVar) load(raw string, set bool) {
	if !set {
		raw = b.def
	}
	value := parseBool(raw)
	if value == nil {
		b.warn(raw, "unrecognized boolean value")
		t := true
		value = &t
	}
	b.lock.Lock()
	b.value = *value
	b.lock.Unlock()
}

func parseBool(raw string) *bool {
	var res bool
	switch strings.ToLower(raw) {
	case "y", "yes", "t", "true", "1":
		res = true
	case "n", "no", "f", "false", "0":
		res = false
	default:
		return nil
	}
	return &res
}

// An IntVar is an integer variable.
//
// Values are parsed like C's atoi: leading whitespace and
// a sign are allowed, parsing stops at the first
// non-digit, and a value without digits is 0.
type IntVar struct {
	base
	lock  sync.Mutex
	value int
}

// Int registers an integer variable.
func (r *Registry) Int(name string, def int, description string) *IntVar {
	v := &IntVar{base: base{reg: r, name: name, def: strconv.Itoa(def),
		description: description}, value: def}
	r.register(v)
	return v
}

func (i *IntVar) Type() string { return "int" }

// Get returns the loaded value.
func (i *IntVar) Get() int {
	i.reg.ensureLoaded()
	i.lock.Lock()
	defer i.lock.Unlock()
	return i.value
}

func (i *IntVar) load(raw string, set bool) {
	if !set {
		raw = i.def
	}
	value := atoi(raw)
	i.lock.Lock()
	i.value = value
	i.lock.Unlock()
}

func atoi(s string) int {
	s = strings.TrimLeft(s, " \t\n\v\f\r")
	neg := false
	if len(s) > 0 && (s[0] == '-' || s[0] == '+') {
		neg = s[0] == '-'
		s = s[1:]
	}
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0
	}
	digits := s[:end]
	if neg {
		digits = "-" + digits
	}
	x, err := strconv.ParseInt(digits, 10, strconv.IntSize)
	if err != nil {
		if neg {
			return math.MinInt
		}
		return math.MaxInt
	}
	return int(x)
}

// A StringVar is a string variable with surrounding
// whitespace removed.
type StringVar struct {
	base
	lock  sync.Mutex
	value string
}

// String registers a string variable.
func (r *Registry) String(name, def, description string) *StringVar {
	v := &StringVar{base: base{reg: r, name: name, def: def, description: description},
		value: strings.TrimSpace(def)}
	r.register(v)
	return v
}

func (s *StringVar) Type() string { return "string" }

// Get returns the loaded value.
func (s *StringVar) Get() string {
	s.reg.ensureLoaded()
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.value
}

func (s *StringVar) load(raw string, set bool) {
	if !set {
		raw = s.def
	}
	s.lock.Lock()
	s.value = strings.TrimSpace(raw)
	s.lock.Unlock()
}

// A StringListVar is a comma-separated list of distinct
// strings.
// Entries are trimmed and empty entries are skipped.
type StringListVar struct {
	base
	lock  sync.Mutex
	value []string
}

// StringList registers a string list variable.
func (r *Registry) StringList(name, def, description string) *StringListVar {
	v := &StringListVar{base: base{reg: r, name: name, def: def, description: description}}
	v.value, _ = tokenize(def)
	r.register(v)
	return v
}

func (s *StringListVar) Type() string { return "stringlist" }

// Get returns a copy of the loaded list.
func (s *StringListVar) Get() []string {
	s.reg.ensureLoaded()
	s.lock.Lock()
	defer s.lock.Unlock()
	return append([]string{}, s.value...)
}

func (s *StringListVar) load(raw string, set bool) {
	if !set {
		raw = s.def
	}
	tokens, dups := tokenize(raw)
	for _, dup := range dups {
		s.warn(raw, "duplicate token "+dup)
	}
	s.lock.Lock()
	s.value = tokens
	s.lock.Unlock()
}

func tokenize(raw string) (tokens, dups []string) {
	seen := map[string]bool{}
	for _, tok := range strings.Split(raw, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		if seen[tok] {
			dups = append(dups, tok)
			continue
		}
		seen[tok] = true
		tokens = append(tokens, tok)
	}
	return
}

// An EnumVar takes one value from a fixed set of choices.
// Unknown values are ignored with a warning.
type EnumVar struct {
	base
	choices []string
	lock    sync.Mutex
	value   string
}

// Enum registers an enum variable.
// The default must be one of the choices.
func (r *Registry) Enum(name string, choices []string, def, description string) *EnumVar {
	if !essentials.Contains(choices, def) {
		panic("cvar " + name + ": default " + def + " is not a valid choice")
	}
	v := &EnumVar{base: base{reg: r, name: name, def: def, description: description},
		choices: append([]string{}, choices...), value: def}
	r.register(v)
	return v
}

func (e *EnumVar) Type() string { return "enum" }

// Choices returns the allowed values.
func (e *EnumVar) Choices() []string {
	return append([]string{}, e.choices...)
}

// Get returns the loaded value.
func (e *EnumVar) Get() string {
	e.reg.ensureLoaded()
	e.lock.Lock()
	defer e.lock.Unlock()
	return e.value
}

func (e *EnumVar) load(raw string, set bool) {
	value := e.def
	if set {
		if essentials.Contains(e.choices, raw) {
			value = raw
		} else {
			e.warn(raw, "unknown enum value")
		}
	}
	e.lock.Lock()
	e.value = value
	e.lock.Unlock()
}

// An EnumListVar is a comma-separated subset of a fixed
// set of choices.
// Unknown entries are dropped with a warning.
type EnumListVar struct {
	base
	choices []string
	lock    sync.Mutex
	value   []string
}

// EnumList registers an enum list variable.
func (r *Registry) EnumList(name string, choices []string, def, description string) *EnumListVar {
	v := &EnumListVar{base: base{reg: r, name: name, def: def, description: description},
		choices: append([]string{}, choices...)}
	v.value = v.filter(def, false)
	r.register(v)
	return v
}

func (e *EnumListVar) Type() string { return "enumlist" }

// Get returns a copy of the loaded list.
func (e *EnumListVar) Get() []string {
	e.reg.ensureLoaded()
	e.lock.Lock()
	defer e.lock.Unlock()
	return append([]string{}, e.value...)
}

// Has checks if the loaded list contains a choice.
func (e *EnumListVar) Has(choice string) bool {
	return essentials.Contains(e.Get(), choice)
}

func (e *EnumListVar) load(raw string, set bool) {
	if !set {
		raw = e.def
	}
	value := e.filter(raw, true)
	e.lock.Lock()
	e.value = value
	e.lock.Unlock()
}

func (e *EnumListVar) filter(raw string, warn bool) []string {
	tokens, _ := tokenize(raw)
	var res []string
	for _, tok := range tokens {
		if essentials.Contains(e.choices, tok) {
			res = append(res, tok)
		} else if warn {
			e.warn(raw, "unknown enum value "+tok)
		}
	}
	return res
}
