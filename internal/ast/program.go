// Package ast defines the typed intermediate representation that the
// formal-program handler slot-fills, disambiguates, confirms, and executes.
//
// The grammar and type-checker that turn an utterance or a bookkeeping token
// array into a Program are external collaborators (see internal/collab);
// this package only carries the shape they produce.
package ast

import "fmt"

// InvocationKind distinguishes the three positions a device function can
// occupy in a statement: as the event source of a monitor, as a one-shot
// query, or as the terminal action.
type InvocationKind string

const (
	KindTrigger InvocationKind = "trigger"
	KindQuery   InvocationKind = "query"
	KindAction  InvocationKind = "action"
)

// Slot is a single named parameter of an Invocation. Value is nil until
// filled; Filled distinguishes "filled with an explicit null" from
// "not yet asked".
type Slot struct {
	Name     string
	Type     string // value-category name, e.g. "String", "Location", "Contact"
	Value    any
	Filled   bool
	Optional bool
}

// Invocation names one device function call and its arguments.
type Invocation struct {
	Kind     InvocationKind
	DeviceID string // resolved device id, e.g. "twitter-foo"; empty until disambiguated
	Class    string // thingpedia class, e.g. "com.twitter"
	Function string
	Slots    []*Slot
}

// FirstUnfilled returns the first required slot that has not been filled,
// in declaration order, or nil if every required slot is filled.
func (inv *Invocation) FirstUnfilled() *Slot {
	for _, s := range inv.Slots {
		if !s.Filled && !s.Optional {
			return s
		}
	}
	return nil
}

// Filter is a conjunctive list of predicates applied to a query or trigger's
// output, in the order the user supplied them.
type Filter struct {
	Clauses []FilterClause
}

// FilterClause is a single "field OP value" predicate, e.g. `title =~ "lol"`.
type FilterClause struct {
	Field    string
	Operator string // "==", "=~", ">", "<", "contains", ...
	Value    any
}

func (c FilterClause) String() string {
	return fmt.Sprintf("%s %s %v", c.Field, c.Operator, c.Value)
}

// Statement is one trigger/query => ... => action pipeline.
type Statement struct {
	Trigger *Invocation // nil for "now =>" statements
	Queries []*Invocation
	Action  *Invocation // nil for "=> notify"/"=> return" terminal statements
	Filter  *Filter
	// Terminal names a non-device terminal ("notify", "return") when Action
	// is nil but the statement still needs an explicit sink.
	Terminal string
}

// Program is the root of the typed intent: zero or more statements plus
// bookkeeping about where it came from and who it targets.
type Program struct {
	// Principal is the resolved executor: "" means "self", otherwise the
	// username of the remote principal this program should run on or
	// receive data from.
	Principal string
	Statements []*Statement
}

// AllSlots walks every invocation in the program and returns their slots in
// declaration order: trigger, then each query, then action. Used by slot
// filling, which must ask in declared slot order and "repeat until
// none remain undefined".
func (p *Program) AllSlots() []*Slot {
	var slots []*Slot
	for _, stmt := range p.Statements {
		if stmt.Trigger != nil {
			slots = append(slots, stmt.Trigger.Slots...)
		}
		for _, q := range stmt.Queries {
			slots = append(slots, q.Slots...)
		}
		if stmt.Action != nil {
			slots = append(slots, stmt.Action.Slots...)
		}
	}
	return slots
}

// FirstUnfilledSlot returns the first unfilled required slot across the
// whole program, or nil if slot filling is complete.
func (p *Program) FirstUnfilledSlot() *Slot {
	for _, s := range p.AllSlots() {
		if !s.Filled && !s.Optional {
			return s
		}
	}
	return nil
}

// Invocations returns every invocation in the program (trigger, queries,
// action), skipping nils. Used for disambiguation passes and for composing
// confirmation prose.
func (p *Program) Invocations() []*Invocation {
	var out []*Invocation
	for _, stmt := range p.Statements {
		if stmt.Trigger != nil {
			out = append(out, stmt.Trigger)
		}
		out = append(out, stmt.Queries...)
		if stmt.Action != nil {
			out = append(out, stmt.Action)
		}
	}
	return out
}

// IsRemote reports whether this program names an executor distinct from the
// current user.
func (p *Program) IsRemote() bool {
	return p.Principal != ""
}

// Clone returns a deep copy of the program, used so that disambiguation and
// slot filling can be retried from a clean AST after a "special:back".
func (p *Program) Clone() *Program {
	cp := &Program{Principal: p.Principal}
	for _, stmt := range p.Statements {
		cp.Statements = append(cp.Statements, stmt.clone())
	}
	return cp
}

func (s *Statement) clone() *Statement {
	cp := &Statement{Terminal: s.Terminal}
	if s.Trigger != nil {
		cp.Trigger = s.Trigger.clone()
	}
	for _, q := range s.Queries {
		cp.Queries = append(cp.Queries, q.clone())
	}
	if s.Action != nil {
		cp.Action = s.Action.clone()
	}
	if s.Filter != nil {
		f := *s.Filter
		f.Clauses = append([]FilterClause(nil), s.Filter.Clauses...)
		cp.Filter = &f
	}
	return cp
}

func (inv *Invocation) clone() *Invocation {
	cp := &Invocation{
		Kind:     inv.Kind,
		DeviceID: inv.DeviceID,
		Class:    inv.Class,
		Function: inv.Function,
	}
	for _, s := range inv.Slots {
		sc := *s
		cp.Slots = append(cp.Slots, &sc)
	}
	return cp
}

// Contact is a resolved entry from lookupContact.
type Contact struct {
	DisplayName string
	Value       string // phone number, email, or principal-specific identifier
	Kind        string // "phone_number", "email_address", "contact_group", ...
}

// Location is a resolved entry from lookupLocation.
type Location struct {
	Display   string
	Latitude  float64
	Longitude float64
}

// Device is a candidate in a disambiguation choice list.
type Device struct {
	ID    string
	Class string
	Name  string
}
