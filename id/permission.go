package id

import "fmt"

// DurationKind distinguishes a perpetual grant from one advisory-expiring
// at a given sequence number. spec.md §3: "the engine treats
// UntilSequence as advisory ... with no automatic revocation."
type DurationKind uint8

const (
	Perpetual DurationKind = iota
	UntilSequence
)

// Duration carries the advisory expiry of a ReadWrite grant.
type Duration struct {
	Kind     DurationKind
	Sequence uint64 // meaningful only when Kind == UntilSequence
}

func PerpetualDuration() Duration { return Duration{Kind: Perpetual} }

func UntilSequenceDuration(seq uint64) Duration {
	return Duration{Kind: UntilSequence, Sequence: seq}
}

// PermissionLevel is the tag of a Permissioned value.
type PermissionLevel uint8

const (
	Read PermissionLevel = iota
	ReadWrite
	Admin
)

func (l PermissionLevel) String() string {
	switch l {
	case Read:
		return "read"
	case ReadWrite:
		return "read-write"
	case Admin:
		return "admin"
	default:
		return "unknown"
	}
}

// Permissioned is the tagged union {Read(id), ReadWrite(id, duration),
// Admin(id)} from spec.md §3. Two values are equal only when tag, id
// and duration all match; Identifier() alone compares by identifier.
type Permissioned struct {
	Level    PermissionLevel
	ID       Identifier
	Duration Duration // only meaningful when Level == ReadWrite
}

func NewRead(id Identifier) Permissioned {
	return Permissioned{Level: Read, ID: id}
}

func NewReadWrite(id Identifier, d Duration) Permissioned {
	return Permissioned{Level: ReadWrite, ID: id, Duration: d}
}

func NewAdmin(id Identifier) Permissioned {
	return Permissioned{Level: Admin, ID: id}
}

// Identifier returns the identifier this permission is over, regardless
// of level — the "compare by identifier alone" operation of spec.md §3.
func (p Permissioned) Identifier() Identifier { return p.ID }

// IsReadOnly reports whether this permission may not publish.
func (p Permissioned) IsReadOnly() bool { return p.Level == Read }

// Equal compares tag, identifier and duration, per spec.md §3.
func (p Permissioned) Equal(o Permissioned) bool {
	if p.Level != o.Level || !p.ID.Equal(o.ID) {
		return false
	}
	if p.Level == ReadWrite {
		return p.Duration == o.Duration
	}
	return true
}

func (p Permissioned) String() string {
	return fmt.Sprintf("%s(%s)", p.Level, p.ID)
}
