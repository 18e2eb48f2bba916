package datacache

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/unkn0wn-root/datacache/internal/util"
)

// Shape tags what a stored entry holds so a key populated as one form is
// never read back as another.
type Shape byte

const (
	ShapeUnknown Shape = iota
	ShapeList
	ShapeDictionary
	ShapeLinked
	ShapeItem
	ShapeObject
)

func (s Shape) String() string {
	switch s {
	case ShapeList:
		return "list"
	case ShapeDictionary:
		return "dictionary"
	case ShapeLinked:
		return "linked"
	case ShapeItem:
		return "item"
	case ShapeObject:
		return "object"
	default:
		return "shape(" + strconv.Itoa(int(s)) + ")"
	}
}

// Entry is what the engine hands to a Store: an encoded container plus its
// shape tag.
type Entry struct {
	Shape Shape
	Data  []byte
}

// Dependency names one source record a stored entry was built from.
// Firing it (Store.Invalidate) evicts every entry that recorded it.
type Dependency struct {
	Type string
	ID   uuid.UUID
}

func (d Dependency) key() string { return util.TokenKey(d.Type, d.ID.String()) }

func (d Dependency) String() string { return d.Type + "/" + d.ID.String() }

// Expiration is the expiration policy attached to a stored entry.
// Sliding > 0 keeps the entry alive for that long after its last access.
type Expiration struct {
	Sliding time.Duration
}

// Store is the backing-store capability the engine populates.
// Implementations must be safe for concurrent use.
//
// Get returns (entry, true, nil) on a live hit and (Entry{}, false, nil)
// when the key is absent, expired, or invalidated. Add attaches deps to
// the entry; firing any of them with Invalidate makes later Gets miss.
type Store interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	Add(ctx context.Context, key string, e Entry, exp Expiration, deps []Dependency) error
	Remove(ctx context.Context, key string) error
	Invalidate(ctx context.Context, deps ...Dependency) error
	Close(ctx context.Context) error
}
