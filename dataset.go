package vectis

import (
	"sync"

	"github.com/benbjohnson/immutable"
	"github.com/google/uuid"
)

// DatasetDiscriminator is the registered tag of Dataset.
const DatasetDiscriminator = "Grouped Dataset"

// A Handle identifies an entity (or a dataset) without referencing it. Children
// never point back at the dataset holding them; consumers resolve handles
// through a Datasets implementation instead.
type Handle struct {
	PartitionKey string
	ID           string
}

// Datasets resolves handles to the latest known dataset snapshot.
type Datasets interface {
	Resolve(h Handle) (*Dataset, bool)
}

// A Dataset is an immutable, indexed collection of one owner entity and its
// children. Upsert and Remove return new datasets that share every unchanged
// child with the receiver.
//
// Items are kept ordered by id. Because default ids begin with creation ticks,
// that is usually creation order.
//
// A Dataset is itself an entity, registered by RegisterDataset. Its indices are
// computed on first use and cached for the lifetime of the instance; reads are
// safe for concurrent use.
type Dataset struct {
	Base
	owner Entity
	items *immutable.SortedMap[string, Entity]

	once  sync.Once
	byID  map[string]Entity
	byTag map[string][]Entity

	reg *Registry // Resolves family tags; nil indexes by discriminator only.
}

// NewDataset returns an unfrozen dataset holding owner and items. The dataset
// adopts the owner's partition key; it gets a fresh id.
func NewDataset(reg *Registry, owner Entity, items ...Entity) *Dataset {
	b := immutable.NewSortedMapBuilder[string, Entity](nil)
	for _, e := range items {
		b.Set(e.Core().ID(), e)
	}
	d := &Dataset{owner: owner, items: b.Map(), reg: reg}
	d.id = NewID()
	d.viewVersion = uuid.NewString()
	if owner != nil {
		d.partitionKey = owner.Core().PartitionKey()
	}
	return d
}

func (d *Dataset) Discriminator() string { return DatasetDiscriminator }

// Owner returns the entity the dataset groups its items under. It may be nil.
func (d *Dataset) Owner() Entity { return d.owner }

// Len returns the number of items, not counting the owner.
func (d *Dataset) Len() int {
	if d.items == nil {
		return 0
	}
	return d.items.Len()
}

// Items returns the items in id order.
func (d *Dataset) Items() []Entity {
	if d.Len() == 0 {
		return nil
	}
	out := make([]Entity, 0, d.items.Len())
	itr := d.items.Iterator()
	for !itr.Done() {
		_, e, _ := itr.Next()
		out = append(out, e)
	}
	return out
}

func (d *Dataset) buildIndex() {
	d.once.Do(func() {
		d.byID = make(map[string]Entity, d.Len())
		d.byTag = make(map[string][]Entity)
		for _, e := range d.Items() {
			d.byID[e.Core().ID()] = e
			for _, tag := range d.tagsOf(e) {
				d.byTag[tag] = append(d.byTag[tag], e)
			}
		}
	})
}

func (d *Dataset) tagsOf(e Entity) []string {
	if d.reg != nil {
		if s, err := d.reg.SchemaOf(e); err == nil {
			return s.Tags()
		}
	}
	return []string{e.Discriminator()}
}

// Item returns the item with the given id.
func (d *Dataset) Item(id string) (Entity, bool) {
	d.buildIndex()
	e, ok := d.byID[id]
	return e, ok
}

// ItemsTagged returns the items indexed under tag, which is either a
// discriminator or a family tag, in id order.
func (d *Dataset) ItemsTagged(tag string) []Entity {
	d.buildIndex()
	return d.byTag[tag]
}

// GetItem returns the item of d with the given id. It reports false if there is
// none, and fails with ErrTypeMismatch if the item is not a T.
func GetItem[T Entity](d *Dataset, id string) (T, bool, error) {
	var zero T
	e, ok := d.Item(id)
	if !ok {
		return zero, false, nil
	}
	t, ok := e.(T)
	if !ok {
		return zero, false, Errorf(KindTypeMismatch, "item %q is a %q, not a %T", id, e.Discriminator(), zero)
	}
	return t, true, nil
}

// GetItems returns the items of d indexed under the discriminator of T. T must
// be a concrete entity type (a pointer whose Discriminator method does not
// dereference its receiver).
func GetItems[T Entity](d *Dataset) []T {
	var zero T
	return GetTagged[T](d, zero.Discriminator())
}

// GetTagged returns the items of d indexed under tag that are of type T. Use it
// with family tags and interface types, for example every "Loan".
func GetTagged[T any](d *Dataset, tag string) []T {
	var out []T
	for _, e := range d.ItemsTagged(tag) {
		if t, ok := e.(T); ok {
			out = append(out, t)
		}
	}
	return out
}

// derive returns an unfrozen dataset with d's identity and the given content.
func (d *Dataset) derive(owner Entity, items *immutable.SortedMap[string, Entity]) *Dataset {
	n := &Dataset{Base: d.inherit(), owner: owner, items: items, reg: d.reg}
	n.viewVersion = uuid.NewString()
	return n
}

func (d *Dataset) sorted() *immutable.SortedMap[string, Entity] {
	if d.items == nil {
		return immutable.NewSortedMap[string, Entity](nil)
	}
	return d.items
}

// Upsert returns a new dataset in which item replaces the entity with the same
// id, or is added. If item has the owner's id, it replaces the owner. d is not
// modified.
func (d *Dataset) Upsert(item Entity) *Dataset {
	if item == nil {
		return d
	}
	if d.owner != nil && d.owner.Core().ID() == item.Core().ID() {
		return d.WithOwner(item)
	}
	return d.derive(d.owner, d.sorted().Set(item.Core().ID(), item))
}

// Remove returns a new dataset without the item with the given id. If there is
// no such item, Remove returns d itself.
func (d *Dataset) Remove(id string) *Dataset {
	if _, ok := d.Item(id); !ok {
		return d
	}
	return d.derive(d.owner, d.items.Delete(id))
}

// WithOwner returns a new dataset with the same items and a different owner.
func (d *Dataset) WithOwner(owner Entity) *Dataset {
	return d.derive(owner, d.items)
}

// Freeze freezes the owner, every item and the dataset itself.
func (d *Dataset) Freeze() {
	if d.owner != nil {
		Freeze(d.owner)
	}
	for _, e := range d.Items() {
		Freeze(e)
	}
	d.Base.Freeze()
}

// shallow returns an unfrozen dataset sharing d's owner and items.
func (d *Dataset) shallow() *Dataset {
	return &Dataset{Base: d.inherit(), owner: d.owner, items: d.items, reg: d.reg}
}

// RegisterDataset registers Dataset with reg, so that datasets can be encoded
// by the codecs, deep-copied, and created by replay. Datasets created by reg
// index their items by family tags too.
func RegisterDataset(reg *Registry) error {
	return reg.Register(Schema{
		Discriminator: DatasetDiscriminator,
		New:           func() Entity { return &Dataset{reg: reg} },
		Fields: []Field{
			EntityFunc("Parent",
				func(d *Dataset) Entity { return d.owner },
				func(d *Dataset, e Entity) error { d.owner = e; return nil },
			),
			EntityListFunc("ItemList",
				(*Dataset).Items,
				func(d *Dataset, items []Entity) error {
					b := immutable.NewSortedMapBuilder[string, Entity](nil)
					for _, e := range items {
						b.Set(e.Core().ID(), e)
					}
					d.items = b.Map()
					d.once = sync.Once{}
					return nil
				},
			),
		},
	})
}
