package raw

import (
	"errors"
	"fmt"
)

// ObjectRef uniquely identifies an indirect PDF object.
type ObjectRef struct {
	Num int
	Gen int
}

func (r ObjectRef) String() string { return fmt.Sprintf("%d %d R", r.Num, r.Gen) }

// Object is the base interface for all raw PDF objects.
type Object interface {
	Type() string
	IsIndirect() bool
}

// Permissions describes allowed actions expressed in the parsed document.
type Permissions struct {
	Print, Modify, Copy, ModifyAnnotations, FillForms, ExtractAccessible, Assemble, PrintHighQuality bool
}

// Document is the root container for raw PDF objects.
type Document struct {
	Objects           map[ObjectRef]Object
	Trailer           *DictObj
	Version           string // e.g., "1.7"
	Permissions       Permissions
	Encrypted         bool
	MetadataEncrypted bool

	next int
}

var ErrNoCatalog = errors.New("document has no catalog")

func NewDocument(version string) *Document {
	return &Document{
		Objects: make(map[ObjectRef]Object),
		Trailer: Dict(),
		Version: version,
	}
}

// Add stores obj under the next free object number and returns a reference.
func (d *Document) Add(obj Object) RefObj {
	if d.next == 0 {
		d.next = d.MaxObjectNumber() + 1
	}
	for {
		ref := ObjectRef{Num: d.next}
		d.next++
		if _, taken := d.Objects[ref]; !taken {
			d.Objects[ref] = obj
			return RefObj{R: ref}
		}
	}
}

func (d *Document) MaxObjectNumber() int {
	maxNum := 0
	for ref := range d.Objects {
		if ref.Num > maxNum {
			maxNum = ref.Num
		}
	}
	return maxNum
}

// Resolve follows indirect references until it reaches a direct object.
// Dangling references resolve to NullObj.
func (d *Document) Resolve(obj Object) Object {
	for i := 0; i < 32; i++ {
		ref, ok := obj.(RefObj)
		if !ok {
			return obj
		}
		target, ok := d.Objects[ref.R]
		if !ok {
			return NullObj{}
		}
		obj = target
	}
	return NullObj{}
}

// ResolveDict resolves obj and returns it as a dictionary. Streams yield
// their dictionary.
func (d *Document) ResolveDict(obj Object) (*DictObj, bool) {
	switch v := d.Resolve(obj).(type) {
	case *DictObj:
		return v, true
	case *StreamObj:
		return v.Dict, true
	}
	return nil, false
}

func (d *Document) ResolveArray(obj Object) (*ArrayObj, bool) {
	a, ok := d.Resolve(obj).(*ArrayObj)
	return a, ok
}

func (d *Document) Catalog() (*DictObj, error) {
	if d.Trailer == nil {
		return nil, ErrNoCatalog
	}
	root, ok := d.Trailer.Get("Root")
	if !ok {
		return nil, ErrNoCatalog
	}
	cat, ok := d.ResolveDict(root)
	if !ok {
		return nil, ErrNoCatalog
	}
	return cat, nil
}

// Float returns the numeric value of obj, resolving references.
func (d *Document) Float(obj Object) (float64, bool) {
	n, ok := d.Resolve(obj).(NumberObj)
	if !ok {
		return 0, false
	}
	return n.Float(), true
}

func (d *Document) Int(obj Object) (int64, bool) {
	n, ok := d.Resolve(obj).(NumberObj)
	if !ok {
		return 0, false
	}
	if n.IsInt {
		return n.I, true
	}
	return int64(n.F), true
}
