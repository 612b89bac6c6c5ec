package optimize

import (
	"context"
	"sort"

	"github.com/wudi/pdfops/ir/raw"
	"github.com/wudi/pdfops/observability"
)

type Config struct {
	// CombineDuplicateStreams merges byte-identical streams.
	CombineDuplicateStreams bool
	// CombineDuplicateResources merges identical font and graphics state
	// dictionaries.
	CombineDuplicateResources bool
	Logger                    observability.Logger
}

type Optimizer struct {
	config Config
}

func New(config Config) *Optimizer {
	config.Logger = observability.OrNop(config.Logger)
	return &Optimizer{config: config}
}

// Optimize rewrites doc in place. It returns the number of objects removed.
func (o *Optimizer) Optimize(ctx context.Context, doc *raw.Document) (int, error) {
	removed := 0
	if o.config.CombineDuplicateStreams || o.config.CombineDuplicateResources {
		n, err := o.combineObjects(ctx, doc)
		if err != nil {
			return removed, err
		}
		removed += n
	}
	if removed > 0 {
		o.config.Logger.Debug("combined duplicate objects", observability.Int("removed", removed))
	}
	return removed, nil
}

func (o *Optimizer) candidate(obj raw.Object) bool {
	switch v := obj.(type) {
	case *raw.StreamObj:
		return o.config.CombineDuplicateStreams
	case *raw.DictObj:
		if !o.config.CombineDuplicateResources {
			return false
		}
		typ, _ := v.Name("Type")
		return typ == "Font" || typ == "ExtGState"
	}
	return false
}

// combineObjects repeats until no duplicates remain, since merging two
// objects can make the objects that refer to them identical.
func (o *Optimizer) combineObjects(ctx context.Context, doc *raw.Document) (int, error) {
	removed := 0
	for {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		seen := make(map[string]raw.ObjectRef)
		replacements := make(map[raw.ObjectRef]raw.ObjectRef)
		for _, ref := range sortedRefs(doc) {
			obj := doc.Objects[ref]
			if !o.candidate(obj) {
				continue
			}
			h := fingerprint(obj)
			if original, ok := seen[h]; ok {
				replacements[ref] = original
			} else {
				seen[h] = ref
			}
		}
		if len(replacements) == 0 {
			return removed, nil
		}
		applyReplacements(doc, replacements)
		for dup := range replacements {
			delete(doc.Objects, dup)
		}
		removed += len(replacements)
	}
}

func sortedRefs(doc *raw.Document) []raw.ObjectRef {
	refs := make([]raw.ObjectRef, 0, len(doc.Objects))
	for ref := range doc.Objects {
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Num != refs[j].Num {
			return refs[i].Num < refs[j].Num
		}
		return refs[i].Gen < refs[j].Gen
	})
	return refs
}

func applyReplacements(doc *raw.Document, replacements map[raw.ObjectRef]raw.ObjectRef) {
	for _, obj := range doc.Objects {
		replaceRefs(obj, replacements)
	}
	replaceRefs(doc.Trailer, replacements)
}

func replaceRefs(obj raw.Object, replacements map[raw.ObjectRef]raw.ObjectRef) {
	swap := func(v raw.Object) (raw.Object, bool) {
		if ref, ok := v.(raw.RefObj); ok {
			if to, found := replacements[ref.R]; found {
				return raw.RefObj{R: to}, true
			}
		}
		return v, false
	}
	switch t := obj.(type) {
	case *raw.ArrayObj:
		for i, val := range t.Items {
			if nv, ok := swap(val); ok {
				t.Items[i] = nv
			} else {
				replaceRefs(val, replacements)
			}
		}
	case *raw.DictObj:
		if t == nil {
			return
		}
		for key, val := range t.KV {
			if nv, ok := swap(val); ok {
				t.KV[key] = nv
			} else {
				replaceRefs(val, replacements)
			}
		}
	case *raw.StreamObj:
		replaceRefs(t.Dict, replacements)
	}
}
