package filters

import "github.com/wudi/pdfops/ir/raw"

// ExtractFilters reads Filter and DecodeParms entries from a stream
// dictionary. doc may be nil when the entries are known to be direct.
func ExtractFilters(doc *raw.Document, dict *raw.DictObj) ([]string, []*raw.DictObj) {
	var names []string
	var params []*raw.DictObj

	resolve := func(o raw.Object) raw.Object {
		if doc == nil {
			return o
		}
		return doc.Resolve(o)
	}

	filterObj, ok := dict.Get("Filter")
	if !ok {
		return names, params
	}

	switch f := resolve(filterObj).(type) {
	case raw.NameObj:
		names = append(names, f.Val)
	case *raw.ArrayObj:
		for _, item := range f.Items {
			if n, ok := resolve(item).(raw.NameObj); ok {
				names = append(names, n.Val)
			}
		}
	}

	if len(names) > 0 {
		if pObj, ok := dict.Get("DecodeParms"); ok {
			switch p := resolve(pObj).(type) {
			case *raw.DictObj:
				params = append(params, p)
			case *raw.ArrayObj:
				for _, item := range p.Items {
					d, _ := resolve(item).(*raw.DictObj)
					params = append(params, d)
				}
			}
		}
	}

	return names, params
}
