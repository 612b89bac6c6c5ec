package optimize

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"strconv"

	"github.com/wudi/pdfops/ir/raw"
)

// fingerprint returns a content digest of obj. Two objects with the same
// fingerprint serialize identically, so one can replace the other.
func fingerprint(obj raw.Object) string {
	d := digest{h: sha256.New()}
	d.object(obj)
	return hex.EncodeToString(d.h.Sum(nil))
}

type digest struct {
	h   hash.Hash
	num []byte
}

func (d *digest) str(s string) { d.h.Write([]byte(s)) }

// sized writes a length prefix so that adjacent values cannot run together.
func (d *digest) sized(b []byte) {
	d.num = strconv.AppendInt(d.num[:0], int64(len(b)), 10)
	d.h.Write(d.num)
	d.h.Write([]byte{':'})
	d.h.Write(b)
}

func (d *digest) object(obj raw.Object) {
	if obj == nil {
		d.str("null;")
		return
	}
	d.str(obj.Type())
	d.str("(")
	switch t := obj.(type) {
	case raw.NameObj:
		d.sized([]byte(t.Val))
	case raw.NumberObj:
		if t.IsInt {
			d.str("i" + strconv.FormatInt(t.I, 10))
		} else {
			d.str("f" + strconv.FormatFloat(t.F, 'g', -1, 64))
		}
	case raw.BoolObj:
		d.str(strconv.FormatBool(t.V))
	case raw.StringObj:
		d.sized(t.Bytes)
	case raw.RefObj:
		d.str(strconv.Itoa(t.R.Num) + " " + strconv.Itoa(t.R.Gen) + " R")
	case *raw.ArrayObj:
		for _, v := range t.Items {
			d.object(v)
		}
	case *raw.DictObj:
		for _, k := range t.Keys() {
			d.sized([]byte(k))
			d.object(t.KV[k])
		}
	case *raw.StreamObj:
		d.object(t.Dict)
		d.sized(t.Data)
	}
	d.str(")")
}
