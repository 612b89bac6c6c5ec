package security

import (
	"errors"
	"fmt"

	"github.com/wudi/pdfops/ir/raw"
)

var (
	ErrInvalidPassword    = errors.New("invalid password")
	ErrUnsupportedHandler = errors.New("unsupported security handler")
	ErrNotAuthenticated   = errors.New("security handler not authenticated")
)

// DataClass identifies the kind of payload being encrypted or decrypted.
type DataClass int

const (
	DataClassStream DataClass = iota
	DataClassString
)

type Handler interface {
	IsEncrypted() bool
	Authenticate(password string) error
	Decrypt(objNum, gen int, data []byte, class DataClass) ([]byte, error)
	Encrypt(objNum, gen int, data []byte, class DataClass) ([]byte, error)
	Permissions() raw.Permissions
	EncryptMetadata() bool
}

// HandlerBuilder assembles a Handler from an Encrypt dictionary and the
// first element of the trailer /ID.
type HandlerBuilder struct {
	encryptDict *raw.DictObj
	fileID      []byte
}

func (b *HandlerBuilder) WithEncryptDict(d *raw.DictObj) *HandlerBuilder { b.encryptDict = d; return b }
func (b *HandlerBuilder) WithFileID(id []byte) *HandlerBuilder          { b.fileID = id; return b }

func (b *HandlerBuilder) Build() (Handler, error) {
	if b.encryptDict == nil {
		return NoopHandler(), nil
	}
	d := b.encryptDict
	if filter := nameVal(d, "Filter"); filter != "" && filter != "Standard" {
		return nil, fmt.Errorf("%w: /Filter /%s", ErrUnsupportedHandler, filter)
	}
	v := int(numberVal(d, "V", 0))
	if v == 0 {
		v = 1
	}
	r := int(numberVal(d, "R", 2))
	if v > 5 || r > 6 || v == 3 {
		return nil, fmt.Errorf("%w: V=%d R=%d", ErrUnsupportedHandler, v, r)
	}
	keyBits := int(numberVal(d, "Length", 40))
	switch {
	case v >= 5:
		keyBits = 256
	case v == 4 && keyBits < 128:
		keyBits = 128
	case v == 1:
		keyBits = 40
	}
	if keyBits%8 != 0 || keyBits < 40 {
		return nil, fmt.Errorf("%w: key length %d", ErrUnsupportedHandler, keyBits)
	}

	h := &standardHandler{
		v:           v,
		r:           r,
		keyLen:      keyBits / 8,
		o:           stringBytes(d, "O"),
		u:           stringBytes(d, "U"),
		oe:          stringBytes(d, "OE"),
		ue:          stringBytes(d, "UE"),
		p:           int32(numberVal(d, "P", 0)),
		fileID:      b.fileID,
		encryptMeta: boolVal(d, "EncryptMetadata", true),
		streamAlgo:  algoRC4,
		stringAlgo:  algoRC4,
	}
	if v >= 4 {
		filters, err := parseCryptFilters(d)
		if err != nil {
			return nil, err
		}
		if h.streamAlgo, err = resolveCryptFilter(d, "StmF", filters); err != nil {
			return nil, err
		}
		if h.stringAlgo, err = resolveCryptFilter(d, "StrF", filters); err != nil {
			return nil, err
		}
	}
	if len(h.o) < 32 || len(h.u) < 32 {
		return nil, fmt.Errorf("%w: /O or /U entry too short", ErrUnsupportedHandler)
	}
	return h, nil
}

type cryptAlgo int

const (
	algoNone cryptAlgo = iota
	algoRC4
	algoAES128
	algoAES256
)

type standardHandler struct {
	v, r        int
	keyLen      int
	o, u        []byte
	oe, ue      []byte
	p           int32
	fileID      []byte
	encryptMeta bool
	streamAlgo  cryptAlgo
	stringAlgo  cryptAlgo

	key   []byte
	owner bool
}

func (h *standardHandler) IsEncrypted() bool     { return true }
func (h *standardHandler) EncryptMetadata() bool { return h.encryptMeta }

// Authenticate tries password as the user password, then as the owner
// password.
func (h *standardHandler) Authenticate(password string) error {
	pwd := []byte(password)
	if h.r >= 5 {
		if key, ok := h.authAES256User(pwd); ok {
			h.key = key
			return nil
		}
		if key, ok := h.authAES256Owner(pwd); ok {
			h.key, h.owner = key, true
			return nil
		}
		return ErrInvalidPassword
	}
	if key, ok := h.authUser(pwd); ok {
		h.key = key
		return nil
	}
	userPwd := recoverUserPassword(pwd, h.o, h.r, h.keyLen)
	if key, ok := h.authUser(userPwd); ok {
		h.key, h.owner = key, true
		return nil
	}
	return ErrInvalidPassword
}

// AuthenticatedAsOwner reports whether the last successful Authenticate
// matched the owner password.
func (h *standardHandler) AuthenticatedAsOwner() bool { return h.owner }

func (h *standardHandler) authUser(pwd []byte) ([]byte, bool) {
	key := deriveKey(pwd, h.o, h.p, h.fileID, h.keyLen, h.r, h.encryptMeta)
	want := computeU(key, h.fileID, h.r)
	n := 32
	if h.r >= 3 {
		n = 16
	}
	return key, equalPrefix(want[:n], h.u)
}

func (h *standardHandler) authAES256User(pwd []byte) ([]byte, bool) {
	if len(h.u) < 48 || len(h.ue) < 32 {
		return nil, false
	}
	if !equalPrefix(hashR6(h.r, pwd, h.u[32:40], nil), h.u[:32]) {
		return nil, false
	}
	key, err := aesCBCRaw(hashR6(h.r, pwd, h.u[40:48], nil), make([]byte, 16), h.ue[:32], false)
	return key, err == nil
}

func (h *standardHandler) authAES256Owner(pwd []byte) ([]byte, bool) {
	if len(h.o) < 48 || len(h.oe) < 32 || len(h.u) < 48 {
		return nil, false
	}
	if !equalPrefix(hashR6(h.r, pwd, h.o[32:40], h.u[:48]), h.o[:32]) {
		return nil, false
	}
	key, err := aesCBCRaw(hashR6(h.r, pwd, h.o[40:48], h.u[:48]), make([]byte, 16), h.oe[:32], false)
	return key, err == nil
}

func (h *standardHandler) algoFor(class DataClass) cryptAlgo {
	if class == DataClassString {
		return h.stringAlgo
	}
	return h.streamAlgo
}

func (h *standardHandler) Decrypt(objNum, gen int, data []byte, class DataClass) ([]byte, error) {
	if h.key == nil {
		return nil, ErrNotAuthenticated
	}
	algo := h.algoFor(class)
	if algo == algoNone || len(data) == 0 {
		return data, nil
	}
	key := objectKey(h.key, objNum, gen, algo)
	if algo == algoRC4 {
		return rc4Crypt(key, data)
	}
	return aesDecrypt(key, data)
}

func (h *standardHandler) Encrypt(objNum, gen int, data []byte, class DataClass) ([]byte, error) {
	if h.key == nil {
		return nil, ErrNotAuthenticated
	}
	algo := h.algoFor(class)
	if algo == algoNone {
		return data, nil
	}
	key := objectKey(h.key, objNum, gen, algo)
	if algo == algoRC4 {
		return rc4Crypt(key, data)
	}
	return aesEncrypt(key, data)
}

func (h *standardHandler) Permissions() raw.Permissions { return PermissionsFromValue(h.p) }

type noEncryptionHandler struct{}

func (noEncryptionHandler) IsEncrypted() bool                  { return false }
func (noEncryptionHandler) Authenticate(password string) error { return nil }
func (noEncryptionHandler) Decrypt(objNum, gen int, data []byte, class DataClass) ([]byte, error) {
	return data, nil
}
func (noEncryptionHandler) Encrypt(objNum, gen int, data []byte, class DataClass) ([]byte, error) {
	return data, nil
}
func (noEncryptionHandler) Permissions() raw.Permissions {
	return PermissionsFromValue(-4)
}
func (noEncryptionHandler) EncryptMetadata() bool { return false }

// NoopHandler returns a reusable pass-through encryption handler.
func NoopHandler() Handler { return noEncryptionHandler{} }

func parseCryptFilters(dict *raw.DictObj) (map[string]cryptAlgo, error) {
	out := make(map[string]cryptAlgo)
	cfObj, ok := dict.Get("CF")
	if !ok {
		return out, nil
	}
	cfDict, ok := cfObj.(*raw.DictObj)
	if !ok {
		return nil, errors.New("CF must be a dictionary")
	}
	for name, obj := range cfDict.KV {
		entry, ok := obj.(*raw.DictObj)
		if !ok {
			return nil, errors.New("crypt filter entry must be a dictionary")
		}
		switch cfm := nameVal(entry, "CFM"); cfm {
		case "V2":
			out[name] = algoRC4
		case "AESV2":
			out[name] = algoAES128
		case "AESV3":
			out[name] = algoAES256
		case "None", "":
			out[name] = algoNone
		default:
			return nil, fmt.Errorf("%w: crypt filter method %s", ErrUnsupportedHandler, cfm)
		}
	}
	return out, nil
}

func resolveCryptFilter(dict *raw.DictObj, key string, filters map[string]cryptAlgo) (cryptAlgo, error) {
	name := nameVal(dict, key)
	if name == "" || name == "Identity" {
		return algoNone, nil
	}
	if algo, ok := filters[name]; ok {
		return algo, nil
	}
	return algoNone, fmt.Errorf("crypt filter %s not defined", name)
}

func numberVal(dict *raw.DictObj, key string, def int64) int64 {
	if v, ok := dict.Get(key); ok {
		if n, ok := v.(raw.NumberObj); ok {
			return n.Int()
		}
	}
	return def
}

func stringBytes(dict *raw.DictObj, key string) []byte {
	if v, ok := dict.Get(key); ok {
		if s, ok := v.(raw.StringObj); ok {
			return s.Bytes
		}
	}
	return nil
}

func boolVal(dict *raw.DictObj, key string, def bool) bool {
	if v, ok := dict.Get(key); ok {
		if b, ok := v.(raw.BoolObj); ok {
			return b.V
		}
	}
	return def
}

func nameVal(dict *raw.DictObj, key string) string {
	n, _ := dict.Name(key)
	return n
}
