package security

import (
	"crypto/rand"
	"encoding/hex"
	"errors"

	"github.com/wudi/pdfops/ir/raw"
)

// Encryption describes how a writer should protect its output.
type Encryption struct {
	UserPassword  string
	OwnerPassword string
	Permissions   raw.Permissions
}

// BuildAESEncryption constructs a V4/R4 Encrypt dictionary using AES-128
// (AESV2) for strings and streams, together with a ready handler for the
// writer. An empty owner password is replaced by a random one so the
// user password never doubles as the owner password by accident.
func BuildAESEncryption(enc Encryption, fileID []byte) (*raw.DictObj, Handler, error) {
	if len(fileID) == 0 {
		return nil, nil, errors.New("file identifier required for encryption")
	}
	owner := enc.OwnerPassword
	if owner == "" {
		buf := make([]byte, 16)
		if _, err := rand.Read(buf); err != nil {
			return nil, nil, err
		}
		owner = hex.EncodeToString(buf)
	}
	const r, keyLen = 4, 16
	p := PermissionsValue(enc.Permissions)
	o := computeO([]byte(owner), []byte(enc.UserPassword), r, keyLen)
	key := deriveKey([]byte(enc.UserPassword), o, p, fileID, keyLen, r, true)
	u := computeU(key, fileID, r)

	stdCF := raw.Dict()
	stdCF.Set("Type", raw.NameLiteral("CryptFilter"))
	stdCF.Set("CFM", raw.NameLiteral("AESV2"))
	stdCF.Set("AuthEvent", raw.NameLiteral("DocOpen"))
	stdCF.Set("Length", raw.NumberInt(keyLen))
	cf := raw.Dict()
	cf.Set("StdCF", stdCF)

	d := raw.Dict()
	d.Set("Filter", raw.NameLiteral("Standard"))
	d.Set("V", raw.NumberInt(4))
	d.Set("R", raw.NumberInt(r))
	d.Set("Length", raw.NumberInt(keyLen*8))
	d.Set("CF", cf)
	d.Set("StmF", raw.NameLiteral("StdCF"))
	d.Set("StrF", raw.NameLiteral("StdCF"))
	d.Set("O", raw.HexStr(o))
	d.Set("U", raw.HexStr(u))
	d.Set("P", raw.NumberInt(int64(p)))
	d.Set("EncryptMetadata", raw.Bool(true))

	h := &standardHandler{
		v:           4,
		r:           r,
		keyLen:      keyLen,
		o:           o,
		u:           u,
		p:           p,
		fileID:      fileID,
		encryptMeta: true,
		streamAlgo:  algoAES128,
		stringAlgo:  algoAES128,
		key:         key,
	}
	return d, h, nil
}
