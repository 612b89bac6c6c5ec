package security

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/md5"
	"crypto/rand"
	"crypto/rc4"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/binary"
	"errors"
)

var passwordPadding = []byte{
	0x28, 0xBF, 0x4E, 0x5E, 0x4E, 0x75, 0x8A, 0x41,
	0x64, 0x00, 0x4E, 0x56, 0xFF, 0xFA, 0x01, 0x08,
	0x2E, 0x2E, 0x00, 0xB6, 0xD0, 0x68, 0x3E, 0x80,
	0x2F, 0x0C, 0xA9, 0xFE, 0x64, 0x53, 0x69, 0x7A,
}

func padPassword(pwd []byte) []byte {
	padded := make([]byte, 32)
	n := copy(padded, pwd)
	copy(padded[n:], passwordPadding)
	return padded
}

// deriveKey computes the file encryption key for revisions 2 to 4.
func deriveKey(pwd, owner []byte, pVal int32, fileID []byte, keyLen int, r int, encryptMeta bool) []byte {
	if r == 2 {
		keyLen = 5
	}
	data := make([]byte, 0, 32+len(owner)+8+len(fileID))
	data = append(data, padPassword(pwd)...)
	data = append(data, owner[:32]...)
	var pBuf [4]byte
	binary.LittleEndian.PutUint32(pBuf[:], uint32(pVal))
	data = append(data, pBuf[:]...)
	data = append(data, fileID...)
	if r >= 4 && !encryptMeta {
		data = append(data, 0xFF, 0xFF, 0xFF, 0xFF)
	}

	sum := md5.Sum(data)
	if r >= 3 {
		for i := 0; i < 50; i++ {
			sum = md5.Sum(sum[:keyLen])
		}
	}
	return append([]byte(nil), sum[:keyLen]...)
}

// computeU returns the 32-byte /U value for key.
func computeU(key, fileID []byte, r int) []byte {
	if r == 2 {
		return rc4Simple(key, passwordPadding)
	}
	h := md5.Sum(append(append([]byte(nil), passwordPadding...), fileID...))
	out := rc4Rounds(key, h[:], false)
	return append(out, make([]byte, 16)...)
}

func ownerKey(ownerPwd []byte, r, keyLen int) []byte {
	if r == 2 {
		keyLen = 5
	}
	sum := md5.Sum(padPassword(ownerPwd))
	if r >= 3 {
		for i := 0; i < 50; i++ {
			sum = md5.Sum(sum[:])
		}
	}
	return sum[:keyLen]
}

// computeO returns the /O value for revisions 2 to 4.
func computeO(ownerPwd, userPwd []byte, r, keyLen int) []byte {
	if len(ownerPwd) == 0 {
		ownerPwd = userPwd
	}
	key := ownerKey(ownerPwd, r, keyLen)
	if r == 2 {
		return rc4Simple(key, padPassword(userPwd))
	}
	return rc4Rounds(key, padPassword(userPwd), false)
}

// recoverUserPassword decrypts /O with a candidate owner password, yielding
// the padded user password when the candidate is right.
func recoverUserPassword(ownerPwd, o []byte, r, keyLen int) []byte {
	key := ownerKey(ownerPwd, r, keyLen)
	if r == 2 {
		return rc4Simple(key, o[:32])
	}
	return rc4Rounds(key, o[:32], true)
}

// rc4Rounds applies the twenty-pass RC4 scheme of revision 3 and later,
// XORing each key byte with the pass number.
func rc4Rounds(key, data []byte, reverse bool) []byte {
	out := append([]byte(nil), data...)
	tmp := make([]byte, len(key))
	for n := 0; n < 20; n++ {
		i := n
		if reverse {
			i = 19 - n
		}
		for j := range key {
			tmp[j] = key[j] ^ byte(i)
		}
		out = rc4Simple(tmp, out)
	}
	return out
}

// hashR6 is the password hash of revision 5 (plain SHA-256) and revision 6
// (ISO 32000-2 algorithm 2.B).
func hashR6(r int, pwd, salt, udata []byte) []byte {
	if len(pwd) > 127 {
		pwd = pwd[:127]
	}
	input := append(append(append([]byte(nil), pwd...), salt...), udata...)
	sum := sha256.Sum256(input)
	k := sum[:]
	if r == 5 {
		return k
	}
	for i := 0; ; {
		seq := append(append(append([]byte(nil), pwd...), k...), udata...)
		k1 := bytes.Repeat(seq, 64)
		e, err := aesCBCRaw(k[:16], k[16:32], k1, true)
		if err != nil {
			return k[:32]
		}
		mod := 0
		for _, b := range e[:16] {
			mod += int(b)
		}
		switch mod % 3 {
		case 0:
			s := sha256.Sum256(e)
			k = s[:]
		case 1:
			s := sha512.Sum384(e)
			k = s[:]
		default:
			s := sha512.Sum512(e)
			k = s[:]
		}
		i++
		if i >= 64 && int(e[len(e)-1]) <= i-32 {
			break
		}
	}
	return k[:32]
}

func objectKey(fileKey []byte, objNum, gen int, algo cryptAlgo) []byte {
	if algo == algoAES256 {
		return fileKey
	}
	key := append([]byte{}, fileKey...)
	key = append(key, byte(objNum), byte(objNum>>8), byte(objNum>>16), byte(gen), byte(gen>>8))
	if algo == algoAES128 {
		key = append(key, 0x73, 0x41, 0x6C, 0x54) // "sAlT"
	}
	hash := md5.Sum(key)
	n := len(fileKey) + 5
	if n > 16 {
		n = 16
	}
	return hash[:n]
}

func rc4Simple(key []byte, data []byte) []byte {
	out, _ := rc4Crypt(key, data)
	return out
}

func rc4Crypt(key []byte, data []byte) ([]byte, error) {
	c, err := rc4.NewCipher(key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(data))
	c.XORKeyStream(out, data)
	return out, nil
}

// aesEncrypt prefixes a random IV and applies PKCS#7 padding.
func aesEncrypt(key, data []byte) ([]byte, error) {
	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, err
	}
	padLen := aes.BlockSize - len(data)%aes.BlockSize
	plain := append(append([]byte(nil), data...), bytes.Repeat([]byte{byte(padLen)}, padLen)...)
	ct, err := aesCBCRaw(key, iv, plain, true)
	if err != nil {
		return nil, err
	}
	return append(iv, ct...), nil
}

func aesDecrypt(key, data []byte) ([]byte, error) {
	if len(data) < aes.BlockSize {
		return nil, errors.New("aes ciphertext too short")
	}
	ct := data[aes.BlockSize:]
	if len(ct)%aes.BlockSize != 0 {
		// Some writers drop the final partial block; decrypt what is whole.
		ct = ct[:len(ct)-len(ct)%aes.BlockSize]
	}
	out, err := aesCBCRaw(key, data[:aes.BlockSize], ct, false)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return out, nil
	}
	pad := int(out[len(out)-1])
	if pad <= 0 || pad > aes.BlockSize || pad > len(out) {
		return nil, errors.New("invalid aes padding")
	}
	return out[:len(out)-pad], nil
}

// aesCBCRaw runs CBC without padding; len(data) must be a block multiple.
func aesCBCRaw(key, iv, data []byte, encrypt bool) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	if len(data)%aes.BlockSize != 0 {
		return nil, errors.New("aes data not multiple of blocksize")
	}
	out := make([]byte, len(data))
	if encrypt {
		cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, data)
	} else {
		cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, data)
	}
	return out, nil
}

func equalPrefix(want, got []byte) bool {
	if len(got) < len(want) {
		return false
	}
	return bytes.Equal(want, got[:len(want)])
}
