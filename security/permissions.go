package security

import "github.com/wudi/pdfops/ir/raw"

// reservedBits are the P bits ISO 32000 requires to be set: 7, 8 and 13-32.
const reservedBits = int32(-3904) // 0xFFFFF0C0

// PermissionsValue builds the Standard security permissions flags for a document.
func PermissionsValue(p raw.Permissions) int32 {
	val := reservedBits
	set := func(allowed bool, bit uint) {
		if allowed {
			val |= 1 << (bit - 1)
		}
	}
	set(p.Print, 3)
	set(p.Modify, 4)
	set(p.Copy, 5)
	set(p.ModifyAnnotations, 6)
	set(p.FillForms, 9)
	set(p.ExtractAccessible, 10)
	set(p.Assemble, 11)
	set(p.PrintHighQuality, 12)
	return val
}

func PermissionsFromValue(p int32) raw.Permissions {
	return raw.Permissions{
		Print:             p&0x4 != 0,
		Modify:            p&0x8 != 0,
		Copy:              p&0x10 != 0,
		ModifyAnnotations: p&0x20 != 0,
		FillForms:         p&0x100 != 0,
		ExtractAccessible: p&0x200 != 0,
		Assemble:          p&0x400 != 0,
		PrintHighQuality:  p&0x800 != 0,
	}
}

// RestrictedPermissions is the policy applied to password-protected output:
// printing (including high quality), form filling and accessibility
// extraction stay allowed, everything else is denied.
func RestrictedPermissions() raw.Permissions {
	return raw.Permissions{
		Print:             true,
		PrintHighQuality:  true,
		FillForms:         true,
		ExtractAccessible: true,
	}
}
