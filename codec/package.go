package codec

import "encoding/binary"

// PackageStatus is the verdict of probing an input buffer for one framed
// packet.
type PackageStatus int

const (
	// PackageLess means more bytes are needed before a verdict.
	PackageLess PackageStatus = iota
	// PackageFull means the buffer starts with one complete packet.
	PackageFull
	// PackageError means the buffer cannot be a valid packet.
	PackageError
)

// MaxPackageLength is the largest accepted frame, prefix included.
const MaxPackageLength = 100 * 1024 * 1024

// ParsePackage probes data for a length-prefixed packet. The frame is a
// 4-byte big-endian total length (prefix included) followed by the body.
// Returns the full packet length when the verdict is PackageFull.
//
// A declared length of exactly 4 would be an empty body; that and anything
// under 4 or over MaxPackageLength is rejected as PackageError.
func ParsePackage(data []byte) (int, PackageStatus) {
	if len(data) < 4 {
		return 0, PackageLess
	}
	total := int(binary.BigEndian.Uint32(data))
	if total <= 4 || total > MaxPackageLength {
		return 0, PackageError
	}
	if len(data) < total {
		return 0, PackageLess
	}
	return total, PackageFull
}
