package files

import (
	"bytes"
	"fmt"
	"math/bits"
	"time"

	xdr "github.com/rasky/go-xdr/xdr2"
)

// headerMagic marks a cipherfs metadata blob ("CFS1").
const headerMagic uint32 = 0x43465331

// header is the metadata record of one file object, XDR encoded.
//
// Times are Unix nanoseconds and only meaningful when HasTimes is set.
type header struct {
	Magic     uint32
	Version   uint32
	Type      uint32
	BlockSize uint32
	IVSize    uint32
	Size      uint64
	Mode      uint32
	Nlink     uint32
	UID       uint32
	GID       uint32
	HasTimes  bool
	Atime     int64
	Mtime     int64
	Ctime     int64
}

// encodeHeader serializes h and appends its MAC.
func encodeHeader(h *header, id ID, macKey *[32]byte) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := xdr.Marshal(&buf, h); err != nil {
		return nil, fmt.Errorf("encode header: %w", err)
	}

	mac, err := headerMAC(macKey, id, buf.Bytes())
	if err != nil {
		return nil, err
	}
	buf.Write(mac)
	return buf.Bytes(), nil
}

// decodeHeader splits the MAC off a metadata blob, verifies it when
// verify is set and decodes the header.
func decodeHeader(blob []byte, id ID, macKey *[32]byte, verify bool) (*header, error) {
	if len(blob) < MACSize {
		return nil, fmt.Errorf("header of %s: short blob (%d bytes): %w", id, len(blob), ErrCorrupted)
	}
	encoded, tag := blob[:len(blob)-MACSize], blob[len(blob)-MACSize:]

	if verify {
		expected, err := headerMAC(macKey, id, encoded)
		if err != nil {
			return nil, err
		}
		if !verifyMAC(expected, tag) {
			return nil, fmt.Errorf("header of %s: MAC mismatch: %w", id, ErrCorrupted)
		}
	}

	h := &header{}
	if _, err := xdr.Unmarshal(bytes.NewReader(encoded), h); err != nil {
		return nil, fmt.Errorf("header of %s: decode: %v: %w", id, err, ErrCorrupted)
	}
	if h.Magic != headerMagic {
		return nil, fmt.Errorf("header of %s: bad magic %#x: %w", id, h.Magic, ErrCorrupted)
	}
	if !Type(h.Type).Valid() {
		return nil, fmt.Errorf("header of %s: unknown type %d: %w", id, h.Type, ErrCorrupted)
	}
	if h.BlockSize < MinBlockSize || h.BlockSize > MaxBlockSize || bits.OnesCount32(h.BlockSize) != 1 {
		return nil, fmt.Errorf("header of %s: block size %d out of range: %w", id, h.BlockSize, ErrCorrupted)
	}
	if h.IVSize < MinIVSize || h.IVSize > MaxIVSize {
		return nil, fmt.Errorf("header of %s: iv size %d out of range: %w", id, h.IVSize, ErrCorrupted)
	}
	return h, nil
}

func toUnixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNano(ns int64) time.Time {
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}
