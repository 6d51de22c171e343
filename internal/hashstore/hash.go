package hashstore

import (
	"crypto/sha256"
	"encoding/binary"
	"math"

	"golang.org/x/text/unicode/norm"

	"github.com/dynamoRando/rcd-sub004/internal/model"
)

// Domain prefixes for row hashing. The version suffix allows a future
// algorithm change without confusing old and new hashes.
const (
	domainRow       = "coop/row/v1"
	domainTombstone = "coop/tombstone/v1"
)

// ComputeHash returns the content hash of a row's ordered column values.
//
// The hash covers each value's storage class and bytes, length-prefixed, so
// ("ab", "c") and ("a", "bc") differ. Text is NFC-normalised first so that
// canonically equivalent strings hash the same on every node. The result is
// the first 8 bytes of SHA-256, big-endian.
func ComputeHash(values []model.Value) uint64 {
	h := sha256.New()
	h.Write([]byte(domainRow))
	h.Write([]byte{0x00})

	var buf [8]byte
	for _, v := range values {
		h.Write([]byte{byte(v.Kind)})
		var data []byte
		switch v.Kind {
		case model.KindInteger:
			binary.BigEndian.PutUint64(buf[:], uint64(v.Int))
			data = buf[:]
		case model.KindReal:
			binary.BigEndian.PutUint64(buf[:], math.Float64bits(v.Real))
			data = buf[:]
		case model.KindText:
			data = norm.NFC.Bytes([]byte(v.Text))
		case model.KindBlob:
			data = v.Blob
		}
		var n [8]byte
		binary.BigEndian.PutUint64(n[:], uint64(len(data)))
		h.Write(n[:])
		h.Write(data)
	}

	return binary.BigEndian.Uint64(h.Sum(nil)[:8])
}

// TombstoneHash returns the deletion marker stored for a logically deleted row.
func TombstoneHash(rowID int64) uint64 {
	h := sha256.New()
	h.Write([]byte(domainTombstone))
	h.Write([]byte{0x00})
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(rowID))
	h.Write(buf[:])
	return binary.BigEndian.Uint64(h.Sum(nil)[:8])
}

// HashRow hashes a row read back from storage.
func HashRow(r model.Row) uint64 {
	return ComputeHash(r.Values)
}
