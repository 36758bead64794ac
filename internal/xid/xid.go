// Package xid makes prefixed identifiers whose text sorts in creation order,
// e.g. "ord-0cs8ql3fv4p8g5k7s1rm0f2j7o".
package xid

import (
	"crypto/rand"
	"encoding/base32"
	"encoding/binary"
	"sync/atomic"
	"time"
)

// Lowercase base32hex keeps byte order, so ids compare like their timestamps.
var encoding = base32.NewEncoding("0123456789abcdefghijklmnopqrstuv").WithPadding(base32.NoPadding)

var fallbackSeq atomic.Uint64

func New(prefix string) string {
	return At(prefix, time.Now())
}

// At stamps the id with t instead of the wall clock.
func At(prefix string, t time.Time) string {
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[:8], uint64(t.UnixNano()))
	if _, err := rand.Read(buf[8:]); err != nil {
		binary.BigEndian.PutUint64(buf[8:], fallbackSeq.Add(1))
	}
	return prefix + "-" + encoding.EncodeToString(buf[:])
}
