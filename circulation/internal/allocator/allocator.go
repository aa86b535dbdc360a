// Package allocator generates the public identifiers of books and students.
//
// Book codes are a 2-digit category prefix followed by a 4-digit, zero-padded
// sequence. The next sequence is the highest existing one for the prefix plus
// one, so callers must serialize NextCode and the insert that consumes its
// result per prefix (see KeyedMutex).
package allocator

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/Astemirdum/library-circulation/circulation/internal/errs"
	"github.com/Astemirdum/library-circulation/circulation/internal/model"
)

const (
	BarcodePrefix         = "LIB"
	PrefixLength          = 2
	SequenceLength        = 4
	CodeLength            = PrefixLength + SequenceLength
	MaxSequence           = 9999
	AdmissionNumberLength = 8
)

// CategoryCode resolves category case-insensitively; unknown categories map
// to the general prefix.
func CategoryCode(category string) string {
	if code, ok := model.CategoryCodes[strings.ToLower(strings.TrimSpace(category))]; ok {
		return code
	}
	return model.DefaultCategoryCode
}

// NextCode returns the code following the highest sequence among existing
// codes that share prefix. Codes with a malformed sequence are ignored.
func NextCode(prefix string, existing []string) (string, error) {
	maxSeq := 0
	for _, code := range existing {
		seq, ok := sequence(prefix, code)
		if ok && seq > maxSeq {
			maxSeq = seq
		}
	}
	next := maxSeq + 1
	if next > MaxSequence {
		return "", errs.Capacity("category %s has no free book codes left", prefix)
	}
	return fmt.Sprintf("%s%0*d", prefix, SequenceLength, next), nil
}

func sequence(prefix, code string) (int, bool) {
	if len(code) != CodeLength || !strings.HasPrefix(code, prefix) {
		return 0, false
	}
	tail := code[PrefixLength:]
	if !isDigits(tail) {
		return 0, false
	}
	n, err := strconv.Atoi(tail)
	if err != nil {
		return 0, false
	}
	return n, true
}

func Barcode(code string) string {
	return BarcodePrefix + code
}

// NewAdmissionNumber draws AdmissionNumberLength independent decimal digits.
// intn must behave like math/rand.Intn.
func NewAdmissionNumber(intn func(n int) int) string {
	var sb strings.Builder
	sb.Grow(AdmissionNumberLength)
	for i := 0; i < AdmissionNumberLength; i++ {
		sb.WriteByte(byte('0' + intn(10)))
	}
	return sb.String()
}

func ValidAdmissionNumber(s string) bool {
	return len(s) == AdmissionNumberLength && isDigits(s)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// KeyedMutex hands out one mutex per key and drops it once nobody holds or
// waits on it.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*keyedEntry)}
}

func (k *KeyedMutex) Lock(key string) (unlock func()) {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &keyedEntry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
