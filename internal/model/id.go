package model

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"regexp"
	"sync/atomic"
	"time"
)

// JobId is a 24 hex digit identifier laid out like a MongoDB ObjectId:
// creation seconds, a per-process random value and a counter.
type JobId string

var jobIdPattern = regexp.MustCompile(`^[a-f0-9]{24}$`)

func (id JobId) Valid() bool {
	return jobIdPattern.MatchString(string(id))
}

var (
	processUnique [5]byte
	idCounter     uint32
)

func init() {
	var seed [4]byte
	if _, err := rand.Read(processUnique[:]); err != nil {
		panic(err)
	}
	if _, err := rand.Read(seed[:]); err != nil {
		panic(err)
	}
	idCounter = binary.BigEndian.Uint32(seed[:])
}

func NewJobId(now time.Time) JobId {
	var b [12]byte
	binary.BigEndian.PutUint32(b[0:4], uint32(now.Unix()))
	copy(b[4:9], processUnique[:])
	c := atomic.AddUint32(&idCounter, 1)
	b[9], b[10], b[11] = byte(c>>16), byte(c>>8), byte(c)
	return JobId(hex.EncodeToString(b[:]))
}
