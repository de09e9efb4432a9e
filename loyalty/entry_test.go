package loyalty_test

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/warp/loyalty-engine/loyalty"
)

func TestNewEntryID_Format(t *testing.T) {
	at := time.Date(2026, time.May, 2, 10, 0, 0, 0, time.UTC)
	id := loyalty.NewEntryID("CUS-ABC12345", loyalty.EntryEarn, at)

	assert.True(t, strings.HasPrefix(id, "LOG-CUS-ABC12345-"))
	assert.True(t, strings.HasSuffix(id, "-EARN"))
}

func TestNewEntryID_ConcurrentUniqueness(t *testing.T) {
	// Entry ids embed a timestamp plus a process-wide counter; a
	// burst of adjustments in the same instant must not collide.
	const n = 1000
	at := time.Now().UTC()

	ids := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids[i] = loyalty.NewEntryID("CUS-SAME", loyalty.EntryBurn, at)
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool, n)
	for _, id := range ids {
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

func TestEntryKind_Sign(t *testing.T) {
	assert.Equal(t, int64(1), loyalty.EntryEarn.Sign())
	assert.Equal(t, int64(-1), loyalty.EntryBurn.Sign())
	assert.Equal(t, int64(-1), loyalty.EntryExpire.Sign())
}

func TestEntryKind_Valid(t *testing.T) {
	assert.True(t, loyalty.EntryEarn.Valid())
	assert.True(t, loyalty.EntryBurn.Valid())
	assert.True(t, loyalty.EntryExpire.Valid())
	assert.False(t, loyalty.EntryKind("GRANT").Valid())
	assert.False(t, loyalty.EntryKind("").Valid())
}

func TestNewIDs_Shape(t *testing.T) {
	cid := loyalty.NewCustomerID()
	assert.True(t, strings.HasPrefix(cid, "CUS-"))
	assert.Len(t, cid, 12)

	at := time.Date(2026, time.May, 2, 0, 0, 0, 0, time.UTC)
	tid := loyalty.NewTransactionID(at)
	assert.True(t, strings.HasPrefix(tid, "TX-20260502-"))
}
