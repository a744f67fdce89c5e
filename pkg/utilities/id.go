package utilities

import (
	"crypto/rand"
	"os"
	"strconv"
	"sync"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/segmentio/ksuid"
)

// NewKSUID generates a new globally unique KSUID string. Used for session ids.
func NewKSUID() string {
	return ksuid.New().String()
}

// NewUUID returns a random UUID string.
func NewUUID() string {
	return uuid.NewString()
}

// NewULID returns a lexicographically sortable id, used as an idempotency
// reference for partner calls.
func NewULID() string {
	return ulid.MustNew(ulid.Now(), rand.Reader).String()
}

var (
	nodeOnce sync.Once
	node     *snowflake.Node
)

// NewSnowflakeID returns a snowflake id for customers and loans. The node
// comes from SNOWFLAKE_NODE (default 1); an invalid node falls back to KSUID.
func NewSnowflakeID() string {
	nodeOnce.Do(func() {
		nodeID := int64(1)
		if v, err := strconv.ParseInt(os.Getenv("SNOWFLAKE_NODE"), 10, 64); err == nil {
			nodeID = v
		}
		// a nil node makes every call fall back to KSUID
		node, _ = snowflake.NewNode(nodeID)
	})
	if node == nil {
		return NewKSUID()
	}
	return node.Generate().String()
}
