package execution

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// IDSource 生成交易与意图 ID。
type IDSource interface {
	NewID() string
}

// RandomIDs 使用 uuid v4，用于 LIVE/PAPER。
type RandomIDs struct{}

func (RandomIDs) NewID() string { return uuid.NewString() }

// SequentialIDs 以运行 ID 为命名空间按序号生成 uuid v5，同一次回测重放得到相同 ID。
type SequentialIDs struct {
	mu  sync.Mutex
	ns  uuid.UUID
	seq uint64
}

func NewSequentialIDs(runID string) *SequentialIDs {
	return &SequentialIDs{ns: uuid.NewSHA1(uuid.NameSpaceOID, []byte(runID))}
}

func (s *SequentialIDs) NewID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	return uuid.NewSHA1(s.ns, []byte(fmt.Sprintf("%d", s.seq))).String()
}
