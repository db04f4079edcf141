package ids

import (
	"strconv"
	"sync"
	"time"
)

// Generator produces 64-bit snowflake ids: 41 bits of milliseconds since epoch,
// 10 bits of node id and a 12 bit per-millisecond sequence.
// Ids from one generator are strictly increasing.
type Generator struct {
	mu       sync.Mutex
	epochMS  int64
	nodeID   int64 // 0~1023
	seq      int64 // 0~4095
	lastTSMS int64
	now      func() time.Time
}

var (
	defaultGen *Generator
	once       sync.Once
)

var defaultEpoch = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

// NewGenerator creates a generator for nodeID. Out of range node ids become 1.
func NewGenerator(nodeID int64) *Generator {
	if nodeID < 0 || nodeID > 1023 {
		nodeID = 1
	}
	return &Generator{
		epochMS: defaultEpoch.UnixMilli(),
		nodeID:  nodeID,
		now:     time.Now,
	}
}

func initDefault() {
	once.Do(func() {
		defaultGen = NewGenerator(1)
	})
}

// Default returns the process-wide generator.
func Default() *Generator {
	initDefault()
	return defaultGen
}

// SetNodeID sets the node id (0~1023) of the process-wide generator; call it once in main.
func SetNodeID(nodeID int64) {
	initDefault()
	if nodeID < 0 || nodeID > 1023 {
		nodeID = 1
	}
	defaultGen.mu.Lock()
	defaultGen.nodeID = nodeID
	defaultGen.mu.Unlock()
}

// NextString is Next formatted in base 10.
func (g *Generator) NextString() string {
	return strconv.FormatInt(g.Next(), 10)
}

func (g *Generator) Next() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	for {
		now := g.now().UnixMilli()
		if now < g.lastTSMS {
			// clock moved backwards, wait it out
			time.Sleep(time.Duration(g.lastTSMS-now) * time.Millisecond)
			continue
		}
		if now == g.lastTSMS {
			g.seq = (g.seq + 1) & 0xFFF
			if g.seq == 0 {
				// sequence exhausted for this millisecond
				for now <= g.lastTSMS {
					now = g.now().UnixMilli()
				}
			}
		} else {
			g.seq = 0
		}
		g.lastTSMS = now

		ts := (now - g.epochMS) & ((1 << 41) - 1)
		return (ts << 22) | (g.nodeID << 12) | g.seq
	}
}
