package playback

import (
	"sort"
)

// segmentBuffer 按序重组一段音频的块。块序号从1开始，
// 乱序到达的块先暂存，直到缺口补齐才放行。
type segmentBuffer struct {
	pending      map[int][]byte
	expectedNext int
	delivered    int
	ended        bool
	totalChunks  int
}

func newSegmentBuffer() *segmentBuffer {
	return &segmentBuffer{
		pending:      make(map[int][]byte),
		expectedNext: 1,
	}
}

// add 暂存一块并返回当前可以按序放行的块
func (b *segmentBuffer) add(chunkIndex int, data []byte) [][]byte {
	if chunkIndex < b.expectedNext {
		// 重复块，丢弃
		return nil
	}
	b.pending[chunkIndex] = data

	var ready [][]byte
	for {
		data, ok := b.pending[b.expectedNext]
		if !ok {
			break
		}
		delete(b.pending, b.expectedNext)
		ready = append(ready, data)
		b.expectedNext++
		b.delivered++
	}
	return ready
}

// end 标记段结束，返回仍然缺口未放行的块序号
func (b *segmentBuffer) end(totalChunks int) []int {
	b.ended = true
	b.totalChunks = totalChunks

	if len(b.pending) == 0 {
		return nil
	}
	stuck := make([]int, 0, len(b.pending))
	for idx := range b.pending {
		stuck = append(stuck, idx)
	}
	sort.Ints(stuck)
	return stuck
}

func (b *segmentBuffer) pendingCount() int {
	return len(b.pending)
}
