package push

import (
	"fmt"
	"testing"
)

func TestChunkBatchLimit(t *testing.T) {
	cases := []struct {
		count     int
		wantSizes []int
	}{
		{0, nil},
		{1, []int{1}},
		{100, []int{100}},
		{101, []int{100, 1}},
		{250, []int{100, 100, 50}},
	}

	for _, tc := range cases {
		notifications := make([]Notification, tc.count)
		for i := range notifications {
			notifications[i] = Notification{To: fmt.Sprintf("token-%d", i)}
		}

		chunks := chunk(notifications, maxBatchSize)
		if len(chunks) != len(tc.wantSizes) {
			t.Errorf("count=%d: got %d chunks, want %d", tc.count, len(chunks), len(tc.wantSizes))
			continue
		}
		for i, c := range chunks {
			if len(c) != tc.wantSizes[i] {
				t.Errorf("count=%d: chunk %d size = %d, want %d", tc.count, i, len(c), tc.wantSizes[i])
			}
			if len(c) > maxBatchSize {
				t.Errorf("count=%d: chunk %d exceeds batch limit", tc.count, i)
			}
		}
	}
}
