package sigchan

import "testing"

func TestEmitNeverBlocks(t *testing.T) {
	c := New(1)
	// 超出积压容量的 Emit 必须被合并而不是阻塞
	for i := 0; i < 10; i++ {
		c.Emit()
	}
	select {
	case <-c.C():
	default:
		t.Fatalf("expected a pending wakeup")
	}
	select {
	case <-c.C():
		t.Fatalf("repeated emits must coalesce into one wakeup")
	default:
	}
}

func TestEmptyChanDoesNotWake(t *testing.T) {
	c := New(1)
	select {
	case <-c.C():
		t.Fatalf("no emit, no wakeup")
	default:
	}
}
