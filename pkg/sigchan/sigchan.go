package sigchan

// Chan 边沿触发的唤醒信号
// 连接器用它打断重连退避等待：Emit 只表示"有事发生"，不携带数据，
// 重复 Emit 会被合并成一次唤醒
type Chan struct {
	c chan struct{}
}

// New 创建唤醒信号，bufferSize 决定可积压的未消费信号数
func New(bufferSize int) *Chan {
	return &Chan{c: make(chan struct{}, bufferSize)}
}

// Emit 发出唤醒，从不阻塞；积压已满时直接合并
func (c *Chan) Emit() {
	select {
	case c.c <- struct{}{}:
	default:
	}
}

// C 供 select 消费的接收端
func (c *Chan) C() <-chan struct{} {
	return c.c
}
