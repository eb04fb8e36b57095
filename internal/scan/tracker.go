package scan

import "primescan/pkg/contract"

// Tracker 将逐个到来的素数折叠为 Run，只保留 head/best/tail 三个摘要。
//
// 每次 finalize 分配一个递增序号；Gap 额外推进序号以表示被丢弃的间隔。
// 邻接标志据此判定：
//   - headAndBest: best 恰为 head 之后的下一次 finalize；
//   - bestAndTail: tail 恰为 best 之后的下一次 finalize。
type Tracker struct {
	current contract.Run
	best    contract.Run
	head    contract.Run
	tail    contract.Run

	ord    uint64
	headAt uint64
	bestAt uint64
	tailAt uint64

	headAndBest bool
	bestAndTail bool
}

// Add 尝试将 (value, offset) 接到当前链；不接续时冻结当前链并以该元素开启新链。
func (t *Tracker) Add(value, offset uint64) error {
	ok, err := t.current.Append(value, offset)
	if err != nil || ok {
		return err
	}
	t.finalize()
	_, err = t.current.Append(value, offset)
	return err
}

// Offer 冻结当前链后以 r 作为新的当前链（聚合器的累加器用法）。空 r 被忽略。
func (t *Tracker) Offer(r contract.Run) error {
	t.finalize()
	_, err := t.current.Concat(r)
	return err
}

// Gap 冻结当前链，并标记其后内容与之前不相邻。
func (t *Tracker) Gap() {
	t.finalize()
	t.ord++
}

func (t *Tracker) finalize() {
	if t.current.IsEmpty() {
		return
	}
	t.ord++
	cur := t.current
	t.current = contract.Run{}

	if t.best.IsEmpty() {
		t.head, t.best, t.tail = cur, cur, cur
		t.headAt, t.bestAt, t.tailAt = t.ord, t.ord, t.ord
		t.headAndBest, t.bestAndTail = false, false
		return
	}
	if cur.Worse(t.best) {
		t.tail, t.tailAt = cur, t.ord
	} else {
		t.best, t.bestAt = cur, t.ord
		t.tail, t.tailAt = cur, t.ord
	}
	t.headAndBest = t.bestAt == t.headAt+1
	t.bestAndTail = t.tailAt == t.bestAt+1
}

// Best 冻结未完成的链后返回 best。
func (t *Tracker) Best() contract.Run { t.finalize(); return t.best }

// Head 冻结未完成的链后返回 head。
func (t *Tracker) Head() contract.Run { t.finalize(); return t.head }

// Tail 冻结未完成的链后返回 tail。
func (t *Tracker) Tail() contract.Run { t.finalize(); return t.tail }

// HeadAndBest 报告 best 是否紧随 head（其间无被丢弃的尝试）。
func (t *Tracker) HeadAndBest() bool { t.finalize(); return t.headAndBest }

// BestAndTail 报告 tail 是否紧随 best。
func (t *Tracker) BestAndTail() bool { t.finalize(); return t.bestAndTail }
