package gc

import "github.com/tangzhangming/novacore/internal/object"

// 代链表
//
// 每一代是一个以哨兵对象头为首尾的环形双向链表，链接字段在 object.GCHead 中。

func listInit(head *object.Header) {
	head.GC.Next = head
	head.GC.Prev = head
}

func listEmpty(head *object.Header) bool {
	return head.GC.Next == head
}

func listAppend(h, head *object.Header) {
	last := head.GC.Prev
	h.GC.Prev = last
	h.GC.Next = head
	last.GC.Next = h
	head.GC.Prev = h
}

func listRemove(h *object.Header) {
	h.GC.Prev.GC.Next = h.GC.Next
	h.GC.Next.GC.Prev = h.GC.Prev
	h.GC.Prev = nil
	h.GC.Next = nil
}

func listMove(h, to *object.Header) {
	h.GC.Prev.GC.Next = h.GC.Next
	h.GC.Next.GC.Prev = h.GC.Prev
	listAppend(h, to)
}

// listMerge 把 from 整体接到 to 的尾部，from 变空
func listMerge(from, to *object.Header) {
	if listEmpty(from) {
		return
	}
	tail := to.GC.Prev
	tail.GC.Next = from.GC.Next
	from.GC.Next.GC.Prev = tail
	to.GC.Prev = from.GC.Prev
	to.GC.Prev.GC.Next = to
	listInit(from)
}

func listSize(head *object.Header) int {
	n := 0
	for h := head.GC.Next; h != head; h = h.GC.Next {
		n++
	}
	return n
}

// listSetGen 更新链表中所有对象记录的代号
func listSetGen(head *object.Header, gen int8) {
	for h := head.GC.Next; h != head; h = h.GC.Next {
		h.GC.Gen = gen
	}
}
