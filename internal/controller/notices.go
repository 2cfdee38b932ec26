package controller

import (
	"sync"
	"time"
)

// noticeBuffer is the per-subscriber channel capacity. A subscriber
// that falls further behind loses notices.
const noticeBuffer = 16

// NoticeKind labels a session notice.
type NoticeKind string

const (
	NoticeReconciled  NoticeKind = "reconciled"
	NoticePulled      NoticeKind = "pulled"
	NoticePushed      NoticeKind = "pushed"
	NoticeConflict    NoticeKind = "conflict"
	NoticeLocalChange NoticeKind = "local-change"
	NoticeError       NoticeKind = "error"
)

// Notice is one user-facing event emitted by the session.
type Notice struct {
	Time    time.Time  `json:"time"`
	Kind    NoticeKind `json:"kind"`
	Message string     `json:"message"`
}

// noticeHub fans notices out to subscribers. Publishing never blocks.
type noticeHub struct {
	mu   sync.Mutex
	subs map[int]chan Notice
	next int
}

func newNoticeHub() *noticeHub {
	return &noticeHub{subs: make(map[int]chan Notice)}
}

func (h *noticeHub) publish(n Notice) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, ch := range h.subs {
		select {
		case ch <- n:
		default:
		}
	}
}

func (h *noticeHub) subscribe() (<-chan Notice, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan Notice, noticeBuffer)
	id := h.next
	h.next++
	h.subs[id] = ch

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()

		if _, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(ch)
		}
	}

	return ch, cancel
}
