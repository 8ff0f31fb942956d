package ackhandler

import (
	"time"

	"github.com/lucas-clemente/quic-recovery/internal/protocol"
	"github.com/lucas-clemente/quic-recovery/internal/wire"
)

// FrameRecord is one in-flight frame, tagged with everything the loss
// detector, congestion controller, and retransmission policy need.
type FrameRecord struct {
	Pnum             protocol.PacketNumber
	SendTime         time.Time
	Length           protocol.ByteCount
	Level            protocol.EncryptionLevel
	IgnoreCongestion bool
	Frame            wire.Frame
}

// frameElement is one node of a frameList: an intrusive doubly linked
// list node whose handle (the *frameElement pointer) gives O(1)
// removal from the middle of the list.
type frameElement struct {
	Value      FrameRecord
	next, prev *frameElement
	list       *frameList
}

// Next returns the next list element or nil.
func (e *frameElement) Next() *frameElement {
	if n := e.next; e.list != nil && n != &e.list.root {
		return n
	}
	return nil
}

// Prev returns the previous list element or nil.
func (e *frameElement) Prev() *frameElement {
	if p := e.prev; e.list != nil && p != &e.list.root {
		return p
	}
	return nil
}

// frameList is an ordered, append-only-at-the-tail, O(1)-removal-anywhere
// doubly linked list of FrameRecords, one sent frame per element.
type frameList struct {
	root frameElement
	len  int
}

func newFrameList() *frameList {
	l := &frameList{}
	l.root.next = &l.root
	l.root.prev = &l.root
	return l
}

// Len returns the number of elements in the list.
func (l *frameList) Len() int { return l.len }

// Front returns the first element, or nil if the list is empty.
func (l *frameList) Front() *frameElement {
	if l.len == 0 {
		return nil
	}
	return l.root.next
}

// Back returns the last element, or nil if the list is empty.
func (l *frameList) Back() *frameElement {
	if l.len == 0 {
		return nil
	}
	return l.root.prev
}

// PushBack appends a new record at the tail. Callers must only ever
// push non-decreasing packet numbers (frames of one packet share its
// number), keeping the list ordered.
func (l *frameList) PushBack(v FrameRecord) *frameElement {
	e := &frameElement{Value: v, list: l}
	at := l.root.prev
	e.prev = at
	e.next = at.next
	e.prev.next = e
	e.next.prev = e
	l.len++
	return e
}

// Remove detaches e from the list in O(1).
func (l *frameList) Remove(e *frameElement) FrameRecord {
	e.prev.next = e.next
	e.next.prev = e.prev
	e.next = nil
	e.prev = nil
	e.list = nil
	l.len--
	return e.Value
}
