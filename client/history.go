package client

import "arenagame/protocol"

const nilSeq int64 = -1

// Record is one applied server event.
type Record struct {
	Seq      int64
	Envelope protocol.Envelope
}

// History keeps the most recent server events in a fixed-size ring.
type History struct {
	records []Record
	index   int
	seq     int64
}

func newRingBuffer(maxCapacity int) []Record {
	records := make([]Record, maxCapacity)
	for i := range records {
		records[i].Seq = nilSeq
	}
	return records
}

func NewHistory(maxCapacity int) *History {
	if maxCapacity < 1 {
		maxCapacity = 1
	}
	return &History{
		records: newRingBuffer(maxCapacity),
		seq:     nilSeq,
	}
}

func (h *History) Clear() {
	h.records = newRingBuffer(cap(h.records))
	h.index = 0
	h.seq = nilSeq
}

func (h *History) Add(env protocol.Envelope) {
	index := (h.index + 1) % cap(h.records)
	if h.records[h.index].Seq == nilSeq {
		index = h.index
	}
	h.seq++
	h.index = index
	h.records[index] = Record{Seq: h.seq, Envelope: env}
}

// Current is the latest record, or nil when nothing has been added.
func (h *History) Current() *Record {
	current := &h.records[h.index]
	if current.Seq == nilSeq {
		return nil
	}
	return current
}

// Records returns the retained records, oldest first.
func (h *History) Records() []Record {
	out := make([]Record, 0, cap(h.records))
	for i := 1; i <= cap(h.records); i++ {
		r := h.records[(h.index+i)%cap(h.records)]
		if r.Seq != nilSeq {
			out = append(out, r)
		}
	}
	return out
}
