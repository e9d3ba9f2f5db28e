package spidev

import "go.uber.org/atomic"

// Stats counts the traffic a device handle has issued.
type Stats struct {
	Messages     uint64
	BytesOut     uint64
	BytesIn      uint64
	DriverErrors uint64
}

type stats struct {
	messages     atomic.Uint64
	bytesOut     atomic.Uint64
	bytesIn      atomic.Uint64
	driverErrors atomic.Uint64
}

func (s *stats) snapshot() Stats {
	return Stats{
		Messages:     s.messages.Load(),
		BytesOut:     s.bytesOut.Load(),
		BytesIn:      s.bytesIn.Load(),
		DriverErrors: s.driverErrors.Load(),
	}
}

func (s *stats) recordMessage(transfers []Transfer) {
	s.messages.Inc()
	for _, t := range transfers {
		if len(t.Tx) != 0 {
			s.bytesOut.Add(uint64(len(t.Tx)))
		}
		if len(t.Rx) != 0 {
			s.bytesIn.Add(uint64(len(t.Rx)))
		}
	}
}
