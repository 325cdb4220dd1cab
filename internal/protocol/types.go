package protocol

// EtherType values carried in the link header. Data and ack frames belong to
// the transfer protocol; a request frame is the peer asking for a new input.
const (
	EtherTypeData    uint16 = 0x88B5
	EtherTypeRequest uint16 = 0x88B6
	EtherTypeAck     uint16 = 0x88B7
)
