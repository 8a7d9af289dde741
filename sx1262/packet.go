package sx1262

import "fmt"

// PacketStatus carries the link quality of the last received packet.
type PacketStatus struct {
	// RSSI averaged over the packet, in dBm.
	RSSI float32
	// SNR estimate, in dB.
	SNR float32
	// SignalRSSI is the despread signal power, in dBm.
	SignalRSSI float32
}

func (s PacketStatus) String() string {
	return fmt.Sprintf("rssi=%.1fdBm snr=%.2fdB", s.RSSI, s.SNR)
}

// decodePacketStatus converts the raw GetPacketStatus bytes.
func decodePacketStatus(rssiPkt, snrPkt, signalRssi byte) PacketStatus {
	return PacketStatus{
		RSSI:       -float32(rssiPkt) / 2,
		SNR:        float32(int8(snrPkt)) / 4,
		SignalRSSI: -float32(signalRssi) / 2,
	}
}

// Packet is one frame read from the chip FIFO.
type Packet struct {
	Data   []byte
	Status PacketStatus
}
