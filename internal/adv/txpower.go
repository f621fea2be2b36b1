package adv

// TxPowerAbsent is returned by TxPowerLevel when the frame carries no
// Tx-Power AD structure. 127 dBm is outside the legal BLE advertised
// power range, so it can never collide with a real measurement; callers
// must check for it before treating the value as data.
const TxPowerAbsent int8 = 127

// TxPowerLevel extracts the advertised transmit power from the standard
// Tx-Power AD structure (type 0x0A, one signed dBm byte). The first such
// structure wins. Returns TxPowerAbsent when the frame has none.
func TxPowerLevel(frame []byte) int8 {
	for _, s := range Walk(frame) {
		if s.Type == TypeTxPower && len(s.Data) >= 1 {
			return int8(s.Data[0])
		}
	}
	return TxPowerAbsent
}
