package crc

// CRC-16/XMODEM: poly 0x1021, init 0, no reflection.
const CRC_POLY_1021 uint16 = 0x1021

var table1021 [256]uint16

func init() {
	for i := 0; i < 256; i++ {
		table1021[i] = CRC16_p1021_reference(0, byte(i))
	}
}

func CRC16_p1021_reference(crc uint16, data byte) uint16 {
	crc ^= uint16(data) << 8
	var i byte = 0
	for ; i < 8; i++ {
		if (crc & 0x8000) != 0 {
			crc <<= 1
			crc ^= CRC_POLY_1021
		} else {
			crc <<= 1
		}
	}
	return crc
}

func CRC16_p1021_next(crc uint16, data byte) uint16 {
	return (crc << 8) ^ table1021[byte(crc>>8)^data]
}

func CRC16_p1021_n(crc uint16, bs []byte) uint16 {
	for _, b := range bs {
		crc = CRC16_p1021_next(crc, b)
	}
	return crc
}
