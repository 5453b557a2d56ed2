package seplos

import "errors"

var (
	// ErrChecksumMismatch 帧尾校验和与计算值不一致
	ErrChecksumMismatch = errors.New("checksum mismatch")
)

// Checksum 计算 Modbus RTU CRC16（多项式0xA001，初值0xFFFF）
// Seplos BMSv3 的帧校验和与标准 Modbus RTU 完全一致
func Checksum(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		crc ^= uint16(b)
		for i := 0; i < 8; i++ {
			if crc&0x0001 != 0 {
				crc = (crc >> 1) ^ 0xA001
			} else {
				crc >>= 1
			}
		}
	}
	return crc
}

// AppendChecksum 计算校验和并追加到帧尾（低字节在前）
func AppendChecksum(data []byte) []byte {
	crc := Checksum(data)
	out := make([]byte, len(data)+2)
	copy(out, data)
	out[len(data)] = byte(crc & 0xFF)
	out[len(data)+1] = byte(crc >> 8)
	return out
}

// VerifyChecksum 校验帧尾两字节校验和
// 长度不足3字节（地址+功能码+至少一个校验字节）直接判为失败
func VerifyChecksum(data []byte) bool {
	if len(data) < 3 {
		return false
	}
	crc := Checksum(data[:len(data)-2])
	if byte(crc&0xFF) != data[len(data)-2] {
		return false
	}
	if byte(crc>>8) != data[len(data)-1] {
		return false
	}
	return true
}
