package registry

import "github.com/gopcua/opcua/ua"

// Quality is a semantic tag on a value describing its trustworthiness,
// independent of the raw wire status code.
type Quality uint8

const (
	QualityGood Quality = iota
	QualityBad
	QualityUncertain
	QualityOld
	QualityCommFail
	QualityOutOfRange
	QualitySensorFail
	QualityCalibrating
	QualityMaintenance
)

func (q Quality) String() string {
	switch q {
	case QualityGood:
		return "Good"
	case QualityBad:
		return "Bad"
	case QualityUncertain:
		return "Uncertain"
	case QualityOld:
		return "Old"
	case QualityCommFail:
		return "CommFail"
	case QualityOutOfRange:
		return "OutOfRange"
	case QualitySensorFail:
		return "SensorFail"
	case QualityCalibrating:
		return "Calibrating"
	case QualityMaintenance:
		return "Maintenance"
	default:
		return "Unknown"
	}
}

// OPC UA status codes encode severity in their top two bits: 0x00 =
// Good, 0x40 = Uncertain, 0x80 = Bad (Part 4, §7.34).
const (
	severityMask      = 0xC0000000
	severityGood      = 0x00000000
	severityUncertain = 0x40000000
)

// FromStatusCode derives a Quality from a wire status code via a fixed
// table: the well-known communication-failure codes map to CommFail,
// out-of-range to OutOfRange, sensor/device failure to SensorFail;
// everything else falls back to the severity encoded in the status
// code's top bits.
func FromStatusCode(status ua.StatusCode) Quality {
	switch status {
	case ua.StatusOK:
		return QualityGood
	case ua.StatusBadCommunicationError, ua.StatusBadConnectionClosed, ua.StatusBadNotConnected, ua.StatusBadTimeout:
		return QualityCommFail
	case ua.StatusBadOutOfRange:
		return QualityOutOfRange
	case ua.StatusBadSensorFailure, ua.StatusBadDeviceFailure:
		return QualitySensorFail
	}

	switch uint32(status) & severityMask {
	case severityGood:
		return QualityGood
	case severityUncertain:
		return QualityUncertain
	default:
		return QualityBad
	}
}
