package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by stores when a record does not exist.
var ErrNotFound = errors.New("record not found")

// AlarmStatus is the computed lifecycle status of an alarm record.
type AlarmStatus int

const (
	// StatusOff means the item is healthy.
	StatusOff AlarmStatus = 0
	// StatusOngoing means the item is in a confirmed alarm.
	StatusOngoing AlarmStatus = 1
	// StatusStealthy means a change happened inside the stealthy window.
	StatusStealthy AlarmStatus = 2
	// StatusBagot means the item is flapping.
	StatusBagot AlarmStatus = 3
	// StatusCancelled means an operator cancelled the alarm.
	StatusCancelled AlarmStatus = 4
)

// IsValid returns true if the status is one of the five known values.
func (s AlarmStatus) IsValid() bool {
	return s >= StatusOff && s <= StatusCancelled
}

func (s AlarmStatus) String() string {
	switch s {
	case StatusOff:
		return "off"
	case StatusOngoing:
		return "ongoing"
	case StatusStealthy:
		return "stealthy"
	case StatusBagot:
		return "bagot"
	case StatusCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Alarm record fields maintained by the state machine.
const (
	FieldStatus                = "status"
	FieldBagotFreq             = "bagot_freq"
	FieldTsFirstStealthy       = "ts_first_stealthy"
	FieldTsFirstBagot          = "ts_first_bagot"
	FieldLastStateChange       = "last_state_change"
	FieldPreviousState         = "previous_state"
	FieldPreviousStateChangeTs = "previous_state_change_ts"
	FieldAck                   = "ack"
	FieldCancel                = "cancel"
	FieldTicketDeclared        = "ticket_declared"
	FieldKeepState             = "keep_state"
	FieldProcessing            = "processing"
)

// Permission fields stamped on new alarm records.
const (
	FieldOwner       = "crecord_owner"
	FieldOwnerRead   = "crecord_owner_read"
	FieldGroupRead   = "crecord_group_read"
	FieldOtherRead   = "crecord_other_read"
	DefaultRecordOwn = "root"
)

// Status reads the alarm status stored on an event or record. Absent or
// unknown values read as StatusOff.
func (e Event) Status() AlarmStatus {
	v, ok := e.Int(FieldStatus)
	if !ok {
		return StatusOff
	}
	s := AlarmStatus(v)
	if !s.IsValid() {
		return StatusOff
	}
	return s
}
