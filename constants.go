package rsm

import "github.com/wang-russell/rsm/internal/constants"

// Re-export wire-stable constants for the public API.
const (
	InvalidCid     = constants.InvalidCid
	SystemCidStart = constants.SystemCidStart
	SystemCidEnd   = constants.SystemCidEnd
	UserCidStart   = constants.UserCidStart

	InvalidMessageID   = constants.InvalidMessageID
	UserMessageIDStart = constants.UserMessageIDStart
	MsgIDMasterPowerOn = constants.MsgIDMasterPowerOn
	MsgIDSlavePowerOn  = constants.MsgIDSlavePowerOn
	MsgIDPowerOnAck    = constants.MsgIDPowerOnAck
	MsgIDPowerOff      = constants.MsgIDPowerOff
	MsgIDTimer         = constants.MsgIDTimer
	MsgIDSocket        = constants.MsgIDSocket

	SockEventRead  = constants.SockEventRead
	SockEventWrite = constants.SockEventWrite
	SockEventNew   = constants.SockEventNew
	SockEventErr   = constants.SockEventErr
	SockEventClose = constants.SockEventClose

	MaxQueueLen     = constants.MaxQueueLen
	DefaultQueueLen = constants.DefaultQueueLen
)
