package protocol

// MessageType values as per OCPP-J.
const (
	MessageTypeCall       = 2
	MessageTypeCallResult = 3
	MessageTypeCallError  = 4
)

// Actions initiated by the charge point.
const (
	ActionBootNotification              = "BootNotification"
	ActionHeartbeat                     = "Heartbeat"
	ActionStatusNotification            = "StatusNotification"
	ActionAuthorize                     = "Authorize"
	ActionStartTransaction              = "StartTransaction"
	ActionStopTransaction               = "StopTransaction"
	ActionMeterValues                   = "MeterValues"
	ActionDataTransfer                  = "DataTransfer"
	ActionFirmwareStatusNotification    = "FirmwareStatusNotification"
	ActionDiagnosticsStatusNotification = "DiagnosticsStatusNotification"
)

// Actions initiated by the central system. Charge points probing them inbound get a static answer.
const (
	ActionRemoteStartTransaction = "RemoteStartTransaction"
	ActionRemoteStopTransaction  = "RemoteStopTransaction"
	ActionUnlockConnector        = "UnlockConnector"
	ActionReset                  = "Reset"
	ActionReserveNow             = "ReserveNow"
	ActionCancelReservation      = "CancelReservation"
	ActionGetDiagnostics         = "GetDiagnostics"
	ActionSendLocalList          = "SendLocalList"
	ActionTriggerMessage         = "TriggerMessage"
	ActionSetChargingProfile     = "SetChargingProfile"
	ActionClearChargingProfile   = "ClearChargingProfile"
	ActionGetCompositeSchedule   = "GetCompositeSchedule"
	ActionGetConfiguration       = "GetConfiguration"
	ActionChangeConfiguration    = "ChangeConfiguration"
)

// CallError codes.
const (
	ErrorNotSupported       = "NotSupported"
	ErrorInternalError      = "InternalError"
	ErrorFormationViolation = "FormationViolation"
	ErrorProtocolError      = "ProtocolError"
)

// Generic status values used in confirmations.
const (
	StatusAccepted = "Accepted"
	StatusRejected = "Rejected"
	StatusUnlocked = "Unlocked"
)

// Station and connector status values.
const (
	StatusAvailable     = "Available"
	StatusOccupied      = "Occupied"
	StatusFaulted       = "Faulted"
	StatusUnavailable   = "Unavailable"
	StatusReserved      = "Reserved"
	StatusPreparing     = "Preparing"
	StatusCharging      = "Charging"
	StatusSuspendedEVSE = "SuspendedEVSE"
	StatusSuspendedEV   = "SuspendedEV"
	StatusFinishing     = "Finishing"
)

// NoError is the error code of a healthy connector.
const NoError = "NoError"

// StartableConnectorStatuses lists connector states that accept a new transaction.
var StartableConnectorStatuses = []string{StatusAvailable, StatusPreparing, StatusReserved}
