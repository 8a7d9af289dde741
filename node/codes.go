package node

import "fmt"

// Command is the first byte of a request frame.
type Command byte

const (
	CmdAppStart          Command = 1
	CmdSendTxtMsg        Command = 2
	CmdSendChannelTxtMsg Command = 3
	CmdGetContacts       Command = 4
	CmdGetDeviceTime     Command = 5
	CmdSetDeviceTime     Command = 6
	CmdSendSelfAdvert    Command = 7
	CmdSetAdvertName     Command = 8
	CmdAddUpdateContact  Command = 9
	CmdSyncNextMessage   Command = 10
	CmdSetRadioParams    Command = 11
	CmdSetTxPower        Command = 12
	CmdResetPath         Command = 13
	CmdSetAdvertLatLon   Command = 14
	CmdRemoveContact     Command = 15
	CmdShareContact      Command = 16
	CmdExportContact     Command = 17
	CmdImportContact     Command = 18
	CmdReboot            Command = 19
	CmdGetBatteryVoltage Command = 20
	CmdDeviceQuery       Command = 22
	CmdExportPrivateKey  Command = 23
	CmdImportPrivateKey  Command = 24
	CmdSendRawData       Command = 25
	CmdSendLogin         Command = 26
	CmdSendStatusReq     Command = 27
	CmdGetChannel        Command = 31
	CmdSetChannel        Command = 32
	CmdSignStart         Command = 33
	CmdSignData          Command = 34
	CmdSignFinish        Command = 35
	CmdSendTracePath     Command = 36
	CmdSetOtherParams    Command = 38
	CmdSendTelemetryReq  Command = 39
	CmdSendBinaryReq     Command = 50
)

var commandNames = map[Command]string{
	CmdAppStart:          "app_start",
	CmdSendTxtMsg:        "send_txt_msg",
	CmdSendChannelTxtMsg: "send_channel_txt_msg",
	CmdGetContacts:       "get_contacts",
	CmdGetDeviceTime:     "get_device_time",
	CmdSetDeviceTime:     "set_device_time",
	CmdSendSelfAdvert:    "send_self_advert",
	CmdSetAdvertName:     "set_advert_name",
	CmdAddUpdateContact:  "add_update_contact",
	CmdSyncNextMessage:   "sync_next_message",
	CmdSetRadioParams:    "set_radio_params",
	CmdSetTxPower:        "set_tx_power",
	CmdResetPath:         "reset_path",
	CmdSetAdvertLatLon:   "set_advert_lat_lon",
	CmdRemoveContact:     "remove_contact",
	CmdShareContact:      "share_contact",
	CmdExportContact:     "export_contact",
	CmdImportContact:     "import_contact",
	CmdReboot:            "reboot",
	CmdGetBatteryVoltage: "get_battery_voltage",
	CmdDeviceQuery:       "device_query",
	CmdExportPrivateKey:  "export_private_key",
	CmdImportPrivateKey:  "import_private_key",
	CmdSendRawData:       "send_raw_data",
	CmdSendLogin:         "send_login",
	CmdSendStatusReq:     "send_status_req",
	CmdGetChannel:        "get_channel",
	CmdSetChannel:        "set_channel",
	CmdSignStart:         "sign_start",
	CmdSignData:          "sign_data",
	CmdSignFinish:        "sign_finish",
	CmdSendTracePath:     "send_trace_path",
	CmdSetOtherParams:    "set_other_params",
	CmdSendTelemetryReq:  "send_telemetry_req",
	CmdSendBinaryReq:     "send_binary_req",
}

func (c Command) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return fmt.Sprintf("cmd_%d", byte(c))
}

// Response is the first byte of a reply to a request.
type Response byte

const (
	RespOk             Response = 0
	RespErr            Response = 1
	RespContactsStart  Response = 2
	RespContact        Response = 3
	RespEndOfContacts  Response = 4
	RespSelfInfo       Response = 5
	RespSent           Response = 6
	RespContactMsgRecv Response = 7
	RespChannelMsgRecv Response = 8
	RespCurrTime       Response = 9
	RespNoMoreMessages Response = 10
	RespExportContact  Response = 11
	RespBatteryVoltage Response = 12
	RespDeviceInfo     Response = 13
	RespPrivateKey     Response = 14
	RespDisabled       Response = 15
	RespChannelInfo    Response = 18
	RespSignStart      Response = 19
	RespSignature      Response = 20
)

// Push is the first byte of an unsolicited frame.
type Push byte

const (
	PushAdvert            Push = 0x80
	PushPathUpdated       Push = 0x81
	PushSendConfirmed     Push = 0x82
	PushMsgWaiting        Push = 0x83
	PushRawData           Push = 0x84
	PushLoginSuccess      Push = 0x85
	PushLoginFail         Push = 0x86
	PushStatusResponse    Push = 0x87
	PushLogRxData         Push = 0x88
	PushTraceData         Push = 0x89
	PushNewAdvert         Push = 0x8A
	PushTelemetryResponse Push = 0x8B
	PushBinaryResponse    Push = 0x8C
)

// ErrorCode is the body of an Err response.
type ErrorCode byte

const (
	ErrCodeUnsupportedCmd ErrorCode = 1
	ErrCodeNotFound       ErrorCode = 2
	ErrCodeTableFull      ErrorCode = 3
	ErrCodeBadState       ErrorCode = 4
	ErrCodeFileIoError    ErrorCode = 5
	ErrCodeIllegalArg     ErrorCode = 6
)

func (c ErrorCode) String() string {
	switch c {
	case ErrCodeUnsupportedCmd:
		return "unsupported_cmd"
	case ErrCodeNotFound:
		return "not_found"
	case ErrCodeTableFull:
		return "table_full"
	case ErrCodeBadState:
		return "bad_state"
	case ErrCodeFileIoError:
		return "file_io_error"
	case ErrCodeIllegalArg:
		return "illegal_arg"
	default:
		return fmt.Sprintf("err_%d", byte(c))
	}
}
