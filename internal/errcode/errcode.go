package errcode

// 错误码约定（WebSocket 通知中的 error_code 字段）：
// - 0：无错误
// - 4xxx：业务可恢复/告警类错误
// - 5xxx：系统错误
const (
	OK              = 0
	ResourceMissing = 4004
	DeliveryFailed  = 4010
	SystemError     = 5000
)
