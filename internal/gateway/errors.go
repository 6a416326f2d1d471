package gateway

import (
	"errors"
	"fmt"
)

// AuthError 设备认证失败,不重试
type AuthError struct {
	Device string
	Err    error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed for device %s: %v", e.Device, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// UnreachableError 连接超时或网络不可达
type UnreachableError struct {
	Device string
	Err    error
}

func (e *UnreachableError) Error() string {
	return fmt.Sprintf("device %s unreachable: %v", e.Device, e.Err)
}

func (e *UnreachableError) Unwrap() error { return e.Err }

// DialogTimeout 命令对话超时,携带已收到的部分输出
type DialogTimeout struct {
	Device  string
	Command string
	Partial string
}

func (e *DialogTimeout) Error() string {
	return fmt.Sprintf("dialog timeout on device %s waiting after %q", e.Device, e.Command)
}

// BusyError 等待设备锁超时
type BusyError struct {
	Device string
}

func (e *BusyError) Error() string {
	return fmt.Sprintf("device %s is busy: lock wait timed out", e.Device)
}

// SessionLost 会话中断且重连后再次失败
type SessionLost struct {
	Device string
	Err    error
}

func (e *SessionLost) Error() string {
	return fmt.Sprintf("session lost on device %s: %v", e.Device, e.Err)
}

func (e *SessionLost) Unwrap() error { return e.Err }

// IsRetryable 判断错误是否值得在设备层面重试
// 只有不可达与会话丢失可重试,认证失败和对话超时不重试
func IsRetryable(err error) bool {
	var unreachable *UnreachableError
	var lost *SessionLost
	return errors.As(err, &unreachable) || errors.As(err, &lost)
}
