package store

import (
	"errors"
	"fmt"
)

// 任务存储错误,HTTP 层翻译为稳定的状态码
var (
	// ErrNotFound 任务不存在
	ErrNotFound = errors.New("task not found")
	// ErrInvalidParams 参数非法(未知任务类型等)
	ErrInvalidParams = errors.New("invalid params")
	// ErrIllegalTransition 非法状态迁移
	ErrIllegalTransition = errors.New("illegal status transition")
	// ErrConflict 并发写冲突
	ErrConflict = errors.New("conflict")
)

// TransientError 标记可重试的存储层瞬时错误
// 执行器据此决定 running → approved 的重新排队
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("store unavailable: %v", e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// IsTransient 判断错误是否为存储层瞬时错误
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
