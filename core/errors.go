package core

import "errors"

// DomainError 是领域层的统一错误类型。
//
// 使用场景：
//   - Store 错误：NOT_FOUND, NOT_SUPPORTED
//   - Recall 错误：候选来源不可用、候选契约违反
//   - Taste 错误：活动数据源不可用
type DomainError struct {
	Code    string // 错误代码（如 "NOT_FOUND", "UNAVAILABLE"）
	Message string // 错误消息
	Module  string // 模块名称（如 "store", "recall", "taste"）
	Err     error  // 底层错误，可为空
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError 创建新的领域错误
func NewDomainError(module, code, message string) *DomainError {
	return &DomainError{
		Module:  module,
		Code:    code,
		Message: message,
	}
}

// WrapDomainError 创建携带底层错误的领域错误
func WrapDomainError(module, code, message string, err error) *DomainError {
	return &DomainError{
		Module:  module,
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// GetDomainError 沿错误链查找 DomainError，找不到返回 nil
func GetDomainError(err error) *DomainError {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	return nil
}

// 错误代码常量
const (
	ErrorCodeNotFound          = "NOT_FOUND"          // 资源不存在
	ErrorCodeNotSupported      = "NOT_SUPPORTED"      // 操作不支持
	ErrorCodeUnavailable       = "UNAVAILABLE"        // 服务不可用
	ErrorCodeInvalidInput      = "INVALID_INPUT"      // 输入无效
	ErrorCodeContractViolation = "CONTRACT_VIOLATION" // 来源违反候选契约
	ErrorCodeInternalError     = "INTERNAL_ERROR"     // 内部错误
)

// 模块名称常量
const (
	ModuleStore   = "store"
	ModuleRecall  = "recall"
	ModuleRank    = "rank"
	ModuleCache   = "cache"
	ModuleTaste   = "taste"
	ModuleFeature = "feature"
	ModuleService = "service"
)

func hasCode(err error, code string) bool {
	if domainErr := GetDomainError(err); domainErr != nil {
		return domainErr.Code == code
	}
	return false
}

// IsNotFound 检查错误是否为 NOT_FOUND
func IsNotFound(err error) bool { return hasCode(err, ErrorCodeNotFound) }

// IsNotSupported 检查错误是否为 NOT_SUPPORTED
func IsNotSupported(err error) bool { return hasCode(err, ErrorCodeNotSupported) }

// IsUnavailable 检查错误是否为 UNAVAILABLE
func IsUnavailable(err error) bool { return hasCode(err, ErrorCodeUnavailable) }

// IsContractViolation 检查错误是否为 CONTRACT_VIOLATION
func IsContractViolation(err error) bool { return hasCode(err, ErrorCodeContractViolation) }
