package loader

import (
	"errors"
	"fmt"
)

// Kind 区分加载流程中的硬失败类型。
type Kind int

const (
	KindResolutionTransport Kind = iota + 1
	KindResolutionHTTP
	KindArtifactFetch
	KindArtifactExecution
	KindArtifactMissing
)

func (k Kind) String() string {
	switch k {
	case KindResolutionTransport:
		return "ResolutionTransportFailure"
	case KindResolutionHTTP:
		return "ResolutionHttpFailure"
	case KindArtifactFetch:
		return "ArtifactFetchFailure"
	case KindArtifactExecution:
		return "ArtifactExecutionFailure"
	case KindArtifactMissing:
		return "ArtifactMissingFailure"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

var (
	// ErrNoModule 表示产物执行完毕但从未调用 define。
	ErrNoModule = errors.New("no module produced")
	// ErrMalformedMetadata 表示注册中心响应体无法解析为 Metadata。
	ErrMalformedMetadata = errors.New("malformed module metadata")
)

// StatusError 由适配器在远端返回 >= 400 时产生。
type StatusError struct {
	URL  string
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: status %d", e.URL, e.Code)
}

// Error 是返回给调用方的类型化失败，携带模块身份与可读原因。
type Error struct {
	Kind     Kind
	Identity Identity
	Detail   string
	Err      error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindResolutionTransport, KindResolutionHTTP:
		return fmt.Sprintf("failed to fetch bundle %s version %s from API, %s", e.Identity.Name, e.Identity.ContractVersion, e.Detail)
	default:
		return fmt.Sprintf("failed to load bundle %s version %s: %s", e.Identity.Name, e.Identity.ContractVersion, e.Detail)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsKind 判断 err 链上是否存在指定类型的 *Error。
func IsKind(err error, kind Kind) bool {
	var le *Error
	return errors.As(err, &le) && le.Kind == kind
}

// resolutionError 将注册中心适配器返回的错误归类为传输失败或 HTTP 失败。
func resolutionError(id Identity, err error) *Error {
	var status *StatusError
	switch {
	case errors.As(err, &status):
		return &Error{
			Kind:     KindResolutionHTTP,
			Identity: id,
			Detail:   fmt.Sprintf("with status %d and body '%s'", status.Code, status.Body),
			Err:      err,
		}
	case errors.Is(err, ErrMalformedMetadata):
		return &Error{Kind: KindResolutionHTTP, Identity: id, Detail: "while getting JSON body", Err: err}
	default:
		return &Error{Kind: KindResolutionTransport, Identity: id, Detail: "with error: " + err.Error(), Err: err}
	}
}

func fetchError(id Identity, err error) *Error {
	var status *StatusError
	if errors.As(err, &status) {
		return &Error{Kind: KindArtifactFetch, Identity: id, Detail: fmt.Sprintf("fetch failed, status %d", status.Code), Err: err}
	}
	return &Error{Kind: KindArtifactFetch, Identity: id, Detail: "fetch failed: " + err.Error(), Err: err}
}

func executionError(id Identity, err error) *Error {
	if errors.Is(err, ErrNoModule) {
		return &Error{Kind: KindArtifactMissing, Identity: id, Detail: ErrNoModule.Error(), Err: err}
	}
	return &Error{Kind: KindArtifactExecution, Identity: id, Detail: err.Error(), Err: err}
}
