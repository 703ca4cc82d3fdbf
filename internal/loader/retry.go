package loader

import (
	"context"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"
)

// Retry 执行 op，失败时按 policy 以 InitialDelay, 2·InitialDelay, … 的间隔重试，
// 最多重试 MaxRetries 次；用尽后原样返回最后一次的错误。
func Retry[T any](ctx context.Context, policy RetryPolicy, op func(context.Context) (T, error)) (T, error) {
	return retry(ctx, policy, op, sleepContext)
}

func retry[T any](ctx context.Context, policy RetryPolicy, op func(context.Context) (T, error), sleep func(context.Context, time.Duration) error) (T, error) {
	backoff := wait.Backoff{
		Duration: policy.InitialDelay,
		Factor:   2,
		Steps:    policy.MaxRetries,
	}
	for {
		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		if backoff.Steps <= 0 {
			return v, err
		}
		if serr := sleep(ctx, backoff.Step()); serr != nil {
			return v, err
		}
	}
}

// sleepContext 等待 d 或直到 ctx 结束。
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
