package observers

import (
	"context"
	"time"

	einocb "github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/compose"

	"github.com/soulra/clinical-router/internal/metrics"
	logx "github.com/soulra/clinical-router/pkg/logger"
)

type nodeStartKey struct{}

// newNodeHandler times lambda nodes.
func newNodeHandler(m *metrics.Metrics) einocb.Handler {
	return einocb.NewHandlerBuilder().
		OnStartFn(func(ctx context.Context, info *einocb.RunInfo, _ einocb.CallbackInput) context.Context {
			if info == nil || info.Component != compose.ComponentOfLambda {
				return ctx
			}
			return context.WithValue(ctx, nodeStartKey{}, time.Now())
		}).
		OnEndFn(func(ctx context.Context, info *einocb.RunInfo, _ einocb.CallbackOutput) context.Context {
			observeNode(ctx, m, info, nil)
			return ctx
		}).
		OnErrorFn(func(ctx context.Context, info *einocb.RunInfo, err error) context.Context {
			observeNode(ctx, m, info, err)
			return ctx
		}).
		Build()
}

func observeNode(ctx context.Context, m *metrics.Metrics, info *einocb.RunInfo, err error) {
	if info == nil || info.Component != compose.ComponentOfLambda {
		return
	}
	start, ok := ctx.Value(nodeStartKey{}).(time.Time)
	if !ok {
		return
	}
	elapsed := time.Since(start)
	m.ObserveNode(info.Name, elapsed)

	ev := logx.Debug()
	if err != nil {
		ev = logx.Warn().Err(err)
	}
	ev.Str("node", info.Name).Dur("elapsed", elapsed).Msg("Node finished")
}
