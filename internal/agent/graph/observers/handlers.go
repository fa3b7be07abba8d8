package observers

import (
	einocb "github.com/cloudwego/eino/callbacks"
	callbackHelper "github.com/cloudwego/eino/utils/callbacks"

	"github.com/soulra/clinical-router/internal/metrics"
)

// NewAllCallbacks aggregates all observer handlers (model, tool, prompt and
// node timing). m may be nil.
func NewAllCallbacks(m *metrics.Metrics) []einocb.Handler {
	components := callbackHelper.NewHandlerHelper().
		Tool(newToolHandler(m)).
		ChatModel(newModelHandler(m)).
		Prompt(newPromptHandler()).
		Handler()

	return []einocb.Handler{components, newNodeHandler(m)}
}
