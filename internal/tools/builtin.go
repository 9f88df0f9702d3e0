package tools

import (
	"log/slog"

	"github.com/IOUser755/AP2-01-sub000/internal/expressions"
)

// RegisterBuiltins registers all built-in tools in the given registry.
func RegisterBuiltins(reg *Registry, eval *expressions.Evaluator, mailer Mailer, httpCfg HTTPConfig, logger *slog.Logger) error {
	all := []Tool{
		NewAPICallTool(httpCfg),
		NewEmailTool(mailer, logger),
		NewConditionTool(eval),
		NewDelayTool(),
		NewTransformTool(),
	}

	for _, t := range all {
		if err := reg.Register(t); err != nil {
			return err
		}
	}
	return nil
}
