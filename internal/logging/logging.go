/*
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package logging provides a context-scoped structured logger used by every
// component instead of threading a logger through every function signature.
package logging

import (
	"context"

	"go.uber.org/zap"
)

type loggerKey struct{}

// WithLogger returns a new context carrying logger, retrievable with FromContext.
func WithLogger(ctx context.Context, logger *zap.SugaredLogger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext returns the logger stored in ctx, or a no-op discard logger if
// none was ever attached (e.g. in unit tests that don't care about output).
func FromContext(ctx context.Context) *zap.SugaredLogger {
	if logger, ok := ctx.Value(loggerKey{}).(*zap.SugaredLogger); ok {
		return logger
	}
	return zap.NewNop().Sugar()
}

// Named returns ctx with a child logger scoped to component, e.g. "deploy" or
// "routing", matching the teacher's convention of a .Named(component) logger
// per subsystem.
func Named(ctx context.Context, component string) context.Context {
	return WithLogger(ctx, FromContext(ctx).Named(component))
}

// New builds the root logger for the process. verbose selects development
// mode (debug level, human-readable console encoding); otherwise production
// mode (info level, JSON encoding) is used, matching how CI consumes this
// tool's output.
func New(verbose bool) (*zap.SugaredLogger, error) {
	var cfg zap.Config
	if verbose {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.Sugar(), nil
}
