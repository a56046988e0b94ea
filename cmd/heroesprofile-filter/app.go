package main

import (
	"context"

	"heroesprofile-filter/internal/constants"

	"go.uber.org/dig"
	"go.uber.org/fx"
)

// startApp builds and starts an fx app. The returned stop function must be
// called once the command is done.
func startApp(ctx context.Context, opts ...fx.Option) (func(), error) {
	app := fx.New(append([]fx.Option{fx.NopLogger}, opts...)...)
	if err := app.Err(); err != nil {
		return nil, dig.RootCause(err)
	}

	startCtx, cancel := context.WithTimeout(ctx, constants.StartTimeout)
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return nil, err
	}

	return func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
		defer cancel()
		_ = app.Stop(stopCtx)
	}, nil
}
