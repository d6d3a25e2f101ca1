// internal/app/bootstrap/shutdown.go
package bootstrap

import (
	"context"

	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"
)

// Shutdown stops the scheduler, lets in-flight notifications finish, then
// disconnects MongoDB. Everything shares ctx's deadline.
func Shutdown(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	if svc := deps.Services; svc != nil {
		if svc.Scheduler != nil {
			if err := svc.Scheduler.Stop(ctx); err != nil {
				logger.Warn("scheduler did not stop cleanly", zap.Error(err))
			}
		}
		if svc.Events != nil {
			if err := svc.Events.Wait(ctx); err != nil {
				logger.Warn("pending notifications abandoned", zap.Error(err))
			}
		}
	}

	if deps.MongoClient != nil {
		logger.Info("disconnecting MongoDB client")
		if err := deps.MongoClient.Disconnect(ctx); err != nil {
			logger.Error("MongoDB disconnect failed", zap.Error(err))
			return err
		}
	}
	return nil
}
