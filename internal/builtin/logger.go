// Package builtin holds extensions that need no external service.
package builtin

import (
	"github.com/polyengine/polyengine/internal/core/ecs"
	"go.uber.org/zap"
)

const LoggerName = "logger"

// Logger writes one log line per lifecycle notification.
type Logger struct {
	ecs.ExtensionBase
	log *zap.Logger
}

// LoggerType returns the descriptor registered under LoggerName. The
// extension logs at info level through the engine's logger.
func LoggerType() ecs.ExtensionType {
	return ecs.ExtensionOf(LoggerName, func(base ecs.ExtensionBase) *Logger {
		return &Logger{ExtensionBase: base, log: base.Engine().Logger().Named("lifecycle")}
	})
}

func (l *Logger) Init() error {
	l.log.Info("lifecycle logging enabled")
	return nil
}

func (l *Logger) OnWorldCreated(w *ecs.World)     { l.world("world created", w) }
func (l *Logger) OnWorldDestroyed(w *ecs.World)   { l.world("world destroyed", w) }
func (l *Logger) OnWorldActivated(w *ecs.World)   { l.world("world activated", w) }
func (l *Logger) OnWorldDeactivated(w *ecs.World) { l.world("world deactivated", w) }

func (l *Logger) OnEntityCreated(en *ecs.Entity) {
	l.log.Info("entity created",
		zap.Stringer("entity", en.ID()),
		zap.Stringer("world", en.World().ID()),
		zap.Int("attributes", len(en.Attributes())))
}

func (l *Logger) OnEntityDestroyed(en *ecs.Entity) {
	l.log.Info("entity destroyed",
		zap.Stringer("entity", en.ID()),
		zap.Stringer("world", en.World().ID()))
}

func (l *Logger) world(msg string, w *ecs.World) {
	l.log.Info(msg, zap.Stringer("world", w.ID()), zap.Bool("active", w.Active()))
}
