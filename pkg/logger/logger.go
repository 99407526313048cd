package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	Log *zap.Logger
)

func init() {
	// 默认 Nop Logger，防止未 Init 就调用导致 panic (测试中也依赖这一点)
	Log = zap.NewNop()
}

// Init 初始化全局 logger
// env: "production" 输出 JSON，其余输出彩色 console
func Init(env string) {
	var config zap.Config

	if env == "production" {
		config = zap.NewProductionConfig()
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	var err error
	Log, err = config.Build(zap.AddCallerSkip(1)) // 跳过 helper 这一层，日志里显示真实调用位置
	if err != nil {
		panic(err)
	}

	// 替换全局 logger，zap.L() 也能拿到同一个实例
	zap.ReplaceGlobals(Log)
}

// Sync flushes any buffered log entries
func Sync() {
	_ = Log.Sync()
}

func Info(msg string, fields ...zap.Field) {
	Log.Info(msg, fields...)
}

func Warn(msg string, fields ...zap.Field) {
	Log.Warn(msg, fields...)
}

func Error(msg string, fields ...zap.Field) {
	Log.Error(msg, fields...)
}

func Fatal(msg string, fields ...zap.Field) {
	Log.Fatal(msg, fields...)
}

func Debug(msg string, fields ...zap.Field) {
	Log.Debug(msg, fields...)
}

// With 返回带固定字段的子 logger，直接调用时不再跳过 helper 层
func With(fields ...zap.Field) *zap.Logger {
	return Log.WithOptions(zap.AddCallerSkip(-1)).With(fields...)
}
