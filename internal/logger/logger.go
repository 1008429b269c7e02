package logger

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger 对 zap 的 printf 风格封装
type Logger struct {
	zapLogger *zap.Logger
}

var defaultLogger *Logger

func init() {
	l, err := build(zapcore.InfoLevel, "stdout", "")
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defaultLogger = l
}

// Setup 按配置重建全局日志器
// output 为 file 时写入 lumberjack 轮转文件，否则写标准输出
func Setup(level, output, file string) error {
	l, err := build(ParseLevel(level), output, file)
	if err != nil {
		return err
	}
	defaultLogger.Sync()
	defaultLogger = l
	return nil
}

func encoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "timestamp"
	cfg.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(t.Format("2006-01-02 15:04:05"))
	}
	cfg.CallerKey = "caller"
	cfg.EncodeCaller = zapcore.ShortCallerEncoder
	cfg.LevelKey = "level"
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	cfg.MessageKey = "message"
	return cfg
}

func build(level zapcore.Level, output, file string) (*Logger, error) {
	if output == "file" {
		rotate := &lumberjack.Logger{
			Filename:   file,
			MaxSize:    100, // MB
			MaxBackups: 3,
			MaxAge:     28, // 天
			Compress:   true,
		}
		core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig()), zapcore.AddSync(rotate), level)
		return &Logger{zapLogger: zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))}, nil
	}

	var cfg zap.Config
	if level == zapcore.DebugLevel {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig = encoderConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(level)

	zapLogger, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, err
	}
	return &Logger{zapLogger: zapLogger}, nil
}

// New 用现成的 zap.Logger 构造，便于测试注入 observer
func New(z *zap.Logger) *Logger {
	return &Logger{zapLogger: z}
}

func (l *Logger) Debug(format string, args ...interface{}) {
	l.zapLogger.Debug(fmt.Sprintf(format, args...))
}

func (l *Logger) Info(format string, args ...interface{}) {
	l.zapLogger.Info(fmt.Sprintf(format, args...))
}

func (l *Logger) Warn(format string, args ...interface{}) {
	l.zapLogger.Warn(fmt.Sprintf(format, args...))
}

func (l *Logger) Error(format string, args ...interface{}) {
	l.zapLogger.Error(fmt.Sprintf(format, args...))
}

func (l *Logger) Fatal(format string, args ...interface{}) {
	l.zapLogger.Fatal(fmt.Sprintf(format, args...))
}

func (l *Logger) Sync() {
	_ = l.zapLogger.Sync()
}

// With 添加结构化字段
func (l *Logger) With(fields ...zap.Field) *Logger {
	return &Logger{zapLogger: l.zapLogger.With(fields...)}
}

// SetDefaultLogger 替换全局日志器
func SetDefaultLogger(l *Logger) {
	if defaultLogger != nil {
		defaultLogger.Sync()
	}
	defaultLogger = l
}

// 全局函数直接调用 zap，与 Logger 方法的栈深度一致，AddCallerSkip(1) 对两者都指向调用方
func Debug(format string, args ...interface{}) {
	defaultLogger.zapLogger.Debug(fmt.Sprintf(format, args...))
}

func Info(format string, args ...interface{}) {
	defaultLogger.zapLogger.Info(fmt.Sprintf(format, args...))
}

func Warn(format string, args ...interface{}) {
	defaultLogger.zapLogger.Warn(fmt.Sprintf(format, args...))
}

func Error(format string, args ...interface{}) {
	defaultLogger.zapLogger.Error(fmt.Sprintf(format, args...))
}

func Fatal(format string, args ...interface{}) {
	defaultLogger.zapLogger.Fatal(fmt.Sprintf(format, args...))
}

func Sync() {
	defaultLogger.Sync()
}

// WithVault 带金库地址字段的日志器
func WithVault(address string) *Logger {
	return defaultLogger.With(zap.String("vault", address))
}

// ParseLevel 解析日志级别字符串
func ParseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "fatal":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}
