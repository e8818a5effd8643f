package logger

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	Log       = zap.NewNop().Sugar() // Replaced by InitLogger; safe to use before it runs
	ZapLogger = zap.NewNop()         // Expose the raw zap Logger
)

// encoderConfig is shared by the file and console cores.
func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:          "T", // Keep time key brief
		LevelKey:         "L",
		NameKey:          "N",
		CallerKey:        "",              // Disable caller key
		FunctionKey:      zapcore.OmitKey, // Disable function key
		MessageKey:       "M",
		StacktraceKey:    "S",
		LineEnding:       zapcore.DefaultLineEnding,
		EncodeLevel:      zapcore.CapitalLevelEncoder,                        // INFO, WARN, etc.
		EncodeTime:       zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05"), // Simpler time format
		EncodeDuration:   zapcore.StringDurationEncoder,
		EncodeCaller:     zapcore.ShortCallerEncoder,
		ConsoleSeparator: "  ",
	}
}

// InitLogger writes INFO and above to logFile. When console is true the same
// entries are also written to stdout, which is what the daemon wants when it
// runs under a supervisor that collects output.
func InitLogger(logFile string, console bool) error {
	encoder := zapcore.NewConsoleEncoder(encoderConfig())

	var cores []zapcore.Core
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("can't open log file: %w", err)
		}
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(f), zap.InfoLevel))
	}
	if console || len(cores) == 0 {
		cores = append(cores, zapcore.NewCore(encoder, zapcore.Lock(os.Stdout), zap.InfoLevel))
	}

	ZapLogger = zap.New(zapcore.NewTee(cores...))
	Log = ZapLogger.Sugar()
	Log.Infow("Logger initialized", zap.String("file", logFile), zap.Bool("console", console))
	return nil
}

func Sync() {
	if ZapLogger != nil {
		_ = ZapLogger.Sync() // flushes buffer, if any
	}
}
