package logger

import (
	"fmt"
	"log"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// DefaultLogFile is used when no LOG_FILE is configured.
const DefaultLogFile = "modio-repo.log"

var (
	Log       *zap.SugaredLogger
	ZapLogger *zap.Logger // Expose the raw zap Logger

	file    *os.File
	current string

	stderr      zapcore.WriteSyncer = os.Stderr
	stderrLevel                     = zap.NewAtomicLevelAt(zap.WarnLevel)
)

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
		EncodeDuration:   zapcore.SecondsDurationEncoder,
		EncodeCaller:     zapcore.ShortCallerEncoder,
		ConsoleSeparator: "  ",
	}
}

// InitLogger writes INFO and above to logFile and WARN and above to stderr.
// An empty logFile falls back to DefaultLogFile.
func InitLogger(logFile string) {
	if logFile == "" {
		logFile = DefaultLogFile
	}
	if err := open(logFile); err != nil {
		log.Fatalf("can't open log file: %v", err)
	}
}

// UseFile switches the file sink to logFile once the configuration is known.
// An empty name or the file already in use is a no-op.
func UseFile(logFile string) error {
	if logFile == "" || logFile == current {
		return nil
	}
	return open(logFile)
}

// SuppressStderr stops mirroring warnings to stderr until restore is called.
// The log file keeps receiving everything. Full-screen terminal UIs use it.
func SuppressStderr() (restore func()) {
	prev := stderrLevel.Level()
	stderrLevel.SetLevel(zap.FatalLevel)
	return func() { stderrLevel.SetLevel(prev) }
}

func open(logFile string) error {
	f, err := os.OpenFile(logFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open log file %s: %w", logFile, err)
	}

	encoder := zapcore.NewConsoleEncoder(encoderConfig())
	core := zapcore.NewTee(
		zapcore.NewCore(encoder, zapcore.AddSync(f), zap.InfoLevel),
		zapcore.NewCore(encoder, zapcore.Lock(stderr), stderrLevel),
	)

	Sync()
	if file != nil {
		_ = file.Close()
	}
	file, current = f, logFile

	ZapLogger = zap.New(core)
	Log = ZapLogger.Sugar()
	Log.Infow("Logger initialized", zap.String("file", logFile))
	return nil
}

// Sync flushes buffered log entries. Call it on shutdown.
func Sync() {
	if ZapLogger != nil {
		_ = ZapLogger.Sync() // flushes buffer, if any
	}
}
