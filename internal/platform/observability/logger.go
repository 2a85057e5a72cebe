package observability

import (
	"io"
	"os"

	"github.com/sgandhi15/ecommerce-api/internal/config"

	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.opentelemetry.io/otel/log/global"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// InstrumentationScope names the otelzap logger scope.
const InstrumentationScope = config.ServiceName + ".manual"

// NewLogger tees a JSON console core with an otelzap core bound to the
// global LoggerProvider, so records reach stdout and the OTLP exporter.
func NewLogger() *zap.Logger {
	return newLogger(os.Stdout, zap.InfoLevel)
}

func newLogger(out io.Writer, level zapcore.Level) *zap.Logger {
	otelZapCore := otelzap.NewCore(InstrumentationScope,
		otelzap.WithLoggerProvider(global.GetLoggerProvider()),
	)

	consoleEncoderConfig := zap.NewProductionEncoderConfig()
	consoleEncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	consoleCore := zapcore.NewCore(
		zapcore.NewJSONEncoder(consoleEncoderConfig),
		zapcore.Lock(zapcore.AddSync(out)),
		level,
	)

	return zap.New(zapcore.NewTee(otelZapCore, consoleCore),
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
		zap.Fields(zap.String("service.name", config.ServiceName)),
	)
}
