package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New monta o logger estruturado da plataforma. Em "local" usa o encoder de
// desenvolvimento; nos demais ambientes, JSON sem sampling — linha de log de
// movimentação financeira não pode ser descartada.
func New(serviceName string, env string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Sampling = nil
	if env == "local" {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	// serviço e env entram como campos padrão em toda linha
	return cfg.Build(zap.Fields(
		zap.String("service", serviceName),
		zap.String("env", env),
	))
}
