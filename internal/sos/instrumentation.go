package sos

import (
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
)

const scopeName = "github.com/koscakluka/ema-campus/internal/sos"

var (
	meter  = otel.Meter(scopeName)
	logger = otelslog.NewLogger(scopeName)
)
