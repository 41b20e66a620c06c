package engine

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/sherman-jordan/pf2e-visioner-sub010/internal/engine"

func meter() metric.Meter {
	return otel.Meter(instrumentationName)
}
