package progress

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/OCAP2/touchfly/internal/progress"

func meter() metric.Meter {
	return otel.Meter(instrumentationName)
}
