package guidance

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/OCAP2/touchfly/internal/guidance"

func meter() metric.Meter {
	return otel.Meter(instrumentationName)
}
