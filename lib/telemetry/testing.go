package telemetry

import (
	"context"
	"testing"
)

var setupTestEnvironments = map[string]bool{}

// SetupForTesting sets up telemetry in a testing environment, making sure
// that it isn't set up more than once per service name. Missing
// telemetry.json5 is fine in tests; spans then go to the default no-op
// providers.
func SetupForTesting(t testing.TB, serviceName string) func() {
	if setupTestEnvironments[serviceName] {
		return func() {}
	}
	setupTestEnvironments[serviceName] = true

	InitSlog(true)

	ctx := context.Background()
	tel, err := SetupFromEnv(ctx, serviceName)
	if err != nil {
		t.Logf("telemetry disabled for tests: %s", err)
		return func() {}
	}
	return func() {
		err := tel.Shutdown(ctx)
		if err != nil {
			t.Fatal(err)
		}
	}
}
