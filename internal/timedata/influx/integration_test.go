package influx

import (
	"context"
	"os"
	"testing"
	"time"
)

// Integration tests run against a live InfluxDB instance. Point
// GRIDPULSE_TEST_INFLUX_URL at one (with GRIDPULSE_TEST_INFLUX_TOKEN,
// _ORG and _BUCKET set) to enable them; they skip otherwise.
func liveConfig(t *testing.T) testConfig {
	t.Helper()
	url := os.Getenv("GRIDPULSE_TEST_INFLUX_URL")
	if url == "" {
		t.Skip("GRIDPULSE_TEST_INFLUX_URL not set, skipping integration test")
	}
	return testConfig{
		url:    url,
		token:  os.Getenv("GRIDPULSE_TEST_INFLUX_TOKEN"),
		org:    os.Getenv("GRIDPULSE_TEST_INFLUX_ORG"),
		bucket: os.Getenv("GRIDPULSE_TEST_INFLUX_BUCKET"),
	}
}

type testConfig struct {
	url, token, org, bucket string
}

func TestIntegration_WriteAndQueryRoundTrip(t *testing.T) {
	live := liveConfig(t)

	cfg := testInfluxConfig(live.url)
	cfg.Token = live.token
	cfg.Org = live.org
	cfg.Bucket = live.bucket
	c := newTestConnector(t, cfg)

	ts := time.Now().Add(-30 * time.Minute).Truncate(time.Second)
	if err := c.SubmitPoint("_sum/GridBuyActiveEnergy", 1000, ts, 999); err != nil {
		t.Fatalf("SubmitPoint() error = %v", err)
	}
	if err := c.SubmitPoint("_sum/GridBuyActiveEnergy", 1250, ts.Add(time.Minute), 999); err != nil {
		t.Fatalf("SubmitPoint() error = %v", err)
	}
	c.Flush()

	edge := 999
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	result, err := c.QueryHistoricEnergy(ctx, &edge, ts.Add(-time.Minute), ts.Add(2*time.Minute),
		[]string{"_sum/GridBuyActiveEnergy"})
	if err != nil {
		t.Fatalf("QueryHistoricEnergy() error = %v", err)
	}
	if got := result["_sum/GridBuyActiveEnergy"]; got != 250 {
		t.Errorf("energy delta = %v, want 250", got)
	}
}
