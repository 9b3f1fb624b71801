package stat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tars-rpc/protocol"
)

func newTestReporter() *Reporter {
	// No address: aggregates build up and flushes drop them.
	return NewReporter(Config{MasterName: "Test.Client", Interval: time.Hour})
}

func TestReportSuccessAggregates(t *testing.T) {
	r := newTestReporter()
	defer r.Stop()

	r.ReportSuccess("Test.Hello.HelloObj", "echo", "10.0.0.1", 10000, 12)
	r.ReportSuccess("Test.Hello.HelloObj", "echo", "10.0.0.1", 10000, 30)

	client, server := r.swap()
	require.Len(t, client, 1)
	assert.Empty(t, server)
	for head, body := range client {
		assert.Equal(t, "Test.Hello.HelloObj", head.SlaveName)
		assert.Equal(t, "echo", head.InterfaceName)
		assert.Equal(t, protocol.ServerSuccess, head.ReturnValue)
		assert.Equal(t, int32(2), body.Count)
		assert.Equal(t, int64(42), body.TotalRspTime)
	}
}

func TestReportOutcomesSplitByReturnValue(t *testing.T) {
	r := newTestReporter()
	defer r.Stop()

	r.ReportSuccess("S", "f", "10.0.0.1", 1, 5)
	r.ReportTimeout("S", "f", "10.0.0.1", 1, 3000)
	r.ReportException("S", "f", "10.0.0.1", 1, -99, 7)

	client, _ := r.swap()
	// Distinct return values are distinct aggregation keys.
	assert.Len(t, client, 3)

	var timeouts, execs int32
	for head, body := range client {
		switch head.ReturnValue {
		case protocol.InvokeTimeout:
			timeouts = body.TimeoutCount
		case -99:
			execs = body.ExecCount
		}
	}
	assert.Equal(t, int32(1), timeouts)
	assert.Equal(t, int32(1), execs)
}

func TestReportServerSide(t *testing.T) {
	r := newTestReporter()
	defer r.Stop()

	r.ReportServer("echo", "10.9.9.9", protocol.ServerSuccess, 4)
	r.ReportServer("echo", "10.9.9.9", protocol.ServerUnknownErr, 9)

	_, server := r.swap()
	require.Len(t, server, 2)
	for head, body := range server {
		assert.Equal(t, "10.9.9.9", head.MasterIP)
		if head.ReturnValue == protocol.ServerSuccess {
			assert.Equal(t, int32(1), body.Count)
		} else {
			assert.Equal(t, int32(1), body.ExecCount)
		}
	}
}

func TestFlushWithoutAddressDrops(t *testing.T) {
	r := newTestReporter()
	defer r.Stop()

	r.ReportSuccess("S", "f", "10.0.0.1", 1, 5)
	r.flush()

	client, server := r.swap()
	assert.Empty(t, client)
	assert.Empty(t, server)
}

func TestStopIsIdempotent(t *testing.T) {
	r := newTestReporter()
	r.Stop()
	r.Stop()
}
