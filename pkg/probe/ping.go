package probe

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"runtime"
	"strconv"
	"strings"

	"github.com/pulseguard/core/pkg/store"
)

var sanitizeHostname = regexp.MustCompile(`[^A-Za-z0-9.-]`)

const pingCount = 4

// PingProber shells out to the platform ping binary. It never resolves
// through the Secure Resolver itself: ping performs its own system
// resolution, so the sanitized hostname is passed straight through and the
// usual SSRF protections do not apply to this protocol (spec §4.C notes it
// as an operational exception, since ICMP cannot leak response bodies).
type PingProber struct{}

func (p *PingProber) Probe(ctx context.Context, monitor *store.Monitor) Observation {
	hostname, _ := hostPort(monitor)
	sanitized := sanitizeHostname.ReplaceAllString(hostname, "")
	if sanitized != hostname {
		return down("INVALID_INPUT", fmt.Sprintf("hostname %q contains characters not allowed in a ping target", hostname))
	}

	timeout := timeoutOrDefault(monitor.TimeoutMs)
	cmdCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := pingArgs(sanitized, pingCount)
	cmd := exec.CommandContext(cmdCtx, args[0], args[1:]...)
	output, _ := cmd.CombinedOutput()

	lossPercent, rttAvgMs, parseErr := parsePingOutput(string(output))
	if parseErr != nil {
		return down("HOST_UNREACHABLE_PING", "failed to parse ping output: "+parseErr.Error())
	}

	obs := newObservation()
	obs.Meta["packetLossPercent"] = lossPercent
	obs.Meta["rttAvgMs"] = rttAvgMs
	obs.ResponseTime = rttAvgMs

	threshold := degradedThresholdOrDefault(monitor.DegradedThresholdMs)
	if threshold <= 0 {
		threshold = 1000
	}

	switch {
	case lossPercent >= 100:
		obs.IsUp = false
		obs.HealthState = HealthDown
		obs.ErrorType = "HOST_UNREACHABLE_PING"
	case lossPercent > 0:
		obs.IsUp = true
		obs.HealthState = HealthDegraded
		obs.ErrorType = "PACKET_LOSS"
		obs.Meta["severity"] = (lossPercent / 100) * 0.8
	case rttAvgMs > threshold:
		obs.IsUp = true
		obs.HealthState = HealthDegraded
		obs.ErrorType = "HIGH_PING_LATENCY"
	default:
		obs.IsUp = true
		obs.HealthState = HealthUp
	}
	return obs
}

func pingArgs(hostname string, count int) []string {
	if runtime.GOOS == "windows" {
		return []string{"ping", "-n", strconv.Itoa(count), hostname}
	}
	return []string{"ping", "-c", strconv.Itoa(count), hostname}
}

var lossRegexp = regexp.MustCompile(`(\d+(?:\.\d+)?)%\s*packet loss`)
var rttRegexp = regexp.MustCompile(`(?:rtt|round-trip).*=\s*[\d.]+/([\d.]+)/`)

func parsePingOutput(output string) (lossPercent float64, rttAvgMs int, err error) {
	lossMatch := lossRegexp.FindStringSubmatch(output)
	if lossMatch == nil {
		return 0, 0, fmt.Errorf("packet loss line not found in ping output")
	}
	lossPercent, err = strconv.ParseFloat(lossMatch[1], 64)
	if err != nil {
		return 0, 0, err
	}

	if rttMatch := rttRegexp.FindStringSubmatch(strings.ToLower(output)); rttMatch != nil {
		if avg, err := strconv.ParseFloat(rttMatch[1], 64); err == nil {
			rttAvgMs = int(avg)
		}
	}
	return lossPercent, rttAvgMs, nil
}
