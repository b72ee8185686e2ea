package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mosaicnetworks/forkchain/src/blockchain"
	"github.com/mosaicnetworks/forkchain/src/simulator"
)

func testReport() *simulator.Report {
	return &simulator.Report{
		Consensus: "pow",
		Scenario:  "delays",
		Seed:      42,
		Nodes: []simulator.NodeSummary{
			{ID: "0", Info: blockchain.Info{LatestHeight: 7, FinalityHeight: 3, Balance: 990.5}, BlocksMined: 4},
			{ID: "1", Info: blockchain.Info{LatestHeight: 7, FinalityHeight: 3, Balance: 1009.5, RefusedReorgs: 1}},
		},
		Converged:         true,
		CommonFinalHeight: 3,
	}
}

func TestPrintReport(t *testing.T) {
	var buf bytes.Buffer
	printReport(&buf, testReport())
	out := buf.String()

	for _, want := range []string{
		"pow / delays (seed 42)",
		"node 0: height 7, final 3, balance 990.50, mined 4",
		"refused reorgs 1",
		"Converged on a single tip",
		"All invariants held",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("output misses %q:\n%s", want, out)
		}
	}
}

func TestPrintReportViolations(t *testing.T) {
	r := testReport()
	r.Converged = false
	r.Violations = []simulator.Violation{
		{Invariant: simulator.FinalityConsistency, Height: 2, Detail: "hash mismatch"},
	}

	var buf bytes.Buffer
	printReport(&buf, r)
	out := buf.String()

	if !strings.Contains(out, "1 invariant violations") || !strings.Contains(out, "hash mismatch") {
		t.Fatalf("violations not reported:\n%s", out)
	}
	if !strings.Contains(out, "different tips") {
		t.Fatalf("divergence not reported:\n%s", out)
	}
}

func TestWriteReport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")
	if err := writeReport(path, testReport()); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"common_final_height"`) {
		t.Fatalf("unexpected report file:\n%s", data)
	}
}
