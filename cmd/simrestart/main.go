// Command simrestart resumes a simulation from a prior run's database
// (spec §6: `restart <input> <db> <sim-id> <time>`). It re-parses the
// same scenario document, seeds the kernel's id counters past the
// prior run's watermark (read back from the Resources table so no
// obj_id/state_id collides with an already-recorded row), rebuilds the
// region/institution tree, and continues the Scheduler loop from the
// given time.
//
// Facility-internal working state (inventories, SWU budgets, and so on)
// is not part of the output schema (spec §6 lists only the
// Agent/Resources/Transactions tables) and so cannot be recovered here;
// a restarted facility resumes with empty buffers, matching the
// database's own recorded state rather than silently fabricating one.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/aristath/simkernel/internal/backend/sqlitebackend"
	"github.com/aristath/simkernel/internal/exchange"
	"github.com/aristath/simkernel/internal/kernerr"
	"github.com/aristath/simkernel/internal/scenario"
	"github.com/aristath/simkernel/internal/scheduler"
	"github.com/aristath/simkernel/pkg/logger"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) != 4 {
		fmt.Fprintln(os.Stderr, "usage: simrestart <input> <db> <sim-id> <time>")
		return 1
	}
	inputPath, dbPath, simID, timeStr := args[0], args[1], args[2], args[3]
	resumeTime, err := strconv.Atoi(timeStr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid resume time %q: %v\n", timeStr, err)
		return 1
	}

	log := logger.New(logger.Config{Level: "info", Pretty: true})

	f, err := os.Open(inputPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open input: %v\n", err)
		return 1
	}
	defer f.Close()

	doc, err := scenario.Parse(f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "parse scenario: %v\n", err)
		return 1
	}

	priorBE, err := sqlitebackend.New(sqlitebackend.Config{Path: dbPath}, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open prior database: %v\n", err)
		return 2
	}
	watermark, err := readWatermark(priorBE, simID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read prior run state: %v\n", err)
		return 2
	}
	_ = priorBE.Close()

	ctx, err := scenario.Load(doc, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load scenario: %v\n", err)
		return 1
	}
	ctx.SeedCounters(watermark.nextObjID, watermark.nextStateID, watermark.nextAgentID)
	ctx.FastForward(resumeTime)

	outBE, err := sqlitebackend.New(sqlitebackend.Config{Path: dbPath}, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "reopen output database: %v\n", err)
		return 2
	}
	ctx.Rec.RegisterBackend(outBE)

	mkt := exchange.New(ctx, log)
	sched := scheduler.New(ctx, mkt, log)
	ctx.SetScheduler(sched)
	if err := sched.Run(); err != nil {
		_ = ctx.Rec.Close()
		kind, ok := kernerr.KindOf(err)
		if ok {
			fmt.Fprintf(os.Stderr, "restart run: %s: %v\n", kind, err)
		} else {
			fmt.Fprintf(os.Stderr, "restart run: %v\n", err)
		}
		return 2
	}
	_ = ctx.Rec.Close()
	log.Info().Str("db", dbPath).Int("resumed_at", resumeTime).Msg("restart complete")
	return 0
}

type watermark struct {
	nextObjID   int64
	nextStateID int64
	nextAgentID int64
}

func readWatermark(be *sqlitebackend.Backend, simID string) (watermark, error) {
	rows, err := be.Query("Resources")
	if err != nil {
		return watermark{}, err
	}
	var w watermark
	for _, r := range rows {
		if sid, ok := r.Fields["SimID"].(string); ok && sid != simID {
			continue
		}
		if v, ok := numField(r.Fields["ObjId"]); ok && v >= w.nextObjID {
			w.nextObjID = v + 1
		}
		if v, ok := numField(r.Fields["ResourceId"]); ok && v >= w.nextStateID {
			w.nextStateID = v + 1
		}
	}
	agentRows, err := be.Query("AgentEntry")
	if err != nil {
		// AgentEntry may not exist yet if no agent table rows were ever
		// written; that's a fresh database, not a restart failure.
		return w, nil
	}
	for _, r := range agentRows {
		if v, ok := numField(r.Fields["AgentId"]); ok && v >= w.nextAgentID {
			w.nextAgentID = v + 1
		}
	}
	return w, nil
}

func numField(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case float64:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	default:
		return 0, false
	}
}
