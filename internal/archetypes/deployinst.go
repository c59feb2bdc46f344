package archetypes

import (
	"github.com/aristath/simkernel/internal/agent"
	simctx "github.com/aristath/simkernel/internal/context"
	"github.com/aristath/simkernel/internal/registry"
)

// BuildEntry is one line of a DeployInst's manual deployment schedule:
// build N copies of Proto at Time, each auto-decommissioned after
// Lifetime steps (-1 means it lives out the rest of the simulation,
// never auto-decommissioned).
type BuildEntry struct {
	Time     int
	Proto    string
	N        int
	Lifetime int
}

// DeployInst builds facilities under itself according to a fixed
// schedule; each built agent's Lifetime is set generically on its
// agent.Base, so the kernel Context/Scheduler auto-decommission it
// rather than DeployInst tracking the schedule itself. Grounded on
// cycamore's deploy_inst.h/.cc.
type DeployInst struct {
	base *agent.Base
	ctx  *simctx.Context

	Schedule []BuildEntry
}

var (
	_ agent.Institution = (*DeployInst)(nil)
	_ agent.Tickable    = (*DeployInst)(nil)
)

// NewDeployInst constructs a Template-state DeployInst prototype.
func NewDeployInst(ctx *simctx.Context, schedule []BuildEntry) *DeployInst {
	d := &DeployInst{ctx: ctx, Schedule: append([]BuildEntry(nil), schedule...)}
	d.base = agent.NewBase("deployinst", "", d)
	return d
}

func (d *DeployInst) Base() *agent.Base { return d.base }
func (d *DeployInst) Spec() string      { return d.base.Spec() }

func (d *DeployInst) Clone() registry.Prototype {
	return NewDeployInst(d.ctx, d.Schedule)
}

func (d *DeployInst) EnterNotify() error { return nil }
func (d *DeployInst) DecomNotify() error { return nil }

// Tick builds every schedule entry due this step, directly under this
// institution (spec §4.2: an institution mediates its facilities'
// deployment), stamping each built agent's Lifetime so the kernel's
// generic auto-decommission mechanism retires it on schedule.
func (d *DeployInst) Tick() error {
	now := d.ctx.Now()

	for _, e := range d.Schedule {
		if e.Time != now {
			continue
		}
		for i := 0; i < e.N; i++ {
			a, err := d.ctx.Tree.Register(e.Proto, d.ctx.Prototypes, d)
			if err != nil {
				return err
			}
			a.Base().SetLifetime(e.Lifetime)
			if err := d.ctx.BuildAgent(a, now); err != nil {
				return err
			}
		}
	}
	return nil
}
