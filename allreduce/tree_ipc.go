package allreduce

// TreeIPC is an all-reduce in which participants combine
// each other's exposed scratch buffers along a binomial
// tree, then copy the root's result.
//
// A call uses PhasesPerCall barrier phases; the group's
// barrier advances by exactly that many once every
// participant's launch has finished.
type TreeIPC struct {
	cfg  Config
	opts options
}

// NewTreeIPC creates a collective for a fixed set of
// parameters.
//
// The configuration is checked when AllReduce is called.
func NewTreeIPC(cfg Config, opts ...Option) *TreeIPC {
	return &TreeIPC{cfg: cfg, opts: makeOptions(opts)}
}

// AllReduce enqueues one launch on the configured queue.
//
// Invalid configurations and unsupported type/operator
// pairs are reported without enqueueing anything.
func (t *TreeIPC) AllReduce() error {
	return launch(Tree, &t.cfg, t.opts, treeKernel)
}
