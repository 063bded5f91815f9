package allreduce

// FlatIPC is an all-reduce in which every participant
// reads every peer's scratch buffer directly.
//
// It takes two barrier phases regardless of group size,
// but each rank performs size-1 combines.
type FlatIPC struct {
	cfg  Config
	opts options
}

// NewFlatIPC creates a collective for a fixed set of
// parameters.
func NewFlatIPC(cfg Config, opts ...Option) *FlatIPC {
	return &FlatIPC{cfg: cfg, opts: makeOptions(opts)}
}

// AllReduce enqueues one launch on the configured queue.
func (f *FlatIPC) AllReduce() error {
	return launch(Flat, &f.cfg, f.opts, flatKernel)
}
