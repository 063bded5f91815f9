package allreduce

import (
	"github.com/sirupsen/logrus"
	"github.com/unixpickle/dda-allreduce/device"
)

// launch validates a call and enqueues its kernel.
// Nothing is enqueued unless every check passes.
func launch(algo Algo, c *Config, o options, build func(k *kernelArgs) device.KernelFunc) error {
	log := logrus.WithFields(logrus.Fields{
		"algo":  algo,
		"count": c.Count,
		"dtype": c.DataType,
		"op":    c.Op,
	})
	if c.Comm != nil {
		log = log.WithFields(logrus.Fields{"rank": c.Comm.Rank(), "size": c.Comm.Size()})
	}

	combine, err := c.validate()
	if err != nil {
		observeCall(algo, err, 0, Geometry{})
		log.WithError(err).Warn("rejected all-reduce")
		return err
	}

	geom := PlanGeometry(c.Count, o.tunables.ElemsPerUnit, o.tunables.maxUnits(c.MultiProcessorCount))
	args := &kernelArgs{
		rank:     c.Comm.Rank(),
		size:     c.Comm.Size(),
		send:     c.SendBuf,
		recv:     c.RecvBuf,
		peers:    c.Peers,
		barrier:  c.Barrier,
		combine:  combine,
		elemSize: c.DataType.Size(),
		geom:     geom,
	}
	l := device.Launch{
		Name:   "allreduce_" + algo.String(),
		Units:  geom.Units,
		Kernel: build(args),
	}
	if err := c.Queue.Enqueue(l); err != nil {
		err = &enqueueError{cause: err}
		observeCall(algo, err, 0, geom)
		log.WithError(err).Warn("failed to enqueue all-reduce")
		return err
	}

	observeCall(algo, nil, c.Count*args.elemSize, geom)
	log.WithField("units", geom.Units).Debug("enqueued all-reduce")
	return nil
}
