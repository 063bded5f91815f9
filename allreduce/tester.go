package allreduce

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/unixpickle/dda-allreduce/bootstrap"
	"github.com/unixpickle/dda-allreduce/fabric"
	"github.com/unixpickle/dda-allreduce/reduce"
	"github.com/x448/float16"
)

// RunAllreducerTests runs a battery of tests on an
// all-reduce strategy.
func RunAllreducerTests(t *testing.T, algo Algo) {
	for _, numRanks := range []int{1, 2, 5, 15, 16, 17} {
		for _, count := range []int{1, 1337} {
			for _, message := range []bool{false, true} {
				testName := fmt.Sprintf("Ranks=%d,Count=%d,Message=%v", numRanks, count, message)
				t.Run(testName, func(t *testing.T) {
					opts := []bootstrap.GroupOption{
						bootstrap.WithMultiProcessorCount(4),
						bootstrap.WithSpinYield(16),
					}
					if message {
						opts = append(opts, bootstrap.WithMessageBarrier())
					}
					vectors := make([][]float64, numRanks)
					sum := make([]float64, count)
					for i := range vectors {
						vectors[i] = make([]float64, count)
						for j := range vectors[i] {
							vectors[i][j] = rand.NormFloat64()
							sum[j] += vectors[i][j]
						}
					}

					results, err := RunGroup(GroupRun{
						Algo:     algo,
						Size:     numRanks,
						Count:    count,
						DataType: reduce.Float64,
						Op:       reduce.Sum,
						Tunables: Tunables{ElemsPerUnit: 100},
						Options:  opts,
						Input: func(rank, i int) float64 {
							return vectors[rank][i]
						},
					})
					if err != nil {
						t.Fatal(err)
					}

					for i, res := range results[1:] {
						for j, actual := range res {
							if actual != results[0][j] {
								t.Errorf("result %d is not identical to result 0", i+1)
								break
							}
						}
					}

					for i, x := range sum {
						if math.Abs(x-results[0][i]) > 1e-5 {
							t.Errorf("sum is incorrect (expected %f but got %f at component %d)",
								x, results[0][i], i)
							break
						}
					}
				})
			}
		}
	}
}

// A GroupRun describes one collective call made by every
// rank of a fresh group.
type GroupRun struct {
	Algo     Algo
	Size     int
	Count    int
	DataType reduce.DataType
	Op       reduce.Op
	Tunables Tunables
	Options  []bootstrap.GroupOption

	// Input gives element i of rank's send buffer.
	Input func(rank, i int) float64
}

// RunGroup performs the call on every rank, waits for the
// devices and returns each rank's receive buffer converted
// to float64.
func RunGroup(r GroupRun) ([][]float64, error) {
	esz := r.DataType.Size()
	g, err := bootstrap.NewGroup(r.Size, r.Count*esz, r.Options...)
	if err != nil {
		return nil, err
	}
	defer g.Close()

	recvs := make([]fabric.Ptr, r.Size)
	err = g.Spawn(func(rank int) error {
		send := g.Alloc(rank, r.Count*esz)
		for i := 0; i < r.Count; i++ {
			SetElement(r.DataType, send, i, r.Input(rank, i))
		}
		recvs[rank] = g.Alloc(rank, r.Count*esz)
		reducer, err := New(r.Algo, Config{
			SendBuf:             send,
			RecvBuf:             recvs[rank],
			Count:               r.Count,
			DataType:            r.DataType,
			Op:                  r.Op,
			Comm:                g.Comms[rank],
			Queue:               g.Streams[rank],
			Peers:               g.Peers,
			Barrier:             g.Barriers[rank],
			MultiProcessorCount: g.MultiProcessorCount,
		}, WithTunables(r.Tunables))
		if err != nil {
			return err
		}
		return reducer.AllReduce()
	})
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := g.Synchronize(ctx); err != nil {
		return nil, err
	}

	results := make([][]float64, r.Size)
	for rank, recv := range recvs {
		results[rank] = make([]float64, r.Count)
		for i := range results[rank] {
			results[rank][i] = Element(r.DataType, recv, i)
		}
	}
	return results, nil
}

// SetElement stores x, converted to dt, as element i of
// the buffer at p.
func SetElement(dt reduce.DataType, p fabric.Ptr, i int, x float64) {
	p = p.Add(i * dt.Size())
	switch dt {
	case reduce.Int8:
		fabric.View[int8](p, 1)[0] = int8(x)
	case reduce.Uint8:
		fabric.View[uint8](p, 1)[0] = uint8(x)
	case reduce.Int32:
		fabric.View[int32](p, 1)[0] = int32(x)
	case reduce.Uint32:
		fabric.View[uint32](p, 1)[0] = uint32(x)
	case reduce.Int64:
		fabric.View[int64](p, 1)[0] = int64(x)
	case reduce.Uint64:
		fabric.View[uint64](p, 1)[0] = uint64(x)
	case reduce.Float16:
		fabric.View[float16.Float16](p, 1)[0] = float16.Fromfloat32(float32(x))
	case reduce.Float32:
		fabric.View[float32](p, 1)[0] = float32(x)
	case reduce.Float64:
		fabric.View[float64](p, 1)[0] = x
	default:
		panic("unsupported data type: " + dt.String())
	}
}

// Element loads element i of the buffer at p as a float64.
func Element(dt reduce.DataType, p fabric.Ptr, i int) float64 {
	p = p.Add(i * dt.Size())
	switch dt {
	case reduce.Int8:
		return float64(fabric.View[int8](p, 1)[0])
	case reduce.Uint8:
		return float64(fabric.View[uint8](p, 1)[0])
	case reduce.Int32:
		return float64(fabric.View[int32](p, 1)[0])
	case reduce.Uint32:
		return float64(fabric.View[uint32](p, 1)[0])
	case reduce.Int64:
		return float64(fabric.View[int64](p, 1)[0])
	case reduce.Uint64:
		return float64(fabric.View[uint64](p, 1)[0])
	case reduce.Float16:
		return float64(fabric.View[float16.Float16](p, 1)[0].Float32())
	case reduce.Float32:
		return float64(fabric.View[float32](p, 1)[0])
	case reduce.Float64:
		return fabric.View[float64](p, 1)[0]
	default:
		panic("unsupported data type: " + dt.String())
	}
}
