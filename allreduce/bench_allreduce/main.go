package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/unixpickle/dda-allreduce/allreduce"
	"github.com/unixpickle/dda-allreduce/bootstrap"
	"github.com/unixpickle/dda-allreduce/cvars"
	"github.com/unixpickle/dda-allreduce/fabric"
	"github.com/unixpickle/dda-allreduce/reduce"
	"github.com/unixpickle/essentials"
	"gonum.org/v1/gonum/stat"
)

// RunInfo describes a specific group configuration.
type RunInfo struct {
	NumRanks int
	Count    int
	Message  bool
}

// Run times iters consecutive calls of one algorithm and
// returns the wall-clock duration of each, in seconds.
func (r *RunInfo) Run(algo allreduce.Algo, dt reduce.DataType, mpCount, iters int) []float64 {
	opts := []bootstrap.GroupOption{bootstrap.WithMultiProcessorCount(mpCount)}
	if r.Message {
		opts = append(opts, bootstrap.WithMessageBarrier())
	}
	nbytes := r.Count * dt.Size()
	g, err := bootstrap.NewGroup(r.NumRanks, nbytes, opts...)
	essentials.Must(err)
	defer g.Close()

	reducers := make([]allreduce.Allreducer, r.NumRanks)
	for rank := range reducers {
		send := g.Alloc(rank, nbytes)
		fill(dt, send, r.Count, rank)
		reducers[rank], err = allreduce.New(algo, allreduce.Config{
			SendBuf:             send,
			RecvBuf:             g.Alloc(rank, nbytes),
			Count:               r.Count,
			DataType:            dt,
			Op:                  reduce.Sum,
			Comm:                g.Comms[rank],
			Queue:               g.Streams[rank],
			Peers:               g.Peers,
			Barrier:             g.Barriers[rank],
			MultiProcessorCount: g.MultiProcessorCount,
		})
		essentials.Must(err)
	}

	times := make([]float64, iters)
	for i := range times {
		start := time.Now()
		essentials.Must(g.Spawn(func(rank int) error {
			return reducers[rank].AllReduce()
		}))
		essentials.Must(g.Synchronize(context.Background()))
		times[i] = time.Since(start).Seconds()
	}
	return times
}

func main() {
	var ranksFlag string
	var countsFlag string
	var algosFlag string
	var dtypeFlag string
	var iters int
	var mpCount int
	var message bool
	var metricsAddr string
	var describe bool
	flag.StringVar(&ranksFlag, "ranks", "2,4,8,16", "comma-separated group sizes")
	flag.StringVar(&countsFlag, "counts", "10,10000,1000000", "comma-separated element counts")
	flag.StringVar(&algosFlag, "algos", strings.Join(allreduce.AllAlgoNames(), ","),
		"comma-separated algorithms")
	flag.StringVar(&dtypeFlag, "dtype", "float32", "element data type")
	flag.IntVar(&iters, "iters", 10, "calls per measurement")
	flag.IntVar(&mpCount, "units", bootstrap.DefaultMultiProcessorCount, "execution units per device")
	flag.BoolVar(&message, "message", false, "use the message barrier")
	flag.StringVar(&metricsAddr, "metrics", "", "address to serve Prometheus metrics on")
	flag.BoolVar(&describe, "describe", false, "describe environment variables and exit")
	flag.Parse()

	cvars.ConfigureLogging()
	if describe {
		essentials.Must(cvars.Default.Describe(os.Stdout))
		return
	}

	dt, err := reduce.ParseDataType(dtypeFlag)
	essentials.Must(err)
	var algos []allreduce.Algo
	for _, name := range strings.Split(algosFlag, ",") {
		algo, err := allreduce.ParseAlgo(name)
		essentials.Must(err)
		algos = append(algos, algo)
	}
	rankCounts := parseInts(ranksFlag)
	elemCounts := parseInts(countsFlag)

	if metricsAddr != "" {
		http.Handle("/metrics", promhttp.Handler())
		go func() {
			logrus.WithError(http.ListenAndServe(metricsAddr, nil)).Error("metrics server stopped")
		}()
	}

	// Markdown table header.
	fmt.Print("| Ranks | Count ")
	for _, algo := range algos {
		fmt.Printf("| %s ", algo)
	}
	fmt.Println("|")
	for i := 0; i < 2+len(algos); i++ {
		fmt.Print("|:--")
	}
	fmt.Println("|")

	// Markdown table body.
	for _, numRanks := range rankCounts {
		for _, count := range elemCounts {
			runInfo := RunInfo{NumRanks: numRanks, Count: count, Message: message}
			fmt.Printf("| %d | %d ", numRanks, count)
			for _, algo := range algos {
				mean, std := stat.MeanStdDev(runInfo.Run(algo, dt, mpCount, iters), nil)
				fmt.Printf("| %s ± %s ", formatSeconds(mean), formatSeconds(std))
			}
			fmt.Println("|")
		}
	}
}

func parseInts(list string) []int {
	var res []int
	for _, s := range strings.Split(list, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(s))
		essentials.Must(err)
		res = append(res, n)
	}
	return res
}

func formatSeconds(s float64) string {
	return strconv.FormatFloat(s*1e3, 'f', 3, 64) + "ms"
}

func fill(dt reduce.DataType, p fabric.Ptr, count, rank int) {
	for i := 0; i < count; i++ {
		allreduce.SetElement(dt, p, i, float64((rank+i)%7))
	}
}
