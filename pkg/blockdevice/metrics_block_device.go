package blockdevice

import (
	"time"

	"github.com/buildbarn/bb-disktest/pkg/util"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	blockDeviceOperationsStartedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "buildbarn",
			Subsystem: "blockdevice",
			Name:      "block_device_operations_started_total",
			Help:      "Total number of operations started on block devices.",
		},
		[]string{"name", "operation"})
	blockDeviceOperationsFailedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "buildbarn",
			Subsystem: "blockdevice",
			Name:      "block_device_operations_failed_total",
			Help:      "Total number of operations on block devices that returned an error.",
		},
		[]string{"name", "operation"})
	blockDeviceOperationsBytesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "buildbarn",
			Subsystem: "blockdevice",
			Name:      "block_device_operations_bytes_total",
			Help:      "Total number of bytes transferred by operations on block devices.",
		},
		[]string{"name", "operation"})
	blockDeviceOperationsDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "buildbarn",
			Subsystem: "blockdevice",
			Name:      "block_device_operations_duration_seconds",
			Help:      "Amount of time spent per operation on block devices, in seconds.",
			Buckets:   util.DecimalExponentialBuckets(-6, 8, 2),
		},
		[]string{"name", "operation"})
)

func init() {
	prometheus.MustRegister(blockDeviceOperationsStartedTotal)
	prometheus.MustRegister(blockDeviceOperationsFailedTotal)
	prometheus.MustRegister(blockDeviceOperationsBytesTotal)
	prometheus.MustRegister(blockDeviceOperationsDurationSeconds)
}

type operationMetrics struct {
	startedTotal    prometheus.Counter
	failedTotal     prometheus.Counter
	bytesTotal      prometheus.Counter
	durationSeconds prometheus.Observer
}

func newOperationMetrics(name, operation string) operationMetrics {
	return operationMetrics{
		startedTotal:    blockDeviceOperationsStartedTotal.WithLabelValues(name, operation),
		failedTotal:     blockDeviceOperationsFailedTotal.WithLabelValues(name, operation),
		bytesTotal:      blockDeviceOperationsBytesTotal.WithLabelValues(name, operation),
		durationSeconds: blockDeviceOperationsDurationSeconds.WithLabelValues(name, operation),
	}
}

func (m *operationMetrics) observe(timeStart time.Time, n int, err error) {
	m.durationSeconds.Observe(time.Now().Sub(timeStart).Seconds())
	m.bytesTotal.Add(float64(n))
	if err != nil {
		m.failedTotal.Inc()
	}
}

type metricsBlockDevice struct {
	BlockDevice
	read  operationMetrics
	write operationMetrics
	sync  operationMetrics
}

// NewMetricsBlockDevice creates an adapter for BlockDevice that adds
// basic instrumentation in the form of Prometheus metrics.
func NewMetricsBlockDevice(base BlockDevice, name string) BlockDevice {
	return &metricsBlockDevice{
		BlockDevice: base,
		read:        newOperationMetrics(name, "ReadAt"),
		write:       newOperationMetrics(name, "WriteAt"),
		sync:        newOperationMetrics(name, "Sync"),
	}
}

func (bd *metricsBlockDevice) ReadAt(p []byte, off int64) (int, error) {
	bd.read.startedTotal.Inc()
	timeStart := time.Now()
	n, err := bd.BlockDevice.ReadAt(p, off)
	bd.read.observe(timeStart, n, err)
	return n, err
}

func (bd *metricsBlockDevice) WriteAt(p []byte, off int64) (int, error) {
	bd.write.startedTotal.Inc()
	timeStart := time.Now()
	n, err := bd.BlockDevice.WriteAt(p, off)
	bd.write.observe(timeStart, n, err)
	return n, err
}

func (bd *metricsBlockDevice) Sync() error {
	bd.sync.startedTotal.Inc()
	timeStart := time.Now()
	err := bd.BlockDevice.Sync()
	bd.sync.observe(timeStart, 0, err)
	return err
}

func (bd *metricsBlockDevice) DropCache() error {
	return DropCache(bd.BlockDevice)
}
