package db

import (
	"fmt"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace   = "featurechain"
	dbSubsystem = "db"
	// goleveldb keeps 7 levels by default.
	numLevels = 7
)

// A statsCollector is a prometheus.Collector for the LevelDB properties of a node database, the
// stats are read from the open database handle on every scrape.
type statsCollector struct {
	name string
	db   DB

	numFiles     *prometheus.Desc
	cachedBlock  *prometheus.Desc
	openedTables *prometheus.Desc
	aliveSnaps   *prometheus.Desc
	aliveIters   *prometheus.Desc
}

var _ prometheus.Collector = &statsCollector{}

// NewStatsCollector creates a collector for the given database, the name is added as the
// database label to all produced metrics.
func NewStatsCollector(name string, db DB) prometheus.Collector {
	labels := []string{"database"}
	return &statsCollector{
		name: name,
		db:   db,
		numFiles: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, dbSubsystem, "leveldb_num_files"),
			"Number of files at each level.",
			[]string{"database", "level"},
			nil,
		),
		cachedBlock: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, dbSubsystem, "leveldb_cached_block_bytes"),
			"Size of the block cache.",
			labels,
			nil,
		),
		openedTables: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, dbSubsystem, "leveldb_opened_tables"),
			"Number of opened tables.",
			labels,
			nil,
		),
		aliveSnaps: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, dbSubsystem, "leveldb_alive_snapshots"),
			"Number of alive snapshots.",
			labels,
			nil,
		),
		aliveIters: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, dbSubsystem, "leveldb_alive_iterators"),
			"Number of alive iterators.",
			labels,
			nil,
		),
	}
}

// Describe implements the prometheus.Collector interface.
func (c *statsCollector) Describe(ch chan<- *prometheus.Desc) {
	ds := []*prometheus.Desc{
		c.numFiles,
		c.cachedBlock,
		c.openedTables,
		c.aliveSnaps,
		c.aliveIters,
	}
	for _, d := range ds {
		ch <- d
	}
}

// Collect implements the prometheus.Collector interface. Properties the database can't report
// are skipped, so a memdb produces no metrics.
func (c *statsCollector) Collect(ch chan<- prometheus.Metric) {
	for level := 0; level < numLevels; level++ {
		if v, ok := c.property(fmt.Sprintf("leveldb.num-files-at-level%d", level)); ok {
			ch <- prometheus.MustNewConstMetric(c.numFiles, prometheus.GaugeValue, v, c.name, strconv.Itoa(level))
		}
	}
	gauges := []struct {
		desc     *prometheus.Desc
		property string
	}{
		{c.cachedBlock, "leveldb.cachedblock"},
		{c.openedTables, "leveldb.openedtables"},
		{c.aliveSnaps, "leveldb.alivesnaps"},
		{c.aliveIters, "leveldb.aliveiters"},
	}
	for _, g := range gauges {
		if v, ok := c.property(g.property); ok {
			ch <- prometheus.MustNewConstMetric(g.desc, prometheus.GaugeValue, v, c.name)
		}
	}
}

func (c *statsCollector) property(name string) (float64, bool) {
	s, err := c.db.Property(name)
	if err != nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
