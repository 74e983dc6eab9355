// Package monitoring exposes a booted machine over HTTP so that its frame
// pools, page tables and region catalogs can be inspected while it runs.
package monitoring

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"runtime/pprof"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/pprof/profile"
	"github.com/gorilla/mux"
	"github.com/shirou/gopsutil/process"
	"github.com/syifan/goseth"

	"github.com/sarchlab/pagesim/mem/frame"
	"github.com/sarchlab/pagesim/mem/vm/mmu"
	"github.com/sarchlab/pagesim/mem/vm/paging"
	"github.com/sarchlab/pagesim/mem/vm/vmpool"
	"github.com/sarchlab/pagesim/sim/id"
)

// A Component is anything that can be looked up by name.
type Component interface {
	Name() string
}

// Monitor serves the state of the registered components.
type Monitor struct {
	portNumber int
	idGen      id.IDGenerator

	components []Component
	registry   *frame.Registry
	manager    *paging.Manager
	mmu        *mmu.Comp

	progressBarsLock sync.Mutex
	progressBars     []*ProgressBar
}

// NewMonitor creates a new Monitor
func NewMonitor() *Monitor {
	return &Monitor{idGen: id.NewIDGenerator()}
}

// WithPortNumber sets the port number of the monitor.
func (m *Monitor) WithPortNumber(portNumber int) *Monitor {
	if portNumber > 0 && portNumber < 1000 {
		fmt.Fprintf(os.Stderr,
			"Port number %d is assigned to the monitoring server, "+
				"which is not allowed. Using a random port instead.\n", portNumber)
		portNumber = 0
	}

	m.portNumber = portNumber

	return m
}

// RegisterComponent registers a component to be monitored.
func (m *Monitor) RegisterComponent(c Component) {
	m.components = append(m.components, c)
}

// RegisterFrameRegistry registers the pools of the registry. The pools are
// also registered as components.
func (m *Monitor) RegisterFrameRegistry(r *frame.Registry) {
	m.registry = r

	for _, p := range r.Pools() {
		m.RegisterComponent(p)
	}
}

// RegisterPaging registers the paging manager and, through it, the region
// catalogs.
func (m *Monitor) RegisterPaging(manager *paging.Manager) {
	m.manager = manager
	m.RegisterComponent(manager)
}

// RegisterMMU registers the MMU.
func (m *Monitor) RegisterMMU(c *mmu.Comp) {
	m.mmu = c
	m.RegisterComponent(c)
}

// CreateProgressBar creates a new progress bar.
func (m *Monitor) CreateProgressBar(name string, total uint64) *ProgressBar {
	bar := &ProgressBar{
		ID:        m.idGen.Generate(),
		Name:      name,
		StartTime: time.Now(),
		Total:     total,
	}

	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	m.progressBars = append(m.progressBars, bar)

	return bar
}

// CompleteProgressBar removes a bar from the list.
func (m *Monitor) CompleteProgressBar(pb *ProgressBar) {
	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	newBars := make([]*ProgressBar, 0, len(m.progressBars))
	for _, b := range m.progressBars {
		if b != pb {
			newBars = append(newBars, b)
		}
	}

	m.progressBars = newBars
}

// Handler returns the router that serves the monitoring API.
func (m *Monitor) Handler() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/api/list_components", m.listComponents)
	r.HandleFunc("/api/component/{name}", m.listComponentDetails)
	r.HandleFunc("/api/field/{json}", m.listFieldValue)
	r.HandleFunc("/api/pools", m.listPools)
	r.HandleFunc("/api/page_table", m.listPageTable)
	r.HandleFunc("/api/catalogs", m.listCatalogs)
	r.HandleFunc("/api/stats", m.listStats)
	r.HandleFunc("/api/progress", m.listProgressBars)
	r.HandleFunc("/api/resource", m.listResources)
	r.HandleFunc("/api/profile", m.collectProfile)

	return r
}

// StartServer starts serving in the background and returns the URL of the
// server.
func (m *Monitor) StartServer() (string, error) {
	actualPort := ":0"
	if m.portNumber > 1000 {
		actualPort = ":" + strconv.Itoa(m.portNumber)
	}

	listener, err := net.Listen("tcp", actualPort)
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("http://localhost:%d",
		listener.Addr().(*net.TCPAddr).Port)

	go func() {
		err := http.Serve(listener, m.Handler())
		dieOnErr(err)
	}()

	return url, nil
}

func (m *Monitor) listComponents(w http.ResponseWriter, _ *http.Request) {
	names := make([]string, 0, len(m.components))
	for _, c := range m.components {
		names = append(names, c.Name())
	}

	writeJSON(w, names)
}

func (m *Monitor) listComponentDetails(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	component := m.findComponentOr404(w, name)
	if component == nil {
		return
	}

	serializer := goseth.NewSerializer()
	serializer.SetRoot(component)
	serializer.SetMaxDepth(1)
	err := serializer.Serialize(w)

	dieOnErr(err)
}

type fieldReq struct {
	CompName  string `json:"comp_name,omitempty"`
	FieldName string `json:"field_name,omitempty"`
}

func (m *Monitor) listFieldValue(w http.ResponseWriter, r *http.Request) {
	jsonString := mux.Vars(r)["json"]
	req := fieldReq{}

	err := json.Unmarshal([]byte(jsonString), &req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	component := m.findComponentOr404(w, req.CompName)
	if component == nil {
		return
	}

	serializer := goseth.NewSerializer()
	serializer.SetRoot(component)
	serializer.SetMaxDepth(1)

	err = serializer.SetEntryPoint(strings.Split(req.FieldName, "."))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	err = serializer.Serialize(w)
	dieOnErr(err)
}

func (m *Monitor) findComponentOr404(
	w http.ResponseWriter,
	name string,
) Component {
	for _, c := range m.components {
		if c.Name() == name {
			return c
		}
	}

	http.Error(w, "Component not found", http.StatusNotFound)

	return nil
}

func (m *Monitor) listPools(w http.ResponseWriter, _ *http.Request) {
	snapshots := []frame.Snapshot{}

	if m.registry != nil {
		for _, p := range m.registry.Pools() {
			snapshots = append(snapshots, p.Snapshot())
		}
	}

	writeJSON(w, snapshots)
}

type pageTableRsp struct {
	Directory uint64           `json:"directory"`
	Tables    []uint64         `json:"tables"`
	Entries   []paging.Mapping `json:"entries"`
}

func (m *Monitor) listPageTable(w http.ResponseWriter, _ *http.Request) {
	if m.manager == nil || m.manager.Current() == nil {
		http.Error(w, "no page table loaded", http.StatusNotFound)
		return
	}

	pt := m.manager.Current()

	entries, err := pt.Entries()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	rsp := pageTableRsp{
		Directory: uint64(pt.DirectoryFrame()),
		Entries:   entries,
	}

	for _, t := range pt.Tables() {
		rsp.Tables = append(rsp.Tables, uint64(t))
	}

	writeJSON(w, rsp)
}

type catalogRsp struct {
	Name      string          `json:"name"`
	Window    vmpool.Region   `json:"window"`
	Allocated []vmpool.Region `json:"allocated"`
	Free      []vmpool.Region `json:"free"`
}

type regionLister interface {
	Window() vmpool.Region
	Regions() []vmpool.Region
	FreeRegions() []vmpool.Region
}

func (m *Monitor) listCatalogs(w http.ResponseWriter, _ *http.Request) {
	rsp := []catalogRsp{}

	if m.manager != nil {
		for _, c := range m.manager.Catalogs() {
			entry := catalogRsp{Name: c.Name()}

			if l, ok := c.(regionLister); ok {
				entry.Window = l.Window()
				entry.Allocated = l.Regions()
				entry.Free = l.FreeRegions()
			}

			rsp = append(rsp, entry)
		}
	}

	writeJSON(w, rsp)
}

type statsRsp struct {
	MMU    *mmu.Stats    `json:"mmu,omitempty"`
	Paging *paging.Stats `json:"paging,omitempty"`
}

func (m *Monitor) listStats(w http.ResponseWriter, _ *http.Request) {
	rsp := statsRsp{}

	if m.mmu != nil {
		s := m.mmu.Stats()
		rsp.MMU = &s
	}

	if m.manager != nil {
		s := m.manager.Stats()
		rsp.Paging = &s
	}

	writeJSON(w, rsp)
}

func (m *Monitor) listProgressBars(w http.ResponseWriter, _ *http.Request) {
	m.progressBarsLock.Lock()
	bars := make([]progressRsp, 0, len(m.progressBars))
	for _, b := range m.progressBars {
		bars = append(bars, b.snapshot())
	}
	m.progressBarsLock.Unlock()

	writeJSON(w, bars)
}

type resourceRsp struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
}

func (m *Monitor) listResources(w http.ResponseWriter, _ *http.Request) {
	pid := os.Getpid()
	process, err := process.NewProcess(int32(pid))
	dieOnErr(err)

	cpuPercent, err := process.CPUPercent()
	dieOnErr(err)

	memorySize, err := process.MemoryInfo()
	dieOnErr(err)

	rsp := resourceRsp{
		CPUPercent: cpuPercent,
		MemorySize: memorySize.RSS,
	}

	writeJSON(w, rsp)
}

func (m *Monitor) collectProfile(w http.ResponseWriter, _ *http.Request) {
	buf := bytes.NewBuffer(nil)

	err := pprof.StartCPUProfile(buf)
	if err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}

	time.Sleep(time.Second)

	pprof.StopCPUProfile()

	prof, err := profile.ParseData(buf.Bytes())
	dieOnErr(err)

	writeJSON(w, prof)
}

func writeJSON(w http.ResponseWriter, v any) {
	data, err := json.Marshal(v)
	dieOnErr(err)

	w.Header().Set("Content-Type", "application/json")
	_, err = w.Write(data)
	dieOnErr(err)
}

func dieOnErr(err error) {
	if err != nil {
		log.Panic(err)
	}
}
