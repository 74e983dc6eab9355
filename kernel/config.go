package kernel

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/sarchlab/pagesim/mem/mm"
)

// Environment variables that override the default configuration.
const (
	EnvTraceDB     = "PAGESIM_TRACE_DB"
	EnvMonitorPort = "PAGESIM_MONITOR_PORT"
	EnvUserShared  = "PAGESIM_USER_SHARED"
	EnvTLBWays     = "PAGESIM_TLB_WAYS"
)

// Config describes the physical layout of the machine and the regions that
// the kernel sets up at boot.
type Config struct {
	MemorySize uint64

	KernelPoolBase   mm.Frame
	KernelPoolFrames uint64

	ProcessPoolBase   mm.Frame
	ProcessPoolFrames uint64

	HoleBase   mm.Frame
	HoleFrames uint64

	SharedSize uint64
	UserShared bool
	TLBWays    int

	CreateRegions bool
	CodeBase      mm.VAddr
	CodeSize      uint64
	HeapBase      mm.VAddr
	HeapSize      uint64

	TraceDB     string
	MonitorPort int
}

// DefaultConfig returns a machine with 32 MiB of memory, a kernel pool at
// 2 MiB, a process pool at 4 MiB, a 1 MiB hole at 15 MiB and a 4 MiB shared
// region.
func DefaultConfig() Config {
	return Config{
		MemorySize: 32 * mm.MB,

		KernelPoolBase:   mm.Frame(2 * mm.MB / mm.PageSize),
		KernelPoolFrames: 2 * mm.MB / mm.PageSize,

		ProcessPoolBase:   mm.Frame(4 * mm.MB / mm.PageSize),
		ProcessPoolFrames: 28 * mm.MB / mm.PageSize,

		HoleBase:   mm.Frame(15 * mm.MB / mm.PageSize),
		HoleFrames: 1 * mm.MB / mm.PageSize,

		SharedSize: 4 * mm.MB,
		TLBWays:    64,

		CodeBase: mm.VAddr(512 * mm.MB),
		CodeSize: 256 * mm.MB,
		HeapBase: mm.VAddr(1 * mm.GB),
		HeapSize: 256 * mm.MB,
	}
}

// LoadConfig returns the default configuration with the overrides found in
// the environment. The given .env files are loaded first; variables that are
// already set are not overwritten. Missing files are ignored.
func LoadConfig(envFiles ...string) (Config, error) {
	for _, f := range envFiles {
		if _, err := os.Stat(f); err != nil {
			continue
		}

		if err := godotenv.Load(f); err != nil {
			return Config{}, fmt.Errorf("loading %s: %w", f, err)
		}
	}

	cfg := DefaultConfig()

	cfg.TraceDB = os.Getenv(EnvTraceDB)

	if v, ok := os.LookupEnv(EnvMonitorPort); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", EnvMonitorPort, err)
		}

		cfg.MonitorPort = port
	}

	if v, ok := os.LookupEnv(EnvUserShared); ok {
		user, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", EnvUserShared, err)
		}

		cfg.UserShared = user
	}

	if v, ok := os.LookupEnv(EnvTLBWays); ok {
		ways, err := strconv.Atoi(v)
		if err != nil || ways < 1 {
			return Config{}, fmt.Errorf("%s: invalid number of ways %q",
				EnvTLBWays, v)
		}

		cfg.TLBWays = ways
	}

	return cfg, nil
}
