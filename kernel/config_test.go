package kernel

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Config", func() {
	unset := func() {
		for _, v := range []string{
			EnvTraceDB, EnvMonitorPort, EnvUserShared, EnvTLBWays,
		} {
			os.Unsetenv(v)
		}
	}

	BeforeEach(func() {
		unset()
		DeferCleanup(unset)
	})

	It("should use the default layout", func() {
		cfg, err := LoadConfig()

		Expect(err).NotTo(HaveOccurred())
		Expect(cfg).To(Equal(DefaultConfig()))
	})

	It("should read overrides from the environment", func() {
		os.Setenv(EnvTLBWays, "8")
		os.Setenv(EnvUserShared, "true")
		os.Setenv(EnvMonitorPort, "32776")

		cfg, err := LoadConfig()

		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.TLBWays).To(Equal(8))
		Expect(cfg.UserShared).To(BeTrue())
		Expect(cfg.MonitorPort).To(Equal(32776))
	})

	It("should load .env files without overriding the environment", func() {
		dir := GinkgoT().TempDir()
		file := filepath.Join(dir, ".env")
		Expect(os.WriteFile(file,
			[]byte("PAGESIM_TRACE_DB=run.sqlite3\nPAGESIM_TLB_WAYS=4\n"),
			0o644)).To(Succeed())
		os.Setenv(EnvTLBWays, "16")

		cfg, err := LoadConfig(file, filepath.Join(dir, "missing.env"))

		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.TraceDB).To(Equal("run.sqlite3"))
		Expect(cfg.TLBWays).To(Equal(16))
	})

	It("should reject invalid values", func() {
		os.Setenv(EnvTLBWays, "0")

		_, err := LoadConfig()

		Expect(err).To(HaveOccurred())
	})
})
