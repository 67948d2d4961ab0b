package main

import (
	"io"
	"os"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/suite"

	"github.com/roambot/blecore/internal/platform"
	"github.com/roambot/blecore/internal/testutils"
	"github.com/roambot/blecore/pkg/config"
)

// ScanTestSuite provides testify/suite for proper test isolation
type ScanTestSuite struct {
	suite.Suite

	stack                *testutils.FakeStack
	originalStackFactory func(*logrus.Logger, *config.Config) (platform.Stack, error)
	originalFlags        struct {
		scanDuration time.Duration
		scanFormat   string
	}
}

func (s *ScanTestSuite) SetupSuite() {
	s.originalFlags.scanDuration = scanDuration
	s.originalFlags.scanFormat = scanFormat
	s.originalStackFactory = stackFactory
}

func (s *ScanTestSuite) TearDownSuite() {
	stackFactory = s.originalStackFactory
	scanDuration = s.originalFlags.scanDuration
	scanFormat = s.originalFlags.scanFormat
}

func (s *ScanTestSuite) SetupTest() {
	scanDuration = 0
	scanFormat = ""

	// scanCmd is shared between tests; clear the sticky --help flag that
	// cobra leaves set after the help test runs.
	if f := scanCmd.Flags().Lookup("help"); f != nil {
		s.Require().NoError(f.Value.Set("false"))
		f.Changed = false
	}

	s.stack = testutils.NewFakeStack()
	stackFactory = func(*logrus.Logger, *config.Config) (platform.Stack, error) {
		return s.stack, nil
	}
}

// captureStdout executes fn while capturing stdout, returns captured output.
func (s *ScanTestSuite) captureStdout(fn func()) string {
	oldStdout := os.Stdout
	r, w, err := os.Pipe()
	s.Require().NoError(err)
	os.Stdout = w
	defer func() { os.Stdout = oldStdout }()

	fn()

	w.Close()
	out, _ := io.ReadAll(r)
	return string(out)
}

// completeDiscovery feeds devices into the fake watcher once the scan
// command has started it, then signals enumeration complete.
func (s *ScanTestSuite) completeDiscovery(devices ...platform.DeviceInfo) {
	go func() {
		for i := 0; i < 100; i++ {
			if s.stack.Watcher.Running() {
				break
			}
			time.Sleep(10 * time.Millisecond)
		}
		for _, d := range devices {
			s.stack.Watcher.EmitAdded(d)
		}
		s.stack.Watcher.CompleteEnumeration()
	}()
}

func (s *ScanTestSuite) TestScanCmd_Help() {
	cmd := &cobra.Command{}
	cmd.AddCommand(scanCmd)

	output, err := executeCommand(cmd, "scan", "--help")
	s.Require().NoError(err)

	s.Assert().Contains(output, "Scan for and display Bluetooth Low Energy devices")
	s.Assert().Contains(output, "--duration")
	s.Assert().Contains(output, "--format")
}

func (s *ScanTestSuite) TestScanCmd_InvalidFormat() {
	cmd := &cobra.Command{}
	cmd.AddCommand(scanCmd)
	cmd.PersistentFlags().String("log-level", "", "")
	cmd.PersistentFlags().String("config", "", "")

	_, err := executeCommand(cmd, "scan", "--format=invalid")

	s.Require().Error(err)
	s.Assert().Contains(err.Error(), "invalid format 'invalid'")
}

func (s *ScanTestSuite) TestScanCmd_ListsDiscoveredDevices() {
	cmd := &cobra.Command{}
	cmd.AddCommand(scanCmd)
	cmd.PersistentFlags().String("log-level", "", "")
	cmd.PersistentFlags().String("config", "", "")

	s.completeDiscovery(
		platform.DeviceInfo{ID: "dev-a", Name: "Sphero-RGR", Address: "11:11:11:11:11:11"},
		platform.DeviceInfo{ID: "dev-b", Name: "Sphero-YBW", Address: "22:22:22:22:22:22"},
	)

	output := s.captureStdout(func() {
		_, err := executeCommand(cmd, "scan", "--duration=5s")
		s.Require().NoError(err)
	})

	s.Assert().Contains(output, "Sphero-RGR")
	s.Assert().Contains(output, "11:11:11:11:11:11")
	s.Assert().Contains(output, "Sphero-YBW")
	s.Assert().Contains(output, "22:22:22:22:22:22")
}

func (s *ScanTestSuite) TestScanCmd_JSONOutput() {
	cmd := &cobra.Command{}
	cmd.AddCommand(scanCmd)
	cmd.PersistentFlags().String("log-level", "", "")
	cmd.PersistentFlags().String("config", "", "")

	s.completeDiscovery(
		platform.DeviceInfo{ID: "dev-a", Name: "Sphero-RGR", Address: "11:11:11:11:11:11"},
	)

	output := s.captureStdout(func() {
		_, err := executeCommand(cmd, "scan", "--duration=5s", "--format=json")
		s.Require().NoError(err)
	})

	s.Assert().Contains(output, `"name": "Sphero-RGR"`)
	s.Assert().Contains(output, `"address": "11:11:11:11:11:11"`)
}

func (s *ScanTestSuite) TestScanCmd_NoDevices() {
	cmd := &cobra.Command{}
	cmd.AddCommand(scanCmd)
	cmd.PersistentFlags().String("log-level", "", "")
	cmd.PersistentFlags().String("config", "", "")

	s.completeDiscovery()

	output := s.captureStdout(func() {
		_, err := executeCommand(cmd, "scan", "--duration=5s")
		s.Require().NoError(err)
	})

	s.Assert().Contains(output, "No devices discovered")
}

func TestScanTestSuite(t *testing.T) {
	suite.Run(t, new(ScanTestSuite))
}
