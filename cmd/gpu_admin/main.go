// Copyright 2025 Nonvolatile Inc. d/b/a Confident Security
//
// Licensed under the Functional Source License, Version 1.1,
// ALv2 Future License, the terms and conditions of which are
// set forth in the "LICENSE" file included in the root directory
// of this code repository (the "License"); you may not use this
// file except in compliance with the License. You may obtain
// a copy of the License at
//
// https://fsl.software/FSL-1.1-ALv2.template.md
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"

	"github.com/confidentsecurity/gpuadmin/ccmode"
	"github.com/confidentsecurity/gpuadmin/config"
	"github.com/confidentsecurity/gpuadmin/debug"
	"github.com/confidentsecurity/gpuadmin/nvmlname"
	"github.com/confidentsecurity/gpuadmin/pcidev"
	"github.com/confidentsecurity/gpuadmin/profiling"
)

const serviceName = "gpu_admin"

// Exit codes, so scripting callers can branch on the failure class.
const (
	exitOK             = 0
	exitGeneric        = 1
	exitSelection      = 2
	exitDeviceRequired = 3
	exitUnsupported    = 4
	exitRegisterAccess = 5
	exitResetVerify    = 6
)

var gpuIndexPtr *int64
var gpuBDFPtr *string
var gpuNamePtr *string
var noGPUPtr *bool
var queryCCModePtr *bool
var queryCCSettingsPtr *bool
var setCCModePtr *string
var resetAfterSwitchPtr *bool
var resetWithOSPtr *bool
var configPathPtr *string
var logLevelPtr *string

func init() {
	gpuIndexPtr = flag.Int64("gpu", pcidev.DefaultIndex, "select the GPU by index")
	gpuBDFPtr = flag.String("gpu-bdf", "", "select a single GPU by a substring of its BDF, e.g. '01:00'")
	gpuNamePtr = flag.String("gpu-name", "", "select a single GPU by a substring of its name, e.g. 'H100'; the first match wins")
	noGPUPtr = flag.Bool("no-gpu", false, "do not use any GPU; commands requiring one will fail")
	queryCCModePtr = flag.Bool("query-cc-mode", false, "query the currently active Confidential Computing (CC) mode")
	queryCCSettingsPtr = flag.Bool("query-cc-settings", false, "query the lower-level CC setting knobs that take effect upon GPU reset")
	setCCModePtr = flag.String("set-cc-mode", "", "stage a CC mode: off, on or devtools; the GPU must be reset to activate it")
	resetAfterSwitchPtr = flag.Bool("reset-after-cc-mode-switch", false, "reset the GPU after switching CC mode so it activates immediately")
	resetWithOSPtr = flag.Bool("reset-with-os", false, "reset the GPU through the OS (/sys/.../reset)")
	configPathPtr = flag.String("config", "", "optional YAML config file")
	logLevelPtr = flag.String("log", "info", "log level: debug, info, warn or error")
}

// Config is the gpu_admin tool config.
type Config struct {
	// Reset bounds the wait for device re-enumeration after a reset.
	Reset ccmode.Config `yaml:"reset"`
}

func main() {
	os.Exit(run(context.Background()))
}

func run(ctx context.Context) int {
	flag.Parse()

	var level slog.Level
	if err := level.UnmarshalText([]byte(*logLevelPtr)); err != nil {
		slog.Error("invalid log level", "level", *logLevelPtr)
		return exitGeneric
	}
	debug.SetupLogForCLI(serviceName, level)
	profiling.GPUAdmin.InitProfilerIfEnabled()

	if os.Geteuid() != 0 {
		slog.Error("you need to be root to run this program")
		return exitGeneric
	}

	cfg := &Config{Reset: ccmode.DefaultConfig()}
	if err := config.Load(cfg, *configPathPtr); err != nil {
		slog.Error("failed to load config", "error", err)
		return exitGeneric
	}

	criterion := pcidev.Criterion{
		Index: *gpuIndexPtr,
		BDF:   *gpuBDFPtr,
		Name:  *gpuNamePtr,
		None:  *noGPUPtr,
	}
	if err := criterion.Validate(); err != nil {
		slog.Error("invalid device selection", "error", err)
		return exitSelection
	}

	var opts []pcidev.Option
	if namer, err := nvmlname.New(); err == nil {
		defer namer.Shutdown()
		opts = append(opts, pcidev.WithNamer(namer))
	} else {
		slog.Debug("NVML unavailable, using built-in device names", "error", err)
	}
	transport := pcidev.NewSysfsTransport(opts...)

	devices, err := pcidev.Enumerate(ctx, transport)
	if err != nil {
		slog.Error("device enumeration failed", "error", err)
		return exitRegisterAccess
	}
	for _, d := range devices {
		slog.Debug("found device", "device", d.String())
	}

	selected, err := pcidev.Select(criterion, devices)
	if err != nil {
		slog.Error("device selection failed", "error", err)
		return exitSelection
	}

	wantsDevice := *queryCCModePtr || *queryCCSettingsPtr || *setCCModePtr != "" || *resetWithOSPtr
	if selected == nil {
		if wantsDevice {
			slog.Error("operation requires a device", "error", ccmode.ErrDeviceRequired)
			return exitDeviceRequired
		}
		slog.Info("no device selected")
		return exitOK
	}
	slog.Info("selected device", "device", selected.String())

	client := ccmode.NewClient(transport)
	orchestrator := ccmode.NewOrchestrator(transport, client, cfg.Reset)

	if *resetWithOSPtr {
		if err := orchestrator.CommitPending(ctx, *selected, ccmode.OSReset); err != nil {
			slog.Error("OS reset failed", "device", selected.BDF, "error", err)
			return exitCode(err)
		}
	}

	if *queryCCModePtr {
		mode, err := client.QueryActiveMode(ctx, *selected)
		if err != nil {
			slog.Error("failed to query CC mode", "device", selected.BDF, "error", err)
			return exitCode(err)
		}
		slog.Info("CC mode", "device", selected.BDF, "mode", mode)
	}

	if *queryCCSettingsPtr {
		settings, err := client.QuerySettings(ctx, *selected)
		if err != nil {
			slog.Error("failed to query CC settings", "device", selected.BDF, "error", err)
			return exitCode(err)
		}
		for _, knob := range settings.Map() {
			slog.Info("CC setting", "device", selected.BDF, "knob", knob.Name, "value", knob.Value)
		}
	}

	if *setCCModePtr != "" {
		target, err := ccmode.ParseMode(*setCCModePtr)
		if err != nil {
			slog.Error("invalid CC mode", "error", err)
			return exitGeneric
		}
		if err := client.SetMode(ctx, *selected, target); err != nil {
			slog.Error("failed to stage CC mode", "device", selected.BDF, "error", err)
			return exitCode(err)
		}
		if *resetAfterSwitchPtr {
			if err := orchestrator.CommitPending(ctx, *selected, ccmode.ToolReset); err != nil {
				slog.Error("reset after CC mode switch failed", "device", selected.BDF, "error", err)
				return exitCode(err)
			}
		} else {
			slog.Info("CC mode staged, reset the GPU to activate it", "device", selected.BDF, "mode", target)
		}
	}

	return exitOK
}

// exitCode maps an error to the failure class a scripting caller branches on.
func exitCode(err error) int {
	switch {
	case errors.Is(err, ccmode.ErrUnsupportedDevice):
		return exitUnsupported
	case errors.Is(err, ccmode.ErrActivationMismatch), errors.Is(err, ccmode.ErrResetTimeout):
		return exitResetVerify
	case errors.Is(err, ccmode.ErrDeviceRequired):
		return exitDeviceRequired
	case errors.Is(err, pcidev.ErrAccessDenied),
		errors.Is(err, pcidev.ErrDeviceUnavailable),
		errors.Is(err, pcidev.ErrScanUnavailable):
		return exitRegisterAccess
	default:
		return exitGeneric
	}
}
