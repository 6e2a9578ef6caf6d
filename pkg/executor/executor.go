// Package executor runs a generated command plan against a connected
// device: pre-commands one at a time, main commands batched when the
// device supports it, rollback best-effort on failure, post-commands as
// warnings, with before/after state capture written to one audit entry.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/nanoncore/switchfleet/pkg/audit"
	"github.com/nanoncore/switchfleet/pkg/config"
	"github.com/nanoncore/switchfleet/pkg/device"
	"github.com/nanoncore/switchfleet/pkg/model"
	"github.com/nanoncore/switchfleet/pkg/retry"
)

// Options carries the per-call execute options from spec.md §4.8.
type Options struct {
	DryRun          bool
	RollbackOnError bool
	AuditContext    string
	User            string

	// ConfigChecksum is the checksum of the desired state being applied,
	// carried into the audit entry so a later forensic read can tie an
	// audit line back to the exact document that produced it.
	ConfigChecksum string
}

// Result is the outcome shape from spec.md §4.8.
type Result struct {
	Success             bool
	DryRun              bool
	ChangesMade         []string
	CommandsExecuted    []string
	Error               error
	ErrorContext        string
	RecoveryAttempts    []string
	RollbackPerformed   bool
	RequiresHumanReview bool

	// BeforeState and AfterState are the device's VLAN/port state read
	// immediately before and after a mutating main phase, per spec.md
	// §4.8's state-capture requirement. Both are nil for dry-run results
	// and for a non-mutating plan (no main commands).
	BeforeState *model.LiveState
	AfterState  *model.LiveState
}

// Executor wraps a retry policy and audit sink around plan execution.
// Grounded on the teacher's command.Executor.executeCommand lifecycle
// (acknowledge -> dispatch by capability -> push result), generalized to
// "acquire device (scoped) -> run phases -> emit one audit.Event".
type Executor struct {
	Retry  retry.Policy
	Audit  audit.Sink
	Logger *slog.Logger

	// Breakers, when set, guards connect attempts with a per-device
	// circuit breaker so a switch that is consistently unreachable stops
	// being hammered with fresh connect/retry cycles on every apply.
	Breakers *retry.Breakers
}

// New returns an Executor with a default retry policy, a discarding
// audit sink, and a fresh per-device breaker registry; callers override
// any field directly.
func New() *Executor {
	return &Executor{
		Retry:    retry.DefaultPolicy(),
		Audit:    audit.NullSink{},
		Breakers: retry.NewBreakers(retry.DefaultCircuitBreakerConfig()),
	}
}

// Run acquires dev as a scoped resource (Connect/Disconnect bracket),
// executes plan against it, and writes one audit event describing the
// outcome. diff supplies the human-readable change descriptions for
// dry-run previews and the audit trail.
func (e *Executor) Run(ctx context.Context, deviceID string, dev device.Device, plan *model.CommandPlan, diff *model.DiffResult, opts Options) *Result {
	if opts.DryRun {
		return e.dryRun(plan, diff)
	}

	var breaker *retry.CircuitBreaker
	if e.Breakers != nil {
		breaker = e.Breakers.For(deviceID)
		if !breaker.Allow() {
			return &Result{
				Success:             false,
				Error:               fmt.Errorf("circuit open for %s: too many recent connect failures", deviceID),
				ErrorContext:        "circuit-open",
				RequiresHumanReview: true,
			}
		}
	}

	connectPolicy := retry.ConnectPolicy()
	connectPolicy.Logger = e.Logger
	if err := connectPolicy.Run(ctx, func() error { return dev.Connect(ctx) }); err != nil {
		if breaker != nil {
			breaker.RecordFailure()
		}
		return &Result{Success: false, Error: err, ErrorContext: "connect", RequiresHumanReview: true}
	}
	if breaker != nil {
		breaker.RecordSuccess()
	}
	defer dev.Disconnect(ctx)

	var before *model.LiveState
	if len(plan.Main) > 0 {
		if live, err := device.FetchLiveState(ctx, dev); err == nil {
			before = live
		} else if e.Logger != nil {
			e.Logger.Warn("before-state capture failed", slog.String("device", deviceID), slog.Any("error", err))
		}
	}

	result := e.execute(ctx, deviceID, dev, plan, opts)
	result.BeforeState = before

	if len(plan.Main) > 0 {
		if live, err := device.FetchLiveState(ctx, dev); err == nil {
			result.AfterState = live
		} else if e.Logger != nil {
			e.Logger.Warn("after-state capture failed", slog.String("device", deviceID), slog.Any("error", err))
		}
	}

	e.writeAudit(deviceID, result, opts)
	return result
}

func (e *Executor) dryRun(plan *model.CommandPlan, diff *model.DiffResult) *Result {
	result := &Result{Success: true, DryRun: true}
	result.ChangesMade = humanizeDiff(diff, "[preview] ")
	for _, phase := range [][]string{plan.Pre, plan.Main, plan.Post} {
		for _, cmd := range phase {
			result.CommandsExecuted = append(result.CommandsExecuted, "[dry-run] "+cmd)
		}
	}
	return result
}

func (e *Executor) execute(ctx context.Context, deviceID string, dev device.Device, plan *model.CommandPlan, opts Options) *Result {
	result := &Result{Success: true}

	for _, cmd := range plan.Pre {
		out, err := e.runOne(ctx, dev, cmd)
		result.CommandsExecuted = append(result.CommandsExecuted, cmd)
		if err != nil {
			result.Success = false
			result.Error = err
			result.ErrorContext = fmt.Sprintf("pre-command failed: %s", cmd)
			_ = out
			return result
		}
	}

	caps := dev.Capabilities()

	mainErr := e.runMain(ctx, dev, plan.Main, caps, result)
	if mainErr != nil {
		result.Success = false
		result.Error = mainErr
		result.ErrorContext = "main-phase execution failed"

		if opts.RollbackOnError && len(plan.Rollback) > 0 {
			rollbackOK := true
			for _, cmd := range plan.Rollback {
				result.RecoveryAttempts = append(result.RecoveryAttempts, cmd)
				if _, err := e.runOne(ctx, dev, cmd); err != nil {
					rollbackOK = false
				}
			}
			result.RollbackPerformed = true
			if !rollbackOK {
				result.RequiresHumanReview = true
			}
		} else if len(plan.Rollback) == 0 {
			result.RequiresHumanReview = true
		}
		return result
	}

	for _, cmd := range plan.Post {
		result.CommandsExecuted = append(result.CommandsExecuted, cmd)
		if _, err := e.runOne(ctx, dev, cmd); err != nil {
			result.RecoveryAttempts = append(result.RecoveryAttempts, fmt.Sprintf("post-command warning: %s: %v", cmd, err))
			if e.Logger != nil {
				e.Logger.Warn("post-command failed, treated as warning", slog.String("device", deviceID), slog.String("command", cmd), slog.Any("error", err))
			}
		}
	}

	return result
}

// runMain dispatches the main phase as a single batch when the device
// supports it, otherwise sequentially, one command at a time. Legacy-web
// pseudo-commands are recognized and routed to the device's typed
// CreateVLAN/DeleteVLAN/ConfigurePort operations instead of Execute.
func (e *Executor) runMain(ctx context.Context, dev device.Device, commands []string, caps device.Capabilities, result *Result) error {
	if len(commands) == 0 {
		return nil
	}

	var literal []string
	for _, cmd := range commands {
		if config.IsWebCommand(cmd) {
			result.CommandsExecuted = append(result.CommandsExecuted, cmd)
			if err := e.runWebCommand(ctx, dev, cmd); err != nil {
				return err
			}
			continue
		}
		literal = append(literal, cmd)
	}
	if len(literal) == 0 {
		return nil
	}

	result.CommandsExecuted = append(result.CommandsExecuted, literal...)

	if caps.SupportsBatchExecute {
		var batchResult device.BatchResult
		err := e.Retry.Run(ctx, func() error {
			var runErr error
			batchResult, runErr = dev.ExecuteBatch(ctx, literal, true)
			return runErr
		})
		if err != nil {
			return err
		}
		if !batchResult.Success {
			for _, r := range batchResult.Results {
				if !r.Success && r.Error != "" {
					return fmt.Errorf("%s: %s", r.Command, r.Error)
				}
			}
			return fmt.Errorf("batch execution failed")
		}
		return nil
	}

	for _, cmd := range literal {
		if _, err := e.runOne(ctx, dev, cmd); err != nil {
			return err
		}
	}
	return nil
}

func (e *Executor) runOne(ctx context.Context, dev device.Device, cmd string) (string, error) {
	if config.IsWebCommand(cmd) {
		return "", e.runWebCommand(ctx, dev, cmd)
	}
	var out string
	err := e.Retry.Run(ctx, func() error {
		var runErr error
		out, runErr = dev.Execute(ctx, cmd)
		return runErr
	})
	return out, err
}

func (e *Executor) runWebCommand(ctx context.Context, dev device.Device, cmd string) error {
	wc, ok := config.ParseWebCommand(cmd)
	if !ok {
		return fmt.Errorf("malformed web pseudo-command: %s", cmd)
	}
	id, _ := strconv.Atoi(wc.Fields["id"])

	switch wc.Op {
	case "create_vlan":
		untagged := toSet(config.CSVField(wc.Fields["untagged"]))
		tagged := toSet(config.CSVField(wc.Fields["tagged"]))
		_, err := dev.CreateVLAN(ctx, model.VLANIntent{ID: id, Name: wc.Fields["name"], Untagged: untagged, Tagged: tagged})
		return err
	case "delete_vlan":
		_, err := dev.DeleteVLAN(ctx, id)
		return err
	case "modify_vlan":
		for _, port := range config.CSVField(wc.Fields["add_untagged"]) {
			mode := model.PortModeAccess
			native := id
			if _, err := dev.ConfigurePort(ctx, model.PortIntent{ID: port, VLANMode: &mode, NativeVLAN: &native}); err != nil {
				return err
			}
		}
		for _, port := range config.CSVField(wc.Fields["add_tagged"]) {
			mode := model.PortModeTrunk
			if _, err := dev.ConfigurePort(ctx, model.PortIntent{ID: port, VLANMode: &mode, AllowedVLANs: []int{id}}); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown web pseudo-command op: %s", wc.Op)
	}
}

func toSet(items []string) map[string]struct{} {
	s := make(map[string]struct{}, len(items))
	for _, it := range items {
		s[it] = struct{}{}
	}
	return s
}

// humanizeDiff renders diff into human-readable one-line descriptions,
// each prefixed with prefix (used for dry-run previews and audit trails).
func humanizeDiff(diff *model.DiffResult, prefix string) []string {
	var out []string
	for _, c := range diff.VLANChanges {
		switch c.Type {
		case model.ChangeCreate:
			out = append(out, fmt.Sprintf("%screate vlan %d (%s): %d untagged, %d tagged", prefix, c.ID, c.Name, len(c.FullUntagged), len(c.FullTagged)))
		case model.ChangeDelete:
			out = append(out, fmt.Sprintf("%sdelete vlan %d", prefix, c.ID))
		case model.ChangeModify:
			out = append(out, fmt.Sprintf("%smodify vlan %d: +%d/-%d untagged, +%d/-%d tagged",
				prefix, c.ID, len(c.AddUntagged), len(c.RemoveUntagged), len(c.AddTagged), len(c.RemoveTagged)))
		}
	}
	for _, c := range diff.PortChanges {
		out = append(out, fmt.Sprintf("%smodify port %s", prefix, c.ID))
	}
	return out
}

func (e *Executor) writeAudit(deviceID string, result *Result, opts Options) {
	if e.Audit == nil {
		return
	}
	errStr := ""
	if result.Error != nil {
		errStr = result.Error.Error()
	}
	event := audit.Event{
		Timestamp:      timeNow(),
		DeviceID:       deviceID,
		Operation:      "apply",
		Context:        opts.AuditContext,
		User:           opts.User,
		Success:        result.Success,
		Changes:        result.ChangesMade,
		Error:          errStr,
		ConfigChecksum: opts.ConfigChecksum,
		BeforeState:    result.BeforeState,
		AfterState:     result.AfterState,
	}
	if err := e.Audit.Write(event); err != nil && e.Logger != nil {
		e.Logger.Warn("failed to write audit event", slog.String("device", deviceID), slog.Any("error", err))
	}
}

// timeNow is a seam so tests can inject clockwork.FakeClock-derived times
// without the executor importing a clock abstraction for production use.
var timeNow = func() time.Time { return time.Now().UTC() }
