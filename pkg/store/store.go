// Package store persists desired-state documents, snapshots, and drift
// reports under a git-backed working tree: one commit per saved change,
// full history/diff/restore, and timestamped drift-report retention.
// Grounded on original_source's GitManager (config_store/git_manager.py),
// reimplemented with os/exec the way the teacher shells out to vppctl in
// cmd/nano-agent/main.go, since no Go git-porcelain library appears
// anywhere in the retrieved pack.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nanoncore/switchfleet/pkg/config"
	"github.com/nanoncore/switchfleet/pkg/model"
	"github.com/nanoncore/switchfleet/pkg/switcherr"
)

const (
	dirDesiredState = "desired-state"
	dirProfiles     = "profiles"
	dirNetworkWide  = "network-wide"
	dirSnapshots    = "snapshots"
	dirLastKnown    = "last-known"
	dirDriftReports = "drift-reports"

	gitAuthorName  = "switchfleet"
	gitAuthorEmail = "switchfleet@local"
)

// Store is a git-backed working tree holding desired state, profiles,
// network-wide fragments, snapshots, last-known live dumps, and drift
// reports for a device fleet.
type Store struct {
	root string
	now  func() time.Time
}

// Open returns a Store rooted at root, creating the five category
// directories if absent and initializing git metadata on first use.
func Open(root string) (*Store, error) {
	for _, sub := range []string{dirDesiredState, dirProfiles, dirNetworkWide, dirSnapshots, dirLastKnown, dirDriftReports} {
		if err := os.MkdirAll(filepath.Join(root, sub), 0o755); err != nil {
			return nil, fmt.Errorf("store: create %s: %w", sub, err)
		}
	}
	s := &Store{root: root, now: func() time.Time { return time.Now().UTC() }}
	if err := s.ensureRepo(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

// CommitInfo is one entry of commit history, field-for-field the shape
// original_source's GitManager.get_history returns.
type CommitInfo struct {
	Hash      string
	ShortHash string
	Author    string
	Date      time.Time
	Message   string
}

func (s *Store) ensureRepo(ctx context.Context) error {
	if _, err := os.Stat(filepath.Join(s.root, ".git")); err == nil {
		return nil
	}
	if _, err := s.runGit(ctx, "init"); err != nil {
		return err
	}
	if _, err := s.runGit(ctx, "config", "user.name", gitAuthorName); err != nil {
		return err
	}
	if _, err := s.runGit(ctx, "config", "user.email", gitAuthorEmail); err != nil {
		return err
	}
	gitignore := filepath.Join(s.root, ".gitignore")
	if err := os.WriteFile(gitignore, []byte("*.tmp\n*.bak\n"), 0o644); err != nil {
		return fmt.Errorf("store: write .gitignore: %w", err)
	}
	if _, err := s.runGit(ctx, "add", "."); err != nil {
		return err
	}
	if _, err := s.runGit(ctx, "commit", "-m", "Initial config repository", "--allow-empty"); err != nil {
		return err
	}
	return nil
}

func (s *Store) runGit(ctx context.Context, args ...string) (string, error) {
	full := append([]string{"-C", s.root}, args...)
	cmd := exec.CommandContext(ctx, "git", full...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("store: git %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// desiredStatePath returns the relative (repo-rooted) path for a
// device's desired-state file.
func desiredStatePath(deviceID string) string {
	return filepath.Join(dirDesiredState, deviceID+".yaml")
}

// persistedDocument is the on-disk shape of a saved desired-state file:
// a metadata header followed by the config body, per the persisted
// desired-state file format.
type persistedDocument struct {
	DeviceID  string    `yaml:"device_id"`
	Version   int       `yaml:"version"`
	Checksum  string    `yaml:"checksum"`
	UpdatedAt time.Time `yaml:"updated_at"`
	UpdatedBy string    `yaml:"updated_by"`
	Source    string    `yaml:"source"`
	VLANs     any       `yaml:"vlans,omitempty"`
	Ports     any       `yaml:"ports,omitempty"`
	Settings  any       `yaml:"settings,omitempty"`
}

// Save writes the device's desired-state document, bumping the version
// number by reading the previous committed version if any, and commits
// the change with message "[<device>] <summary> (v<version>)". A save
// that stages no changes (content identical to the committed copy)
// returns ("", nil) without committing.
func (s *Store) Save(ctx context.Context, deviceID string, doc map[string]any, summary, updatedBy string, src model.Source) (string, error) {
	rel := desiredStatePath(deviceID)
	abs := filepath.Join(s.root, rel)

	version := 1
	if prev, err := s.readDocument(deviceID); err == nil {
		version = prev.Version + 1
	}

	sum, err := checksum(doc)
	if err != nil {
		return "", err
	}

	pd := persistedDocument{
		DeviceID:  deviceID,
		Version:   version,
		Checksum:  sum,
		UpdatedAt: s.now(),
		UpdatedBy: updatedBy,
		Source:    string(src),
		VLANs:     doc["vlans"],
		Ports:     doc["ports"],
		Settings:  doc["settings"],
	}

	out, err := yaml.Marshal(pd)
	if err != nil {
		return "", fmt.Errorf("store: marshal desired state: %w", err)
	}
	if err := os.WriteFile(abs, out, 0o644); err != nil {
		return "", fmt.Errorf("store: write %s: %w", rel, err)
	}

	if _, err := s.runGit(ctx, "add", rel); err != nil {
		return "", err
	}
	_, err = s.runGit(ctx, "diff", "--cached", "--quiet")
	if err == nil {
		// diff --cached --quiet exited 0: nothing staged.
		return "", nil
	}

	message := fmt.Sprintf("[%s] %s (v%d)", deviceID, summary, version)
	if _, err := s.runGit(ctx, "commit", "-m", message); err != nil {
		return "", err
	}
	hash, err := s.runGit(ctx, "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(hash), nil
}

func (s *Store) readDocument(deviceID string) (*persistedDocument, error) {
	raw, err := os.ReadFile(filepath.Join(s.root, desiredStatePath(deviceID)))
	if err != nil {
		return nil, err
	}
	var pd persistedDocument
	if err := yaml.Unmarshal(raw, &pd); err != nil {
		return nil, err
	}
	return &pd, nil
}

// History lists commits touching deviceID's desired-state file (all
// commits if deviceID is empty), newest first, up to limit entries.
func (s *Store) History(ctx context.Context, deviceID string, limit int) ([]CommitInfo, error) {
	const sep = "|"
	format := strings.Join([]string{"%H", "%h", "%an", "%aI", "%s"}, sep)
	args := []string{"log", "--format=" + format, fmt.Sprintf("-n%d", limit)}
	if deviceID != "" {
		args = append(args, "--", desiredStatePath(deviceID))
	}
	out, err := s.runGit(ctx, args...)
	if err != nil {
		return nil, err
	}
	var commits []CommitInfo
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, sep, 5)
		if len(parts) < 5 {
			continue
		}
		date, err := time.Parse(time.RFC3339, parts[3])
		if err != nil {
			continue
		}
		commits = append(commits, CommitInfo{Hash: parts[0], ShortHash: parts[1], Author: parts[2], Date: date, Message: parts[4]})
	}
	return commits, nil
}

// Show returns the desired-state file's content at revision (default
// "HEAD" meaning the current working-tree commit).
func (s *Store) Show(ctx context.Context, deviceID, revision string) (string, error) {
	if revision == "" {
		revision = "HEAD"
	}
	out, err := s.runGit(ctx, "show", fmt.Sprintf("%s:%s", revision, desiredStatePath(deviceID)))
	if err != nil {
		return "", switcherr.NewResourceNotFoundError("revision", revision)
	}
	return out, nil
}

// Diff returns the textual diff of deviceID's desired-state file
// between revision1 (older, default "HEAD~1") and revision2 (newer,
// default "HEAD").
func (s *Store) Diff(ctx context.Context, deviceID, revision1, revision2 string) (string, error) {
	if revision1 == "" {
		revision1 = "HEAD~1"
	}
	if revision2 == "" {
		revision2 = "HEAD"
	}
	return s.runGit(ctx, "diff", revision1, revision2, "--", desiredStatePath(deviceID))
}

// Restore rewrites deviceID's desired-state file to its content at
// revision and commits the restore as a new, forward-moving change —
// history is never rewritten, only extended. Per spec.md §8's restore
// scenario, the restored body matches the target revision's but the
// version number keeps advancing monotonically from HEAD rather than
// reverting to the target revision's own version.
func (s *Store) Restore(ctx context.Context, deviceID, revision, restoredBy string) (string, error) {
	content, err := s.Show(ctx, deviceID, revision)
	if err != nil {
		return "", err
	}
	var pd persistedDocument
	if err := yaml.Unmarshal([]byte(content), &pd); err != nil {
		return "", fmt.Errorf("store: parse restored content: %w", err)
	}

	version := 1
	if prev, err := s.readDocument(deviceID); err == nil {
		version = prev.Version + 1
	}
	pd.Version = version
	pd.UpdatedAt = s.now()
	if restoredBy != "" {
		pd.UpdatedBy = restoredBy
	}

	out, err := yaml.Marshal(pd)
	if err != nil {
		return "", fmt.Errorf("store: marshal restored document: %w", err)
	}
	rel := desiredStatePath(deviceID)
	if err := os.WriteFile(filepath.Join(s.root, rel), out, 0o644); err != nil {
		return "", fmt.Errorf("store: write %s: %w", rel, err)
	}
	if _, err := s.runGit(ctx, "add", rel); err != nil {
		return "", err
	}
	message := fmt.Sprintf("[%s] restore from %s", deviceID, revision)
	if restoredBy != "" {
		message += fmt.Sprintf("\n\nRestored by: %s", restoredBy)
	}
	if _, err := s.runGit(ctx, "commit", "-m", message); err != nil {
		return "", err
	}
	hash, err := s.runGit(ctx, "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(hash), nil
}

// SaveSnapshot copies the current desired-state file for deviceID into a
// timestamped snapshot directory. Used before risky operations so a
// known-good desired state is recoverable outside of git history too.
func (s *Store) SaveSnapshot(deviceID string) (string, error) {
	content, err := os.ReadFile(filepath.Join(s.root, desiredStatePath(deviceID)))
	if err != nil {
		return "", fmt.Errorf("store: read desired state for snapshot: %w", err)
	}
	stamp := s.now().Format("20060102T150405Z")
	dir := filepath.Join(s.root, dirSnapshots, stamp)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("store: create snapshot dir: %w", err)
	}
	path := filepath.Join(dir, deviceID+".yaml")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return "", fmt.Errorf("store: write snapshot: %w", err)
	}
	return path, nil
}

// SaveLastKnown persists the most recent live-state dump for deviceID,
// overwriting any previous one.
func (s *Store) SaveLastKnown(deviceID string, live *model.LiveState) error {
	out, err := json.MarshalIndent(live, "", "  ")
	if err != nil {
		return fmt.Errorf("store: marshal live state: %w", err)
	}
	path := filepath.Join(s.root, dirLastKnown, deviceID+".json")
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return fmt.Errorf("store: write last-known: %w", err)
	}
	return nil
}

// DriftReport is the persisted output of one drift check.
type DriftReport struct {
	DeviceID  string            `json:"device_id"`
	Timestamp time.Time         `json:"timestamp"`
	InSync    bool              `json:"in_sync"`
	Items     []model.DriftItem `json:"items"`
}

// ComputeDrift compares desired VLAN membership (with port-range tokens
// expanded by the caller) against live state and returns the discrepancy
// report. VLAN 1 is never reported as an extra-in-live VLAN, matching
// the store's default-VLAN drift-noise suppression.
func ComputeDrift(deviceID string, desired *model.DesiredState, live *model.LiveState) *DriftReport {
	var items []model.DriftItem

	desiredIDs := sortedVLANIDs(desired.VLANs)
	for _, id := range desiredIDs {
		want := desired.VLANs[id]
		if want.Action == model.ActionAbsent {
			continue
		}
		got, ok := live.VLANs[id]
		if !ok {
			items = append(items, model.DriftItem{
				Category: model.DriftVLAN, ItemID: strconv.Itoa(id), Type: model.DriftMissing,
				Expected: setKeys(want.Untagged), Description: "vlan absent from live state",
			})
			continue
		}
		if missing, extra := setDiff(want.Untagged, got.Untagged); len(missing) > 0 || len(extra) > 0 {
			if len(missing) > 0 {
				items = append(items, model.DriftItem{Category: model.DriftVLAN, ItemID: strconv.Itoa(id), Type: model.DriftMissing, Expected: missing, Description: "missing untagged members"})
			}
			if len(extra) > 0 {
				items = append(items, model.DriftItem{Category: model.DriftVLAN, ItemID: strconv.Itoa(id), Type: model.DriftExtra, Actual: extra, Description: "extra untagged members"})
			}
		}
		if missing, extra := setDiff(want.Tagged, got.Tagged); len(missing) > 0 || len(extra) > 0 {
			if len(missing) > 0 {
				items = append(items, model.DriftItem{Category: model.DriftVLAN, ItemID: strconv.Itoa(id), Type: model.DriftMissing, Expected: missing, Description: "missing tagged members"})
			}
			if len(extra) > 0 {
				items = append(items, model.DriftItem{Category: model.DriftVLAN, ItemID: strconv.Itoa(id), Type: model.DriftExtra, Actual: extra, Description: "extra tagged members"})
			}
		}
	}

	for _, id := range liveVLANIDs(live) {
		if id == 1 {
			continue
		}
		if _, wanted := desired.VLANs[id]; wanted {
			continue
		}
		items = append(items, model.DriftItem{Category: model.DriftVLAN, ItemID: strconv.Itoa(id), Type: model.DriftExtra, Description: "vlan present in live state but absent from desired state"})
	}

	return &DriftReport{DeviceID: deviceID, InSync: len(items) == 0, Items: items}
}

// liveVLANIDs returns the live VLAN id set, sorted; kept local to drift
// reporting rather than added to model.LiveState, which has no other
// ordering-dependent consumer.
func liveVLANIDs(live *model.LiveState) []int {
	ids := make([]int, 0, len(live.VLANs))
	for id := range live.VLANs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

func sortedVLANIDs(vlans map[int]model.VLANIntent) []int {
	ids := make([]int, 0, len(vlans))
	for id := range vlans {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

func setKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func setDiff(desired, live map[string]struct{}) (missing, extra []string) {
	for k := range desired {
		if _, ok := live[k]; !ok {
			missing = append(missing, k)
		}
	}
	for k := range live {
		if _, ok := desired[k]; !ok {
			extra = append(extra, k)
		}
	}
	sort.Strings(missing)
	sort.Strings(extra)
	return missing, extra
}

// SaveDriftReport persists report as timestamped JSON under
// drift-reports/.
func (s *Store) SaveDriftReport(report *DriftReport) (string, error) {
	report.Timestamp = s.now()
	stamp := report.Timestamp.Format("20060102T150405Z")
	path := filepath.Join(s.root, dirDriftReports, fmt.Sprintf("%s-%s.json", report.DeviceID, stamp))
	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("store: marshal drift report: %w", err)
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return "", fmt.Errorf("store: write drift report: %w", err)
	}
	return path, nil
}

// checksum computes the SHA-256 digest of doc's VLANs+Ports+Settings, via
// the same config.Parse -> model.Checksum path used on the apply side, so
// a stored document's checksum always matches what re-parsing it produces.
func checksum(doc map[string]any) (string, error) {
	ds, err := config.Parse(doc)
	if err != nil {
		return "", fmt.Errorf("store: computing checksum: %w", err)
	}
	return model.Checksum(ds), nil
}
