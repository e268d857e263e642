// Package updater checks GitHub for newer kith releases and can replace
// the running binary in place.
//
// The check is best effort: "kith serve" runs it in the background and a
// failure only produces a debug log line. Replacement downloads the archive
// for the current OS/arch, pulls the binary out of it and renames it over
// the executable. The server must be restarted afterwards.
package updater

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/HendryAvila/kith/internal/logging"
)

const (
	// DefaultEndpoint is the GitHub API endpoint for the latest release.
	DefaultEndpoint = "https://api.github.com/repos/HendryAvila/kith/releases/latest"

	binaryName   = "kith"
	checkTimeout = 10 * time.Second
	// maxArchiveBytes bounds a downloaded release archive.
	maxArchiveBytes = 200 << 20
)

// ErrUpToDate is returned by Apply when there is nothing newer.
var ErrUpToDate = errors.New("updater: already at the latest version")

// ReleaseInfo holds the relevant fields from a GitHub release.
type ReleaseInfo struct {
	TagName string  `json:"tag_name"`
	HTMLURL string  `json:"html_url"`
	Assets  []Asset `json:"assets"`
}

// Asset is a downloadable file in a GitHub release.
type Asset struct {
	Name               string `json:"name"`
	BrowserDownloadURL string `json:"browser_download_url"`
}

// Result describes how the running version compares to the latest release.
type Result struct {
	CurrentVersion  string
	LatestVersion   string
	UpdateAvailable bool
	ReleaseURL      string
}

// Updater talks to the release endpoint.
type Updater struct {
	endpoint string
	client   *http.Client
	exePath  func() (string, error)
	log      *logrus.Entry
}

// Option customizes an Updater.
type Option func(*Updater)

// WithEndpoint overrides the release endpoint.
func WithEndpoint(url string) Option { return func(u *Updater) { u.endpoint = url } }

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option { return func(u *Updater) { u.client = c } }

// WithExecutable overrides how the binary to replace is located.
func WithExecutable(fn func() (string, error)) Option { return func(u *Updater) { u.exePath = fn } }

// WithLogger sets the log entry.
func WithLogger(log *logrus.Entry) Option { return func(u *Updater) { u.log = log } }

// New creates an Updater for the public kith releases.
func New(opts ...Option) *Updater {
	u := &Updater{
		endpoint: DefaultEndpoint,
		client:   &http.Client{Timeout: checkTimeout},
		exePath:  os.Executable,
		log:      logging.Discard(),
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Check compares currentVersion with the latest release. Failures are
// logged and reported as "no update".
func (u *Updater) Check(ctx context.Context, currentVersion string) *Result {
	result := &Result{CurrentVersion: normalizeVersion(currentVersion)}
	release, err := u.latest(ctx, currentVersion)
	if err != nil {
		u.log.WithError(err).Debug("version check skipped")
		return result
	}
	result.LatestVersion = normalizeVersion(release.TagName)
	result.ReleaseURL = release.HTMLURL
	result.UpdateAvailable = isNewer(result.CurrentVersion, result.LatestVersion)
	return result
}

// Apply downloads the latest release for this OS/arch and replaces the
// running executable. It returns the installed version.
func (u *Updater) Apply(ctx context.Context, currentVersion string) (string, error) {
	release, err := u.latest(ctx, currentVersion)
	if err != nil {
		return "", err
	}
	latest := normalizeVersion(release.TagName)
	if !isNewer(normalizeVersion(currentVersion), latest) {
		return "", ErrUpToDate
	}

	assetName := buildAssetName(latest, runtime.GOOS, runtime.GOARCH)
	var downloadURL string
	for _, a := range release.Assets {
		if a.Name == assetName {
			downloadURL = a.BrowserDownloadURL
			break
		}
	}
	if downloadURL == "" {
		return "", fmt.Errorf("updater: no release asset %s for %s/%s", assetName, runtime.GOOS, runtime.GOARCH)
	}

	archive, err := u.download(ctx, downloadURL)
	if err != nil {
		return "", err
	}
	binary, err := extractBinary(archive, assetName)
	if err != nil {
		return "", fmt.Errorf("updater: extract: %w", err)
	}

	execPath, err := u.exePath()
	if err != nil {
		return "", fmt.Errorf("updater: locate executable: %w", err)
	}
	if execPath, err = filepath.EvalSymlinks(execPath); err != nil {
		return "", fmt.Errorf("updater: resolve executable: %w", err)
	}
	if err := replaceBinary(execPath, binary); err != nil {
		return "", err
	}
	u.log.WithFields(logrus.Fields{"from": currentVersion, "to": latest, "path": execPath}).Info("binary replaced")
	return latest, nil
}

func (u *Updater) latest(ctx context.Context, currentVersion string) (*ReleaseInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("updater: build request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("User-Agent", binaryName+"/"+currentVersion)

	resp, err := u.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("updater: fetch latest release: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("updater: release endpoint returned %d", resp.StatusCode)
	}

	var release ReleaseInfo
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return nil, fmt.Errorf("updater: decode release: %w", err)
	}
	return &release, nil
}

func (u *Updater) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("updater: build download request: %w", err)
	}
	// Downloads outlive the API timeout; ctx bounds them instead.
	client := *u.client
	client.Timeout = 0
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("updater: download: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("updater: download returned %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxArchiveBytes))
	if err != nil {
		return nil, fmt.Errorf("updater: read archive: %w", err)
	}
	return data, nil
}

// replaceBinary writes data next to path and renames it into place.
// Windows cannot overwrite a running binary, so the old one is moved aside.
func replaceBinary(path string, data []byte) error {
	tmpPath := path + ".new"
	if err := os.WriteFile(tmpPath, data, 0o755); err != nil {
		return fmt.Errorf("updater: write new binary: %w", err)
	}
	if runtime.GOOS == "windows" {
		oldPath := path + ".old"
		_ = os.Remove(oldPath)
		if err := os.Rename(path, oldPath); err != nil {
			_ = os.Remove(tmpPath)
			return fmt.Errorf("updater: move current binary aside: %w", err)
		}
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("updater: replace binary: %w", err)
	}
	return nil
}

// ─── Archives ────────────────────────────────────────────────────────────────

func isBinaryName(name string) bool {
	base := filepath.Base(name)
	return base == binaryName || base == binaryName+".exe"
}

func extractBinary(archive []byte, assetName string) ([]byte, error) {
	if strings.HasSuffix(assetName, ".zip") {
		return extractFromZip(archive)
	}
	return extractFromTarGz(archive)
}

func extractFromTarGz(archive []byte) ([]byte, error) {
	gz, err := gzip.NewReader(bytes.NewReader(archive))
	if err != nil {
		return nil, fmt.Errorf("open gzip: %w", err)
	}
	defer func() { _ = gz.Close() }()

	tr := tar.NewReader(gz)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read tar: %w", err)
		}
		if header.Typeflag == tar.TypeReg && isBinaryName(header.Name) {
			return io.ReadAll(tr)
		}
	}
	return nil, fmt.Errorf("%s binary not found in archive", binaryName)
}

func extractFromZip(archive []byte) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		return nil, fmt.Errorf("open zip: %w", err)
	}
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || !isBinaryName(f.Name) {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", f.Name, err)
		}
		data, err := io.ReadAll(rc)
		_ = rc.Close()
		return data, err
	}
	return nil, fmt.Errorf("%s binary not found in archive", binaryName)
}

// ─── Versions ────────────────────────────────────────────────────────────────

// buildAssetName matches the release archive naming: kith_<ver>_<os>_<arch>.
func buildAssetName(version, goos, goarch string) string {
	ext := "tar.gz"
	if goos == "windows" {
		ext = "zip"
	}
	return fmt.Sprintf("%s_%s_%s_%s.%s", binaryName, version, goos, goarch, ext)
}

func normalizeVersion(v string) string {
	return strings.TrimPrefix(strings.TrimSpace(v), "v")
}

// isNewer compares major.minor.patch numerically. Development builds never
// report an update.
func isNewer(current, latest string) bool {
	if current == "" || latest == "" || current == "dev" {
		return false
	}
	c, l := versionParts(current), versionParts(latest)
	for i := range c {
		if l[i] != c[i] {
			return l[i] > c[i]
		}
	}
	return false
}

func versionParts(v string) [3]int {
	var out [3]int
	for i, part := range strings.SplitN(v, ".", 3) {
		out[i] = leadingInt(part)
	}
	return out
}

// leadingInt parses the leading digits of s ("3rc1" is 3).
func leadingInt(s string) int {
	n := 0
	for _, ch := range s {
		if ch < '0' || ch > '9' {
			break
		}
		n = n*10 + int(ch-'0')
	}
	return n
}
