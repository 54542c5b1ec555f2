package vespa

import (
	"archive/zip"
	"bytes"
	"context"
	"embed"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

//go:embed schemas/services.xml schemas/*.sd
var schemaFS embed.FS

// Deployer uploads the catalog application package (services.xml plus the
// catalog_entity and catalog_index schemas) to a Vespa config server.
type Deployer struct {
	endpoint   string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewDeployer creates a deployer for the config server at endpoint
// (e.g. http://localhost:19071).
func NewDeployer(endpoint string, logger *slog.Logger) (*Deployer, error) {
	endpoint, err := validateEndpoint(endpoint)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Deployer{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		logger:     logger,
	}, nil
}

// Deploy prepares and activates the application package. Redeploying an
// unchanged package is harmless.
func (d *Deployer) Deploy(ctx context.Context) error {
	pkg, err := appPackage()
	if err != nil {
		return fmt.Errorf("build application package: %w", err)
	}

	deployURL := d.endpoint + "/application/v2/tenant/default/prepareandactivate"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, deployURL, bytes.NewReader(pkg))
	if err != nil {
		return fmt.Errorf("create deploy request: %w", err)
	}
	req.Header.Set("Content-Type", "application/zip")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("deploy: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode >= 400 {
		return fmt.Errorf("deploy failed with status %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	d.logger.Info("vespa application deployed", "endpoint", d.endpoint, "bytes", len(pkg))
	return nil
}

// appPackage zips the embedded schema directory into the layout the config
// server expects.
func appPackage() ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	err := fs.WalkDir(schemaFS, "schemas", func(path string, entry fs.DirEntry, err error) error {
		if err != nil || entry.IsDir() {
			return err
		}
		content, err := schemaFS.ReadFile(path)
		if err != nil {
			return err
		}
		name := path
		if strings.HasSuffix(path, "services.xml") {
			name = "services.xml"
		}
		w, err := zw.Create(name)
		if err != nil {
			return err
		}
		_, err = w.Write(content)
		return err
	})
	if err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// validateEndpoint accepts absolute http(s) URLs and strips a trailing slash.
func validateEndpoint(endpoint string) (string, error) {
	if endpoint == "" {
		return "", fmt.Errorf("vespa endpoint is required")
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid vespa endpoint %q: %w", endpoint, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("invalid vespa endpoint %q: scheme must be http or https", endpoint)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid vespa endpoint %q: host is required", endpoint)
	}
	return strings.TrimSuffix(endpoint, "/"), nil
}
