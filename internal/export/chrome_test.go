package export

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/bobmcallan/lingqian/internal/presentation"
)

var pngSignature = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

// startHeadlessShell runs chromedp/headless-shell and returns its DevTools endpoint.
func startHeadlessShell(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping browser container in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := t.Context()
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "chromedp/headless-shell:latest",
			ExposedPorts: []string{"9222/tcp"},
			WaitingFor:   wait.ForListeningPort("9222/tcp").WithStartupTimeout(2 * time.Minute),
		},
		Started: true,
	})
	testcontainers.CleanupContainer(t, c)
	if err != nil {
		t.Fatalf("failed to start headless-shell: %v", err)
	}

	endpoint, err := c.PortEndpoint(ctx, "9222/tcp", "ws")
	if err != nil {
		t.Fatalf("failed to resolve DevTools endpoint: %v", err)
	}
	return endpoint
}

func TestChromeExporter_Container(t *testing.T) {
	endpoint := startHeadlessShell(t)

	exp, err := NewChromeExporter(ChromeOptions{RemoteURL: endpoint, Background: presentation.DefaultBackground}, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer exp.Close()

	r, err := presentation.NewRenderer("")
	if err != nil {
		t.Fatal(err)
	}
	doc, err := r.Document(testCard())
	if err != nil {
		t.Fatal(err)
	}

	card, err := exp.Capture(t.Context(), doc, presentation.CardSelector)
	if err != nil {
		t.Fatalf("Capture failed: %v", err)
	}
	if !bytes.HasPrefix(card, pngSignature) {
		t.Error("card capture is not a PNG")
	}

	full, err := exp.CaptureFull(t.Context(), doc)
	if err != nil {
		t.Fatalf("CaptureFull failed: %v", err)
	}
	if !bytes.HasPrefix(full, pngSignature) {
		t.Error("page capture is not a PNG")
	}

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()
	if _, err := exp.Capture(ctx, doc, "#missing"); err == nil {
		t.Error("expected capture of a missing element to fail")
	}
}

func TestService_ChromeDownload(t *testing.T) {
	endpoint := startHeadlessShell(t)

	exp, err := NewChromeExporter(ChromeOptions{RemoteURL: endpoint}, nil)
	if err != nil {
		t.Fatal(err)
	}
	r, _ := presentation.NewRenderer("")
	s := NewService(exp, r, Options{Timeout: 30 * time.Second}, nil)
	defer s.Close()

	res, err := s.Export(t.Context(), Key("s", 1, "t"), testCard())
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if res.Kind != KindDownload || !bytes.HasPrefix(res.PNG, pngSignature) {
		t.Errorf("unexpected export %s of %d bytes", res.Kind, len(res.PNG))
	}
}
