package dbtest

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"testing"
	"time"
	"unicode"

	"github.com/docker/go-connections/nat"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/log"
	neo4jtest "github.com/testcontainers/testcontainers-go/modules/neo4j"
)

// Neo4jImage is the image of the Neo4j container. The enterprise edition is
// required for node key constraints and for creating databases.
//
// See <https://hub.docker.com/_/neo4j> for more images.
const Neo4jImage = "docker.io/neo4j:5-enterprise"

// Port of the HTTP endpoint serving the Neo4j browser:
// <https://neo4j.com/docs/browser-manual/current>
const neo4jHTTP = nat.Port("7474/tcp")

// SetupNeo4j spins up a new Neo4j Docker container and returns a driver
// connected to it. The driver is closed, and the container terminated, during
// cleanup of the provided [*testing.T].
//
// The provided [*testing.T] is used to:
//   - skip the test if the '-short' flag is set, because pulling and booting the
//     image takes far longer than the rest of the suite,
//   - route the testcontainers-go logs to the test log, so that they only show
//     up for failing or verbose runs,
//   - mark the test as parallel, so that several container-based tests boot
//     their containers at the same time instead of one after the other, and
//   - clean up the driver and the container after the test completes.
//
// The container runs without authentication and accepts the commercial licence
// of the enterprise edition (see Neo4jImage). Subtests that share the returned
// driver should each write to a database of their own, named by DatabaseName.
//
// When the '-dbtest.inspect' flag is set and the test fails, cleanup blocks
// before the container is terminated and logs the URL of the Neo4j browser
// (pre-configured to connect without authentication) and the Bolt URL, so that
// the state the test left behind can be examined. Interrupt the test binary to
// resume cleanup.
//
// This is a higher-level wrapper around testcontainers-go and its neo4j
// module, meant for tests that need a standard Neo4j instance. Its definition
// of "standard" may change over time. Tests that depend on a particular
// deployment detail should configure the container through the module
// directly; otherwise they may break when that detail changes, which suggests
// the detail would be just as fragile in production.
func SetupNeo4j(t *testing.T) neo4j.DriverWithContext {
	t.Helper()

	// Container-based tests are long-running and should respect the '-short' flag.
	if testing.Short() {
		t.Skip("Skipping container-based test in short mode...")
	}

	// Always run container-based tests in parallel.
	t.Parallel()

	ctx := context.Background()

	// Spin up a database container and tear it down gracefully after the test
	// completes.
	container, err := neo4jtest.Run(ctx, Neo4jImage,
		testcontainers.WithLogger(log.TestLogger(t)),
		neo4jtest.WithoutAuthentication(),
		neo4jtest.WithAcceptCommercialLicenseAgreement(),
	)
	if err != nil {
		t.Fatal("Failed to run neo4j container:", err)
	}
	t.Cleanup(func() {
		t.Logf("Terminating neo4j container %q...", container.GetContainerID())
		if err := container.Terminate(ctx); err != nil {
			t.Error("Encountered an error during cleanup; terminate container:", err)
		}
	})

	// Then, get the endpoints of the running container.
	boltURL, err := container.BoltUrl(ctx)
	if err != nil {
		t.Fatal("Failed to get bolt url:", err)
	}
	httpEndpoint, err := container.PortEndpoint(ctx, neo4jHTTP, "http")
	if err != nil {
		t.Fatal("Failed to get http endpoint:", err)
	}

	// Finally, connect to the database. The container may report ready a little
	// before the server accepts Bolt connections, hence the retries.
	driver, err := neo4j.NewDriverWithContext(boltURL, neo4j.NoAuth())
	if err != nil {
		t.Fatal("Failed to open neo4j driver:", err)
	}
	t.Cleanup(func() {
		if err := driver.Close(ctx); err != nil {
			t.Error("Encountered an error during cleanup while closing the neo4j driver:", err)
		}
	})

	if err := verifyConnectivity(t, ctx, driver); err != nil {
		t.Fatalf("Failed to establish a connection with the remote neo4j server after retries: %v", err)
	}

	// Registered last, so it runs before the container is terminated.
	t.Cleanup(func() {
		if t.Failed() && *Inspect {
			t.Logf("Container %v is still running for inspection (Ctrl+C to terminate)...", container.GetContainerID())
			t.Logf("HTTP URL = %s/browser?preselectAuthMethod=%s&dbms=%s", httpEndpoint, url.QueryEscape("[NO_AUTH]"), url.QueryEscape(boltURL))
			t.Logf("Bolt URL = %s", boltURL)
			waitForInspection()
		}
	})

	return driver
}

// DatabaseName returns a valid Neo4j database name derived from the name of t,
// so that subtests sharing a container write to databases of their own.
//
// Neo4j database names are limited to 63 ASCII letters, digits, dots and
// dashes, and must start with a letter. The test name is lower-cased, its
// separators become dashes, other characters are dropped, and the result is
// prefixed with "t-" and truncated.
func DatabaseName(t *testing.T) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			return unicode.ToLower(r)
		case r == '/' || r == '_' || r == '-':
			return '-'
		}
		return -1
	}, t.Name())
	name = "t-" + strings.Trim(name, "-")
	if len(name) > 63 {
		name = name[:63]
	}
	return strings.TrimRight(name, "-")
}

// verifyConnectivity checks the connection to Neo4j, retrying a few times in
// case the container reported ready before the server accepts connections.
func verifyConnectivity(t *testing.T, ctx context.Context, driver neo4j.DriverWithContext) error {
	t.Helper()

	const retryLimit = 5
	const retryPause = 100 * time.Millisecond

	err := driver.VerifyConnectivity(ctx)
	for r := 0; err != nil && r < retryLimit; r++ {
		t.Logf("Attempting retry [%d/%d] after failing to establish a connection with the remote neo4j server: %v", r+1, retryLimit, err)
		select {
		case <-time.After(retryPause):
		case <-ctx.Done():
			return fmt.Errorf("retry pause interrupted")
		}
		err = driver.VerifyConnectivity(ctx)
	}
	return err
}
