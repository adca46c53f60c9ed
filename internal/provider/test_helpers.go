package provider

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/terraform-plugin-framework/providerserver"
	"github.com/hashicorp/terraform-plugin-go/tfprotov6"
	"github.com/hashicorp/terraform-plugin-testing/helper/resource"
	"github.com/hashicorp/terraform-plugin-testing/terraform"

	"github.com/isometry/terraform-provider-edir/internal/edir"
	"github.com/isometry/terraform-provider-edir/internal/ldap"
)

// Test environment configuration constants.
const (
	EnvTestHost     = "EDIR_TEST_HOST"
	EnvTestLDAPURL  = "EDIR_TEST_LDAP_URL"
	EnvTestUsername = "EDIR_TEST_USERNAME"
	EnvTestPassword = "EDIR_TEST_PASSWORD"
	EnvTestBaseDN   = "EDIR_TEST_BASE_DN"
	EnvTestSkipTLS  = "EDIR_TEST_SKIP_TLS_VERIFY"

	DefaultTestBaseDN = "ou=users,o=example"

	// Test object name prefix to avoid conflicts.
	TestUserPrefix = "tf-test-user-"
)

// testAccProtoV6ProviderFactories are used to instantiate the provider during
// acceptance testing.
var testAccProtoV6ProviderFactories = map[string]func() (tfprotov6.ProviderServer, error){
	"edir": providerserver.NewProtocol6WithError(New("test")()),
}

// TestConfig holds common test configuration.
type TestConfig struct {
	Host          string
	LDAPURL       string
	Username      string
	Password      string
	BaseDN        string
	SkipTLSVerify bool
}

// GetTestConfig returns the test configuration from environment variables.
func GetTestConfig() *TestConfig {
	return &TestConfig{
		Host:          os.Getenv(EnvTestHost),
		LDAPURL:       os.Getenv(EnvTestLDAPURL),
		Username:      os.Getenv(EnvTestUsername),
		Password:      os.Getenv(EnvTestPassword),
		BaseDN:        getEnvWithDefault(EnvTestBaseDN, DefaultTestBaseDN),
		SkipTLSVerify: os.Getenv(EnvTestSkipTLS) != "",
	}
}

// IsAccTest returns true if acceptance tests should run.
func IsAccTest() bool {
	return os.Getenv("TF_ACC") != ""
}

// SkipIfNotAccTest skips the test if TF_ACC is not set.
func SkipIfNotAccTest(t *testing.T) {
	if !IsAccTest() {
		t.Skip("Skipping acceptance test - set TF_ACC=1 to run")
	}
}

// testAccPreCheck validates the acceptance test environment.
func testAccPreCheck(t *testing.T) *TestConfig {
	SkipIfNotAccTest(t)

	config := GetTestConfig()

	if config.Host == "" && config.LDAPURL == "" {
		t.Skipf("Skipping test: either %s or %s must be set", EnvTestHost, EnvTestLDAPURL)
	}

	if config.Username == "" || config.Password == "" {
		t.Skipf("Skipping test: %s and %s must be set", EnvTestUsername, EnvTestPassword)
	}

	return config
}

// TestProviderConfig generates provider configuration for tests.
func TestProviderConfig() string {
	config := GetTestConfig()

	var b strings.Builder
	b.WriteString("provider \"edir\" {\n")

	if config.LDAPURL != "" {
		fmt.Fprintf(&b, "  ldap_url = %q\n", config.LDAPURL)
	} else {
		fmt.Fprintf(&b, "  host = %q\n", config.Host)
	}

	fmt.Fprintf(&b, "  base_dn  = %q\n", config.BaseDN)
	fmt.Fprintf(&b, "  username = %q\n", config.Username)
	fmt.Fprintf(&b, "  password = %q\n", config.Password)

	if config.SkipTLSVerify {
		b.WriteString("  skip_tls_verify = true\n")
	}

	b.WriteString("}\n")
	return b.String()
}

// GenerateTestName generates a unique test name with timestamp.
func GenerateTestName(prefix string) string {
	timestamp := time.Now().Format("20060102-150405")
	shortUUID := uuid.New().String()[:8]
	return fmt.Sprintf("%s%s-%s", prefix, timestamp, shortUUID)
}

// testUserConfig renders an edir_user resource.
func testUserConfig(username, firstname, lastname, email string) string {
	return fmt.Sprintf(`
resource "edir_user" "test" {
  username  = %[1]q
  firstname = %[2]q
  lastname  = %[3]q
  email     = %[4]q
  password  = "Initial-Passw0rd!"
}`, username, firstname, lastname, email)
}

// newTestDirectory opens a directory handle for out-of-band checks.
func newTestDirectory(ctx context.Context) (*ldap.Directory, func(), error) {
	config := GetTestConfig()

	ldapConfig := ldap.DefaultConfig()
	ldapConfig.Host = config.Host
	if config.LDAPURL != "" {
		ldapConfig.LDAPURLs = []string{config.LDAPURL}
	}
	ldapConfig.BaseDN = config.BaseDN
	ldapConfig.Username = config.Username
	ldapConfig.Password = config.Password
	ldapConfig.MaxConnections = 1
	if config.SkipTLSVerify {
		ldapConfig.TLSConfig.InsecureSkipVerify = true
	}

	client, err := ldap.NewClientWithContext(ctx, ldapConfig)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create LDAP client: %w", err)
	}

	if err := client.Connect(ctx); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("failed to connect: %w", err)
	}

	closer := func() { _ = client.Close() }
	return ldap.NewDirectory(client, config.BaseDN, edir.AttrCN), closer, nil
}

// TestCheckUserExists verifies that the user in state exists in the directory.
func TestCheckUserExists(resourceName string) resource.TestCheckFunc {
	return func(s *terraform.State) error {
		rs, ok := s.RootModule().Resources[resourceName]
		if !ok {
			return fmt.Errorf("resource not found: %s", resourceName)
		}

		username := rs.Primary.Attributes["username"]
		if username == "" {
			return fmt.Errorf("username not set in %s", resourceName)
		}

		ctx := context.Background()
		dir, closer, err := newTestDirectory(ctx)
		if err != nil {
			return err
		}
		defer closer()

		entry, err := dir.FindUser(ctx, username)
		if err != nil {
			return fmt.Errorf("failed to look up user %s: %w", username, err)
		}
		if entry == nil {
			return fmt.Errorf("user %s does not exist", username)
		}

		if !ldap.EqualDN(entry.DN, rs.Primary.Attributes["dn"]) {
			return fmt.Errorf("user %s has DN %q, state has %q", username, entry.DN, rs.Primary.Attributes["dn"])
		}

		return nil
	}
}

// TestCheckUserDestroy verifies that all test users are destroyed.
func TestCheckUserDestroy(s *terraform.State) error {
	ctx := context.Background()
	dir, closer, err := newTestDirectory(ctx)
	if err != nil {
		return err
	}
	defer closer()

	for _, rs := range s.RootModule().Resources {
		if rs.Type != "edir_user" {
			continue
		}

		username := rs.Primary.Attributes["username"]
		entry, err := dir.FindUser(ctx, username)
		if err != nil {
			return fmt.Errorf("unexpected error checking user %s: %w", username, err)
		}
		if entry != nil {
			return fmt.Errorf("user %s still exists", username)
		}
	}

	return nil
}

// TestCheckUserDisappears deletes the user outside of Terraform.
func TestCheckUserDisappears(resourceName string) resource.TestCheckFunc {
	return func(s *terraform.State) error {
		rs, ok := s.RootModule().Resources[resourceName]
		if !ok {
			return fmt.Errorf("resource not found: %s", resourceName)
		}

		ctx := context.Background()
		dir, closer, err := newTestDirectory(ctx)
		if err != nil {
			return err
		}
		defer closer()

		if err := dir.DeleteUser(ctx, rs.Primary.Attributes["dn"]); err != nil {
			return fmt.Errorf("failed to manually delete user: %w", err)
		}

		return nil
	}
}

func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
