package provider

import (
	"fmt"
	"testing"

	"github.com/hashicorp/terraform-plugin-testing/helper/resource"
)

func TestAccUserResource_basic(t *testing.T) {
	username := GenerateTestName(TestUserPrefix)

	resource.Test(t, resource.TestCase{
		PreCheck:                 func() { testAccPreCheck(t) },
		ProtoV6ProviderFactories: testAccProtoV6ProviderFactories,
		CheckDestroy:             TestCheckUserDestroy,
		Steps: []resource.TestStep{
			// Create and Read testing
			{
				Config: TestProviderConfig() + testUserConfig(username, "Test", "User", username+"@example.com"),
				Check: resource.ComposeAggregateTestCheckFunc(
					TestCheckUserExists("edir_user.test"),
					resource.TestCheckResourceAttr("edir_user.test", "username", username),
					resource.TestCheckResourceAttr("edir_user.test", "id", username),
					resource.TestCheckResourceAttr("edir_user.test", "uid", username),
					resource.TestCheckResourceAttr("edir_user.test", "firstname", "Test"),
					resource.TestCheckResourceAttr("edir_user.test", "lastname", "User"),
					resource.TestCheckResourceAttr("edir_user.test", "email", username+"@example.com"),
					resource.TestCheckResourceAttr("edir_user.test", "dn", fmt.Sprintf("cn=%s,%s", username, GetTestConfig().BaseDN)),
				),
			},
			// ImportState testing
			{
				ResourceName:            "edir_user.test",
				ImportState:             true,
				ImportStateVerify:       true,
				ImportStateVerifyIgnore: []string{"password"},
			},
		},
	})
}

func TestAccUserResource_update(t *testing.T) {
	username := GenerateTestName(TestUserPrefix)

	resource.Test(t, resource.TestCase{
		PreCheck:                 func() { testAccPreCheck(t) },
		ProtoV6ProviderFactories: testAccProtoV6ProviderFactories,
		CheckDestroy:             TestCheckUserDestroy,
		Steps: []resource.TestStep{
			{
				Config: TestProviderConfig() + fmt.Sprintf(`
resource "edir_user" "test" {
  username = %[1]q
  lastname = "User"
  attributes = {
    description     = "before"
    telephoneNumber = "555-0100"
  }
}`, username),
				Check: resource.ComposeAggregateTestCheckFunc(
					TestCheckUserExists("edir_user.test"),
					resource.TestCheckNoResourceAttr("edir_user.test", "email"),
					resource.TestCheckResourceAttr("edir_user.test", "attributes.description", "before"),
					resource.TestCheckResourceAttr("edir_user.test", "attributes.telephoneNumber", "555-0100"),
				),
			},
			{
				Config: TestProviderConfig() + fmt.Sprintf(`
resource "edir_user" "test" {
  username = %[1]q
  lastname = "Renamed"
  email    = "%[1]s@example.com"
  attributes = {
    description = "after"
  }
}`, username),
				Check: resource.ComposeAggregateTestCheckFunc(
					TestCheckUserExists("edir_user.test"),
					resource.TestCheckResourceAttr("edir_user.test", "lastname", "Renamed"),
					resource.TestCheckResourceAttr("edir_user.test", "email", username+"@example.com"),
					resource.TestCheckResourceAttr("edir_user.test", "attributes.%", "1"),
					resource.TestCheckResourceAttr("edir_user.test", "attributes.description", "after"),
				),
			},
		},
	})
}

func TestAccUserResource_rename(t *testing.T) {
	username := GenerateTestName(TestUserPrefix)
	renamed := username + "@example.com"

	resource.Test(t, resource.TestCase{
		PreCheck:                 func() { testAccPreCheck(t) },
		ProtoV6ProviderFactories: testAccProtoV6ProviderFactories,
		CheckDestroy:             TestCheckUserDestroy,
		Steps: []resource.TestStep{
			{
				Config: TestProviderConfig() + testUserConfig(username, "Test", "User", username+"@example.com"),
				Check: resource.ComposeAggregateTestCheckFunc(
					TestCheckUserExists("edir_user.test"),
					resource.TestCheckResourceAttr("edir_user.test", "uid", username),
				),
			},
			{
				Config: TestProviderConfig() + testUserConfig(renamed, "Test", "User", username+"@example.com"),
				Check: resource.ComposeAggregateTestCheckFunc(
					TestCheckUserExists("edir_user.test"),
					resource.TestCheckResourceAttr("edir_user.test", "username", renamed),
					resource.TestCheckResourceAttr("edir_user.test", "uid", renamed),
					resource.TestCheckResourceAttr("edir_user.test", "dn", fmt.Sprintf("cn=%s,%s", renamed, GetTestConfig().BaseDN)),
				),
			},
		},
	})
}

func TestAccUserResource_disappears(t *testing.T) {
	username := GenerateTestName(TestUserPrefix)

	resource.Test(t, resource.TestCase{
		PreCheck:                 func() { testAccPreCheck(t) },
		ProtoV6ProviderFactories: testAccProtoV6ProviderFactories,
		CheckDestroy:             TestCheckUserDestroy,
		Steps: []resource.TestStep{
			{
				Config: TestProviderConfig() + testUserConfig(username, "Test", "User", username+"@example.com"),
				Check: resource.ComposeAggregateTestCheckFunc(
					TestCheckUserExists("edir_user.test"),
					TestCheckUserDisappears("edir_user.test"),
				),
				ExpectNonEmptyPlan: true,
			},
		},
	})
}

func TestAccDataSources_user(t *testing.T) {
	username := GenerateTestName(TestUserPrefix)

	resource.Test(t, resource.TestCase{
		PreCheck:                 func() { testAccPreCheck(t) },
		ProtoV6ProviderFactories: testAccProtoV6ProviderFactories,
		CheckDestroy:             TestCheckUserDestroy,
		Steps: []resource.TestStep{
			{
				Config: TestProviderConfig() + testUserConfig(username, "Test", "User", username+"@example.com") + `
data "edir_user" "test" {
  username = edir_user.test.username
}

data "edir_addressless_users" "test" {
  prefix = edir_user.test.username
}

data "edir_whoami" "current" {}
`,
				Check: resource.ComposeAggregateTestCheckFunc(
					resource.TestCheckResourceAttrPair("data.edir_user.test", "dn", "edir_user.test", "dn"),
					resource.TestCheckResourceAttr("data.edir_user.test", "firstname", "Test"),
					resource.TestCheckResourceAttr("data.edir_user.test", "login_disabled", "false"),
					resource.TestCheckResourceAttr("data.edir_addressless_users.test", "user_count", "1"),
					resource.TestCheckResourceAttr("data.edir_addressless_users.test", "usernames.0", username),
					resource.TestCheckResourceAttr("data.edir_whoami.current", "format", "dn"),
					resource.TestCheckResourceAttrSet("data.edir_whoami.current", "dn"),
				),
			},
		},
	})
}
