package middleware

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	"digidost/services"

	"github.com/gofiber/fiber/v2"
)

func whoAmI(c *fiber.Ctx) error {
	roles, _ := c.Locals("user_roles").([]string)
	return c.SendString(c.Locals("user_id").(string) + "|" + strings.Join(roles, ","))
}

func doRequest(t *testing.T, app *fiber.App, req *http.Request) (int, string) {
	t.Helper()
	resp, err := app.Test(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	buf := new(strings.Builder)
	if _, err := io.Copy(buf, resp.Body); err != nil {
		t.Fatal(err)
	}
	return resp.StatusCode, buf.String()
}

func TestGatewayAuthMiddleware(t *testing.T) {
	app := fiber.New()
	app.Use(GatewayAuthMiddleware("s3cret"))
	app.Get("/ping", func(c *fiber.Ctx) error { return c.SendString("pong") })

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", fiber.StatusUnauthorized},
		{"wrong", "Bearer nope", fiber.StatusUnauthorized},
		{"bearer", "Bearer s3cret", fiber.StatusOK},
		{"raw", "s3cret", fiber.StatusOK},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		if code, _ := doRequest(t, app, req); code != tc.want {
			t.Errorf("%s: status = %d, want %d", tc.name, code, tc.want)
		}
	}
}

func TestUserContextAndRoles(t *testing.T) {
	app := fiber.New()
	app.Get("/me", UserContextMiddleware(), whoAmI)
	app.Get("/staff", UserContextMiddleware(), RequireRole(RoleTeacher, RolePrincipal), whoAmI)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	if code, _ := doRequest(t, app, req); code != fiber.StatusUnauthorized {
		t.Errorf("missing user id: status = %d", code)
	}

	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("X-User-ID", "stu-1")
	req.Header.Set("X-User-Roles", " Student , ")
	if code, body := doRequest(t, app, req); code != fiber.StatusOK || body != "stu-1|student" {
		t.Errorf("me = %d %q", code, body)
	}

	req = httptest.NewRequest(http.MethodGet, "/staff", nil)
	req.Header.Set("X-User-ID", "stu-1")
	req.Header.Set("X-User-Roles", "student")
	if code, _ := doRequest(t, app, req); code != fiber.StatusForbidden {
		t.Errorf("student on staff route: status = %d", code)
	}

	req = httptest.NewRequest(http.MethodGet, "/staff", nil)
	req.Header.Set("X-User-ID", "t-9")
	req.Header.Set("X-User-Roles", "student,Teacher")
	if code, _ := doRequest(t, app, req); code != fiber.StatusOK {
		t.Errorf("teacher on staff route: status = %d", code)
	}
}

func TestParseRoles(t *testing.T) {
	got := ParseRoles(" Principal,,teacher ")
	if want := []string{"principal", "teacher"}; !reflect.DeepEqual(got, want) {
		t.Errorf("ParseRoles = %v, want %v", got, want)
	}
	if ParseRoles("") != nil {
		t.Error("empty header should give no roles")
	}
}

type stubValidator struct {
	resp *services.ValidateResponse
	err  error
}

func (v stubValidator) ValidateToken(context.Context, string, string) (*services.ValidateResponse, error) {
	return v.resp, v.err
}

func TestSSEAuthMiddleware(t *testing.T) {
	ok := stubValidator{resp: &services.ValidateResponse{UserID: "stu-7", DeviceID: "d1", Roles: []string{"student"}}}
	bad := stubValidator{err: errors.New("expired")}

	okApp := fiber.New()
	okApp.Get("/stream", SSEAuthMiddleware(ok), whoAmI)
	badApp := fiber.New()
	badApp.Get("/stream", SSEAuthMiddleware(bad), whoAmI)

	if code, _ := doRequest(t, okApp, httptest.NewRequest(http.MethodGet, "/stream?token=abc", nil)); code != fiber.StatusBadRequest {
		t.Errorf("missing device_id: status = %d", code)
	}
	if code, _ := doRequest(t, badApp, httptest.NewRequest(http.MethodGet, "/stream?token=abc&device_id=d1", nil)); code != fiber.StatusUnauthorized {
		t.Errorf("rejected token: status = %d", code)
	}
	code, body := doRequest(t, okApp, httptest.NewRequest(http.MethodGet, "/stream?token=abc&device_id=d1", nil))
	if code != fiber.StatusOK || body != "stu-7|student" {
		t.Errorf("accepted token = %d %q", code, body)
	}
}
