package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-signing-secret"

func authApp() *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler()})
	app.Use(RequestID())
	app.Get("/me", JWTAuth(testSecret), func(c *fiber.Ctx) error {
		return c.SendString(c.Locals("user_id").(string))
	})
	app.Post("/callback", ServiceAuth("worker-secret"), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})
	return app
}

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func doRequest(t *testing.T, app *fiber.App, method, path, bearer string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if bearer != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+bearer)
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	return resp
}

func TestJWTAuthValidToken(t *testing.T) {
	app := authApp()
	token := signToken(t, testSecret, jwt.MapClaims{
		"user_id": "user-1",
		"exp":     time.Now().Add(time.Hour).Unix(),
	})

	resp := doRequest(t, app, fiber.MethodGet, "/me", token)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "user-1" {
		t.Fatalf("user id = %q, want user-1", body)
	}
}

func TestJWTAuthFallsBackToSubject(t *testing.T) {
	app := authApp()
	token := signToken(t, testSecret, jwt.MapClaims{
		"sub": "user-2",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	resp := doRequest(t, app, fiber.MethodGet, "/me", token)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "user-2" {
		t.Fatalf("user id = %q, want user-2", body)
	}
}

func TestJWTAuthRejects(t *testing.T) {
	app := authApp()
	cases := []struct {
		name  string
		token string
	}{
		{name: "missing token", token: ""},
		{
			name: "wrong secret",
			token: signToken(t, "other-secret", jwt.MapClaims{
				"user_id": "user-1",
				"exp":     time.Now().Add(time.Hour).Unix(),
			}),
		},
		{
			name: "expired token",
			token: signToken(t, testSecret, jwt.MapClaims{
				"user_id": "user-1",
				"exp":     time.Now().Add(-time.Hour).Unix(),
			}),
		},
		{
			name: "no subject at all",
			token: signToken(t, testSecret, jwt.MapClaims{
				"exp": time.Now().Add(time.Hour).Unix(),
			}),
		},
		{name: "garbage token", token: "not.a.jwt"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := doRequest(t, app, fiber.MethodGet, "/me", tc.token)
			if resp.StatusCode != fiber.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", resp.StatusCode)
			}
			body, _ := io.ReadAll(resp.Body)
			if !strings.Contains(string(body), `"success":false`) {
				t.Fatalf("body = %s, want error envelope", body)
			}
		})
	}
}

func TestServiceAuth(t *testing.T) {
	app := authApp()

	resp := doRequest(t, app, fiber.MethodPost, "/callback", "worker-secret")
	if resp.StatusCode != fiber.StatusNoContent {
		t.Fatalf("status = %d, want 204", resp.StatusCode)
	}

	resp = doRequest(t, app, fiber.MethodPost, "/callback", "wrong-secret")
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}

	resp = doRequest(t, app, fiber.MethodPost, "/callback", "")
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}

func TestRequestIDEchoed(t *testing.T) {
	app := authApp()

	req := httptest.NewRequest(fiber.MethodGet, "/me", nil)
	req.Header.Set("X-Request-ID", "req-42")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if got := resp.Header.Get("X-Request-ID"); got != "req-42" {
		t.Fatalf("request id = %q, want req-42", got)
	}

	resp, err = app.Test(httptest.NewRequest(fiber.MethodGet, "/me", nil))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Fatal("request id not minted")
	}
}
