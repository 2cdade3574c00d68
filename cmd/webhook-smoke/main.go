// Command webhook-smoke exercises a running webhook server: the liveness
// endpoint, an unauthenticated webhook call, and an authenticated one.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/oauth2"

	runauth "github.com/bionicotaku/lingo-utils-runauth"
)

func main() {
	envPath := defaultEnvPath()
	if err := loadEnvFile(envPath); err != nil {
		log.Printf("warning: load %s: %v", envPath, err)
	}

	baseURL := flag.String("url", envOr("WEBHOOK_URL", "http://127.0.0.1:8080"), "Webhook server base URL (env WEBHOOK_URL)")
	audience := flag.String("audience", os.Getenv("WEBHOOK_AUDIENCE"), "Audience to mint the identity token for (env WEBHOOK_AUDIENCE)")
	serviceAccount := flag.String("service-account", os.Getenv("WEBHOOK_SERVICE_ACCOUNT"), "Service account to impersonate (env WEBHOOK_SERVICE_ACCOUNT)")
	token := flag.String("token", os.Getenv("WEBHOOK_ID_TOKEN"), "Existing identity token; minted via ADC when empty (env WEBHOOK_ID_TOKEN)")
	timeout := flag.Duration("timeout", 10*time.Second, "Timeout per request")
	flag.Parse()

	base := strings.TrimRight(*baseURL, "/")
	client := &http.Client{Timeout: *timeout}
	payload := map[string]string{"message": "Hello from webhook"}

	fmt.Println("Starting endpoint tests...")

	fmt.Println("\nTesting root endpoint (GET /)")
	resp, err := client.Get(base + "/")
	report(resp, err)

	fmt.Println("\nTesting webhook endpoint without auth (POST /webhook)")
	body, _ := json.Marshal(payload)
	resp, err = client.Post(base+"/webhook", "application/json", bytes.NewReader(body))
	report(resp, err)

	if *token == "" && *audience == "" {
		fmt.Println("\nSkipping authenticated call: set -audience or -token")
		fmt.Println("\nTests completed!")
		return
	}

	cfg := runauth.InvokerConfig{ServiceAccount: *serviceAccount, HTTPClient: client}
	if *token != "" {
		static := *token
		cfg.TokenFactory = func(context.Context, string, runauth.InvokeParams) (oauth2.TokenSource, error) {
			return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: static}), nil
		}
	}
	aud := *audience
	if aud == "" {
		aud = base
	}

	fmt.Println("\nTesting webhook endpoint with identity token (POST /webhook)")
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	resp, err = runauth.NewInvoker(cfg).Post(ctx, base+"/webhook", aud, payload)
	report(resp, err)

	fmt.Println("\nTests completed!")
}

func report(resp *http.Response, err error) {
	if err != nil {
		fmt.Printf("Request failed: %v\n", err)
		return
	}
	defer resp.Body.Close()

	fmt.Printf("Status Code: %d\n", resp.StatusCode)
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		fmt.Printf("Read body: %v\n", err)
		return
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, raw, "", "  "); err != nil {
		fmt.Printf("Response: %s\n", raw)
		return
	}
	fmt.Printf("Response: %s\n", pretty.String())
}

func defaultEnvPath() string {
	if path := os.Getenv("WEBHOOK_ENV_FILE"); path != "" {
		return path
	}
	return ".env"
}

// loadEnvFile loads path when it exists. Existing variables win.
func loadEnvFile(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	return godotenv.Load(path)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
